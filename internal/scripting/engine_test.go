package scripting

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/core/ecs"
	"github.com/l1jgo/meshfx/internal/core/event"
	"github.com/l1jgo/meshfx/internal/fx"
	"github.com/l1jgo/meshfx/internal/world"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

type catalog map[string]*fx.Config

func (c catalog) Config(name string) *fx.Config { return c[name] }

func (c catalog) Sampler(string, uint64) fx.SurfaceSampler { return nil }

type fixture struct {
	eng   *Engine
	world *world.State
	ecs   *ecs.World
	bus   *event.Bus
}

func newFixture(t *testing.T, scripts map[string]string, log *zap.Logger) *fixture {
	t.Helper()
	dir := t.TempDir()
	for name, src := range scripts {
		path := filepath.Join(dir, name)
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(src), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	cfg := &fx.Config{
		Name:      "fire",
		Defaults:  fx.DefaultParams(),
		Particles: []*fx.ParticleData{fx.NewParticleData("flame")},
	}
	cfg.Validate()
	ew, bus := ecs.NewWorld(), event.NewBus()
	ws := world.NewState(ew, bus, catalog{"fire": cfg}, &fx.Wind{}, fx.Options{}, 7, log)
	eng, err := NewEngine(dir, ws, bus, log)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(eng.Close)
	return &fixture{eng: eng, world: ws, ecs: ew, bus: bus}
}

func (f *fixture) global(name string) lua.LValue { return f.eng.vm.GetGlobal(name) }

func TestSpawnAndControl(t *testing.T) {
	f := newFixture(t, nil, zaptest.NewLogger(t))
	err := f.eng.Run(`
		ok, err = spawn_emitter("torch", "fire", 1, 2, 3)
		set_position("torch", 4, 5, 6)
		set_sizes("torch", {2, 3, 4, 5})
		set_colors("torch", {{1, 0, 0, 1}, {0, 1, 0}})
		set_wind(0, 3, 0)
		wx, wy, wz = get_wind()
		names = emitter_names()
		count = emitter_count("torch")
	`)
	if err != nil {
		t.Fatal(err)
	}
	if f.global("ok") != lua.LTrue {
		t.Fatalf("spawn failed: %v", f.global("err"))
	}
	inst := f.world.Get("torch")
	if inst == nil {
		t.Fatal("torch not spawned")
	}
	if inst.Host.Pos != (mgl32.Vec3{4, 5, 6}) {
		t.Errorf("position %v", inst.Host.Pos)
	}
	p := inst.Emitter.Params().Particle
	if p.Sizes != [fx.NumKeys]float32{2, 3, 4, 5} {
		t.Errorf("sizes %v", p.Sizes)
	}
	if p.Colors[0] != (fx.Color{R: 1, A: 1}) || p.Colors[1] != (fx.Color{G: 1, A: 1}) {
		t.Errorf("colors %v", p.Colors)
	}
	if p.Colors[2] != fx.White {
		t.Errorf("unset colour key changed: %v", p.Colors[2])
	}
	if f.world.Wind().Velocity() != (mgl32.Vec3{0, 3, 0}) {
		t.Errorf("wind %v", f.world.Wind().Velocity())
	}
	if lua.LVAsNumber(f.global("wy")) != 3 {
		t.Errorf("get_wind y = %v", f.global("wy"))
	}
	names := f.global("names").(*lua.LTable)
	if names.Len() != 1 || names.RawGetInt(1).String() != "torch" {
		t.Errorf("names %v", names)
	}
	if lua.LVAsNumber(f.global("count")) != 0 {
		t.Errorf("count %v", f.global("count"))
	}

	var winds []event.WindChanged
	event.Subscribe(f.bus, func(e event.WindChanged) { winds = append(winds, e) })
	f.bus.SwapBuffers()
	f.bus.DispatchAll()
	if len(winds) != 1 || winds[0].Y != 3 {
		t.Errorf("wind events %+v", winds)
	}
}

func TestErrorsReturnedToScript(t *testing.T) {
	f := newFixture(t, nil, zaptest.NewLogger(t))
	err := f.eng.Run(`
		ok1, err1 = set_position("ghost", 0, 0, 0)
		spawn_emitter("a", "fire", 0, 0, 0)
		ok2, err2 = spawn_emitter("a", "fire", 0, 0, 0)
		ok3, err3 = destroy_emitter("nope")
	`)
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"ok1", "ok2", "ok3"} {
		if f.global(name) != lua.LNil {
			t.Errorf("%s = %v, want nil", name, f.global(name))
		}
	}
	for _, name := range []string{"err1", "err2", "err3"} {
		if s, ok := f.global(name).(lua.LString); !ok || s == "" {
			t.Errorf("%s missing error message", name)
		}
	}
	// a bad argument type raises a Lua error
	if err := f.eng.Run(`set_wind("x", 0, 0)`); err == nil {
		t.Error("expected argument error")
	}
}

func TestHooks(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	f := newFixture(t, map[string]string{
		"scene.lua": `
			ticks = 0
			function on_tick(ms, tick) ticks = ticks + ms end
		`,
		"hooks/empty.lua": `
			emptied = ""
			function on_emitter_empty(name)
				emptied = name
				log_info("empty " .. name)
			end
			function on_observer_joined(name) error("boom") end
		`,
	}, zap.New(core))

	f.eng.Tick(50, 1)
	f.eng.Tick(50, 2)
	if lua.LVAsNumber(f.global("ticks")) != 100 {
		t.Errorf("on_tick total %v", f.global("ticks"))
	}

	event.Emit(f.bus, event.EmitterEmptied{Name: "torch"})
	event.Emit(f.bus, event.ObserverJoined{SessionID: 1, Name: "viewer"})
	f.bus.SwapBuffers()
	f.bus.DispatchAll()

	if f.global("emptied").String() != "torch" {
		t.Errorf("on_emitter_empty got %v", f.global("emptied"))
	}
	if logs.FilterMessage("腳本訊息").Len() != 1 {
		t.Error("log_info not routed to zap")
	}
	if logs.FilterMessage("腳本鉤子執行失敗").Len() != 1 {
		t.Error("failing hook not logged")
	}
}

func TestDeleteWhenEmptyFromScript(t *testing.T) {
	f := newFixture(t, nil, zaptest.NewLogger(t))
	if _, err := f.world.Spawn(world.SpawnSpec{Name: "puff", DataBlock: "fire"}); err != nil {
		t.Fatal(err)
	}
	if err := f.eng.Run(`delete_when_empty("puff")`); err != nil {
		t.Fatal(err)
	}
	e := f.world.Get("puff").Emitter
	if !e.State().DeleteWhenEmpty {
		t.Fatal("flag not set")
	}
	e.Advance(10)
	if !e.Dead() {
		t.Fatal("empty emitter should be dead after advancing")
	}
}

func TestBadScriptFailsLoad(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "bad.lua"), []byte("function ("), 0o644); err != nil {
		t.Fatal(err)
	}
	ew, bus := ecs.NewWorld(), event.NewBus()
	ws := world.NewState(ew, bus, catalog{}, &fx.Wind{}, fx.Options{}, 1, zap.NewNop())
	if _, err := NewEngine(dir, ws, bus, zap.NewNop()); err == nil {
		t.Fatal("expected load error")
	}
}
