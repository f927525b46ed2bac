package scripting

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/core/event"
	"github.com/l1jgo/meshfx/internal/fx"
	"github.com/l1jgo/meshfx/internal/world"
	lua "github.com/yuin/gopher-lua"
	"go.uber.org/zap"
)

// apiVersion is exposed to scripts as API_VERSION.
const apiVersion = 1

// Engine 包裝單一 gopher-lua VM，供腳本控制發射器。
// 僅限遊戲迴圈存取。
type Engine struct {
	vm    *lua.LState
	world *world.State
	bus   *event.Bus
	log   *zap.Logger
}

// NewEngine creates a Lua engine bound to ws and loads every script in
// scriptsDir, then in scriptsDir/hooks. A missing directory is not an error.
func NewEngine(scriptsDir string, ws *world.State, bus *event.Bus, log *zap.Logger) (*Engine, error) {
	vm := lua.NewState()
	vm.SetGlobal("API_VERSION", lua.LNumber(apiVersion))

	e := &Engine{vm: vm, world: ws, bus: bus, log: log}
	e.register()

	for _, dir := range []string{scriptsDir, filepath.Join(scriptsDir, "hooks")} {
		if err := e.loadDir(dir); err != nil {
			vm.Close()
			return nil, err
		}
	}

	event.Subscribe(bus, func(ev event.EmitterEmptied) {
		e.callHook("on_emitter_empty", lua.LString(ev.Name))
	})
	event.Subscribe(bus, func(ev event.ObserverJoined) {
		e.callHook("on_observer_joined", lua.LString(ev.Name))
	})
	event.Subscribe(bus, func(ev event.ObserverLeft) {
		e.callHook("on_observer_left", lua.LString(ev.Name))
	})
	return e, nil
}

// loadDir runs all .lua files in a directory, in name order.
func (e *Engine) loadDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".lua" {
			continue
		}
		path := filepath.Join(dir, entry.Name())
		if err := e.vm.DoFile(path); err != nil {
			return fmt.Errorf("load %s: %w", path, err)
		}
		e.log.Debug("已載入腳本", zap.String("file", path))
	}
	return nil
}

// Run executes a chunk of Lua in the engine's VM.
func (e *Engine) Run(chunk string) error {
	return e.vm.DoString(chunk)
}

// Tick calls the optional on_tick(tick_ms, tick) hook.
func (e *Engine) Tick(tickMS uint32, tick uint64) {
	e.callHook("on_tick", lua.LNumber(tickMS), lua.LNumber(tick))
}

// callHook 呼叫腳本定義的全域函式（若有）。
// 腳本錯誤只記錄日誌，不會影響遊戲迴圈。
func (e *Engine) callHook(name string, args ...lua.LValue) bool {
	fn := e.vm.GetGlobal(name)
	if fn.Type() != lua.LTFunction {
		return false
	}
	if err := e.vm.CallByParam(lua.P{
		Fn:      fn,
		NRet:    0,
		Protect: true,
	}, args...); err != nil {
		e.log.Error("腳本鉤子執行失敗", zap.String("hook", name), zap.Error(err))
		return false
	}
	return true
}

func (e *Engine) register() {
	fns := map[string]lua.LGFunction{
		"set_wind":          e.luaSetWind,
		"get_wind":          e.luaGetWind,
		"spawn_emitter":     e.luaSpawn,
		"destroy_emitter":   e.luaDestroy,
		"set_position":      e.luaSetPosition,
		"set_sizes":         e.luaSetSizes,
		"set_colors":        e.luaSetColors,
		"delete_when_empty": e.luaDeleteWhenEmpty,
		"emitter_count":     e.luaCount,
		"emitter_names":     e.luaNames,
		"log_info":          e.luaLog,
	}
	for name, fn := range fns {
		e.vm.SetGlobal(name, e.vm.NewFunction(fn))
	}
}

// fail pushes the Lua (nil, message) error convention.
func fail(L *lua.LState, err error) int {
	L.Push(lua.LNil)
	L.Push(lua.LString(err.Error()))
	return 2
}

func checkVec3(L *lua.LState, from int) mgl32.Vec3 {
	return mgl32.Vec3{
		float32(L.CheckNumber(from)),
		float32(L.CheckNumber(from + 1)),
		float32(L.CheckNumber(from + 2)),
	}
}

// set_wind(x, y, z)
func (e *Engine) luaSetWind(L *lua.LState) int {
	v := checkVec3(L, 1)
	e.world.Wind().Set(v)
	event.Emit(e.bus, event.WindChanged{X: v.X(), Y: v.Y(), Z: v.Z()})
	return 0
}

// get_wind() -> x, y, z
func (e *Engine) luaGetWind(L *lua.LState) int {
	v := e.world.Wind().Velocity()
	L.Push(lua.LNumber(v.X()))
	L.Push(lua.LNumber(v.Y()))
	L.Push(lua.LNumber(v.Z()))
	return 3
}

// spawn_emitter(name, datablock, x, y, z [, mesh [, delete_when_empty]]) -> true | nil, err
func (e *Engine) luaSpawn(L *lua.LState) int {
	spec := world.SpawnSpec{
		Name:            L.CheckString(1),
		DataBlock:       L.CheckString(2),
		Position:        checkVec3(L, 3),
		Mesh:            L.OptString(6, ""),
		DeleteWhenEmpty: L.OptBool(7, false),
	}
	if _, err := e.world.Spawn(spec); err != nil {
		return fail(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

// destroy_emitter(name) -> true | nil, err
func (e *Engine) luaDestroy(L *lua.LState) int {
	if err := e.world.Destroy(L.CheckString(1)); err != nil {
		return fail(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

// set_position(name, x, y, z) -> true | nil, err
func (e *Engine) luaSetPosition(L *lua.LState) int {
	if err := e.world.SetPosition(L.CheckString(1), checkVec3(L, 2)); err != nil {
		return fail(L, err)
	}
	L.Push(lua.LTrue)
	return 1
}

func (e *Engine) instance(L *lua.LState) (*world.Instance, error) {
	name := L.CheckString(1)
	inst := e.world.Get(name)
	if inst == nil {
		return nil, fmt.Errorf("%q: %w", name, world.ErrNotFound)
	}
	return inst, nil
}

// set_sizes(name, {s0, s1, s2, s3}) -> true | nil, err
func (e *Engine) luaSetSizes(L *lua.LState) int {
	inst, err := e.instance(L)
	if err != nil {
		return fail(L, err)
	}
	t := L.CheckTable(2)
	sizes := make([]float32, 0, fx.NumKeys)
	for i := 1; i <= fx.NumKeys; i++ {
		v, ok := t.RawGetInt(i).(lua.LNumber)
		if !ok {
			break
		}
		sizes = append(sizes, float32(v))
	}
	inst.Emitter.SetSizes(sizes)
	inst.Dirty = true
	L.Push(lua.LTrue)
	return 1
}

// set_colors(name, {{r, g, b, a}, ...}) -> true | nil, err
func (e *Engine) luaSetColors(L *lua.LState) int {
	inst, err := e.instance(L)
	if err != nil {
		return fail(L, err)
	}
	t := L.CheckTable(2)
	colors := make([]fx.Color, 0, fx.NumKeys)
	for i := 1; i <= fx.NumKeys; i++ {
		ct, ok := t.RawGetInt(i).(*lua.LTable)
		if !ok {
			break
		}
		colors = append(colors, fx.Color{
			R: component(ct, 1, 0),
			G: component(ct, 2, 0),
			B: component(ct, 3, 0),
			A: component(ct, 4, 1),
		})
	}
	inst.Emitter.SetColors(colors)
	inst.Dirty = true
	L.Push(lua.LTrue)
	return 1
}

func component(t *lua.LTable, i int, def float32) float32 {
	if v, ok := t.RawGetInt(i).(lua.LNumber); ok {
		return float32(v)
	}
	return def
}

// delete_when_empty(name) -> true | nil, err
func (e *Engine) luaDeleteWhenEmpty(L *lua.LState) int {
	inst, err := e.instance(L)
	if err != nil {
		return fail(L, err)
	}
	inst.Emitter.DeleteWhenEmpty()
	inst.Dirty = true
	L.Push(lua.LTrue)
	return 1
}

// emitter_count(name) -> n | nil, err
func (e *Engine) luaCount(L *lua.LState) int {
	n, err := e.world.Count(L.CheckString(1))
	if err != nil {
		return fail(L, err)
	}
	L.Push(lua.LNumber(n))
	return 1
}

// emitter_names() -> {name, ...} sorted
func (e *Engine) luaNames(L *lua.LState) int {
	t := L.NewTable()
	for _, n := range e.world.Names() {
		t.Append(lua.LString(n))
	}
	L.Push(t)
	return 1
}

func (e *Engine) luaLog(L *lua.LState) int {
	e.log.Info("腳本訊息", zap.String("msg", L.CheckString(1)))
	return 0
}

// Close 關閉 Lua VM。
func (e *Engine) Close() {
	e.vm.Close()
}
