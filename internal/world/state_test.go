package world

import (
	"errors"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/core/ecs"
	"github.com/l1jgo/meshfx/internal/core/event"
	"github.com/l1jgo/meshfx/internal/fx"
	"go.uber.org/zap/zaptest"
)

type fakeCatalog map[string]*fx.Config

func (c fakeCatalog) Config(name string) *fx.Config { return c[name] }

func (c fakeCatalog) Sampler(string, uint64) fx.SurfaceSampler { return nil }

func newTestState(t *testing.T) (*State, *ecs.World, *event.Bus) {
	t.Helper()
	cfg := &fx.Config{
		Name:      "fire",
		Defaults:  fx.DefaultParams(),
		Particles: []*fx.ParticleData{fx.NewParticleData("flame")},
	}
	cfg.Validate()
	ew, bus := ecs.NewWorld(), event.NewBus()
	s := NewState(ew, bus, fakeCatalog{"fire": cfg}, &fx.Wind{}, fx.Options{}, 42, zaptest.NewLogger(t))
	return s, ew, bus
}

func TestSpawnAndLookup(t *testing.T) {
	s, _, bus := newTestState(t)
	var spawned []event.EmitterSpawned
	event.Subscribe(bus, func(e event.EmitterSpawned) { spawned = append(spawned, e) })

	a, err := s.Spawn(SpawnSpec{Name: "a", DataBlock: "fire", Position: mgl32.Vec3{1, 2, 3}})
	if err != nil {
		t.Fatal(err)
	}
	if a.Emitter.State().Position != (mgl32.Vec3{1, 2, 3}) {
		t.Errorf("transform not pinned: %v", a.Emitter.State().Position)
	}
	if a.Emitter.State().Seed == 0 {
		t.Error("seed not drawn")
	}
	if _, err := s.Spawn(SpawnSpec{Name: "a", DataBlock: "fire"}); !errors.Is(err, ErrDuplicateName) {
		t.Fatalf("duplicate: %v", err)
	}
	b, _ := s.Spawn(SpawnSpec{Name: "b", DataBlock: "fire", Seed: 9})
	if b.Ghost == a.Ghost || s.ByGhost(b.Ghost) != b || s.ByEntity(b.Entity) != b {
		t.Fatal("index mismatch")
	}
	if b.Emitter.State().Seed != 9 {
		t.Error("explicit seed ignored")
	}
	if got := s.Names(); len(got) != 2 || got[0] != "a" {
		t.Fatalf("names %v", got)
	}

	bus.SwapBuffers()
	bus.DispatchAll()
	if len(spawned) != 2 || spawned[0].Name != "a" {
		t.Fatalf("spawn events %+v", spawned)
	}
}

func TestMissingDatablockWarns(t *testing.T) {
	s, _, bus := newTestState(t)
	var warnings []event.ConfigWarning
	event.Subscribe(bus, func(e event.ConfigWarning) { warnings = append(warnings, e) })

	inst, err := s.Spawn(SpawnSpec{Name: "ghost", DataBlock: "nope"})
	if err != nil {
		t.Fatal(err)
	}
	if inst.Emitter.Config() != nil || inst.Emitter.State().DataBlock != "nope" {
		t.Fatal("missing datablock not recorded")
	}
	bus.SwapBuffers()
	bus.DispatchAll()
	if len(warnings) != 1 || warnings[0].Reason != fx.ErrNoConfig.Error() {
		t.Fatalf("warnings %+v", warnings)
	}
}

func TestDestroyAtCleanup(t *testing.T) {
	s, ew, bus := newTestState(t)
	var destroyed []string
	event.Subscribe(bus, func(e event.EmitterDestroyed) { destroyed = append(destroyed, e.Name) })

	inst, _ := s.Spawn(SpawnSpec{Name: "a", DataBlock: "fire"})
	if err := s.Destroy("a"); err != nil {
		t.Fatal(err)
	}
	if s.Get("a") == nil {
		t.Fatal("destroyed before cleanup")
	}
	ew.FlushDestroyQueue()
	if s.Get("a") != nil || s.ByGhost(inst.Ghost) != nil || s.Len() != 0 {
		t.Fatal("indexes not cleared")
	}
	bus.SwapBuffers()
	bus.DispatchAll()
	if len(destroyed) != 1 {
		t.Fatalf("destroy events %v", destroyed)
	}
	if err := s.Destroy("a"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second destroy: %v", err)
	}
	// the name is free again
	if _, err := s.Spawn(SpawnSpec{Name: "a", DataBlock: "fire"}); err != nil {
		t.Fatal(err)
	}
}

func TestResolveAndMove(t *testing.T) {
	s, _, _ := newTestState(t)
	s.Spawn(SpawnSpec{Name: "beacon", DataBlock: "fire", Position: mgl32.Vec3{5, 0, 0}})
	if p, ok := s.Resolve("beacon"); !ok || p.X() != 5 {
		t.Fatalf("resolve = %v %v", p, ok)
	}
	if _, ok := s.Resolve("nobody"); ok {
		t.Fatal("resolved unknown object")
	}
	if err := s.SetPosition("beacon", mgl32.Vec3{0, 7, 0}); err != nil {
		t.Fatal(err)
	}
	if p, _ := s.Resolve("beacon"); p.Y() != 7 {
		t.Fatalf("moved host at %v", p)
	}
	if n, err := s.Count("beacon"); err != nil || n != 0 {
		t.Fatalf("count %d %v", n, err)
	}
}

func TestRestoredParamsAndMesh(t *testing.T) {
	s, _, _ := newTestState(t)
	p := fx.DefaultParams()
	p.Particle.EjectionVelocity = 11
	inst, err := s.Spawn(SpawnSpec{Name: "r", DataBlock: "fire", Params: &p, Mesh: "crate", DeleteWhenEmpty: true})
	if err != nil {
		t.Fatal(err)
	}
	got := inst.Emitter.Params()
	if got.Particle.EjectionVelocity != 11 || got.Geometry.EmitMesh != "crate" || inst.Mesh != "crate" {
		t.Fatalf("params %+v", got)
	}
	if !inst.Emitter.State().DeleteWhenEmpty {
		t.Fatal("delete when empty lost")
	}
}

func TestObservers(t *testing.T) {
	s, _, _ := newTestState(t)
	s.AddObserver(&Observer{SessionID: 3, Name: "c"})
	s.AddObserver(&Observer{SessionID: 1, Name: "a"})
	if ids := s.ObserverIDs(); len(ids) != 2 || ids[0] != 1 {
		t.Fatalf("ids %v", ids)
	}
	if o := s.RemoveObserver(3); o == nil || o.Name != "c" || s.ObserverCount() != 1 {
		t.Fatal("remove failed")
	}
	if s.RemoveObserver(3) != nil {
		t.Fatal("double remove")
	}
}
