package fx

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func testConfig() *Config {
	d := NewParticleData("spark")
	cfg := &Config{
		Name:      "sparks",
		Defaults:  DefaultParams(),
		Particles: []*ParticleData{d},
	}
	cfg.Defaults.Particle.EjectionPeriodMS = 100
	cfg.Defaults.Particle.LifetimeMS = 1000
	cfg.Defaults.Particle.VelocityVariance = 0
	cfg.Validate()
	return cfg
}

func TestEmitterEmitsOnSchedule(t *testing.T) {
	e := NewEmitter(testConfig(), Options{Name: "a", Seed: 1})
	host := NewStaticHost(mgl32.Vec3{})
	if n := e.Emit(350, host); n != 3 {
		t.Fatalf("emitted %d, want 3", n)
	}
	if e.Count() != 3 {
		t.Fatalf("Count = %d", e.Count())
	}
	// pre-advanced by the time left in the step
	ages := map[uint32]bool{}
	e.Pool().Walk(func(_ Handle, p *Particle) bool {
		ages[p.Age] = true
		return true
	})
	for _, want := range []uint32{250, 150, 50} {
		if !ages[want] {
			t.Fatalf("ages %v missing %d", ages, want)
		}
	}
}

func TestLongLivedConfigEmitsUnderCapacityCap(t *testing.T) {
	cfg := testConfig()
	cfg.Defaults.Particle.EjectionPeriodMS = 1
	cfg.Defaults.Particle.LifetimeMS = 30000
	cfg.Validate()

	e := NewEmitter(cfg, Options{Seed: 1, MaxCapacity: 20000})
	if n := e.Emit(100, nil); n != 100 {
		t.Fatalf("emitted %d, want 100", n)
	}
	if c := e.Pool().Cap(); c == 0 || c > 20000 {
		t.Fatalf("cap = %d, want within (0, 20000]", c)
	}
}

func TestPoolExhaustionWarnsOnce(t *testing.T) {
	cfg := testConfig()
	cfg.Defaults.Particle.EjectionPeriodMS = 1
	var reasons []string
	e := NewEmitter(cfg, Options{
		Seed:        1,
		BlockSize:   8,
		MaxCapacity: 10,
		OnWarning:   func(r string) { reasons = append(reasons, r) },
	})
	if n := e.Emit(50, nil); n != 10 {
		t.Fatalf("emitted %d, want 10", n)
	}
	e.Emit(50, nil)
	if len(reasons) != 1 || reasons[0] != ErrPoolExhausted.Error() {
		t.Fatalf("warnings = %q", reasons)
	}
}

func TestInitialPoolSizeIsBounded(t *testing.T) {
	cfg := testConfig()
	cfg.Defaults.Particle.EjectionPeriodMS = 1
	cfg.Defaults.Particle.LifetimeMS = MaxLifetimeMS
	cfg.Validate()
	if got := cfg.InitialPoolSize(); got != MaxInitialPoolSize {
		t.Fatalf("InitialPoolSize = %d, want %d", got, MaxInitialPoolSize)
	}
	if got := testConfig().InitialPoolSize(); got != 1000/100+8 {
		t.Fatalf("InitialPoolSize = %d, want 18", got)
	}
}

func TestEmitterOverrideAdvance(t *testing.T) {
	cfg := testConfig()
	cfg.Defaults.Particle.OverrideAdvance = true
	e := NewEmitter(cfg, Options{Seed: 1})
	e.Emit(350, nil)
	e.Pool().Walk(func(_ Handle, p *Particle) bool {
		if p.Age != 0 {
			t.Fatalf("age %d, want 0 with override advance", p.Age)
		}
		return true
	})
}

func TestAdvanceZeroIsIdempotent(t *testing.T) {
	e := NewEmitter(testConfig(), Options{Seed: 2})
	e.Emit(1000, nil)
	e.Advance(100)
	before := snapshot(e)
	box := e.BBox()
	clock := e.Clock()
	for i := 0; i < 5; i++ {
		e.Advance(0)
	}
	after := snapshot(e)
	if len(before) != len(after) {
		t.Fatalf("count changed %d -> %d", len(before), len(after))
	}
	for i := range before {
		if before[i] != after[i] {
			t.Fatalf("particle %d changed", i)
		}
	}
	if e.BBox() != box || e.Clock() != clock {
		t.Fatal("Advance(0) changed emitter state")
	}
}

func snapshot(e *Emitter) []Particle {
	var out []Particle
	e.Pool().Walk(func(_ Handle, p *Particle) bool {
		out = append(out, *p)
		return true
	})
	return out
}

func TestExpiredParticleIsReleasedAndNotRendered(t *testing.T) {
	e := NewEmitter(testConfig(), Options{Seed: 3})
	h, p, err := e.Pool().Acquire()
	if err != nil {
		t.Fatal(err)
	}
	p.Data = e.Config().Particles[0]
	p.Lifetime = 1000
	p.Age = 999
	p.Size = 1

	e.Advance(2)
	if e.Pool().Get(h) != nil || e.Count() != 0 {
		t.Fatal("expired particle still live")
	}
	b, err := e.BuildVertices(NewView(mgl32.Vec3{0, -10, 0}, mgl32.Vec3{}, mgl32.Vec3{0, 0, 1}))
	if err != nil {
		t.Fatal(err)
	}
	if b.Quads != 0 || len(b.Vertices) != 0 {
		t.Fatalf("built %d quads for an empty emitter", b.Quads)
	}
}

func TestAgeNeverExceedsLifetime(t *testing.T) {
	cfg := testConfig()
	cfg.Defaults.Particle.PeriodVarianceMS = 50
	cfg.Defaults.Particle.LifetimeVarianceMS = 400
	e := NewEmitter(cfg, Options{Seed: 4})
	for i := 0; i < 300; i++ {
		step := uint32(7 + i%40)
		e.Advance(step)
		e.Emit(step, nil)
		e.Pool().Walk(func(_ Handle, p *Particle) bool {
			if p.Age >= p.Lifetime {
				t.Fatalf("live particle with age %d lifetime %d", p.Age, p.Lifetime)
			}
			return true
		})
		checkPool(t, e.Pool())
	}
}

func TestDeleteWhenEmpty(t *testing.T) {
	e := NewEmitter(testConfig(), Options{Seed: 5})
	e.Emit(300, nil)
	e.TakeDirty()
	e.DeleteWhenEmpty()
	if !e.Dirty().Has(StateMask) {
		t.Fatal("DeleteWhenEmpty did not mark state dirty")
	}
	if n := e.Emit(500, nil); n != 0 {
		t.Fatalf("emitted %d after DeleteWhenEmpty", n)
	}
	e.Advance(500)
	if e.Dead() {
		t.Fatal("dead while particles remain")
	}
	e.Advance(1000)
	if !e.Dead() || e.Count() != 0 {
		t.Fatalf("dead=%v count=%d, want dead and empty", e.Dead(), e.Count())
	}
}

func TestWindAndGravityApply(t *testing.T) {
	cfg := testConfig()
	cfg.Defaults.Particle.EjectionVelocity = 0
	cfg.Particles[0].WindCoefficient = 1
	cfg.Particles[0].GravityCoefficient = 1
	cfg.Defaults.Particle.OverrideAdvance = true
	wind := &Wind{}
	wind.Set(mgl32.Vec3{10, 0, 0})
	e := NewEmitter(cfg, Options{Seed: 6, Wind: wind})
	e.Emit(100, nil)
	e.Advance(100)
	var p *Particle
	e.Pool().Walk(func(_ Handle, q *Particle) bool {
		p = q
		return false
	})
	if p == nil {
		t.Fatal("no particle")
	}
	if p.Vel.X() <= 0 || p.Vel.Z() >= 0 {
		t.Fatalf("velocity %v, want +X wind and -Z gravity", p.Vel)
	}
}

func TestAttractorPullsParticles(t *testing.T) {
	cfg := testConfig()
	cfg.Defaults.Particle.EjectionVelocity = 0
	cfg.Defaults.Particle.OverrideAdvance = true
	cfg.Defaults.Physics.AttractionRange = 100
	cfg.Defaults.Physics.Attractors[0] = Attractor{Mode: Attract, Amount: 50, ObjectID: "target"}
	e := NewEmitter(cfg, Options{Seed: 7, Attractors: resolverFunc(func(string) (mgl32.Vec3, bool) {
		return mgl32.Vec3{10, 0, 0}, true
	})})
	e.Emit(100, nil)
	e.Advance(100)
	e.Pool().Walk(func(_ Handle, p *Particle) bool {
		if p.Vel.X() <= 0 {
			t.Fatalf("velocity %v not pulled toward +X", p.Vel)
		}
		return true
	})
}

type resolverFunc func(string) (mgl32.Vec3, bool)

func (f resolverFunc) Resolve(id string) (mgl32.Vec3, bool) { return f(id) }

func TestSetConfigKeepsInFlightParticleData(t *testing.T) {
	old := testConfig()
	e := NewEmitter(old, Options{Seed: 8})
	e.Emit(300, nil)

	next := testConfig()
	next.Name = "embers"
	next.Particles[0] = NewParticleData("ember")
	e.SetConfig(next)
	e.Pool().Walk(func(_ Handle, p *Particle) bool {
		if p.Data != old.Particles[0] {
			t.Fatal("in-flight particle switched particle data")
		}
		return true
	})
	e.Emit(100, nil)
	found := false
	e.Pool().Walk(func(_ Handle, p *Particle) bool {
		found = found || p.Data == next.Particles[0]
		return true
	})
	if !found {
		t.Fatal("new emission did not use the new config")
	}
	if e.State().DataBlock != "embers" {
		t.Fatalf("DataBlock = %q", e.State().DataBlock)
	}
}

func TestMissingConfigWarnsOnce(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	var reasons []string
	e := NewEmitter(nil, Options{
		Log:       zap.New(core),
		OnWarning: func(r string) { reasons = append(reasons, r) },
	})
	for i := 0; i < 5; i++ {
		if n := e.Emit(100, nil); n != 0 {
			t.Fatalf("emitted %d without config", n)
		}
	}
	if len(reasons) != 1 || reasons[0] != ErrNoConfig.Error() {
		t.Fatalf("warnings = %v", reasons)
	}
	if logs.Len() != 1 {
		t.Fatalf("logged %d warnings, want 1", logs.Len())
	}
}

func TestBBoxCoversParticles(t *testing.T) {
	e := NewEmitter(testConfig(), Options{Seed: 9})
	e.Emit(500, NewStaticHost(mgl32.Vec3{5, 5, 5}))
	e.Advance(16)
	b := e.BBox()
	e.Pool().Walk(func(_ Handle, p *Particle) bool {
		if !b.Contains(p.Pos) {
			t.Fatalf("bbox %v does not contain %v", b, p.Pos)
		}
		return true
	})
}

func TestStickyParticlesFollowHost(t *testing.T) {
	cfg := testConfig()
	cfg.Defaults.Particle.EjectionVelocity = 0
	cfg.Defaults.Particle.OverrideAdvance = true
	cfg.Defaults.Physics.Sticky = true
	cfg.Particles[0].WindCoefficient = 0
	e := NewEmitter(cfg, Options{Seed: 10})
	host := NewStaticHost(mgl32.Vec3{})
	e.Emit(100, host)
	before := snapshot(e)[0].Pos

	host.Pos = mgl32.Vec3{3, 0, 0}
	e.Emit(1, host)
	after := snapshot(e)
	last := after[len(after)-1].Pos
	if d := last.Sub(before); !d.ApproxEqual(mgl32.Vec3{3, 0, 0}) {
		t.Fatalf("sticky particle moved by %v, want host delta", d)
	}
}

func TestReplicaApply(t *testing.T) {
	cfg := testConfig()
	src := NewEmitter(cfg, Options{Seed: 11})
	src.Emit(16, NewStaticHost(mgl32.Vec3{1, 2, 3}))
	p := src.Params()
	p.Particle.EjectionVelocity = 9
	src.SetParams(p)

	dst := NewEmitter(nil, Options{})
	dst.ApplyReplica(src.Replica(), FullMask, func(name string) *Config {
		if name == cfg.Name {
			return cfg
		}
		return nil
	})
	if dst.Config() != cfg {
		t.Fatal("replica did not resolve the config")
	}
	if dst.State() != src.State() || dst.Params() != src.Params() {
		t.Fatal("replica fields differ")
	}
}
