package fx

import (
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"
	"go.uber.org/zap"
)

// State is the replicated per-instance emitter state.
type State struct {
	Seed            uint64
	DataBlock       string
	Position        mgl32.Vec3
	Rotation        mgl32.Quat
	DeleteWhenEmpty bool
	Dead            bool
}

// Replica is everything an observer needs to rebuild an emitter.
type Replica struct {
	State  State
	Params Params
}

// Options configure a new Emitter. Zero values pick sensible defaults.
type Options struct {
	Name           string
	BlockSize      int // pool growth increment; 0 derives it from the config
	MaxCapacity    int // 0 = unbounded
	MaxEmitPerStep int
	MaxVertices    int // 0 = unbounded
	Seed           uint64

	Sampler    SurfaceSampler
	Attractors AttractorResolver
	Wind       *Wind
	Log        *zap.Logger
	OnWarning  func(reason string)
}

// Emitter owns one particle pool and simulates it under a shared Config.
// Not safe for concurrent use.
type Emitter struct {
	name   string
	data   *Config
	params Params
	state  State

	pool  *Pool
	src   *rand.PCG
	rng   *rand.Rand
	sched *Scheduler

	sampler    SurfaceSampler
	attractors AttractorResolver
	wind       *Wind

	clock        uint32
	lastPosition mgl32.Vec3
	hasLast      bool
	bbox         Box

	maxEmit int
	offsets []uint32

	vb    VertexBuffer
	order []drawItem

	dirty     Mask
	warned    map[string]struct{}
	onWarning func(string)
	log       *zap.Logger
}

// NewEmitter creates an emitter for cfg. A nil cfg is allowed: the emitter
// stays alive, emits nothing and reports ErrNoConfig once.
func NewEmitter(cfg *Config, opts Options) *Emitter {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	wind := opts.Wind
	if wind == nil {
		wind = ProcessWind()
	}
	block := opts.BlockSize
	if block <= 0 && cfg != nil {
		block = cfg.InitialPoolSize()
	}
	src := rand.NewPCG(opts.Seed, seedStream(opts.Seed))
	rng := rand.New(src)
	e := &Emitter{
		name:       opts.Name,
		pool:       NewPool(block, opts.MaxCapacity),
		src:        src,
		rng:        rng,
		sched:      NewScheduler(rng),
		sampler:    opts.Sampler,
		attractors: opts.Attractors,
		wind:       wind,
		maxEmit:    opts.MaxEmitPerStep,
		vb:         VertexBuffer{max: opts.MaxVertices},
		warned:     make(map[string]struct{}),
		onWarning:  opts.OnWarning,
		log:        log.With(zap.String("emitter", opts.Name)),
	}
	if e.maxEmit <= 0 {
		e.maxEmit = DefaultMaxEmitPerStep
	}
	e.state.Seed = opts.Seed
	e.state.Rotation = mgl32.QuatIdent()
	e.params = DefaultParams()
	e.SetConfig(cfg)
	e.dirty = FullMask
	return e
}

func seedStream(seed uint64) uint64 { return seed ^ 0x9e3779b97f4a7c15 }

// warn 同一原因只回報一次。
func (e *Emitter) warn(reason string) {
	if _, ok := e.warned[reason]; ok {
		return
	}
	e.warned[reason] = struct{}{}
	e.log.Warn("發射器設定警告", zap.String("reason", reason))
	if e.onWarning != nil {
		e.onWarning(reason)
	}
}

// SetConfig 更換共用設定。已存活的粒子保留出生時的粒子資料，
// 只有之後的發射才套用新設定。
func (e *Emitter) SetConfig(cfg *Config) {
	e.data = cfg
	e.dirty |= StateMask
	if cfg == nil {
		e.state.DataBlock = ""
		e.warn(ErrNoConfig.Error())
		return
	}
	e.state.DataBlock = cfg.Name
	if len(cfg.Particles) == 0 {
		e.warn("config has no particle data")
	}
	next := cfg.Defaults
	for _, w := range next.Sanitize() {
		e.warn(w)
	}
	e.dirty |= e.params.diff(&next)
	e.params = next
}

// SetParams replaces the tunable fields and returns the groups that changed.
func (e *Emitter) SetParams(p Params) Mask {
	for _, w := range p.Sanitize() {
		e.warn(w)
	}
	changed := e.params.diff(&p)
	e.params = p
	e.dirty |= changed
	return changed
}

// SetSizes sets the emitter size keys used when UseEmitterSizes is on.
func (e *Emitter) SetSizes(sizes []float32) {
	for i := 0; i < NumKeys && i < len(sizes); i++ {
		e.params.Particle.Sizes[i] = sizes[i]
	}
	e.dirty |= ParticleMask
}

// SetColors sets the emitter colour keys used when UseEmitterColors is on.
func (e *Emitter) SetColors(colors []Color) {
	for i := 0; i < NumKeys && i < len(colors); i++ {
		e.params.Particle.Colors[i] = colors[i]
	}
	e.dirty |= ParticleMask
}

// DeleteWhenEmpty 停止發射；最後一個粒子消失後發射器轉為 Dead。
func (e *Emitter) DeleteWhenEmpty() {
	if e.state.DeleteWhenEmpty {
		return
	}
	e.state.DeleteWhenEmpty = true
	e.dirty |= StateMask
}

// SetDataBlockName records which datablock a config-less emitter refers to,
// so observers and snapshots keep the reference until it can be resolved.
func (e *Emitter) SetDataBlockName(name string) {
	var w []string
	wireField(&name, "datablock name", &w)
	for _, msg := range w {
		e.warn(msg)
	}
	if e.data != nil || e.state.DataBlock == name {
		return
	}
	e.state.DataBlock = name
	e.dirty |= StateMask
}

// SetSampler replaces the surface sampler used for face emission.
func (e *Emitter) SetSampler(s SurfaceSampler) { e.sampler = s }

// SetAttractorResolver replaces the attractor target lookup.
func (e *Emitter) SetAttractorResolver(r AttractorResolver) { e.attractors = r }

func (e *Emitter) reseed(seed uint64) {
	e.src.Seed(seed, seedStream(seed))
	e.state.Seed = seed
}

// Replica snapshots the replicated fields.
func (e *Emitter) Replica() Replica {
	return Replica{State: e.state, Params: e.params}
}

// ApplyReplica installs the groups in mask from r. lookup resolves a
// datablock name to a config when the state group names a new one. The
// replicated transform is only taken before the first Emit; after that
// it arrives through the host.
func (e *Emitter) ApplyReplica(r Replica, mask Mask, lookup func(string) *Config) {
	if mask&StateMask != 0 {
		s := r.State
		if s.DataBlock != e.state.DataBlock || e.data == nil {
			var cfg *Config
			if lookup != nil {
				cfg = lookup(s.DataBlock)
			}
			if cfg == nil {
				e.warn(ErrNoConfig.Error())
			}
			e.data = cfg
		}
		if s.Seed != e.state.Seed {
			e.reseed(s.Seed)
			e.sched.Reset()
		}
		pos, rot := e.state.Position, e.state.Rotation
		e.state = s
		if e.hasLast {
			// 開始發射後，位置改由 Emit 傳入的 host 決定
			e.state.Position, e.state.Rotation = pos, rot
		}
	}
	if mask&GeometryMask != 0 {
		e.params.Geometry = r.Params.Geometry
	}
	if mask&ParticleMask != 0 {
		e.params.Particle = r.Params.Particle
	}
	if mask&PhysicsMask != 0 {
		e.params.Physics = r.Params.Physics
	}
}

func (e *Emitter) Name() string { return e.name }
func (e *Emitter) Config() *Config { return e.data }
func (e *Emitter) Params() Params { return e.params }
func (e *Emitter) State() State { return e.state }
func (e *Emitter) Pool() *Pool { return e.pool }
func (e *Emitter) Count() int { return e.pool.Len() }
func (e *Emitter) BBox() Box { return e.bbox }
func (e *Emitter) Clock() uint32 { return e.clock }
func (e *Emitter) Dead() bool { return e.state.Dead }
func (e *Emitter) Scheduler() *Scheduler { return e.sched }
func (e *Emitter) Dirty() Mask { return e.dirty }
func (e *Emitter) MarkDirty(m Mask) { e.dirty |= m }
func (e *Emitter) VertexCapacity() int { return e.vb.Cap() }

// TakeDirty returns and clears the pending dirty bits.
func (e *Emitter) TakeDirty() Mask {
	m := e.dirty
	e.dirty = 0
	return m
}

// CollectiveColor returns the average colour of all live particles.
func (e *Emitter) CollectiveColor() Color {
	n := e.pool.Len()
	if n == 0 {
		return Color{}
	}
	var sum Color
	e.pool.Walk(func(_ Handle, p *Particle) bool {
		sum.R += p.Color.R
		sum.G += p.Color.G
		sum.B += p.Color.B
		sum.A += p.Color.A
		return true
	})
	inv := 1 / float32(n)
	return Color{R: sum.R * inv, G: sum.G * inv, B: sum.B * inv, A: sum.A * inv}
}

func (e *Emitter) setTransform(pos mgl32.Vec3, rot mgl32.Quat) {
	if pos != e.state.Position || rot != e.state.Rotation {
		e.state.Position = pos
		e.state.Rotation = rot
		e.dirty |= StateMask
	}
}
