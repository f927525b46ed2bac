package world

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/core/ecs"
	"github.com/l1jgo/meshfx/internal/core/event"
	"github.com/l1jgo/meshfx/internal/fx"
	"go.uber.org/zap"
)

var (
	ErrDuplicateName = errors.New("emitter name already in use")
	ErrNotFound      = errors.New("emitter not found")
)

// Catalog resolves datablock and mesh names. Implemented by data.Catalog.
type Catalog interface {
	Config(name string) *fx.Config
	Sampler(mesh string, seed uint64) fx.SurfaceSampler
}

// Host is the movable object an emitter is attached to.
type Host struct {
	Pos mgl32.Vec3
	Rot mgl32.Quat
}

func (h *Host) Transform() (mgl32.Vec3, mgl32.Quat) { return h.Pos, h.Rot }

// Instance is one placed emitter. Accessed only from the game loop.
type Instance struct {
	Entity  ecs.EntityID
	Name    string
	Ghost   uint32 // replication id
	Emitter *fx.Emitter
	Host    *Host
	Mesh    string

	Dirty bool // changed since the last snapshot
}

// SpawnSpec describes an emitter to place.
type SpawnSpec struct {
	Name            string
	DataBlock       string
	Mesh            string // overrides the datablock's emit mesh when set
	Position        mgl32.Vec3
	Rotation        mgl32.Quat // zero means identity
	DeleteWhenEmpty bool
	Seed            uint64     // 0 draws one from the world seed
	Params          *fx.Params // restored tunables, nil keeps the datablock defaults
}

// State 追蹤所有發射器實例與已連線的觀察者。
// 僅限單一 goroutine（遊戲迴圈）存取。
type State struct {
	ecs       *ecs.World
	instances *ecs.Store[Instance]
	byName    map[string]ecs.EntityID
	byGhost   map[uint32]ecs.EntityID
	nextGhost uint32

	observers map[uint64]*Observer

	catalog  Catalog
	template fx.Options
	wind     *fx.Wind
	seeds    *rand.Rand
	bus      *event.Bus
	log      *zap.Logger
}

// NewState creates the world. template carries the pool and vertex limits
// applied to every spawned emitter; seed 0 picks a random world seed.
func NewState(ew *ecs.World, bus *event.Bus, catalog Catalog, wind *fx.Wind, template fx.Options, seed uint64, log *zap.Logger) *State {
	if seed == 0 {
		seed = rand.Uint64()
	}
	if wind == nil {
		wind = fx.ProcessWind()
	}
	s := &State{
		ecs:       ew,
		instances: ecs.NewStore[Instance](),
		byName:    make(map[string]ecs.EntityID),
		byGhost:   make(map[uint32]ecs.EntityID),
		observers: make(map[uint64]*Observer),
		catalog:   catalog,
		template:  template,
		wind:      wind,
		seeds:     rand.New(rand.NewPCG(seed, seed^0x5851f42d4c957f2d)),
		bus:       bus,
		log:       log,
	}
	ew.Register(s.instances)
	ew.OnDestroy(s.forget)
	return s
}

func (s *State) Wind() *fx.Wind { return s.wind }

// Spawn 放置新的發射器。找不到資料區塊不算錯誤：
// 發射器照常存在但不發射，並以警告回報。
func (s *State) Spawn(spec SpawnSpec) (*Instance, error) {
	if spec.Name == "" {
		return nil, fmt.Errorf("spawn: empty name")
	}
	if _, dup := s.byName[spec.Name]; dup {
		return nil, fmt.Errorf("spawn %q: %w", spec.Name, ErrDuplicateName)
	}
	seed := spec.Seed
	for seed == 0 {
		seed = s.seeds.Uint64()
	}
	rot := spec.Rotation
	if rot == (mgl32.Quat{}) {
		rot = mgl32.QuatIdent()
	}

	cfg := s.catalog.Config(spec.DataBlock)
	name := spec.Name
	opts := s.template
	opts.Name = name
	opts.Seed = seed
	opts.Wind = s.wind
	opts.Attractors = s
	opts.Log = s.log
	opts.OnWarning = func(reason string) {
		event.Emit(s.bus, event.ConfigWarning{Name: name, Reason: reason})
	}
	if cfg != nil && opts.BlockSize <= 0 {
		opts.BlockSize = cfg.InitialPoolSize()
	}
	e := fx.NewEmitter(cfg, opts)
	if cfg == nil {
		e.SetDataBlockName(spec.DataBlock)
	}
	if spec.Params != nil {
		e.SetParams(*spec.Params)
	}
	mesh := e.Params().Geometry.EmitMesh
	if spec.Mesh != "" && spec.Mesh != mesh {
		p := e.Params()
		p.Geometry.EmitMesh = spec.Mesh
		e.SetParams(p)
		mesh = spec.Mesh
	}
	if mesh != "" {
		if smp := s.catalog.Sampler(mesh, seed); smp != nil {
			e.SetSampler(smp)
		} else {
			s.log.Warn("找不到發射網格", zap.String("emitter", name), zap.String("mesh", mesh))
		}
	}
	if spec.DeleteWhenEmpty {
		e.DeleteWhenEmpty()
	}

	host := &Host{Pos: spec.Position, Rot: rot}
	// 先固定位置，避免第一次 Emit 看到從原點跳過來的位移
	e.Emit(0, host)

	s.nextGhost++
	inst := &Instance{
		Entity:  s.ecs.CreateEntity(),
		Name:    name,
		Ghost:   s.nextGhost,
		Emitter: e,
		Host:    host,
		Mesh:    mesh,
		Dirty:   true,
	}
	s.instances.Set(inst.Entity, inst)
	s.byName[name] = inst.Entity
	s.byGhost[inst.Ghost] = inst.Entity
	event.Emit(s.bus, event.EmitterSpawned{Entity: inst.Entity, Name: name, Ghost: inst.Ghost})
	s.log.Debug("發射器已生成",
		zap.String("emitter", name),
		zap.String("config", spec.DataBlock),
		zap.Uint32("ghost", inst.Ghost),
	)
	return inst, nil
}

// Destroy 將指定發射器排入 tick 結束時移除。
func (s *State) Destroy(name string) error {
	id, ok := s.byName[name]
	if !ok {
		return fmt.Errorf("destroy %q: %w", name, ErrNotFound)
	}
	s.ecs.MarkForDestruction(id)
	return nil
}

// forget drops the indexes of an entity being destroyed.
func (s *State) forget(id ecs.EntityID) {
	inst, ok := s.instances.Get(id)
	if !ok {
		return
	}
	delete(s.byName, inst.Name)
	delete(s.byGhost, inst.Ghost)
	event.Emit(s.bus, event.EmitterDestroyed{Entity: id, Name: inst.Name, Ghost: inst.Ghost})
}

func (s *State) Get(name string) *Instance {
	id, ok := s.byName[name]
	if !ok {
		return nil
	}
	inst, _ := s.instances.Get(id)
	return inst
}

func (s *State) ByEntity(id ecs.EntityID) *Instance {
	inst, _ := s.instances.Get(id)
	return inst
}

func (s *State) ByGhost(ghost uint32) *Instance {
	id, ok := s.byGhost[ghost]
	if !ok {
		return nil
	}
	inst, _ := s.instances.Get(id)
	return inst
}

// Each visits every instance in spawn order.
func (s *State) Each(fn func(*Instance)) {
	s.instances.Each(func(_ ecs.EntityID, inst *Instance) { fn(inst) })
}

func (s *State) Len() int { return s.instances.Len() }

// Names returns the instance names in sorted order.
func (s *State) Names() []string {
	names := make([]string, 0, len(s.byName))
	for n := range s.byName {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// MarkDestroy queues an instance for cleanup by entity id.
func (s *State) MarkDestroy(id ecs.EntityID) { s.ecs.MarkForDestruction(id) }

// Resolve implements fx.AttractorResolver: attractor object ids name other
// emitter instances, and resolve to their host position.
func (s *State) Resolve(objectID string) (mgl32.Vec3, bool) {
	inst := s.Get(objectID)
	if inst == nil {
		return mgl32.Vec3{}, false
	}
	return inst.Host.Pos, true
}

// SetPosition moves the host of the named emitter.
func (s *State) SetPosition(name string, pos mgl32.Vec3) error {
	inst := s.Get(name)
	if inst == nil {
		return fmt.Errorf("set position %q: %w", name, ErrNotFound)
	}
	inst.Host.Pos = pos
	inst.Dirty = true
	return nil
}

// Count returns the live particle count of the named emitter.
func (s *State) Count(name string) (int, error) {
	inst := s.Get(name)
	if inst == nil {
		return 0, fmt.Errorf("count %q: %w", name, ErrNotFound)
	}
	return inst.Emitter.Count(), nil
}
