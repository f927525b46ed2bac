package fx

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/net/packet"
)

// ErrNoConfig is reported when an emitter has no config to emit from.
var ErrNoConfig = errors.New("emitter has no config")

// Value ranges that the wire format can carry exactly.
const (
	MaxPeriodMS   = 1<<16 - 1
	MaxLifetimeMS = 1<<24 - 1
)

// BlendStyle selects the render collaborator's blend state.
type BlendStyle uint8

const (
	BlendUndefined BlendStyle = iota
	BlendNormal
	BlendAdditive
	BlendSubtractive
	BlendPremultAlpha
	BlendInvAlpha
	numBlendStyles
)

// Valid reports whether s is a known blend style.
func (s BlendStyle) Valid() bool { return s < numBlendStyles }

func (s BlendStyle) String() string {
	switch s {
	case BlendUndefined:
		return "undefined"
	case BlendNormal:
		return "normal"
	case BlendAdditive:
		return "additive"
	case BlendSubtractive:
		return "subtractive"
	case BlendPremultAlpha:
		return "premultalpha"
	case BlendInvAlpha:
		return "invalpha"
	default:
		return fmt.Sprintf("Unknown(%d)", int(s))
	}
}

// ParseBlendStyle maps a catalog name to a BlendStyle.
func ParseBlendStyle(name string) (BlendStyle, error) {
	for s := BlendUndefined; s < numBlendStyles; s++ {
		if s.String() == name {
			return s, nil
		}
	}
	return BlendUndefined, fmt.Errorf("unknown blend style %q", name)
}

// AttractionMode is the behaviour of one attractor slot.
type AttractionMode uint8

const (
	AttractNone AttractionMode = iota
	Attract
	Repulse
	numAttractionModes
)

// Valid reports whether m is a known attraction mode.
func (m AttractionMode) Valid() bool { return m < numAttractionModes }

// NumAttractors is the number of attractor slots per emitter.
const NumAttractors = 2

// Attractor pulls particles toward (or pushes them away from) a named object.
type Attractor struct {
	Mode     AttractionMode
	Amount   float32
	ObjectID string
	Offset   mgl32.Vec3
}

// GeometryParams control where particles are born.
type GeometryParams struct {
	EmitMesh       string
	EvenEmission   bool // area-weighted face choice
	EmitOnFaces    bool
	EjectionOffset float32
}

// ParticleParams control emission timing and particle appearance.
type ParticleParams struct {
	EjectionPeriodMS   int32
	PeriodVarianceMS   int32
	EjectionVelocity   float32
	VelocityVariance   float32
	LifetimeMS         int32
	LifetimeVarianceMS int32

	OverrideAdvance  bool
	OrientParticles  bool
	OrientOnVelocity bool
	AlignParticles   bool
	UseEmitterSizes  bool
	UseEmitterColors bool
	SortParticles    bool
	ReverseOrder     bool
	HighResOnly      bool
	RenderReflection bool

	AlignDirection mgl32.Vec3

	Sizes  [NumKeys]float32
	Colors [NumKeys]Color

	SoftnessDistance float32
	AmbientFactor    float32
	BlendStyle       BlendStyle
	TextureName      string
}

// PhysicsParams control forces beyond drag, wind and gravity.
type PhysicsParams struct {
	Sticky          bool
	AttractionRange float32
	Attractors      [NumAttractors]Attractor
}

// Params are the tunable, replicated emitter fields. Each group maps to one
// dirty-mask bit.
type Params struct {
	Geometry GeometryParams
	Particle ParticleParams
	Physics  PhysicsParams
}

// DefaultParams mirrors the stock emitter defaults.
func DefaultParams() Params {
	return Params{
		Particle: ParticleParams{
			EjectionPeriodMS:   100,
			PeriodVarianceMS:   0,
			EjectionVelocity:   2,
			VelocityVariance:   1,
			LifetimeMS:         1000,
			LifetimeVarianceMS: 0,
			AlignDirection:     mgl32.Vec3{0, 1, 0},
			Sizes:              [NumKeys]float32{1, 1, 1, 1},
			Colors:             [NumKeys]Color{White, White, White, White},
			AmbientFactor:      0,
			BlendStyle:         BlendNormal,
		},
	}
}

// Sanitize 將每個欄位限制在合法範圍內，並回報修正了哪些項目。
func (p *Params) Sanitize() []string {
	var w []string
	pp := &p.Particle
	if pp.EjectionPeriodMS <= 0 {
		pp.EjectionPeriodMS = 1
		w = append(w, "non-positive ejection period clamped to 1ms")
	} else if pp.EjectionPeriodMS > MaxPeriodMS {
		pp.EjectionPeriodMS = MaxPeriodMS
		w = append(w, "ejection period clamped to maximum")
	}
	if pp.PeriodVarianceMS < 0 {
		pp.PeriodVarianceMS = 0
		w = append(w, "negative period variance clamped to 0")
	}
	if pp.PeriodVarianceMS >= pp.EjectionPeriodMS {
		pp.PeriodVarianceMS = pp.EjectionPeriodMS - 1
		w = append(w, "period variance must be less than ejection period")
	}
	if pp.LifetimeMS <= 0 {
		pp.LifetimeMS = 1
		w = append(w, "non-positive lifetime clamped to 1ms")
	} else if pp.LifetimeMS > MaxLifetimeMS {
		pp.LifetimeMS = MaxLifetimeMS
		w = append(w, "lifetime clamped to maximum")
	}
	if pp.LifetimeVarianceMS < 0 {
		pp.LifetimeVarianceMS = 0
		w = append(w, "negative lifetime variance clamped to 0")
	}
	if pp.LifetimeVarianceMS >= pp.LifetimeMS {
		pp.LifetimeVarianceMS = pp.LifetimeMS - 1
		w = append(w, "lifetime variance must be less than lifetime")
	}
	if pp.VelocityVariance < 0 {
		pp.VelocityVariance = -pp.VelocityVariance
	}
	if pp.AlignDirection.LenSqr() < 1e-12 {
		pp.AlignDirection = mgl32.Vec3{0, 0, 1}
		w = append(w, "zero align direction replaced with +Z")
	} else {
		pp.AlignDirection = pp.AlignDirection.Normalize()
	}
	pp.AmbientFactor = mgl32.Clamp(pp.AmbientFactor, 0, 1)
	if pp.SoftnessDistance < 0 {
		pp.SoftnessDistance = 0
	}
	if !pp.BlendStyle.Valid() {
		pp.BlendStyle = BlendNormal
		w = append(w, "unknown blend style replaced with normal")
	}
	wireField(&pp.TextureName, "texture name", &w)
	wireField(&p.Geometry.EmitMesh, "emit mesh", &w)

	ph := &p.Physics
	if ph.AttractionRange < 0 {
		ph.AttractionRange = 0
	}
	for i := range ph.Attractors {
		a := &ph.Attractors[i]
		if !a.Mode.Valid() {
			a.Mode = AttractNone
			w = append(w, "unknown attraction mode disabled")
		}
		wireField(&a.ObjectID, "attractor object id", &w)
	}
	return w
}

// wireField 將 *s 改寫成線上可原樣傳輸的形式，有變動時記錄警告。
func wireField(s *string, field string, w *[]string) {
	if v, ok := packet.WireString(*s); !ok {
		*w = append(*w, fmt.Sprintf("%s %q rewritten as %q for Big5", field, *s, v))
		*s = v
	}
}

// orientation picks the vertex strategy for the current flags.
func (p *ParticleParams) orientation() Orientation {
	switch {
	case p.AlignParticles:
		return OrientAligned
	case p.OrientParticles:
		return OrientOriented
	default:
		return OrientBillboard
	}
}

// diff 回傳 p 與 q 之間有差異的群組遮罩。
func (p *Params) diff(q *Params) Mask {
	var m Mask
	if p.Geometry != q.Geometry {
		m |= GeometryMask
	}
	if p.Particle != q.Particle {
		m |= ParticleMask
	}
	if p.Physics != q.Physics {
		m |= PhysicsMask
	}
	return m
}

// Config is the shared, read-only emitter template ("datablock"). Many
// emitters may reference one Config; none of them modify it.
type Config struct {
	Name      string
	Defaults  Params
	Particles []*ParticleData
}

// Validate sanitizes the config in place. Call it once at load time, before
// the config is shared.
func (c *Config) Validate() []string {
	w := c.Defaults.Sanitize()
	wireField(&c.Name, "datablock name", &w)
	for _, d := range c.Particles {
		for _, msg := range d.sanitize() {
			w = append(w, d.Name+": "+msg)
		}
	}
	return w
}

// MaxInitialPoolSize caps the derived pool block. Bigger populations grow
// block by block instead of in one allocation.
const MaxInitialPoolSize = 1 << 14

// InitialPoolSize estimates how many particles the config keeps alive at
// once: the longest particle life divided by the shortest emission period,
// plus headroom, capped at MaxInitialPoolSize.
func (c *Config) InitialPoolSize() int {
	pp := c.Defaults.Particle
	maxLife := int(pp.LifetimeMS + pp.LifetimeVarianceMS)
	minPeriod := int(pp.EjectionPeriodMS - pp.PeriodVarianceMS)
	if minPeriod < 1 {
		minPeriod = 1
	}
	return min(maxLife/minPeriod+8, MaxInitialPoolSize)
}
