package fx

import (
	"github.com/go-gl/mathgl/mgl32"
)

// NumKeys is the number of size/colour keyframes a particle interpolates across.
const NumKeys = 4

// AgedSpinToRadians converts spin (degrees per second) times age (ms) to radians.
const AgedSpinToRadians = (1.0 / 1000.0) * (3.14159265358979323846 / 180.0)

// Gravity is the world-space gravity vector (Z up), scaled per particle by
// ParticleData.GravityCoefficient.
var Gravity = mgl32.Vec3{0, 0, -9.81}

// Color is a linear RGBA colour.
type Color struct {
	R, G, B, A float32
}

// White is the neutral tint.
var White = Color{1, 1, 1, 1}

// Lerp interpolates from c to o by t.
func (c Color) Lerp(o Color, t float32) Color {
	return Color{
		R: c.R + (o.R-c.R)*t,
		G: c.G + (o.G-c.G)*t,
		B: c.B + (o.B-c.B)*t,
		A: c.A + (o.A-c.A)*t,
	}
}

// Modulate multiplies two colours component-wise.
func (c Color) Modulate(o Color) Color {
	return Color{R: c.R * o.R, G: c.G * o.G, B: c.B * o.B, A: c.A * o.A}
}

// ParticleData is the per-particle template referenced by an emitter config.
// Particles keep a pointer to the data they were born with, so a config
// reload never changes the behaviour of particles already in flight.
type ParticleData struct {
	Name string

	DragCoefficient      float32
	WindCoefficient      float32
	GravityCoefficient   float32
	InheritedVelFactor   float32
	ConstantAcceleration float32

	SpinSpeed     float32 // degrees per second
	SpinRandomMin float32
	SpinRandomMax float32

	UseInvAlpha bool

	Times  [NumKeys]float32 // normalised key times, non-decreasing, Times[0] == 0
	Colors [NumKeys]Color
	Sizes  [NumKeys]float32

	TexCoords   [4][2]float32
	TextureName string
}

// DefaultTexCoords maps a full texture onto the quad corners
// (top-left, bottom-left, bottom-right, top-right).
var DefaultTexCoords = [4][2]float32{{0, 0}, {0, 1}, {1, 1}, {1, 0}}

// NewParticleData returns a particle template with a linear white fade.
func NewParticleData(name string) *ParticleData {
	return &ParticleData{
		Name:               name,
		WindCoefficient:    1,
		GravityCoefficient: 0,
		Times:              [NumKeys]float32{0, 0.33, 0.66, 1},
		Colors:             [NumKeys]Color{White, White, White, {1, 1, 1, 0}},
		Sizes:              [NumKeys]float32{1, 1, 1, 1},
		TexCoords:          DefaultTexCoords,
	}
}

// sanitize forces key times into a valid non-decreasing [0,1] sequence and
// makes the names wire safe.
func (d *ParticleData) sanitize() []string {
	var warnings []string
	wireField(&d.Name, "particle name", &warnings)
	wireField(&d.TextureName, "texture name", &warnings)
	if d.Times[0] != 0 {
		d.Times[0] = 0
		warnings = append(warnings, "particle key time 0 forced to 0")
	}
	for i := 1; i < NumKeys; i++ {
		t := mgl32.Clamp(d.Times[i], 0, 1)
		if t < d.Times[i-1] {
			t = d.Times[i-1]
		}
		if t != d.Times[i] {
			d.Times[i] = t
			warnings = append(warnings, "particle key times must be non-decreasing in [0,1]")
		}
	}
	if d.SpinRandomMax < d.SpinRandomMin {
		d.SpinRandomMin, d.SpinRandomMax = d.SpinRandomMax, d.SpinRandomMin
	}
	if d.TexCoords == ([4][2]float32{}) {
		d.TexCoords = DefaultTexCoords
	}
	return warnings
}

// Particle is one live particle record. Records are owned by a Pool and are
// reused in place; never keep a *Particle across a Pool.Release of its handle.
type Particle struct {
	Pos       mgl32.Vec3
	Vel       mgl32.Vec3
	Acc       mgl32.Vec3
	OrientDir mgl32.Vec3
	AlignDir  mgl32.Vec3 // recorded at birth when the emitter aligns particles

	SpinSpeed float32
	Rotation  float32 // radians, derived from SpinSpeed and Age

	Age      uint32 // ms
	Lifetime uint32 // ms

	Size  float32
	Color Color

	Data *ParticleData
}

// Expired reports whether the particle has reached the end of its lifetime.
func (p *Particle) Expired() bool {
	return p.Age >= p.Lifetime
}

// updateKeyData interpolates size and colour for the particle's current age.
// sizes/colors override the particle data keys when non-nil.
func (p *Particle) updateKeyData(sizes *[NumKeys]float32, colors *[NumKeys]Color) {
	d := p.Data
	t := float32(0)
	if p.Lifetime > 0 {
		t = float32(p.Age) / float32(p.Lifetime)
	}
	ks := &d.Sizes
	if sizes != nil {
		ks = sizes
	}
	kc := &d.Colors
	if colors != nil {
		kc = colors
	}
	for i := 1; i < NumKeys; i++ {
		if d.Times[i] >= t {
			span := d.Times[i] - d.Times[i-1]
			f := float32(1)
			if span > 0 {
				f = (t - d.Times[i-1]) / span
			}
			p.Size = ks[i-1] + (ks[i]-ks[i-1])*f
			p.Color = kc[i-1].Lerp(kc[i], f)
			return
		}
	}
	p.Size = ks[NumKeys-1]
	p.Color = kc[NumKeys-1]
}
