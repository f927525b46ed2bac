package data

import (
	"fmt"
	"os"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/fx"
	"github.com/l1jgo/meshfx/internal/mesh"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"gopkg.in/yaml.v3"
)

// ParticleEntry is one particle datablock in the catalog file. Omitted
// fields keep the values of fx.NewParticleData.
type ParticleEntry struct {
	Name                 string        `yaml:"name"`
	Drag                 float32       `yaml:"drag"`
	Wind                 float32       `yaml:"wind"`
	Gravity              float32       `yaml:"gravity"`
	InheritedVelocity    float32       `yaml:"inherited_velocity"`
	ConstantAcceleration float32       `yaml:"constant_acceleration"`
	SpinSpeed            float32       `yaml:"spin_speed"`
	SpinRandom           [2]float32    `yaml:"spin_random"` // min, max
	UseInvAlpha          bool          `yaml:"use_inv_alpha"`
	Times                [4]float32    `yaml:"times"`
	Colors               [4][4]float32 `yaml:"colors"` // rgba per key
	Sizes                [4]float32    `yaml:"sizes"`
	TexCoords            [4][2]float32 `yaml:"tex_coords"`
	Texture              string        `yaml:"texture"`
}

func (p *ParticleEntry) UnmarshalYAML(n *yaml.Node) error {
	type raw ParticleEntry
	d := fx.NewParticleData("")
	r := raw{
		Wind:      d.WindCoefficient,
		Gravity:   d.GravityCoefficient,
		Times:     d.Times,
		Colors:    colorsToYAML(d.Colors),
		Sizes:     d.Sizes,
		TexCoords: d.TexCoords,
	}
	if err := n.Decode(&r); err != nil {
		return err
	}
	*p = ParticleEntry(r)
	return nil
}

func (p *ParticleEntry) build() *fx.ParticleData {
	return &fx.ParticleData{
		Name:                 p.Name,
		DragCoefficient:      p.Drag,
		WindCoefficient:      p.Wind,
		GravityCoefficient:   p.Gravity,
		InheritedVelFactor:   p.InheritedVelocity,
		ConstantAcceleration: p.ConstantAcceleration,
		SpinSpeed:            p.SpinSpeed,
		SpinRandomMin:        p.SpinRandom[0],
		SpinRandomMax:        p.SpinRandom[1],
		UseInvAlpha:          p.UseInvAlpha,
		Times:                p.Times,
		Colors:               colorsFromYAML(p.Colors),
		Sizes:                p.Sizes,
		TexCoords:            p.TexCoords,
		TextureName:          p.Texture,
	}
}

type AttractorEntry struct {
	Mode   string     `yaml:"mode"` // none, attract, repulse
	Amount float32    `yaml:"amount"`
	Object string     `yaml:"object"`
	Offset [3]float32 `yaml:"offset"`
}

// EmitterEntry is one emitter datablock. Omitted fields keep fx.DefaultParams.
type EmitterEntry struct {
	Name      string   `yaml:"name"`
	Particles []string `yaml:"particles"`

	Mesh           string  `yaml:"mesh"`
	EvenEmission   bool    `yaml:"even_emission"`
	EmitOnFaces    bool    `yaml:"emit_on_faces"`
	EjectionOffset float32 `yaml:"ejection_offset"`

	PeriodMS           int32   `yaml:"period_ms"`
	PeriodVarianceMS   int32   `yaml:"period_variance_ms"`
	Velocity           float32 `yaml:"velocity"`
	VelocityVariance   float32 `yaml:"velocity_variance"`
	LifetimeMS         int32   `yaml:"lifetime_ms"`
	LifetimeVarianceMS int32   `yaml:"lifetime_variance_ms"`

	OverrideAdvance  bool       `yaml:"override_advance"`
	Orient           bool       `yaml:"orient"`
	OrientOnVelocity bool       `yaml:"orient_on_velocity"`
	Align            bool       `yaml:"align"`
	AlignDirection   [3]float32 `yaml:"align_direction"`
	UseEmitterSizes  bool       `yaml:"use_emitter_sizes"`
	UseEmitterColors bool       `yaml:"use_emitter_colors"`
	Sort             bool       `yaml:"sort"`
	Reverse          bool       `yaml:"reverse"`
	HighResOnly      bool       `yaml:"high_res_only"`
	RenderReflection bool       `yaml:"render_reflection"`

	Sizes    [4]float32    `yaml:"sizes"`
	Colors   [4][4]float32 `yaml:"colors"`
	Softness float32       `yaml:"softness"`
	Ambient  float32       `yaml:"ambient"`
	Blend    string        `yaml:"blend"`
	Texture  string        `yaml:"texture"`

	Sticky          bool             `yaml:"sticky"`
	AttractionRange float32          `yaml:"attraction_range"`
	Attractors      []AttractorEntry `yaml:"attractors"`
}

func (e *EmitterEntry) UnmarshalYAML(n *yaml.Node) error {
	type raw EmitterEntry
	p := fx.DefaultParams().Particle
	r := raw{
		PeriodMS:           p.EjectionPeriodMS,
		PeriodVarianceMS:   p.PeriodVarianceMS,
		Velocity:           p.EjectionVelocity,
		VelocityVariance:   p.VelocityVariance,
		LifetimeMS:         p.LifetimeMS,
		LifetimeVarianceMS: p.LifetimeVarianceMS,
		AlignDirection:     p.AlignDirection,
		Sizes:              p.Sizes,
		Colors:             colorsToYAML(p.Colors),
		Ambient:            p.AmbientFactor,
		Blend:              p.BlendStyle.String(),
	}
	if err := n.Decode(&r); err != nil {
		return err
	}
	*e = EmitterEntry(r)
	return nil
}

func (e *EmitterEntry) params() (fx.Params, error) {
	blend, err := fx.ParseBlendStyle(e.Blend)
	if err != nil {
		return fx.Params{}, err
	}
	if len(e.Attractors) > fx.NumAttractors {
		return fx.Params{}, fmt.Errorf("%d attractors, at most %d", len(e.Attractors), fx.NumAttractors)
	}
	p := fx.Params{
		Geometry: fx.GeometryParams{
			EmitMesh:       e.Mesh,
			EvenEmission:   e.EvenEmission,
			EmitOnFaces:    e.EmitOnFaces,
			EjectionOffset: e.EjectionOffset,
		},
		Particle: fx.ParticleParams{
			EjectionPeriodMS:   e.PeriodMS,
			PeriodVarianceMS:   e.PeriodVarianceMS,
			EjectionVelocity:   e.Velocity,
			VelocityVariance:   e.VelocityVariance,
			LifetimeMS:         e.LifetimeMS,
			LifetimeVarianceMS: e.LifetimeVarianceMS,
			OverrideAdvance:    e.OverrideAdvance,
			OrientParticles:    e.Orient,
			OrientOnVelocity:   e.OrientOnVelocity,
			AlignParticles:     e.Align,
			UseEmitterSizes:    e.UseEmitterSizes,
			UseEmitterColors:   e.UseEmitterColors,
			SortParticles:      e.Sort,
			ReverseOrder:       e.Reverse,
			HighResOnly:        e.HighResOnly,
			RenderReflection:   e.RenderReflection,
			AlignDirection:     e.AlignDirection,
			Sizes:              e.Sizes,
			Colors:             colorsFromYAML(e.Colors),
			SoftnessDistance:   e.Softness,
			AmbientFactor:      e.Ambient,
			BlendStyle:         blend,
			TextureName:        e.Texture,
		},
		Physics: fx.PhysicsParams{
			Sticky:          e.Sticky,
			AttractionRange: e.AttractionRange,
		},
	}
	for i, a := range e.Attractors {
		mode, err := parseAttractionMode(a.Mode)
		if err != nil {
			return fx.Params{}, fmt.Errorf("attractor %d: %w", i, err)
		}
		p.Physics.Attractors[i] = fx.Attractor{
			Mode:     mode,
			Amount:   a.Amount,
			ObjectID: a.Object,
			Offset:   a.Offset,
		}
	}
	return p, nil
}

func parseAttractionMode(s string) (fx.AttractionMode, error) {
	switch s {
	case "", "none":
		return fx.AttractNone, nil
	case "attract":
		return fx.Attract, nil
	case "repulse":
		return fx.Repulse, nil
	}
	return fx.AttractNone, fmt.Errorf("unknown attraction mode %q", s)
}

// MeshEntry is a named triangle list: a box, a quad, or explicit vertices.
type MeshEntry struct {
	Name     string       `yaml:"name"`
	Box      *[3]float32  `yaml:"box"`
	Quad     *[2]float32  `yaml:"quad"`
	Vertices [][3]float32 `yaml:"vertices"`
	Indices  []uint32     `yaml:"indices"`
}

func (m *MeshEntry) shape() (mesh.Shape, error) {
	switch {
	case m.Box != nil:
		return mesh.Box(mgl32.Vec3(*m.Box)), nil
	case m.Quad != nil:
		return mesh.Quad(m.Quad[0], m.Quad[1]), nil
	case len(m.Vertices) > 0:
		sh := mesh.Shape{Indices: m.Indices}
		for _, v := range m.Vertices {
			sh.Vertices = append(sh.Vertices, mgl32.Vec3(v))
		}
		return sh, nil
	}
	return mesh.Shape{}, fmt.Errorf("needs box, quad or vertices")
}

type catalogFile struct {
	Particles []ParticleEntry `yaml:"particles"`
	Emitters  []EmitterEntry  `yaml:"emitters"`
	Meshes    []MeshEntry     `yaml:"meshes"`
}

// Catalog 以名稱索引所有發射器資料區塊與網格。
// 設定在載入時驗證一次，之後唯讀共用。
type Catalog struct {
	configs  map[string]*fx.Config
	meshes   mesh.Library
	Warnings []string
}

// LoadCatalog 從 YAML 檔載入發射器資料表。
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read emitter catalog: %w", err)
	}
	c, err := ParseCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("parse emitter catalog: %w", err)
	}
	return c, nil
}

func ParseCatalog(data []byte) (*Catalog, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, err
	}

	particles := make(map[string]*ParticleEntry, len(f.Particles))
	for i := range f.Particles {
		p := &f.Particles[i]
		if p.Name == "" {
			return nil, fmt.Errorf("particles[%d]: missing name", i)
		}
		if !packet.Representable(p.Name) {
			return nil, fmt.Errorf("particles[%d]: name %q cannot be sent as Big5", i, p.Name)
		}
		if _, dup := particles[p.Name]; dup {
			return nil, fmt.Errorf("particle %q defined twice", p.Name)
		}
		particles[p.Name] = p
	}

	c := &Catalog{
		configs: make(map[string]*fx.Config, len(f.Emitters)),
		meshes:  make(mesh.Library, len(f.Meshes)),
	}
	for i := range f.Meshes {
		m := &f.Meshes[i]
		if !packet.Representable(m.Name) {
			return nil, fmt.Errorf("meshes[%d]: name %q cannot be sent as Big5", i, m.Name)
		}
		sh, err := m.shape()
		if err != nil {
			return nil, fmt.Errorf("mesh %q: %w", m.Name, err)
		}
		if _, err := sh.Sampler(0); err != nil {
			return nil, fmt.Errorf("mesh %q: %w", m.Name, err)
		}
		c.meshes[m.Name] = sh
	}

	for i := range f.Emitters {
		e := &f.Emitters[i]
		if e.Name == "" {
			return nil, fmt.Errorf("emitters[%d]: missing name", i)
		}
		if !packet.Representable(e.Name) {
			return nil, fmt.Errorf("emitters[%d]: name %q cannot be sent as Big5", i, e.Name)
		}
		if _, dup := c.configs[e.Name]; dup {
			return nil, fmt.Errorf("emitter %q defined twice", e.Name)
		}
		params, err := e.params()
		if err != nil {
			return nil, fmt.Errorf("emitter %q: %w", e.Name, err)
		}
		if m := params.Geometry.EmitMesh; m != "" {
			if _, ok := c.meshes[m]; !ok {
				return nil, fmt.Errorf("emitter %q: unknown mesh %q", e.Name, m)
			}
		}
		cfg := &fx.Config{Name: e.Name, Defaults: params}
		for _, pn := range e.Particles {
			p, ok := particles[pn]
			if !ok {
				return nil, fmt.Errorf("emitter %q: unknown particle %q", e.Name, pn)
			}
			cfg.Particles = append(cfg.Particles, p.build())
		}
		for _, w := range cfg.Validate() {
			c.Warnings = append(c.Warnings, e.Name+": "+w)
		}
		c.configs[e.Name] = cfg
	}
	return c, nil
}

// Config returns the named datablock, or nil.
func (c *Catalog) Config(name string) *fx.Config { return c.configs[name] }

// Mesh returns the named shape.
func (c *Catalog) Mesh(name string) (mesh.Shape, bool) {
	sh, ok := c.meshes[name]
	return sh, ok
}

// Sampler builds a surface sampler over the named mesh, or nil when the mesh
// is unknown.
func (c *Catalog) Sampler(name string, seed uint64) fx.SurfaceSampler {
	s, err := c.meshes.SamplerFor(name, seed)
	if err != nil {
		return nil
	}
	return s
}

func (c *Catalog) Count() int { return len(c.configs) }

// Names returns the datablock names in sorted order.
func (c *Catalog) Names() []string {
	names := make([]string, 0, len(c.configs))
	for n := range c.configs {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

func colorsToYAML(cs [fx.NumKeys]fx.Color) [4][4]float32 {
	var out [4][4]float32
	for i, c := range cs {
		out[i] = [4]float32{c.R, c.G, c.B, c.A}
	}
	return out
}

func colorsFromYAML(cs [4][4]float32) [fx.NumKeys]fx.Color {
	var out [fx.NumKeys]fx.Color
	for i, c := range cs {
		out[i] = fx.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
	}
	return out
}
