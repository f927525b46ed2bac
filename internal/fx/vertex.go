package fx

import (
	"cmp"
	"errors"
	"math"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrVertexBudget is returned by BuildVertices when the live particles need
// more vertices than the emitter may allocate. The frame should be skipped.
var ErrVertexBudget = errors.New("vertex budget exceeded")

// Orientation selects how a particle quad is laid out.
type Orientation uint8

const (
	OrientBillboard Orientation = iota // faces the camera
	OrientOriented                     // stretched along its direction
	OrientAligned                      // fixed world direction
)

// Vertex is one corner of a particle quad.
type Vertex struct {
	Pos   mgl32.Vec3
	Color Color
	UV    [2]float32
}

// View describes the camera a frame is built for.
type View struct {
	CamPos  mgl32.Vec3
	View    mgl32.Mat4 // world to camera
	Ambient Color

	Reflection bool // reflection pass
	LowRes     bool // skip HighResOnly emitters
}

// NewView builds a view looking from eye at center.
func NewView(eye, center, up mgl32.Vec3) View {
	return View{
		CamPos:  eye,
		View:    mgl32.LookAtV(eye, center, up),
		Ambient: White,
	}
}

// Batch is the render collaborator's draw request for one emitter.
// Vertices alias the emitter's buffer and stay valid until its next build.
type Batch struct {
	Vertices []Vertex
	Quads    int

	Blend            BlendStyle
	Texture          string
	Softness         float32
	HighResOnly      bool
	RenderReflection bool
}

// VertexBuffer 是只增不減的頂點緩衝。
type VertexBuffer struct {
	verts []Vertex
	max   int
}

func (b *VertexBuffer) reserve(n int) ([]Vertex, error) {
	if b.max > 0 && n > b.max {
		return nil, ErrVertexBudget
	}
	if cap(b.verts) < n {
		c := cap(b.verts) * 2
		if c < n {
			c = n
		}
		if b.max > 0 && c > b.max {
			c = b.max
		}
		b.verts = make([]Vertex, n, c)
	}
	b.verts = b.verts[:n]
	return b.verts, nil
}

// Cap returns the allocated vertex capacity.
func (b *VertexBuffer) Cap() int { return cap(b.verts) }

type drawItem struct {
	p     *Particle
	depth float32
}

// BuildVertices lays out four vertices per live particle for v. On
// ErrVertexBudget the returned batch is empty.
func (e *Emitter) BuildVertices(v View) (Batch, error) {
	pp := &e.params.Particle
	b := Batch{
		Blend:            pp.BlendStyle,
		Texture:          pp.TextureName,
		Softness:         pp.SoftnessDistance,
		HighResOnly:      pp.HighResOnly,
		RenderReflection: pp.RenderReflection,
	}
	if b.Texture == "" && e.data != nil && len(e.data.Particles) > 0 {
		b.Texture = e.data.Particles[0].TextureName
	}
	if (v.Reflection && !pp.RenderReflection) || (v.LowRes && pp.HighResOnly) {
		return b, nil
	}
	n := e.pool.Len()
	if n == 0 {
		return b, nil
	}
	verts, err := e.vb.reserve(n * 4)
	if err != nil {
		e.warn(err.Error())
		return b, err
	}

	items := e.order[:0]
	e.pool.Walk(func(_ Handle, p *Particle) bool {
		items = append(items, drawItem{p: p, depth: -v.View.Mul4x1(p.Pos.Vec4(1)).Z()})
		return true
	})
	if pp.SortParticles {
		slices.SortStableFunc(items, func(x, y drawItem) int {
			return cmp.Compare(y.depth, x.depth)
		})
	}
	if pp.ReverseOrder {
		slices.Reverse(items)
	}
	e.order = items

	right := v.View.Row(0).Vec3()
	up := v.View.Row(1).Vec3()
	mode := pp.orientation()
	ambient := mgl32.Clamp(pp.AmbientFactor, 0, 1)
	for i, it := range items {
		quad := verts[i*4 : i*4+4]
		p := it.p
		switch mode {
		case OrientAligned:
			setupAligned(p, pp.AlignDirection, quad)
		case OrientOriented:
			setupOriented(p, v.CamPos, right, pp.OrientOnVelocity, quad)
		default:
			setupBillboard(p, right, up, quad)
		}
		c := p.Color
		if ambient > 0 {
			c = c.Lerp(c.Modulate(v.Ambient), ambient)
		}
		tc := &p.Data.TexCoords
		for k := range quad {
			quad[k].Color = c
			quad[k].UV = tc[k]
		}
	}
	b.Vertices = verts
	b.Quads = n
	return b, nil
}

func setupBillboard(p *Particle, right, up mgl32.Vec3, out []Vertex) {
	half := p.Size * 0.5
	s, c := math.Sincos(float64(p.Rotation))
	sin, cos := float32(s), float32(c)
	r := right.Mul(cos).Add(up.Mul(sin)).Mul(half)
	u := up.Mul(cos).Sub(right.Mul(sin)).Mul(half)
	out[0].Pos = p.Pos.Sub(r).Add(u)
	out[1].Pos = p.Pos.Sub(r).Sub(u)
	out[2].Pos = p.Pos.Add(r).Sub(u)
	out[3].Pos = p.Pos.Add(r).Add(u)
}

func setupOriented(p *Particle, camPos, camRight mgl32.Vec3, onVelocity bool, out []Vertex) {
	dir := p.OrientDir
	if onVelocity && p.Vel.LenSqr() > 1e-12 {
		dir = p.Vel
	}
	if dir.LenSqr() < 1e-12 {
		dir = Forward
	}
	dir = dir.Normalize()
	cross := p.Pos.Sub(camPos).Cross(dir)
	if cross.LenSqr() < 1e-12 {
		cross = camRight
	}
	half := p.Size * 0.5
	cross = cross.Normalize().Mul(half)
	dir = dir.Mul(half)
	start := p.Pos.Sub(dir)
	end := p.Pos.Add(dir)
	out[0].Pos = start.Add(cross)
	out[1].Pos = start.Sub(cross)
	out[2].Pos = end.Sub(cross)
	out[3].Pos = end.Add(cross)
}

func setupAligned(p *Particle, emitterDir mgl32.Vec3, out []Vertex) {
	dir := p.AlignDir
	if dir.LenSqr() < 1e-12 {
		dir = emitterDir
	}
	dir = dir.Normalize()
	var right mgl32.Vec3
	if abs32(dir.Y()) > abs32(dir.Z()) {
		right = mgl32.Vec3{0, 0, 1}.Cross(dir)
	} else {
		right = mgl32.Vec3{0, 1, 0}.Cross(dir)
	}
	right = right.Normalize()
	if p.SpinSpeed != 0 {
		// Rodrigues rotation of right around dir.
		s, c := math.Sincos(float64(p.Rotation))
		sin, cos := float32(s), float32(c)
		right = right.Mul(cos).
			Add(dir.Cross(right).Mul(sin)).
			Add(dir.Mul(dir.Dot(right) * (1 - cos)))
	}
	up := right.Cross(dir)
	half := p.Size * 0.5
	right = right.Mul(half)
	up = up.Mul(half)
	start := p.Pos.Sub(right)
	end := p.Pos.Add(right)
	out[0].Pos = start.Add(up)
	out[1].Pos = start.Sub(up)
	out[2].Pos = end.Sub(up)
	out[3].Pos = end.Add(up)
}

func abs32(f float32) float32 {
	if f < 0 {
		return -f
	}
	return f
}

// QuadIndices returns the triangle-list indices for n quads laid out by
// BuildVertices.
func QuadIndices(n int) []uint32 {
	idx := make([]uint32, 0, n*6)
	for i := 0; i < n; i++ {
		base := uint32(i * 4)
		idx = append(idx, base, base+1, base+2, base, base+2, base+3)
	}
	return idx
}
