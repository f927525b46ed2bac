package mesh

import (
	"fmt"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"
)

// Shape is an indexed triangle list.
type Shape struct {
	Vertices []mgl32.Vec3
	Indices  []uint32
}

// Box returns an axis-aligned box centred on the origin with outward
// facing triangles.
func Box(size mgl32.Vec3) Shape {
	h := size.Mul(0.5)
	v := []mgl32.Vec3{
		{-h[0], -h[1], -h[2]}, {h[0], -h[1], -h[2]}, {h[0], h[1], -h[2]}, {-h[0], h[1], -h[2]},
		{-h[0], -h[1], h[2]}, {h[0], -h[1], h[2]}, {h[0], h[1], h[2]}, {-h[0], h[1], h[2]},
	}
	idx := []uint32{
		0, 2, 1, 0, 3, 2, // -Z
		4, 5, 6, 4, 6, 7, // +Z
		0, 1, 5, 0, 5, 4, // -Y
		3, 7, 6, 3, 6, 2, // +Y
		0, 4, 7, 0, 7, 3, // -X
		1, 2, 6, 1, 6, 5, // +X
	}
	return Shape{Vertices: v, Indices: idx}
}

// Quad returns a single w×d rectangle in the XY plane facing +Z.
func Quad(w, d float32) Shape {
	x, y := w/2, d/2
	return Shape{
		Vertices: []mgl32.Vec3{{-x, -y, 0}, {x, -y, 0}, {x, y, 0}, {-x, y, 0}},
		Indices:  []uint32{0, 1, 2, 0, 2, 3},
	}
}

// Sampler builds a TriangleSampler over the shape, seeded for one emitter.
func (s Shape) Sampler(seed uint64) (*TriangleSampler, error) {
	return NewTriangleSampler(s.Vertices, s.Indices, rand.NewPCG(seed, seed>>1|1))
}

// Library resolves mesh names to shapes.
type Library map[string]Shape

// SamplerFor returns a sampler for name, or an error when the name is unknown
// or the shape has no usable faces.
func (l Library) SamplerFor(name string, seed uint64) (*TriangleSampler, error) {
	sh, ok := l[name]
	if !ok {
		return nil, fmt.Errorf("mesh %q not found", name)
	}
	return sh.Sampler(seed)
}
