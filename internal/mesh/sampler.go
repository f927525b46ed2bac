// Package mesh provides surface samplers over triangle soups.
package mesh

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/go-gl/mathgl/mgl32"
	"gonum.org/v1/gonum/stat/distuv"
)

var ErrNoFaces = errors.New("mesh has no usable faces")

// minArea below which a triangle is treated as degenerate.
const minArea = 1e-9

type face struct {
	a, b, c mgl32.Vec3
	normal  mgl32.Vec3
	area    float32
}

// TriangleSampler picks emission points on the faces of an indexed
// triangle list. Points are in mesh-local space.
type TriangleSampler struct {
	faces    []face
	rng      *rand.Rand
	byArea   distuv.Categorical
	uniform  int
	surfaceA float64
}

// NewTriangleSampler builds a sampler over the triangles (i0,i1,i2) of
// indices. Degenerate triangles are skipped; ErrNoFaces is returned when
// none remain.
func NewTriangleSampler(vertices []mgl32.Vec3, indices []uint32, src rand.Source) (*TriangleSampler, error) {
	if len(indices)%3 != 0 {
		return nil, fmt.Errorf("index count %d is not a multiple of 3", len(indices))
	}
	s := &TriangleSampler{rng: rand.New(src)}
	weights := make([]float64, 0, len(indices)/3)
	for i := 0; i < len(indices); i += 3 {
		var f face
		for k, idx := range indices[i : i+3] {
			if int(idx) >= len(vertices) {
				return nil, fmt.Errorf("triangle %d: index %d out of range", i/3, idx)
			}
			switch k {
			case 0:
				f.a = vertices[idx]
			case 1:
				f.b = vertices[idx]
			case 2:
				f.c = vertices[idx]
			}
		}
		n := f.b.Sub(f.a).Cross(f.c.Sub(f.a))
		f.area = n.Len() / 2
		if f.area < minArea {
			continue
		}
		f.normal = n.Normalize()
		s.faces = append(s.faces, f)
		weights = append(weights, float64(f.area))
		s.surfaceA += float64(f.area)
	}
	if len(s.faces) == 0 {
		return nil, ErrNoFaces
	}
	s.uniform = len(s.faces)
	s.byArea = distuv.NewCategorical(weights, src)
	return s, nil
}

// Faces returns the number of usable triangles.
func (s *TriangleSampler) Faces() int { return len(s.faces) }

// Area returns the total surface area.
func (s *TriangleSampler) Area() float64 { return s.surfaceA }

// Sample returns a uniformly distributed point on one face and that face's
// normal. With areaWeighted the face is chosen proportionally to its area,
// which makes points uniform over the whole surface.
func (s *TriangleSampler) Sample(areaWeighted bool) (pos, normal mgl32.Vec3, ok bool) {
	if len(s.faces) == 0 {
		return pos, normal, false
	}
	var i int
	if areaWeighted {
		i = int(s.byArea.Rand())
	} else {
		i = s.rng.IntN(s.uniform)
	}
	f := &s.faces[i]

	// fold the unit square onto the triangle
	u, v := s.rng.Float32(), s.rng.Float32()
	if u+v > 1 {
		u, v = 1-u, 1-v
	}
	pos = f.a.Add(f.b.Sub(f.a).Mul(u)).Add(f.c.Sub(f.a).Mul(v))
	return pos, f.normal, true
}
