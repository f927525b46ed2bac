package mesh

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestQuadSamplesStayOnSurface(t *testing.T) {
	s, err := Quad(4, 2).Sampler(1)
	if err != nil {
		t.Fatal(err)
	}
	if s.Faces() != 2 || math.Abs(s.Area()-8) > 1e-5 {
		t.Fatalf("faces=%d area=%v", s.Faces(), s.Area())
	}
	for i := 0; i < 1000; i++ {
		p, n, ok := s.Sample(i%2 == 0)
		if !ok {
			t.Fatal("sample failed")
		}
		if p.Z() != 0 || p.X() < -2 || p.X() > 2 || p.Y() < -1 || p.Y() > 1 {
			t.Fatalf("point %v off the quad", p)
		}
		if !n.ApproxEqual(mgl32.Vec3{0, 0, 1}) {
			t.Fatalf("normal %v", n)
		}
	}
}

func TestBoxNormalsPointOutward(t *testing.T) {
	s, err := Box(mgl32.Vec3{2, 2, 2}).Sampler(7)
	if err != nil {
		t.Fatal(err)
	}
	if s.Faces() != 12 {
		t.Fatalf("faces=%d", s.Faces())
	}
	for i := 0; i < 500; i++ {
		p, n, _ := s.Sample(true)
		// on a unit half-extent box the point sits on the face its normal names
		if d := p.Dot(n); mgl32.Abs(d-1) > 1e-4 {
			t.Fatalf("point %v normal %v dot %v", p, n, d)
		}
	}
}

func TestAreaWeightedChoice(t *testing.T) {
	// a 1x1 triangle and a 3x3 triangle, side by side
	verts := []mgl32.Vec3{
		{0, 0, 0}, {1, 0, 0}, {0, 1, 0},
		{10, 0, 0}, {13, 0, 0}, {10, 3, 0},
	}
	idx := []uint32{0, 1, 2, 3, 4, 5}
	const n = 20000
	count := func(weighted bool) float64 {
		s, err := NewTriangleSampler(verts, idx, rand.NewPCG(3, 4))
		if err != nil {
			t.Fatal(err)
		}
		big := 0
		for i := 0; i < n; i++ {
			p, _, _ := s.Sample(weighted)
			if p.X() >= 10 {
				big++
			}
		}
		return float64(big) / n
	}
	if got := count(true); math.Abs(got-0.9) > 0.02 {
		t.Errorf("area weighted: big face share %.3f, want 0.9", got)
	}
	if got := count(false); math.Abs(got-0.5) > 0.02 {
		t.Errorf("uniform: big face share %.3f, want 0.5", got)
	}
}

func TestSamplerRejectsBadInput(t *testing.T) {
	src := rand.NewPCG(1, 1)
	if _, err := NewTriangleSampler([]mgl32.Vec3{{0, 0, 0}, {1, 0, 0}, {2, 0, 0}}, []uint32{0, 1, 2}, src); !errors.Is(err, ErrNoFaces) {
		t.Errorf("degenerate: %v", err)
	}
	if _, err := NewTriangleSampler(nil, []uint32{0, 1}, src); err == nil {
		t.Error("short index list accepted")
	}
	if _, err := NewTriangleSampler([]mgl32.Vec3{{}}, []uint32{0, 0, 5}, src); err == nil {
		t.Error("out of range index accepted")
	}
	if _, err := (Library{}).SamplerFor("nope", 1); err == nil {
		t.Error("unknown mesh accepted")
	}
}
