package fx

import "github.com/go-gl/mathgl/mgl32"

// SurfaceSampler supplies emission points on the source mesh, in the host
// object's local space. areaWeighted picks faces proportionally to their
// area instead of uniformly. ok is false when the mesh has no usable faces.
type SurfaceSampler interface {
	Sample(areaWeighted bool) (pos, normal mgl32.Vec3, ok bool)
}

// HostTransform is the world transform of the object carrying an emitter,
// queried once per tick.
type HostTransform interface {
	Transform() (pos mgl32.Vec3, rot mgl32.Quat)
}

// AttractorResolver looks up the world position of an attractor target.
type AttractorResolver interface {
	Resolve(objectID string) (mgl32.Vec3, bool)
}

// StaticHost is a HostTransform with a fixed position and orientation.
type StaticHost struct {
	Pos mgl32.Vec3
	Rot mgl32.Quat
}

// NewStaticHost places a host at pos with identity orientation.
func NewStaticHost(pos mgl32.Vec3) *StaticHost {
	return &StaticHost{Pos: pos, Rot: mgl32.QuatIdent()}
}

func (h *StaticHost) Transform() (mgl32.Vec3, mgl32.Quat) {
	return h.Pos, h.Rot
}

// Forward is the object-space forward axis used when not emitting from faces.
var Forward = mgl32.Vec3{0, 1, 0}
