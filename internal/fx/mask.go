package fx

import "strings"

// Mask is a set of dirty bits, one per replicated field group. The bit order
// is part of the wire contract.
type Mask uint32

const (
	StateMask Mask = 1 << iota
	GeometryMask
	ParticleMask
	PhysicsMask

	FullMask = StateMask | GeometryMask | ParticleMask | PhysicsMask
)

// Has reports whether every bit of o is set in m.
func (m Mask) Has(o Mask) bool { return m&o == o && o != 0 }

func (m Mask) String() string {
	if m == 0 {
		return "none"
	}
	var parts []string
	if m&StateMask != 0 {
		parts = append(parts, "state")
	}
	if m&GeometryMask != 0 {
		parts = append(parts, "geometry")
	}
	if m&ParticleMask != 0 {
		parts = append(parts, "particle")
	}
	if m&PhysicsMask != 0 {
		parts = append(parts, "physics")
	}
	return strings.Join(parts, "|")
}
