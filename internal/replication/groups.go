package replication

import (
	"fmt"

	"github.com/l1jgo/meshfx/internal/fx"
	"github.com/l1jgo/meshfx/internal/net/packet"
)

// group is one independently replicated field set. The order of the groups
// table is the wire order and must never change.
type group struct {
	mask   fx.Mask
	name   string
	encode func(w *packet.BitWriter, src *fx.Replica)
	decode func(r *packet.BitReader, dst *fx.Replica) error
}

var groups = [...]group{
	{fx.StateMask, "state", packState, unpackState},
	{fx.GeometryMask, "geometry", packGeometry, unpackGeometry},
	{fx.ParticleMask, "particle", packParticle, unpackParticle},
	{fx.PhysicsMask, "physics", packPhysics, unpackPhysics},
}

// groupLenBits is the width of the per-group bit length prefix.
const groupLenBits = 16

const (
	blendBits = 3
	modeBits  = 2
)

func packState(w *packet.BitWriter, src *fx.Replica) {
	s := &src.State
	w.WriteBits(s.Seed, 64)
	w.WriteString(s.DataBlock)
	w.WriteVec3(s.Position)
	w.WriteQuat(s.Rotation)
	w.WriteBool(s.DeleteWhenEmpty)
	w.WriteBool(s.Dead)
}

func unpackState(r *packet.BitReader, dst *fx.Replica) error {
	s := &dst.State
	s.Seed = r.ReadBits(64)
	s.DataBlock = r.ReadString()
	s.Position = r.ReadVec3()
	s.Rotation = r.ReadQuat()
	s.DeleteWhenEmpty = r.ReadBool()
	s.Dead = r.ReadBool()
	return r.Err()
}

func packGeometry(w *packet.BitWriter, src *fx.Replica) {
	writeGeometry(w, &src.Params.Geometry)
}

func unpackGeometry(r *packet.BitReader, dst *fx.Replica) error {
	return readGeometry(r, &dst.Params.Geometry)
}

func writeGeometry(w *packet.BitWriter, g *fx.GeometryParams) {
	w.WriteString(g.EmitMesh)
	w.WriteBool(g.EvenEmission)
	w.WriteBool(g.EmitOnFaces)
	w.WriteFloat32(g.EjectionOffset)
}

func readGeometry(r *packet.BitReader, g *fx.GeometryParams) error {
	g.EmitMesh = r.ReadString()
	g.EvenEmission = r.ReadBool()
	g.EmitOnFaces = r.ReadBool()
	g.EjectionOffset = r.ReadFloat32()
	return r.Err()
}

func packParticle(w *packet.BitWriter, src *fx.Replica) {
	writeParticle(w, &src.Params.Particle)
}

func unpackParticle(r *packet.BitReader, dst *fx.Replica) error {
	return readParticle(r, &dst.Params.Particle)
}

func writeParticle(w *packet.BitWriter, p *fx.ParticleParams) {
	w.WriteRanged(int64(p.EjectionPeriodMS), 1, fx.MaxPeriodMS)
	w.WriteRanged(int64(p.PeriodVarianceMS), 0, fx.MaxPeriodMS-1)
	w.WriteFloat32(p.EjectionVelocity)
	w.WriteFloat32(p.VelocityVariance)
	w.WriteRanged(int64(p.LifetimeMS), 1, fx.MaxLifetimeMS)
	w.WriteRanged(int64(p.LifetimeVarianceMS), 0, fx.MaxLifetimeMS-1)

	for _, f := range particleFlags(p) {
		w.WriteBool(*f)
	}
	w.WriteVec3(p.AlignDirection)
	for _, s := range p.Sizes {
		w.WriteFloat32(s)
	}
	for _, c := range p.Colors {
		writeColor(w, c)
	}
	w.WriteFloat32(p.SoftnessDistance)
	w.WriteFloat32(p.AmbientFactor)
	w.WriteBits(uint64(p.BlendStyle), blendBits)
	w.WriteString(p.TextureName)
}

func readParticle(r *packet.BitReader, p *fx.ParticleParams) error {
	p.EjectionPeriodMS = int32(r.ReadRanged(1, fx.MaxPeriodMS))
	p.PeriodVarianceMS = int32(r.ReadRanged(0, fx.MaxPeriodMS-1))
	p.EjectionVelocity = r.ReadFloat32()
	p.VelocityVariance = r.ReadFloat32()
	p.LifetimeMS = int32(r.ReadRanged(1, fx.MaxLifetimeMS))
	p.LifetimeVarianceMS = int32(r.ReadRanged(0, fx.MaxLifetimeMS-1))

	for _, f := range particleFlags(p) {
		*f = r.ReadBool()
	}
	p.AlignDirection = r.ReadVec3()
	for i := range p.Sizes {
		p.Sizes[i] = r.ReadFloat32()
	}
	for i := range p.Colors {
		p.Colors[i] = readColor(r)
	}
	p.SoftnessDistance = r.ReadFloat32()
	p.AmbientFactor = r.ReadFloat32()
	p.BlendStyle = fx.BlendStyle(r.ReadBits(blendBits))
	p.TextureName = r.ReadString()
	if err := r.Err(); err != nil {
		return err
	}
	if !p.BlendStyle.Valid() {
		return fmt.Errorf("blend style %d", p.BlendStyle)
	}
	return nil
}

// particleFlags lists the boolean fields in wire order.
func particleFlags(p *fx.ParticleParams) []*bool {
	return []*bool{
		&p.OverrideAdvance,
		&p.OrientParticles,
		&p.OrientOnVelocity,
		&p.AlignParticles,
		&p.UseEmitterSizes,
		&p.UseEmitterColors,
		&p.SortParticles,
		&p.ReverseOrder,
		&p.HighResOnly,
		&p.RenderReflection,
	}
}

func packPhysics(w *packet.BitWriter, src *fx.Replica) {
	writePhysics(w, &src.Params.Physics)
}

func unpackPhysics(r *packet.BitReader, dst *fx.Replica) error {
	return readPhysics(r, &dst.Params.Physics)
}

func writePhysics(w *packet.BitWriter, p *fx.PhysicsParams) {
	w.WriteBool(p.Sticky)
	w.WriteFloat32(p.AttractionRange)
	for _, a := range p.Attractors {
		w.WriteBits(uint64(a.Mode), modeBits)
		w.WriteFloat32(a.Amount)
		w.WriteString(a.ObjectID)
		w.WriteVec3(a.Offset)
	}
}

func readPhysics(r *packet.BitReader, p *fx.PhysicsParams) error {
	p.Sticky = r.ReadBool()
	p.AttractionRange = r.ReadFloat32()
	for i := range p.Attractors {
		a := &p.Attractors[i]
		a.Mode = fx.AttractionMode(r.ReadBits(modeBits))
		a.Amount = r.ReadFloat32()
		a.ObjectID = r.ReadString()
		a.Offset = r.ReadVec3()
		if r.Err() == nil && !a.Mode.Valid() {
			return fmt.Errorf("attractor %d mode %d", i, a.Mode)
		}
	}
	return r.Err()
}

func writeColor(w *packet.BitWriter, c fx.Color) {
	w.WriteFloat32(c.R)
	w.WriteFloat32(c.G)
	w.WriteFloat32(c.B)
	w.WriteFloat32(c.A)
}

func readColor(r *packet.BitReader) fx.Color {
	return fx.Color{R: r.ReadFloat32(), G: r.ReadFloat32(), B: r.ReadFloat32(), A: r.ReadFloat32()}
}
