package replication

import (
	"fmt"

	"github.com/l1jgo/meshfx/internal/fx"
	"github.com/l1jgo/meshfx/internal/net/packet"
)

// maxParticleData bounds the particle data count per config on the wire.
const maxParticleData = 255

// PackConfig writes a whole datablock: its name, default params and every
// particle data record.
func PackConfig(w *packet.BitWriter, c *fx.Config) {
	packConfig(w, c, 0)
}

// packConfig writes c, dropping trailing particle data records that would
// take the stream past limit bits. The first record is always kept. limit
// <= 0 means no limit. It returns how many records were written.
func packConfig(w *packet.BitWriter, c *fx.Config, limit int) int {
	w.WriteString(c.Name)
	writeGeometry(w, &c.Defaults.Geometry)
	writeParticle(w, &c.Defaults.Particle)
	writePhysics(w, &c.Defaults.Physics)

	countAt := w.BitLen()
	w.WriteBits(0, 8)
	n := 0
	for _, d := range c.Particles[:min(len(c.Particles), maxParticleData)] {
		mark := w.BitLen()
		writeParticleData(w, d)
		if limit > 0 && n > 0 && w.BitLen() > limit {
			w.Truncate(mark)
			break
		}
		n++
	}
	w.PatchBits(countAt, uint64(n), 8)
	return n
}

// UnpackConfig reads a datablock written by PackConfig.
func UnpackConfig(r *packet.BitReader) (*fx.Config, error) {
	c := &fx.Config{Name: r.ReadString()}
	if err := readGeometry(r, &c.Defaults.Geometry); err != nil {
		return nil, fmt.Errorf("config %q geometry: %w", c.Name, err)
	}
	if err := readParticle(r, &c.Defaults.Particle); err != nil {
		return nil, fmt.Errorf("config %q particle: %w", c.Name, err)
	}
	if err := readPhysics(r, &c.Defaults.Physics); err != nil {
		return nil, fmt.Errorf("config %q physics: %w", c.Name, err)
	}
	n := int(r.ReadBits(8))
	c.Particles = make([]*fx.ParticleData, 0, n)
	for i := 0; i < n; i++ {
		d := readParticleData(r)
		if err := r.Err(); err != nil {
			return nil, fmt.Errorf("config %q particle data %d: %w", c.Name, i, err)
		}
		c.Particles = append(c.Particles, d)
	}
	if err := r.Err(); err != nil {
		return nil, fmt.Errorf("config %q: %w", c.Name, err)
	}
	return c, nil
}

func writeParticleData(w *packet.BitWriter, d *fx.ParticleData) {
	w.WriteString(d.Name)
	for _, f := range []float32{
		d.DragCoefficient, d.WindCoefficient, d.GravityCoefficient,
		d.InheritedVelFactor, d.ConstantAcceleration,
		d.SpinSpeed, d.SpinRandomMin, d.SpinRandomMax,
	} {
		w.WriteFloat32(f)
	}
	w.WriteBool(d.UseInvAlpha)
	for i := 0; i < fx.NumKeys; i++ {
		w.WriteFloat32(d.Times[i])
		writeColor(w, d.Colors[i])
		w.WriteFloat32(d.Sizes[i])
	}
	for _, tc := range d.TexCoords {
		w.WriteFloat32(tc[0])
		w.WriteFloat32(tc[1])
	}
	w.WriteString(d.TextureName)
}

func readParticleData(r *packet.BitReader) *fx.ParticleData {
	d := &fx.ParticleData{Name: r.ReadString()}
	for _, f := range []*float32{
		&d.DragCoefficient, &d.WindCoefficient, &d.GravityCoefficient,
		&d.InheritedVelFactor, &d.ConstantAcceleration,
		&d.SpinSpeed, &d.SpinRandomMin, &d.SpinRandomMax,
	} {
		*f = r.ReadFloat32()
	}
	d.UseInvAlpha = r.ReadBool()
	for i := 0; i < fx.NumKeys; i++ {
		d.Times[i] = r.ReadFloat32()
		d.Colors[i] = readColor(r)
		d.Sizes[i] = r.ReadFloat32()
	}
	for i := range d.TexCoords {
		d.TexCoords[i][0] = r.ReadFloat32()
		d.TexCoords[i][1] = r.ReadFloat32()
	}
	d.TextureName = r.ReadString()
	return d
}
