package fx

import (
	"github.com/go-gl/mathgl/mgl32"
)

// forces is the per-step snapshot of everything external a particle reacts to.
type forces struct {
	wind    mgl32.Vec3
	targets [NumAttractors]mgl32.Vec3
	active  [NumAttractors]bool
}

func (e *Emitter) snapshotForces() forces {
	f := forces{wind: e.wind.Velocity()}
	ph := &e.params.Physics
	if ph.AttractionRange <= 0 || e.attractors == nil {
		return f
	}
	for i, a := range ph.Attractors {
		if a.Mode == AttractNone || a.ObjectID == "" {
			continue
		}
		pos, ok := e.attractors.Resolve(a.ObjectID)
		if !ok {
			continue
		}
		f.targets[i] = pos.Add(a.Offset)
		f.active[i] = true
	}
	return f
}

// Emit 產生接下來 elapsedMs 內到期的粒子，位置取自 host 目前的變換
// （host 為 nil 時沿用上次的位置）。回傳新增的粒子數。
func (e *Emitter) Emit(elapsedMs uint32, host HostTransform) int {
	pos, rot := e.state.Position, e.state.Rotation
	if host != nil {
		pos, rot = host.Transform()
	}
	if rot.Len() < 1e-6 {
		rot = mgl32.QuatIdent()
	}
	if e.params.Physics.Sticky && e.hasLast {
		if delta := pos.Sub(e.state.Position); delta.LenSqr() > 0 {
			e.pool.Walk(func(_ Handle, p *Particle) bool {
				p.Pos = p.Pos.Add(delta)
				return true
			})
		}
	}
	last, hadLast := e.lastPosition, e.hasLast
	e.lastPosition, e.hasLast = pos, true
	e.setTransform(pos, rot)

	if e.state.Dead || e.state.DeleteWhenEmpty || elapsedMs == 0 {
		return 0
	}
	if e.data == nil || len(e.data.Particles) == 0 {
		e.warn(ErrNoConfig.Error())
		return 0
	}

	var warning string
	e.offsets, warning = e.sched.Step(elapsedMs, &e.params.Particle, e.maxEmit, e.offsets[:0])
	if warning != "" {
		e.warn(warning)
	}
	if len(e.offsets) == 0 {
		return 0
	}

	var hostVel mgl32.Vec3
	if hadLast {
		hostVel = pos.Sub(last).Mul(1000 / float32(elapsedMs))
	} else {
		last = pos
	}
	f := e.snapshotForces()
	added := 0
	for _, t := range e.offsets {
		origin := last.Add(pos.Sub(last).Mul(float32(t) / float32(elapsedMs)))
		h, p, err := e.pool.Acquire()
		if err != nil {
			e.warn(err.Error())
			break
		}
		e.initParticle(p, origin, rot, hostVel)
		added++
		if !e.params.Particle.OverrideAdvance && t < elapsedMs {
			e.step(h, p, elapsedMs-t, &f)
		}
	}
	e.updateBBox()
	return added
}

// initParticle fills a freshly acquired record.
func (e *Emitter) initParticle(p *Particle, origin mgl32.Vec3, rot mgl32.Quat, hostVel mgl32.Vec3) {
	pp := &e.params.Particle
	gp := &e.params.Geometry

	data := e.data.Particles[0]
	if n := len(e.data.Particles); n > 1 {
		data = e.data.Particles[e.rng.IntN(n)]
	}

	var pos, dir mgl32.Vec3
	sampled := false
	if gp.EmitOnFaces {
		if e.sampler == nil {
			e.warn("emit on faces without a mesh, using forward axis")
		} else if lp, normal, ok := e.sampler.Sample(gp.EvenEmission); ok {
			dir = rot.Rotate(normal)
			if dir.LenSqr() < 1e-12 {
				dir = rot.Rotate(Forward)
			}
			dir = dir.Normalize()
			pos = origin.Add(rot.Rotate(lp)).Add(dir.Mul(gp.EjectionOffset))
			sampled = true
		}
	}
	if !sampled {
		dir = rot.Rotate(Forward).Normalize()
		pos = origin.Add(dir.Mul(gp.EjectionOffset))
	}

	speed := varyFloat(e.rng, pp.EjectionVelocity, pp.VelocityVariance)
	vel := dir.Mul(speed).Add(hostVel.Mul(data.InheritedVelFactor))
	spin := data.SpinSpeed
	if data.SpinRandomMax > data.SpinRandomMin {
		spin += data.SpinRandomMin + e.rng.Float32()*(data.SpinRandomMax-data.SpinRandomMin)
	} else {
		spin += data.SpinRandomMin
	}

	*p = Particle{
		Pos:       pos,
		Vel:       vel,
		Acc:       vel.Mul(data.ConstantAcceleration),
		OrientDir: dir,
		SpinSpeed: spin,
		Lifetime:  uint32(varyInt(e.rng, pp.LifetimeMS, pp.LifetimeVarianceMS)),
		Data:      data,
	}
	if pp.AlignParticles {
		p.AlignDir = pp.AlignDirection
	}
	e.applyKeys(p)
}

func (e *Emitter) applyKeys(p *Particle) {
	pp := &e.params.Particle
	var sizes *[NumKeys]float32
	var colors *[NumKeys]Color
	if pp.UseEmitterSizes {
		sizes = &pp.Sizes
	}
	if pp.UseEmitterColors {
		colors = &pp.Colors
	}
	p.updateKeyData(sizes, colors)
}

// Advance 以 elapsedMs 推進所有存活粒子的年齡與運動，年齡到達壽命即釋放。
// Advance(0) 不改變任何狀態。
func (e *Emitter) Advance(elapsedMs uint32) {
	if elapsedMs == 0 {
		return
	}
	e.clock += elapsedMs
	f := e.snapshotForces()
	e.pool.Walk(func(h Handle, p *Particle) bool {
		e.step(h, p, elapsedMs, &f)
		return true
	})
	e.updateBBox()
	if e.state.DeleteWhenEmpty && !e.state.Dead && e.pool.Len() == 0 {
		e.state.Dead = true
		e.dirty |= StateMask
	}
}

// step advances one particle. It reports false when the particle expired
// and was released.
func (e *Emitter) step(h Handle, p *Particle, ms uint32, f *forces) bool {
	p.Age += ms
	if p.Age >= p.Lifetime {
		e.pool.Release(h)
		return false
	}
	dt := float32(ms) / 1000
	d := p.Data
	a := p.Acc.
		Sub(p.Vel.Mul(d.DragCoefficient)).
		Add(f.wind.Mul(d.WindCoefficient)).
		Add(Gravity.Mul(d.GravityCoefficient))
	ph := &e.params.Physics
	for i := range f.active {
		if !f.active[i] {
			continue
		}
		a = a.Add(attraction(p.Pos, f.targets[i], ph.Attractors[i], ph.AttractionRange))
	}
	p.Vel = p.Vel.Add(a.Mul(dt))
	p.Pos = p.Pos.Add(p.Vel.Mul(dt))
	p.Rotation = p.SpinSpeed * float32(p.Age) * AgedSpinToRadians
	e.applyKeys(p)
	return true
}

// attraction falls off linearly to zero at rng.
func attraction(pos, target mgl32.Vec3, a Attractor, rng float32) mgl32.Vec3 {
	diff := target.Sub(pos)
	dist := diff.Len()
	if dist < 1e-4 || dist > rng {
		return mgl32.Vec3{}
	}
	strength := a.Amount * (1 - dist/rng)
	dir := diff.Mul(1 / dist)
	if a.Mode == Repulse {
		strength = -strength
	}
	return dir.Mul(strength)
}

// updateBBox 重新計算所有存活粒子的包圍盒，並以最大粒子尺寸外擴。
// 沒有粒子時縮成發射器位置。
func (e *Emitter) updateBBox() {
	if e.pool.Len() == 0 {
		e.bbox = PointBox(e.state.Position)
		return
	}
	b := emptyBox()
	var maxSize float32
	e.pool.Walk(func(_ Handle, p *Particle) bool {
		b.extend(p.Pos)
		if p.Size > maxSize {
			maxSize = p.Size
		}
		return true
	})
	e.bbox = b.Expand(maxSize)
}
