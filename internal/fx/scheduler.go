package fx

import (
	"math/rand/v2"
)

// DefaultMaxEmitPerStep bounds how many particles one Step may schedule.
const DefaultMaxEmitPerStep = 1000

// Scheduler decides when particles are born. It keeps a countdown to the next
// emission in milliseconds; the remainder of one step carries into the next,
// so timing does not drift with frame jitter.
type Scheduler struct {
	countdown int32
	primed    bool
	rng       *rand.Rand
}

// NewScheduler creates a scheduler drawing variance from rng.
func NewScheduler(rng *rand.Rand) *Scheduler {
	return &Scheduler{rng: rng}
}

// Countdown returns the milliseconds until the next emission.
func (s *Scheduler) Countdown() int32 { return s.countdown }

// Reset forgets the current countdown; the next Step re-rolls it.
func (s *Scheduler) Reset() {
	s.countdown = 0
	s.primed = false
}

// roll draws the next period: mean ± variance, floored at 1ms.
func (s *Scheduler) roll(p *ParticleParams) int32 {
	period := p.EjectionPeriodMS
	if period < 1 {
		period = 1
	}
	if v := p.PeriodVarianceMS; v > 0 {
		period += s.rng.Int32N(2*v+1) - v
	}
	if period < 1 {
		period = 1
	}
	return period
}

// Step advances the countdown by elapsedMs and appends the birth offset (ms
// from the start of the step, in (0, elapsedMs]) of every particle due in
// this step. At most limit offsets are produced; the rest of a backlog is
// dropped and the countdown restarts. warning is non-empty when the params
// needed a safety fallback.
func (s *Scheduler) Step(elapsedMs uint32, p *ParticleParams, limit int, buf []uint32) (offsets []uint32, warning string) {
	if p.EjectionPeriodMS <= 0 {
		warning = "non-positive ejection period, emitting at 1ms"
	}
	if limit <= 0 {
		limit = DefaultMaxEmitPerStep
	}
	if !s.primed {
		s.countdown = s.roll(p)
		s.primed = true
	}

	t := int64(s.countdown)
	end := int64(elapsedMs)
	emitted := 0
	for t <= end {
		if emitted >= limit {
			warning = "emission capped at per-step limit"
			t = end + int64(s.roll(p))
			break
		}
		buf = append(buf, uint32(t))
		emitted++
		t += int64(s.roll(p))
	}
	s.countdown = int32(t - end)
	return buf, warning
}

// varyInt returns mean + uniform integer in [-v, v], floored at 1.
func varyInt(rng *rand.Rand, mean, v int32) int32 {
	n := mean
	if v > 0 {
		n += rng.Int32N(2*v+1) - v
	}
	if n < 1 {
		n = 1
	}
	return n
}

// varyFloat returns mean + uniform float in [-v, v].
func varyFloat(rng *rand.Rand, mean, v float32) float32 {
	if v == 0 {
		return mean
	}
	return mean + v*(rng.Float32()*2-1)
}
