package system

import (
	"time"

	"github.com/l1jgo/meshfx/internal/core/event"
	coresys "github.com/l1jgo/meshfx/internal/core/system"
	"github.com/l1jgo/meshfx/internal/world"
	"go.uber.org/zap"
)

// SimulateSystem 以 tick 長度推進所有存活粒子，並移除已燃盡的發射器。
// Phase 2 (Simulate)。
type SimulateSystem struct {
	world *world.State
	bus   *event.Bus
	log   *zap.Logger
}

func NewSimulateSystem(ws *world.State, bus *event.Bus, log *zap.Logger) *SimulateSystem {
	return &SimulateSystem{world: ws, bus: bus, log: log}
}

func (s *SimulateSystem) Phase() coresys.Phase { return coresys.PhaseSimulate }

func (s *SimulateSystem) Update(dt time.Duration) {
	ms := uint32(dt.Milliseconds())
	s.world.Each(func(inst *world.Instance) {
		e := inst.Emitter
		wasDead := e.Dead()
		e.Advance(ms)
		if e.Dead() && !wasDead {
			inst.Dirty = true
			event.Emit(s.bus, event.EmitterEmptied{Entity: inst.Entity, Name: inst.Name})
			s.world.MarkDestroy(inst.Entity)
			s.log.Debug("發射器已清空", zap.String("emitter", inst.Name))
		}
	})
}
