package system

import (
	"time"

	coresys "github.com/l1jgo/meshfx/internal/core/system"
	"github.com/l1jgo/meshfx/internal/replication"
	"github.com/l1jgo/meshfx/internal/world"
)

// EmitSystem 依宿主位置產生本 tick 的粒子，並把發射器的髒群組交給同步層。
// Phase 3 (Emit)。
type EmitSystem struct {
	world *world.State
	repl  *replication.Server
}

func NewEmitSystem(ws *world.State, repl *replication.Server) *EmitSystem {
	return &EmitSystem{world: ws, repl: repl}
}

func (s *EmitSystem) Phase() coresys.Phase { return coresys.PhaseEmit }

func (s *EmitSystem) Update(dt time.Duration) {
	ms := uint32(dt.Milliseconds())
	s.world.Each(func(inst *world.Instance) {
		inst.Emitter.Emit(ms, inst.Host)
		if m := inst.Emitter.TakeDirty(); m != 0 {
			inst.Dirty = true
			s.repl.MarkDirty(inst.Ghost, m)
		}
	})
}
