package system

import (
	"time"

	coresys "github.com/l1jgo/meshfx/internal/core/system"
	"github.com/l1jgo/meshfx/internal/scripting"
)

// ScriptSystem 在事件派發之後執行腳本的 on_tick。
// Phase 1 (PreUpdate)，註冊於 EventSystem 之後。
type ScriptSystem struct {
	engine *scripting.Engine
	tick   uint64
}

func NewScriptSystem(engine *scripting.Engine) *ScriptSystem {
	return &ScriptSystem{engine: engine}
}

func (s *ScriptSystem) Phase() coresys.Phase { return coresys.PhasePreUpdate }

func (s *ScriptSystem) Update(dt time.Duration) {
	s.tick++
	s.engine.Tick(uint32(dt.Milliseconds()), s.tick)
}
