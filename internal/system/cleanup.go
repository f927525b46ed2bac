package system

import (
	"time"

	"github.com/l1jgo/meshfx/internal/core/ecs"
	coresys "github.com/l1jgo/meshfx/internal/core/system"
	"go.uber.org/zap"
)

// CleanupSystem 在 tick 結束時清空延遲銷毀佇列。
// Phase 6 (Cleanup)。
type CleanupSystem struct {
	world *ecs.World
	log   *zap.Logger
}

func NewCleanupSystem(world *ecs.World, log *zap.Logger) *CleanupSystem {
	return &CleanupSystem{world: world, log: log}
}

func (s *CleanupSystem) Phase() coresys.Phase { return coresys.PhaseCleanup }

func (s *CleanupSystem) Update(_ time.Duration) {
	if n := s.world.FlushDestroyQueue(); n > 0 {
		s.log.Debug("已銷毀實體", zap.Int("count", n))
	}
}
