package system

import (
	"time"

	"github.com/l1jgo/meshfx/internal/core/event"
	coresys "github.com/l1jgo/meshfx/internal/core/system"
	"github.com/l1jgo/meshfx/internal/net"
	"github.com/l1jgo/meshfx/internal/replication"
	"github.com/l1jgo/meshfx/internal/world"
	"go.uber.org/zap"
)

// OutputSystem 讓同步層的 ghost 集合跟上世界狀態，送出 ghost 更新，
// 並把每個 Session 的輸出緩衝推給寫入端。Phase 4 (Output)。
type OutputSystem struct {
	repl   *replication.Server
	store  *net.SessionStore
	world  *world.State
	ghosts map[uint32]bool
	tick   uint64
	log    *zap.Logger
}

func NewOutputSystem(repl *replication.Server, store *net.SessionStore, ws *world.State, bus *event.Bus, log *zap.Logger) *OutputSystem {
	s := &OutputSystem{
		repl:   repl,
		store:  store,
		world:  ws,
		ghosts: make(map[uint32]bool),
		log:    log,
	}
	event.Subscribe(bus, s.onSpawned)
	event.Subscribe(bus, s.onDestroyed)
	return s
}

func (s *OutputSystem) Phase() coresys.Phase { return coresys.PhaseOutput }

func (s *OutputSystem) onSpawned(ev event.EmitterSpawned) {
	// 同一 tick 內生成又銷毀：無需同步
	inst := s.world.ByGhost(ev.Ghost)
	if inst == nil {
		return
	}
	s.ghosts[ev.Ghost] = true
	s.repl.AddGhost(ev.Ghost, inst.Emitter)
	s.log.Debug("開始同步發射器", zap.String("emitter", ev.Name), zap.Uint32("ghost", ev.Ghost))
}

func (s *OutputSystem) onDestroyed(ev event.EmitterDestroyed) {
	if !s.ghosts[ev.Ghost] {
		return
	}
	delete(s.ghosts, ev.Ghost)
	s.repl.RemoveGhost(ev.Ghost)
}

// Ghosts returns how many emitters are being replicated.
func (s *OutputSystem) Ghosts() int { return len(s.ghosts) }

func (s *OutputSystem) Update(_ time.Duration) {
	s.tick++
	s.repl.Flush(s.tick)
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}
