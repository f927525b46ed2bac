package system

import (
	"time"

	"github.com/l1jgo/meshfx/internal/core/event"
	coresys "github.com/l1jgo/meshfx/internal/core/system"
	"github.com/l1jgo/meshfx/internal/net"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"github.com/l1jgo/meshfx/internal/replication"
	"github.com/l1jgo/meshfx/internal/world"
	"go.uber.org/zap"
)

// InputSystem 取出所有 Session 的封包佇列並交由封包註冊表派發。
// Phase 0 (Input)。
type InputSystem struct {
	netServer  *net.Server
	registry   *packet.Registry
	store      *net.SessionStore
	world      *world.State
	repl       *replication.Server
	bus        *event.Bus
	maxPerTick int
	log        *zap.Logger
}

func NewInputSystem(
	netServer *net.Server,
	registry *packet.Registry,
	store *net.SessionStore,
	ws *world.State,
	repl *replication.Server,
	bus *event.Bus,
	maxPerTick int,
	log *zap.Logger,
) *InputSystem {
	if maxPerTick <= 0 {
		maxPerTick = 32
	}
	return &InputSystem{
		netServer:  netServer,
		registry:   registry,
		store:      store,
		world:      ws,
		repl:       repl,
		bus:        bus,
		maxPerTick: maxPerTick,
		log:        log,
	}
}

func (s *InputSystem) Phase() coresys.Phase { return coresys.PhaseInput }

func (s *InputSystem) Update(_ time.Duration) {
	// 接受新連線
	for {
		select {
		case sess := <-s.netServer.NewSessions():
			s.store.Add(sess)
		default:
			goto doneNew
		}
	}
doneNew:

	for {
		select {
		case id := <-s.netServer.DeadSessions():
			s.store.Remove(id)
		default:
			goto doneDead
		}
	}
doneDead:

	s.store.ForEach(func(sess *net.Session) {
		if sess.IsClosed() {
			// 斷線前已收到的 ack 仍然有效
			s.drain(sess)
			s.handleDisconnect(sess)
			s.netServer.NotifyDead(sess.ID)
			s.store.Remove(sess.ID)
			return
		}
		s.drain(sess)
	})

	// 提前送出回應，不必等模擬階段跑完
	s.store.ForEach(func(sess *net.Session) {
		sess.FlushOutput()
	})
}

// drain 派發單一 Session 最多 maxPerTick 個封包。
func (s *InputSystem) drain(sess *net.Session) int {
	for i := 0; i < s.maxPerTick; i++ {
		select {
		case data := <-sess.InQueue:
			if err := s.registry.Dispatch(sess, sess.State(), data); err != nil {
				s.log.Debug("封包分派錯誤",
					zap.Uint64("session", sess.ID),
					zap.Error(err),
				)
			}
		default:
			return i
		}
	}
	return s.maxPerTick
}

// handleDisconnect 清除已關閉連線的觀察者狀態。
func (s *InputSystem) handleDisconnect(sess *net.Session) {
	s.repl.RemoveObserver(sess.ID)
	if o := s.world.RemoveObserver(sess.ID); o != nil {
		event.Emit(s.bus, event.ObserverLeft{SessionID: sess.ID, Name: o.Name})
		s.log.Info("觀察者斷線",
			zap.Uint64("session", sess.ID),
			zap.String("name", o.Name),
		)
	}
}
