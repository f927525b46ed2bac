package handler

import (
	"github.com/l1jgo/meshfx/internal/config"
	"github.com/l1jgo/meshfx/internal/core/event"
	"github.com/l1jgo/meshfx/internal/net"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"github.com/l1jgo/meshfx/internal/replication"
	"github.com/l1jgo/meshfx/internal/world"
	"go.uber.org/zap"
)

// Deps holds shared dependencies injected into all packet handlers.
type Deps struct {
	Config      *config.Config
	Log         *zap.Logger
	World       *world.State
	Replication *replication.Server
	Bus         *event.Bus
}

// RegisterAll 將所有封包處理器註冊到註冊表。
func RegisterAll(reg *packet.Registry, deps *Deps) {
	reg.Register(packet.C_OPCODE_HELLO,
		[]packet.SessionState{packet.StateHandshake},
		func(sess any, r *packet.Reader) error {
			return HandleHello(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_ACK,
		[]packet.SessionState{packet.StateSynced},
		func(sess any, r *packet.Reader) error {
			return HandleAck(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_NACK,
		[]packet.SessionState{packet.StateSynced},
		func(sess any, r *packet.Reader) error {
			return HandleNack(sess.(*net.Session), r, deps)
		},
	)
	reg.Register(packet.C_OPCODE_BYE,
		[]packet.SessionState{packet.StateHandshake, packet.StateSynced},
		func(sess any, r *packet.Reader) error {
			return HandleBye(sess.(*net.Session), r, deps)
		},
	)
}
