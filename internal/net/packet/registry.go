package packet

import (
	"fmt"

	"go.uber.org/zap"
)

// SessionState is the protocol phase of an observer session.
type SessionState uint8

const (
	StateHandshake SessionState = iota // connected, awaiting hello
	StateSynced                        // hello accepted, receiving ghosts
	StateDisconnecting
)

func (s SessionState) String() string {
	switch s {
	case StateHandshake:
		return "Handshake"
	case StateSynced:
		return "Synced"
	case StateDisconnecting:
		return "Disconnecting"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(s))
	}
}

// HandlerFunc handles one packet. sess is opaque here so the packet
// package stays below net in the import graph.
type HandlerFunc func(sess any, r *Reader) error

type handlerEntry struct {
	fn      HandlerFunc
	allowed uint32 // bit per SessionState
}

// Registry 將操作碼對應到處理器，並依連線狀態限制可用的操作碼。
type Registry struct {
	handlers [256]*handlerEntry
	unknown  uint64
	log      *zap.Logger
}

func NewRegistry(log *zap.Logger) *Registry {
	return &Registry{log: log}
}

// Register installs fn for opcode in the listed states, replacing any
// earlier handler.
func (reg *Registry) Register(opcode byte, states []SessionState, fn HandlerFunc) {
	e := &handlerEntry{fn: fn}
	for _, s := range states {
		e.allowed |= 1 << s
	}
	reg.handlers[opcode] = e
}

// Unknown returns how many packets carried an unregistered opcode.
func (reg *Registry) Unknown() uint64 { return reg.unknown }

// Dispatch 執行 data[0] 對應的處理器。未知操作碼只計數後丟棄；
// 狀態不符、處理器錯誤或 panic 皆回傳錯誤。
func (reg *Registry) Dispatch(sess any, state SessionState, data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty packet")
	}
	opcode := data[0]
	if ce := reg.log.Check(zap.DebugLevel, "收到封包"); ce != nil {
		ce.Write(
			zap.String("opcode", OpcodeName(opcode)),
			zap.Int("size", len(data)),
			zap.Stringer("state", state),
		)
	}

	e := reg.handlers[opcode]
	if e == nil {
		reg.unknown++
		reg.log.Debug("未知操作碼", zap.Uint8("opcode", opcode), zap.Stringer("state", state))
		return nil
	}
	if e.allowed&(1<<state) == 0 {
		reg.log.Warn("操作碼在此狀態下不允許",
			zap.String("opcode", OpcodeName(opcode)),
			zap.Stringer("state", state),
		)
		return fmt.Errorf("opcode %s not allowed in state %s", OpcodeName(opcode), state)
	}
	if err := reg.safeCall(e.fn, sess, NewReader(data), opcode); err != nil {
		return fmt.Errorf("%s: %w", OpcodeName(opcode), err)
	}
	return nil
}

// safeCall 以 panic 復原包住處理器，單一異常封包不會讓遊戲迴圈停擺。
func (reg *Registry) safeCall(fn HandlerFunc, sess any, r *Reader, opcode byte) (err error) {
	defer func() {
		if rec := recover(); rec != nil {
			reg.log.Error("處理器 panic 已恢復",
				zap.Uint8("opcode", opcode),
				zap.Any("panic", rec),
			)
			err = fmt.Errorf("handler panic: %v", rec)
		}
	}()
	return fn(sess, r)
}
