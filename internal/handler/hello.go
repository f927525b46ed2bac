package handler

import (
	"fmt"

	"github.com/l1jgo/meshfx/internal/core/event"
	"github.com/l1jgo/meshfx/internal/net"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"github.com/l1jgo/meshfx/internal/world"
	"go.uber.org/zap"
)

// HandleHello 處理 C_HELLO：[S 名稱][H 協定版本]。
// 版本相符則進入 Synced 並開始同步；否則回覆 S_DISCONNECT。
func HandleHello(sess *net.Session, r *packet.Reader, deps *Deps) error {
	name := r.ReadS()
	version := r.ReadH()
	if err := r.Err(); err != nil {
		Disconnect(sess, "malformed hello")
		return err
	}

	if version != packet.ProtocolVersion {
		deps.Log.Warn("協定版本不符",
			zap.Uint64("session", sess.ID),
			zap.Uint16("client", version),
			zap.Int("server", packet.ProtocolVersion),
		)
		Disconnect(sess, fmt.Sprintf("protocol version %d not supported", version))
		return nil
	}
	if name == "" {
		name = fmt.Sprintf("observer-%d", sess.ID)
	}

	sess.ObserverName = name
	sess.SetState(packet.StateSynced)
	deps.World.AddObserver(&world.Observer{SessionID: sess.ID, Name: name})
	deps.Replication.AddObserver(sess.ID, sess)
	event.Emit(deps.Bus, event.ObserverJoined{SessionID: sess.ID, Name: name})

	deps.Log.Info(fmt.Sprintf("觀察者加入  session=%d  名稱=%s  IP=%s", sess.ID, name, sess.IP))
	return nil
}

// Disconnect 送出帶原因的 S_DISCONNECT，寫入端送達後關閉連線。
func Disconnect(sess *net.Session, reason string) {
	w := packet.NewWriterWithOpcode(packet.S_OPCODE_DISCONNECT)
	w.WriteDU(0)
	w.WriteS(reason)
	sess.Send(w.Bytes())
	sess.CloseAfterFlush()
}
