package handler

import (
	"github.com/l1jgo/meshfx/internal/net"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"go.uber.org/zap"
)

// HandleAck processes C_ACK: [DU seq].
func HandleAck(sess *net.Session, r *packet.Reader, deps *Deps) error {
	seq := r.ReadDU()
	if err := r.Err(); err != nil {
		return err
	}
	deps.Replication.HandleAck(sess.ID, seq)
	return nil
}

// HandleNack 處理 C_NACK：[DU seq]。觀察者無法解析該封包，
// 其內容立即重新排程，不必等待確認逾時。
func HandleNack(sess *net.Session, r *packet.Reader, deps *Deps) error {
	seq := r.ReadDU()
	if err := r.Err(); err != nil {
		return err
	}
	deps.Log.Debug("觀察者回報封包解析失敗", zap.Uint64("session", sess.ID), zap.Uint32("seq", seq))
	deps.Replication.HandleNack(sess.ID, seq)
	return nil
}

// HandleBye processes C_BYE. Cleanup happens in the input system once the
// session is closed.
func HandleBye(sess *net.Session, _ *packet.Reader, deps *Deps) error {
	deps.Log.Debug("觀察者離開", zap.Uint64("session", sess.ID))
	sess.Close()
	return nil
}
