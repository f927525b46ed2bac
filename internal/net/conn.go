package net

import (
	"net"
	"time"
)

// FrameConn is a message-oriented connection. The TCP transport frames
// payloads with a length header; the websocket transport uses one binary
// message per payload.
type FrameConn interface {
	ReadFrame() ([]byte, error)
	WriteFrame(data []byte, deadline time.Time) error
	RemoteAddr() string
	Close() error
}

type tcpConn struct {
	conn        net.Conn
	readTimeout time.Duration
}

// NewTCPConn 以長度前綴編碼包裝串流連線。
// readTimeout 為 0 時不設閒置逾時。
func NewTCPConn(c net.Conn, readTimeout time.Duration) FrameConn {
	return &tcpConn{conn: c, readTimeout: readTimeout}
}

func (c *tcpConn) ReadFrame() ([]byte, error) {
	if c.readTimeout > 0 {
		c.conn.SetReadDeadline(time.Now().Add(c.readTimeout))
	}
	return ReadFrame(c.conn)
}

func (c *tcpConn) WriteFrame(data []byte, deadline time.Time) error {
	c.conn.SetWriteDeadline(deadline)
	return WriteFrame(c.conn, data)
}

func (c *tcpConn) RemoteAddr() string { return c.conn.RemoteAddr().String() }

func (c *tcpConn) Close() error { return c.conn.Close() }
