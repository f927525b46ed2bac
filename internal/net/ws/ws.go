// Package ws carries session frames over websocket binary messages.
package ws

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	gonet "github.com/l1jgo/meshfx/internal/net"
	"go.uber.org/zap"
)

// Conn adapts a websocket connection to net.FrameConn. One goroutine may
// read while another writes.
type Conn struct {
	ws          *websocket.Conn
	readTimeout time.Duration
}

func NewConn(c *websocket.Conn, readTimeout time.Duration) *Conn {
	c.SetReadLimit(gonet.MaxFrame)
	return &Conn{ws: c, readTimeout: readTimeout}
}

func (c *Conn) ReadFrame() ([]byte, error) {
	for {
		if c.readTimeout > 0 {
			c.ws.SetReadDeadline(time.Now().Add(c.readTimeout))
		}
		kind, data, err := c.ws.ReadMessage()
		if err != nil {
			return nil, err
		}
		if kind != websocket.BinaryMessage {
			continue
		}
		if len(data) == 0 {
			return nil, fmt.Errorf("empty websocket frame")
		}
		return data, nil
	}
}

func (c *Conn) WriteFrame(data []byte, deadline time.Time) error {
	if len(data) > gonet.MaxFrame {
		return gonet.ErrFrameTooLarge
	}
	c.ws.SetWriteDeadline(deadline)
	return c.ws.WriteMessage(websocket.BinaryMessage, data)
}

func (c *Conn) RemoteAddr() string { return c.ws.RemoteAddr().String() }

func (c *Conn) Close() error { return c.ws.Close() }

// Handler upgrades HTTP requests and hands the connections to a server.
type Handler struct {
	srv         *gonet.Server
	upgrader    websocket.Upgrader
	readTimeout time.Duration
	log         *zap.Logger
}

func NewHandler(srv *gonet.Server, readTimeout time.Duration, log *zap.Logger) *Handler {
	return &Handler{
		srv: srv,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		readTimeout: readTimeout,
		log:         log,
	}
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	c, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.log.Debug("websocket 升級失敗", zap.String("remote", r.RemoteAddr), zap.Error(err))
		return
	}
	if h.srv.Adopt(NewConn(c, h.readTimeout)) == nil {
		msg := websocket.FormatCloseMessage(websocket.CloseTryAgainLater, "server busy")
		c.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
	}
}

// Dial opens an observer connection to a websocket endpoint.
func Dial(ctx context.Context, url string) (*Conn, error) {
	c, resp, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return NewConn(c, 0), nil
}
