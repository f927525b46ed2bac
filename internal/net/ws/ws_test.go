package ws

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	gonet "github.com/l1jgo/meshfx/internal/net"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"go.uber.org/zap/zaptest"
)

func TestWebsocketSession(t *testing.T) {
	log := zaptest.NewLogger(t)
	srv, err := gonet.NewServer("", gonet.SessionOptions{InQueueSize: 4, OutQueueSize: 4}, 0, log)
	if err != nil {
		t.Fatal(err)
	}
	defer srv.Shutdown()
	hs := httptest.NewServer(NewHandler(srv, 0, log))
	defer hs.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	client, err := Dial(ctx, "ws"+strings.TrimPrefix(hs.URL, "http"))
	if err != nil {
		t.Fatal(err)
	}
	defer client.Close()

	var sess *gonet.Session
	select {
	case sess = <-srv.NewSessions():
	case <-ctx.Done():
		t.Fatal("no session adopted")
	}
	defer sess.Close()

	hello := []byte{packet.C_OPCODE_HELLO, 0}
	if err := client.WriteFrame(hello, time.Now().Add(time.Second)); err != nil {
		t.Fatal(err)
	}
	select {
	case got := <-sess.InQueue:
		if !bytes.Equal(got, hello) {
			t.Fatalf("server got % x", got)
		}
	case <-ctx.Done():
		t.Fatal("no inbound frame")
	}

	sess.Send([]byte{packet.S_OPCODE_WELCOME, 1})
	sess.FlushOutput()
	got, err := client.ReadFrame()
	if err != nil {
		t.Fatal(err)
	}
	if got[0] != packet.S_OPCODE_WELCOME {
		t.Fatalf("client got % x", got)
	}
}
