package replication

import (
	"fmt"
	"strings"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/fx"
	gonet "github.com/l1jgo/meshfx/internal/net"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"
	zapobserver "go.uber.org/zap/zaptest/observer"
)

type captureSender struct {
	out [][]byte
}

func (c *captureSender) Send(b []byte) {
	c.out = append(c.out, append([]byte(nil), b...))
}

func (c *captureSender) drain() [][]byte {
	out := c.out
	c.out = nil
	return out
}

func testConfig() *fx.Config {
	cfg := &fx.Config{
		Name:      "sparks",
		Defaults:  fx.DefaultParams(),
		Particles: []*fx.ParticleData{fx.NewParticleData("spark")},
	}
	cfg.Validate()
	return cfg
}

type harness struct {
	t    *testing.T
	srv  *Server
	cli  *Client
	link *captureSender
	wind *fx.Wind
	tick uint64
}

func newHarness(t *testing.T, opts ServerOptions) *harness {
	log := zaptest.NewLogger(t)
	h := &harness{t: t, link: &captureSender{}, wind: &fx.Wind{}}
	h.srv = NewServer(h.wind, opts, log)
	h.cli = NewClient(&fx.Wind{}, ClientOptions{}, log)
	return h
}

// step flushes the server and delivers everything except dropped payloads,
// acking whatever the client applied cleanly.
func (h *harness) step(drop ...int) {
	h.t.Helper()
	h.tick++
	h.srv.Flush(h.tick)
	skip := map[int]bool{}
	for _, i := range drop {
		skip[i] = true
	}
	for i, p := range h.link.drain() {
		if skip[i] {
			continue
		}
		seq, err := h.cli.Handle(p)
		if err != nil {
			h.t.Fatalf("client handle: %v", err)
		}
		h.srv.HandleAck(1, seq)
	}
}

func TestServerClientSync(t *testing.T) {
	h := newHarness(t, ServerOptions{Name: "test", TickMS: 50})
	cfg := testConfig()
	e := fx.NewEmitter(cfg, fx.Options{Seed: 99})
	e.Emit(0, fx.NewStaticHost(mgl32.Vec3{1, 2, 3}))
	e.TakeDirty()
	h.srv.AddGhost(7, e)

	h.srv.AddObserver(1, h.link)
	h.wind.Set(mgl32.Vec3{0, 4, 0})
	h.step()

	if h.cli.ServerName != "test" || h.cli.TickMS != 50 {
		t.Fatalf("welcome not applied: %q %d", h.cli.ServerName, h.cli.TickMS)
	}
	got := h.cli.Emitter(7)
	if got == nil {
		t.Fatal("ghost not created")
	}
	if got.Config() == nil || got.Config().Name != "sparks" {
		t.Fatal("datablock not bound")
	}
	if got.Replica() != e.Replica() {
		t.Fatalf("replica mismatch\n got %+v\nwant %+v", got.Replica(), e.Replica())
	}
	if h.cli.wind.Velocity() != (mgl32.Vec3{0, 4, 0}) {
		t.Fatal("wind not replicated")
	}
	g := h.srv.Ghost(1, 7)
	if g.BitState(fx.StateMask) != BitClean {
		t.Fatalf("state bit %v after ack", g.BitState(fx.StateMask))
	}
}

func TestServerRetriesLostUpdate(t *testing.T) {
	h := newHarness(t, ServerOptions{AckTimeoutTicks: 3})
	e := fx.NewEmitter(testConfig(), fx.Options{Seed: 1})
	h.srv.AddGhost(7, e)
	h.srv.AddObserver(1, h.link)
	h.step()

	p := e.Params()
	p.Particle.EjectionVelocity = 12
	h.srv.MarkDirty(7, e.SetParams(p))
	h.step(0) // the update is lost
	if h.cli.Emitter(7).Params().Particle.EjectionVelocity == 12 {
		t.Fatal("dropped update was applied")
	}
	if h.srv.Ghost(1, 7).BitState(fx.ParticleMask) != BitAwaiting {
		t.Fatal("lost bit should be awaiting ack")
	}

	for i := 0; i < 3; i++ {
		h.step()
	}
	if v := h.cli.Emitter(7).Params().Particle.EjectionVelocity; v != 12 {
		t.Fatalf("velocity %v after retry, want 12", v)
	}
	if h.srv.Ghost(1, 7).BitState(fx.ParticleMask) != BitClean {
		t.Fatal("bit not clean after retry ack")
	}
}

func TestServerRemovesGhost(t *testing.T) {
	h := newHarness(t, ServerOptions{})
	h.srv.AddGhost(3, fx.NewEmitter(testConfig(), fx.Options{}))
	h.srv.AddObserver(1, h.link)
	h.step()
	if h.cli.Len() != 1 {
		t.Fatal("ghost missing")
	}

	h.srv.RemoveGhost(3)
	h.step()
	if h.cli.Len() != 0 {
		t.Fatal("ghost not removed on client")
	}
	if h.srv.Ghost(1, 3) != nil {
		t.Fatal("server kept the ghost after the removal was acked")
	}
}

func TestServerBudgetSplitsPackets(t *testing.T) {
	h := newHarness(t, ServerOptions{BudgetBits: 1})
	for id := uint32(1); id <= 3; id++ {
		h.srv.AddGhost(id, fx.NewEmitter(testConfig(), fx.Options{Seed: uint64(id)}))
	}
	h.srv.AddObserver(1, h.link)
	h.srv.Flush(1)
	// welcome, datablock, wind, then one update per ghost
	if n := len(h.link.out); n != 6 {
		t.Fatalf("sent %d payloads, want 6", n)
	}
	for _, p := range h.link.drain() {
		if _, err := h.cli.Handle(p); err != nil {
			t.Fatal(err)
		}
	}
	if h.cli.Len() != 3 {
		t.Fatalf("client has %d ghosts", h.cli.Len())
	}
}

func TestDatablockResentAfterLoss(t *testing.T) {
	h := newHarness(t, ServerOptions{AckTimeoutTicks: 2})
	h.srv.AddGhost(1, fx.NewEmitter(testConfig(), fx.Options{}))
	h.srv.AddObserver(1, h.link)
	// payload 1 is the datablock (0 is the welcome)
	h.step(1)
	if e := h.cli.Emitter(1); e == nil || e.Config() != nil {
		t.Fatal("ghost should exist without its datablock")
	}
	h.step()
	h.step()
	if h.cli.Emitter(1).Config() == nil {
		t.Fatal("datablock not resent and bound")
	}
}

func TestManyDatablocksFitFrames(t *testing.T) {
	for _, budget := range []int{0, 1 << 30} {
		t.Run(fmt.Sprintf("budget=%d", budget), func(t *testing.T) {
			h := newHarness(t, ServerOptions{BudgetBits: budget})
			for id := uint32(1); id <= 200; id++ {
				cfg := &fx.Config{
					Name:      fmt.Sprintf("block-%03d-%s", id, strings.Repeat("x", 64)),
					Defaults:  fx.DefaultParams(),
					Particles: []*fx.ParticleData{fx.NewParticleData(strings.Repeat("p", 200))},
				}
				cfg.Defaults.Particle.TextureName = strings.Repeat("t", 200)
				cfg.Validate()
				h.srv.AddGhost(id, fx.NewEmitter(cfg, fx.Options{Seed: uint64(id)}))
			}
			h.srv.AddObserver(1, h.link)
			h.srv.Flush(1)

			blocks := 0
			for _, p := range h.link.drain() {
				if len(p) > gonet.MaxFrame {
					t.Fatalf("opcode %d payload %d bytes > %d", p[0], len(p), gonet.MaxFrame)
				}
				if p[0] == packet.S_OPCODE_DATABLOCK {
					blocks++
				}
				if _, err := h.cli.Handle(p); err != nil {
					t.Fatal(err)
				}
			}
			if blocks < 2 {
				t.Fatalf("%d datablock packets, want the configs split", blocks)
			}
			if len(h.cli.configs) != 200 {
				t.Fatalf("client has %d datablocks, want 200", len(h.cli.configs))
			}
			for id := uint32(1); id <= 200; id++ {
				if h.cli.Emitter(id).Config() == nil {
					t.Fatalf("ghost %d has no datablock", id)
				}
			}
		})
	}
}

func TestOversizedDatablockIsClipped(t *testing.T) {
	core, logs := zapobserver.New(zap.WarnLevel)
	srv := NewServer(&fx.Wind{}, ServerOptions{}, zap.New(core))
	cli := NewClient(&fx.Wind{}, ClientOptions{}, zaptest.NewLogger(t))
	link := &captureSender{}

	cfg := &fx.Config{Name: "huge", Defaults: fx.DefaultParams()}
	for i := 0; i < 255; i++ {
		d := fx.NewParticleData(fmt.Sprintf("%03d%s", i, strings.Repeat("n", 240)))
		d.TextureName = strings.Repeat("t", 250)
		cfg.Particles = append(cfg.Particles, d)
	}
	cfg.Validate()
	srv.AddGhost(1, fx.NewEmitter(cfg, fx.Options{}))
	srv.AddObserver(1, link)
	srv.Flush(1)

	for _, p := range link.drain() {
		if len(p) > gonet.MaxFrame {
			t.Fatalf("opcode %d payload %d bytes > %d", p[0], len(p), gonet.MaxFrame)
		}
		if _, err := cli.Handle(p); err != nil {
			t.Fatal(err)
		}
	}
	got := cli.Emitter(1).Config()
	if got == nil {
		t.Fatal("datablock not delivered")
	}
	if n := len(got.Particles); n == 0 || n >= 255 {
		t.Fatalf("client got %d particle data records, want a clipped prefix", n)
	}
	if got.Particles[0].Name != cfg.Particles[0].Name {
		t.Fatalf("first record %q", got.Particles[0].Name)
	}
	if logs.FilterMessage("資料區塊超過單一封包上限，粒子資料已截斷").Len() != 1 {
		t.Fatal("clipping was not logged")
	}
}
