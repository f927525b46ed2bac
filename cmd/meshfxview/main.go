// meshfxview is a headless observer: it connects to meshfxd, rebuilds the
// replicated emitters locally and reports what it would render.
package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/config"
	"github.com/l1jgo/meshfx/internal/data"
	"github.com/l1jgo/meshfx/internal/fx"
	gonet "github.com/l1jgo/meshfx/internal/net"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"github.com/l1jgo/meshfx/internal/net/ws"
	"github.com/l1jgo/meshfx/internal/replication"
	"go.uber.org/zap"
	"gonum.org/v1/gonum/stat"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	cfgPath := "config/meshfxd.toml"
	if p := os.Getenv("MESHFX_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log, err := cfg.Logging.NewLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	// Mesh shapes are not replicated; the local catalog supplies them.
	opts := replication.ClientOptions{
		Emitter: fx.Options{
			BlockSize:      cfg.Simulation.PoolBlockSize,
			MaxCapacity:    cfg.Simulation.PoolMaxCapacity,
			MaxEmitPerStep: cfg.Simulation.MaxEmitPerStep,
			MaxVertices:    cfg.Simulation.MaxVertices,
		},
	}
	if catalog, err := data.LoadCatalog(cfg.Catalog.Path); err != nil {
		log.Warn("本地資料表載入失敗，網格發射將退回原點", zap.Error(err))
	} else {
		opts.Samplers = catalog.Sampler
	}

	conn, err := dial(cfg.Observer)
	if err != nil {
		return err
	}
	defer conn.Close()
	log.Info("已連線伺服器",
		zap.String("addr", cfg.Observer.ServerAddress),
		zap.String("transport", cfg.Observer.Transport))

	frames := make(chan []byte, 256)
	readErr := make(chan error, 1)
	go func() {
		for {
			p, err := conn.ReadFrame()
			if err != nil {
				readErr <- err
				return
			}
			frames <- p
		}
	}()

	send := func(w *packet.Writer) error {
		return conn.WriteFrame(w.Bytes(), time.Now().Add(cfg.Network.WriteTimeout))
	}
	hello := packet.NewWriterWithOpcode(packet.C_OPCODE_HELLO)
	hello.WriteS(cfg.Observer.Name)
	hello.WriteH(packet.ProtocolVersion)
	if err := send(hello); err != nil {
		return fmt.Errorf("send hello: %w", err)
	}

	client := replication.NewClient(nil, opts, log)
	view := fx.NewView(mgl32.Vec3(cfg.Observer.Camera), mgl32.Vec3(cfg.Observer.Target), mgl32.Vec3{0, 0, 1})

	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	// The server's tick is unknown until WELCOME arrives.
	tickMS := cfg.Network.TickMS()
	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()
	report := time.NewTicker(cfg.Observer.ReportInterval)
	defer report.Stop()

	var last renderStats
	for {
		select {
		case p := <-frames:
			seq, err := client.Handle(p)
			if err != nil {
				log.Warn("更新封包解析失敗", zap.Uint32("seq", seq), zap.Error(err))
				if seq == 0 {
					continue
				}
				// 要求伺服器立即重送，不必等待確認逾時
				nack := packet.NewWriterWithOpcode(packet.C_OPCODE_NACK)
				nack.WriteDU(seq)
				if err := send(nack); err != nil {
					return fmt.Errorf("send nack: %w", err)
				}
				continue
			}
			if client.Closed != "" {
				log.Info("伺服器要求斷線", zap.String("reason", client.Closed))
				return nil
			}
			if p[0] == packet.S_OPCODE_WELCOME && client.TickMS > 0 && uint32(client.TickMS) != tickMS {
				tickMS = uint32(client.TickMS)
				ticker.Reset(time.Duration(tickMS) * time.Millisecond)
				log.Info("伺服器歡迎",
					zap.String("server", client.ServerName),
					zap.Uint32("tick_ms", tickMS))
			}
			ack := packet.NewWriterWithOpcode(packet.C_OPCODE_ACK)
			ack.WriteDU(seq)
			if err := send(ack); err != nil {
				return fmt.Errorf("send ack: %w", err)
			}

		case <-ticker.C:
			client.Tick(tickMS)
			last = render(client, view, log)

		case <-report.C:
			wind := client.Wind()
			log.Info("觀察者狀態",
				zap.Int("emitters", client.Len()),
				zap.Int("particles", last.particles),
				zap.Int("quads", last.quads),
				zap.Float64("quads_mean", last.mean),
				zap.Float64("quads_std", last.std),
				zap.Float32s("wind", wind[:]))

		case err := <-readErr:
			if errors.Is(err, net.ErrClosed) {
				return nil
			}
			return fmt.Errorf("connection lost: %w", err)

		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			bye := packet.NewWriterWithOpcode(packet.C_OPCODE_BYE)
			if err := send(bye); err != nil {
				log.Debug("離線封包送出失敗", zap.Error(err))
			}
			return nil
		}
	}
}

func dial(oc config.ObserverConfig) (gonet.FrameConn, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if oc.Transport == "ws" {
		c, err := ws.Dial(ctx, "ws://"+oc.ServerAddress+"/ws")
		if err != nil {
			return nil, fmt.Errorf("dial ws %s: %w", oc.ServerAddress, err)
		}
		return c, nil
	}
	var d net.Dialer
	c, err := d.DialContext(ctx, "tcp", oc.ServerAddress)
	if err != nil {
		return nil, fmt.Errorf("dial tcp %s: %w", oc.ServerAddress, err)
	}
	return gonet.NewTCPConn(c, 0), nil
}

type renderStats struct {
	particles int
	quads     int
	mean, std float64
}

// render builds vertex batches for every emitter the way a renderer would
// each frame and summarizes them.
func render(client *replication.Client, view fx.View, log *zap.Logger) renderStats {
	var rs renderStats
	perEmitter := make([]float64, 0, client.Len())
	for _, id := range client.IDs() {
		e := client.Emitter(id)
		rs.particles += e.Count()
		b, err := e.BuildVertices(view)
		if err != nil {
			log.Debug("頂點建立失敗", zap.Uint32("ghost", id), zap.Error(err))
			continue
		}
		rs.quads += b.Quads
		perEmitter = append(perEmitter, float64(b.Quads))
	}
	switch len(perEmitter) {
	case 0:
	case 1:
		rs.mean = perEmitter[0]
	default:
		rs.mean, rs.std = stat.MeanStdDev(perEmitter, nil)
	}
	return rs
}
