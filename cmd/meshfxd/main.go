package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/config"
	"github.com/l1jgo/meshfx/internal/core/ecs"
	"github.com/l1jgo/meshfx/internal/core/event"
	coresys "github.com/l1jgo/meshfx/internal/core/system"
	"github.com/l1jgo/meshfx/internal/data"
	"github.com/l1jgo/meshfx/internal/fx"
	"github.com/l1jgo/meshfx/internal/handler"
	gonet "github.com/l1jgo/meshfx/internal/net"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"github.com/l1jgo/meshfx/internal/net/ws"
	"github.com/l1jgo/meshfx/internal/persist"
	"github.com/l1jgo/meshfx/internal/replication"
	"github.com/l1jgo/meshfx/internal/scripting"
	"github.com/l1jgo/meshfx/internal/system"
	"github.com/l1jgo/meshfx/internal/world"
	"go.uber.org/zap"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m              meshfx  v0.1.0               \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m      網格粒子發射器 · 同步伺服器          \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1m伺服器:\033[0m %s \033[90m(編號: %d)\033[0m\n\n", serverName, serverID)
}

// displayWidth counts CJK runes as two columns.
func displayWidth(s string) int {
	w := 0
	for _, r := range s {
		if r > 0x7F {
			w += 2
		} else {
			w++
		}
	}
	return w
}

func printSection(title string) {
	lineLen := max(46-displayWidth(title)-1, 3)
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := max(42-displayWidth(label)-len(numStr), 3)
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printWarn(msg string) {
	fmt.Printf("  \033[33m!\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/meshfxd.toml"
	if p := os.Getenv("MESHFX_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// 2. Init logger
	log, err := cfg.Logging.NewLogger()
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Emitter catalog
	printSection("資料表")
	catalog, err := data.LoadCatalog(cfg.Catalog.Path)
	if err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	printStat("發射器資料區塊", catalog.Count())
	for _, w := range catalog.Warnings {
		log.Warn("資料區塊設定已修正", zap.String("reason", w))
	}
	if n := len(catalog.Warnings); n > 0 {
		printWarn(fmt.Sprintf("%d 項設定已自動修正", n))
	}
	fmt.Println()

	// 4. Optional PostgreSQL snapshots
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var scene *persist.SceneRepo
	var stored []persist.EmitterRow
	wind := fx.ProcessWind()
	if cfg.Database.Enabled {
		printSection("資料庫")
		db, err := persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL 連線成功")

		version, err := persist.RunMigrations(ctx, db)
		if err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK(fmt.Sprintf("資料庫遷移完成 (版本 %d)", version))

		scene = persist.NewSceneRepo(db)
		if stored, err = scene.LoadEmitters(ctx); err != nil {
			return fmt.Errorf("load emitters: %w", err)
		}
		v, ok, err := scene.LoadWind(ctx)
		if err != nil {
			return fmt.Errorf("load wind: %w", err)
		}
		if ok {
			wind.Set(mgl32.Vec3(v))
		}
		printStat("已存檔發射器", len(stored))
		fmt.Println()
	}

	// 5. World
	ecsWorld := ecs.NewWorld()
	bus := event.NewBus()
	template := fx.Options{
		BlockSize:      cfg.Simulation.PoolBlockSize,
		MaxCapacity:    cfg.Simulation.PoolMaxCapacity,
		MaxEmitPerStep: cfg.Simulation.MaxEmitPerStep,
		MaxVertices:    cfg.Simulation.MaxVertices,
	}
	worldState := world.NewState(ecsWorld, bus, catalog, wind, template, cfg.Simulation.Seed, log)
	repl := replication.NewServer(wind, replication.ServerOptions{
		Name:            cfg.Server.Name,
		TickMS:          uint16(cfg.Network.TickMS()),
		BudgetBits:      cfg.Network.PacketBudgetBits,
		AckTimeoutTicks: cfg.Network.AckTimeoutTicks,
	}, log)

	printSection("場景")
	spawned := 0
	for _, spec := range system.MergeScene(cfg.Emitters, stored) {
		if _, err := worldState.Spawn(spec); err != nil {
			log.Error("發射器生成失敗", zap.String("emitter", spec.Name), zap.Error(err))
			continue
		}
		spawned++
	}
	printStat("發射器", spawned)

	// 6. Scripting
	var engine *scripting.Engine
	if cfg.Scripting.Enabled {
		engine, err = scripting.NewEngine(cfg.Scripting.Dir, worldState, bus, log)
		if err != nil {
			return fmt.Errorf("scripting: %w", err)
		}
		defer engine.Close()
		printOK("Lua 腳本已載入")
	}
	fmt.Println()

	// 7. Packet handlers
	pktReg := packet.NewRegistry(log)
	handler.RegisterAll(pktReg, &handler.Deps{
		Config:      cfg,
		Log:         log,
		World:       worldState,
		Replication: repl,
		Bus:         bus,
	})

	// 8. Network
	sessOpts := gonet.SessionOptions{
		InQueueSize:  cfg.Network.InQueueSize,
		OutQueueSize: cfg.Network.OutQueueSize,
		WriteTimeout: cfg.Network.WriteTimeout,
	}
	if cfg.RateLimit.Enabled {
		sessOpts.PktPerSec = cfg.RateLimit.PacketsPerSecond
	}
	netServer, err := gonet.NewServer(cfg.Network.BindAddress, sessOpts, cfg.Network.ReadTimeout, log)
	if err != nil {
		return fmt.Errorf("net server: %w", err)
	}
	go netServer.AcceptLoop()

	var httpServer *http.Server
	if cfg.Network.WSAddress != "" {
		mux := http.NewServeMux()
		mux.Handle("/ws", ws.NewHandler(netServer, cfg.Network.ReadTimeout, log))
		httpServer = &http.Server{
			Addr:              cfg.Network.WSAddress,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		}
		go func() {
			if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("websocket 伺服器停止", zap.Error(err))
			}
		}()
	}

	// 9. Systems
	store := gonet.NewSessionStore()
	runner := coresys.NewRunner()
	runner.Register(system.NewInputSystem(netServer, pktReg, store, worldState, repl, bus, cfg.Network.MaxPacketsPerTick, log))
	runner.Register(system.NewEventSystem(bus))
	if engine != nil {
		runner.Register(system.NewScriptSystem(engine))
	}
	runner.Register(system.NewSimulateSystem(worldState, bus, log))
	runner.Register(system.NewEmitSystem(worldState, repl))
	runner.Register(system.NewOutputSystem(repl, store, worldState, bus, log))
	var persistSys *system.PersistenceSystem
	if scene != nil {
		every := int(cfg.Database.SaveInterval / cfg.Network.TickRate)
		persistSys = system.NewPersistenceSystem(worldState, scene, bus, log, every)
		runner.Register(persistSys)
	}
	runner.Register(system.NewCleanupSystem(ecsWorld, log))

	event.Subscribe(bus, func(ev event.ConfigWarning) {
		log.Debug("發射器設定警告事件", zap.String("emitter", ev.Name), zap.String("reason", ev.Reason))
	})

	// 10. Game loop
	shutdownCh := make(chan os.Signal, 1)
	signal.Notify(shutdownCh, syscall.SIGINT, syscall.SIGTERM)

	ticker := time.NewTicker(cfg.Network.TickRate)
	defer ticker.Stop()

	// Polling input between ticks gets acks back to replication sooner.
	var pollC <-chan time.Time
	if cfg.Network.InputPoll > 0 && cfg.Network.InputPoll < cfg.Network.TickRate {
		poll := time.NewTicker(cfg.Network.InputPoll)
		defer poll.Stop()
		pollC = poll.C
	}

	printSection("伺服器就緒")
	printReady(fmt.Sprintf("監聽位址 %s", netServer.Addr().String()))
	if httpServer != nil {
		printReady(fmt.Sprintf("WebSocket 位址 ws://%s/ws", cfg.Network.WSAddress))
	}
	printReady(fmt.Sprintf("遊戲迴圈啟動 (tick: %s)", cfg.Network.TickRate))
	fmt.Println()

	for {
		select {
		case <-ticker.C:
			runner.Tick(cfg.Network.TickRate)
		case <-pollC:
			runner.TickPhase(coresys.PhaseInput, 0)
		case sig := <-shutdownCh:
			log.Info("收到關閉信號", zap.String("signal", sig.String()))
			if persistSys != nil {
				persistSys.SaveAll()
			}
			netServer.Shutdown()
			if httpServer != nil {
				shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
				httpServer.Shutdown(shutCtx)
				shutCancel()
			}
			log.Info("伺服器已停止")
			return nil
		}
	}
}
