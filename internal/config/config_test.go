package config

import (
	"errors"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap/zapcore"
)

func TestParseOverridesDefaults(t *testing.T) {
	cfg, err := Parse([]byte(`
[network]
tick_rate = "20ms"
ack_timeout_ticks = 12

[[emitters]]
name = "torch"
datablock = "fire"
position = [1.0, 2.0, 3.0]
delete_when_empty = true
`))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Network.TickRate != 20*time.Millisecond || cfg.Network.TickMS() != 20 {
		t.Errorf("tick rate %s", cfg.Network.TickRate)
	}
	if cfg.Network.AckTimeoutTicks != 12 {
		t.Errorf("ack timeout %d", cfg.Network.AckTimeoutTicks)
	}
	// untouched sections keep their defaults
	if cfg.Network.PacketBudgetBits != 8*1400 || cfg.Simulation.MaxEmitPerStep != 1000 {
		t.Errorf("defaults lost: %+v %+v", cfg.Network, cfg.Simulation)
	}
	if len(cfg.Emitters) != 1 {
		t.Fatalf("%d emitters", len(cfg.Emitters))
	}
	e := cfg.Emitters[0]
	if e.Name != "torch" || e.DataBlock != "fire" || e.Position != [3]float32{1, 2, 3} || !e.DeleteWhenEmpty {
		t.Errorf("emitter %+v", e)
	}
}

func TestParseRejects(t *testing.T) {
	tests := []struct {
		name, src, want string
	}{
		{"zero tick", "[network]\ntick_rate = \"0s\"", "tick_rate"},
		{"transport", "[observer]\ntransport = \"udp\"", "transport"},
		{"report interval", "[observer]\nreport_interval = \"0s\"", "report_interval"},
		{"unnamed emitter", "[[emitters]]\ndatablock = \"fire\"", "missing name"},
		{"duplicate emitter", "[[emitters]]\nname = \"a\"\n[[emitters]]\nname = \"a\"", "duplicate"},
		{"non-big5 server name", "[server]\nname = \"Größe\"", "Big5"},
		{"non-big5 datablock", "[[emitters]]\nname = \"a\"\ndatablock = \"Größe\"", "Big5"},
		{"syntax", "[network", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src))
			if err == nil {
				t.Fatal("accepted")
			}
			if tt.want != "" && !strings.Contains(err.Error(), tt.want) {
				t.Errorf("error %q does not mention %q", err, tt.want)
			}
		})
	}
}

func TestLoadShippedConfig(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "..", "config", "meshfxd.toml"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Name == "" || len(cfg.Emitters) == 0 {
		t.Errorf("unexpected config %+v", cfg.Server)
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.toml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("err = %v", err)
	}
}

func TestNewLogger(t *testing.T) {
	for _, lc := range []LoggingConfig{
		{Level: "debug", Format: "console"},
		{Level: "warn", Format: "json"},
		{Level: "loud", Format: "console"},
	} {
		log, err := lc.NewLogger()
		if err != nil {
			t.Fatalf("%+v: %v", lc, err)
		}
		want := lc.Level != "warn"
		if got := log.Core().Enabled(zapcore.InfoLevel); got != want {
			t.Errorf("%+v: info enabled = %v", lc, got)
		}
	}
}
