package system

import (
	"testing"
	"time"
)

type probe struct {
	phase Phase
	name  string
	log   *[]string
}

func (p probe) Phase() Phase { return p.phase }
func (p probe) Update(_ time.Duration) { *p.log = append(*p.log, p.name) }

func TestRunnerPhaseOrder(t *testing.T) {
	var log []string
	r := NewRunner()
	r.Register(probe{PhaseCleanup, "cleanup", &log})
	r.Register(probe{PhaseEmit, "emit", &log})
	r.Register(probe{PhaseSimulate, "simulate", &log})
	r.Register(probe{PhaseEmit, "emit2", &log})
	r.Register(probe{PhaseInput, "input", &log})

	r.Tick(time.Millisecond)
	want := []string{"input", "simulate", "emit", "emit2", "cleanup"}
	if len(log) != len(want) {
		t.Fatalf("ran %v", log)
	}
	for i := range want {
		if log[i] != want[i] {
			t.Fatalf("ran %v, want %v", log, want)
		}
	}

	log = log[:0]
	r.TickPhase(PhaseEmit, 0)
	if len(log) != 2 || log[0] != "emit" {
		t.Fatalf("TickPhase ran %v", log)
	}
}
