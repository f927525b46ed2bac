package system

import "time"

// Phase 定義單一 tick 內的執行順序。
type Phase int

const (
	PhaseInput     Phase = iota // 0: drain observer packet queues
	PhasePreUpdate              // 1: deliver last tick's events, run hooks
	PhaseSimulate               // 2: advance live particles
	PhaseEmit                   // 3: spawn new particles at host transforms
	PhaseOutput                 // 4: replicate dirty emitters, flush sessions
	PhasePersist                // 5: periodic snapshot to the database
	PhaseCleanup                // 6: destroy queued emitters
)

func (p Phase) String() string {
	switch p {
	case PhaseInput:
		return "input"
	case PhasePreUpdate:
		return "pre-update"
	case PhaseSimulate:
		return "simulate"
	case PhaseEmit:
		return "emit"
	case PhaseOutput:
		return "output"
	case PhasePersist:
		return "persist"
	case PhaseCleanup:
		return "cleanup"
	default:
		return "unknown"
	}
}

// System is the interface every frame system implements.
type System interface {
	Phase() Phase
	Update(dt time.Duration)
}
