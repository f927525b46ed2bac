package system

import (
	"cmp"
	"slices"
	"time"
)

// Runner 每個 tick 依 Phase 順序執行 System。
// 同一 Phase 內依註冊順序執行。
type Runner struct {
	systems []System
	sorted  bool
}

func NewRunner() *Runner {
	return &Runner{systems: make([]System, 0, 8)}
}

func (r *Runner) Register(s System) {
	r.systems = append(r.systems, s)
	r.sorted = false
}

func (r *Runner) Tick(dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		s.Update(dt)
	}
}

// TickPhase 只執行指定 Phase 的 System。
// 用於高頻輸入輪詢：在兩次完整 tick 之間只跑 Phase 0，
// 讓 ack 更早回到同步層，縮短重送判斷的延遲。
func (r *Runner) TickPhase(phase Phase, dt time.Duration) {
	r.ensureSorted()
	for _, s := range r.systems {
		if s.Phase() == phase {
			s.Update(dt)
		}
	}
}

func (r *Runner) ensureSorted() {
	if r.sorted {
		return
	}
	slices.SortStableFunc(r.systems, func(a, b System) int {
		return cmp.Compare(a.Phase(), b.Phase())
	})
	r.sorted = true
}
