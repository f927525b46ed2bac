package fx

import (
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// Wind is a shared wind velocity. It is the only state shared across
// emitters, so reads and writes are guarded.
type Wind struct {
	mu sync.RWMutex
	v  mgl32.Vec3
}

// Set 更新風速，發射器在下次 Advance 時套用。
func (w *Wind) Set(v mgl32.Vec3) {
	w.mu.Lock()
	w.v = v
	w.mu.Unlock()
}

// Velocity returns the current wind velocity.
func (w *Wind) Velocity() mgl32.Vec3 {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.v
}

var processWind Wind

// ProcessWind returns the process-wide wind used by emitters that were not
// given their own.
func ProcessWind() *Wind { return &processWind }
