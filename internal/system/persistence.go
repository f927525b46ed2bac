package system

import (
	"context"
	"time"

	"github.com/l1jgo/meshfx/internal/core/event"
	coresys "github.com/l1jgo/meshfx/internal/core/system"
	"github.com/l1jgo/meshfx/internal/persist"
	"github.com/l1jgo/meshfx/internal/world"
	"go.uber.org/zap"
)

// SceneStore is the storage the persistence system writes to.
// Implemented by persist.SceneRepo.
type SceneStore interface {
	SaveEmitters(ctx context.Context, rows []persist.EmitterRow) error
	DeleteEmitters(ctx context.Context, names []string) error
	SaveWind(ctx context.Context, v [3]float32) error
}

// PersistenceSystem 定期將有變動的發射器與風向量存入資料庫。
// Phase 5 (Persist)。
type PersistenceSystem struct {
	world     *world.State
	store     SceneStore
	log       *zap.Logger
	tickCount int
	interval  int // save every N ticks

	removed   []string
	windDirty bool
}

func NewPersistenceSystem(ws *world.State, store SceneStore, bus *event.Bus, log *zap.Logger, intervalTicks int) *PersistenceSystem {
	if intervalTicks <= 0 {
		intervalTicks = 1
	}
	s := &PersistenceSystem{
		world:    ws,
		store:    store,
		log:      log,
		interval: intervalTicks,
	}
	event.Subscribe(bus, func(ev event.EmitterDestroyed) {
		s.removed = append(s.removed, ev.Name)
	})
	event.Subscribe(bus, func(event.WindChanged) {
		s.windDirty = true
	})
	return s
}

func (s *PersistenceSystem) Phase() coresys.Phase { return coresys.PhasePersist }

func (s *PersistenceSystem) Update(_ time.Duration) {
	s.tickCount++
	if s.tickCount < s.interval {
		return
	}
	s.tickCount = 0
	s.save(true)
}

// SaveAll 不論髒旗標，寫入所有發射器與風向量。
// 正常關機時呼叫。
func (s *PersistenceSystem) SaveAll() {
	s.windDirty = true
	s.save(false)
}

// save 先處理刪除，銷毀後重用的名稱才會保留新的資料列。
func (s *PersistenceSystem) save(dirtyOnly bool) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if len(s.removed) > 0 {
		if err := s.store.DeleteEmitters(ctx, s.removed); err != nil {
			s.log.Error("刪除發射器存檔失敗", zap.Strings("names", s.removed), zap.Error(err))
			return
		}
		s.removed = s.removed[:0]
	}

	var rows []persist.EmitterRow
	var saved []*world.Instance
	s.world.Each(func(inst *world.Instance) {
		if dirtyOnly && !inst.Dirty {
			return
		}
		rows = append(rows, Snapshot(inst))
		saved = append(saved, inst)
	})
	if len(rows) > 0 {
		if err := s.store.SaveEmitters(ctx, rows); err != nil {
			s.log.Error("自動存檔發射器失敗", zap.Int("count", len(rows)), zap.Error(err))
			return
		}
		for _, inst := range saved {
			inst.Dirty = false
		}
	}

	if s.windDirty {
		v := s.world.Wind().Velocity()
		if err := s.store.SaveWind(ctx, v); err != nil {
			s.log.Error("風向存檔失敗", zap.Error(err))
			return
		}
		s.windDirty = false
	}

	if len(rows) > 0 {
		s.log.Debug("場景已存檔", zap.Int("emitters", len(rows)))
	}
}
