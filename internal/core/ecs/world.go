package ecs

// World owns the entity pool, the registered component stores and a
// deferred destruction queue flushed once per tick by the cleanup system.
type World struct {
	pool         *EntityPool
	stores       []Removable
	destroyQueue []EntityID
	queued       map[EntityID]bool
	onDestroy    []func(EntityID)
}

func NewWorld() *World {
	return &World{
		pool:   NewEntityPool(),
		stores: make([]Removable, 0, 8),
		queued: make(map[EntityID]bool),
	}
}

func (w *World) Pool() *EntityPool { return w.pool }

// Register adds a component store that is cleared on destroy.
func (w *World) Register(store Removable) {
	w.stores = append(w.stores, store)
}

// OnDestroy 註冊實體銷毀時的回呼，在移除元件之前執行。
func (w *World) OnDestroy(fn func(EntityID)) {
	w.onDestroy = append(w.onDestroy, fn)
}

func (w *World) CreateEntity() EntityID { return w.pool.Create() }

func (w *World) Alive(id EntityID) bool { return w.pool.Alive(id) }

// MarkForDestruction 將實體排入 tick 結束時的清除佇列。重複排入無副作用。
func (w *World) MarkForDestruction(id EntityID) {
	if w.queued[id] || !w.pool.Alive(id) {
		return
	}
	w.queued[id] = true
	w.destroyQueue = append(w.destroyQueue, id)
}

// Pending 回傳等待清除的實體數。
func (w *World) Pending() int { return len(w.destroyQueue) }

// FlushDestroyQueue 銷毀所有排隊中的實體，回傳銷毀數量。
func (w *World) FlushDestroyQueue() int {
	n := 0
	for _, id := range w.destroyQueue {
		for _, fn := range w.onDestroy {
			fn(id)
		}
		for _, s := range w.stores {
			s.Remove(id)
		}
		if w.pool.Destroy(id) {
			n++
		}
		delete(w.queued, id)
	}
	w.destroyQueue = w.destroyQueue[:0]
	return n
}
