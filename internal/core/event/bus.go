package event

import (
	"reflect"
	"sync"
)

type envelope struct {
	t  reflect.Type
	ev any
}

// Bus 是雙緩衝事件匯流排。tick N 發出的事件在 tick N+1 依發出順序送達。
// SwapBuffers 與 DispatchAll 由事件派發系統在 tick 開始時執行。
type Bus struct {
	mu       sync.Mutex // only protects handler registration
	front    []envelope
	back     []envelope
	handlers map[reflect.Type][]func(any)
}

func NewBus() *Bus {
	return &Bus{handlers: make(map[reflect.Type][]func(any))}
}

func typeOf[T any]() reflect.Type { return reflect.TypeOf((*T)(nil)).Elem() }

// Emit 將事件放入後緩衝區，下一個 tick 才會送出。
func Emit[T any](b *Bus, event T) {
	b.back = append(b.back, envelope{t: typeOf[T](), ev: event})
}

// Subscribe registers a typed handler for events of type T.
func Subscribe[T any](b *Bus, fn func(T)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	t := typeOf[T]()
	b.handlers[t] = append(b.handlers[t], func(ev any) { fn(ev.(T)) })
}

// SwapBuffers 讓上一個 tick 的事件可被派發，並換上空的後緩衝區。
func (b *Bus) SwapBuffers() {
	b.front, b.back = b.back, b.front[:0]
}

// DispatchAll delivers the front buffer to subscribed handlers and returns
// the number of events delivered. Events emitted by handlers land in the
// back buffer.
func (b *Bus) DispatchAll() int {
	for _, e := range b.front {
		for _, h := range b.handlers[e.t] {
			h(e.ev)
		}
	}
	n := len(b.front)
	clear(b.front)
	b.front = b.front[:0]
	return n
}

// Pending 回傳等待下次交換的事件數。
func (b *Bus) Pending() int { return len(b.back) }
