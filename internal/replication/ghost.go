package replication

import "github.com/l1jgo/meshfx/internal/fx"

// BitState is the delivery state of one mask bit for one observer.
type BitState uint8

const (
	BitClean    BitState = iota
	BitPending           // dirty, waiting for the next send
	BitAwaiting          // sent, waiting for an ack
)

func (s BitState) String() string {
	switch s {
	case BitClean:
		return "clean"
	case BitPending:
		return "pending"
	case BitAwaiting:
		return "awaiting"
	default:
		return "unknown"
	}
}

// removeMask rides alongside the group bits to carry ghost removal through
// the same retry machinery. It never goes on the wire as a group.
const removeMask fx.Mask = 1 << 31

type flight struct {
	mask fx.Mask
	tick uint64
}

// Ghost 追蹤某個觀察者對某個發射器還缺哪些資料。
// 位元在放入封包時清除，封包遺失時重新設定，重送時帶的是最新的值。
type Ghost struct {
	ID       uint32
	dirty    fx.Mask
	inflight map[uint32]flight
}

// NewGhost 一開始所有群組皆為髒，觀察者會收到完整副本。
func NewGhost(id uint32) *Ghost {
	return &Ghost{ID: id, dirty: fx.FullMask, inflight: make(map[uint32]flight)}
}

func (g *Ghost) MarkDirty(m fx.Mask) { g.dirty |= m }

// MarkRemove queues a removal; pending group bits are dropped.
func (g *Ghost) MarkRemove() { g.dirty = removeMask }

// Removing reports whether a removal is queued or in flight.
func (g *Ghost) Removing() bool {
	if g.dirty&removeMask != 0 {
		return true
	}
	for _, f := range g.inflight {
		if f.mask&removeMask != 0 {
			return true
		}
	}
	return false
}

// Pending returns the bits waiting to be sent.
func (g *Ghost) Pending() fx.Mask { return g.dirty }

// Take clears and returns the pending bits, recording them as sent in seq.
func (g *Ghost) Take(seq uint32, tick uint64) fx.Mask {
	m := g.dirty
	g.dirty = 0
	if m != 0 {
		g.inflight[seq] = flight{mask: m, tick: tick}
	}
	return m
}

// Ack confirms delivery of seq. It reports whether seq carried a removal.
func (g *Ghost) Ack(seq uint32) (removed bool) {
	f, ok := g.inflight[seq]
	if !ok {
		return false
	}
	delete(g.inflight, seq)
	return f.mask&removeMask != 0
}

// Nack 將 seq 送出的位元放回待送。
func (g *Ghost) Nack(seq uint32) {
	f, ok := g.inflight[seq]
	if !ok {
		return
	}
	delete(g.inflight, seq)
	if g.Removing() {
		return
	}
	if f.mask&removeMask != 0 {
		g.dirty = removeMask
		return
	}
	g.dirty |= f.mask
}

// Expire 將送出超過 timeout 個 tick 仍未確認的封包視為遺失。
func (g *Ghost) Expire(tick, timeout uint64) {
	for seq, f := range g.inflight {
		if tick-f.tick >= timeout {
			g.Nack(seq)
		}
	}
}

// BitState reports the delivery state of a single group bit.
func (g *Ghost) BitState(bit fx.Mask) BitState {
	if g.dirty&bit != 0 {
		return BitPending
	}
	for _, f := range g.inflight {
		if f.mask&bit != 0 {
			return BitAwaiting
		}
	}
	return BitClean
}
