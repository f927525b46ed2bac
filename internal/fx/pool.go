package fx

import "errors"

// ErrPoolExhausted is returned by Acquire when growing the pool would exceed
// its configured maximum capacity.
var ErrPoolExhausted = errors.New("particle pool exhausted")

// Handle encodes a 32-bit slot index in the lower bits and a 32-bit
// generation in the upper bits. Generation increments on release to
// invalidate stale handles. The zero Handle is never issued.
type Handle uint64

// NilHandle marks the end of the live list.
const NilHandle Handle = 0

func newHandle(index int32, generation uint32) Handle {
	return Handle(uint64(generation)<<32 | uint64(uint32(index)))
}

func (h Handle) index() int32 { return int32(uint32(h)) }
func (h Handle) generation() uint32 { return uint32(h >> 32) }

// IsNil reports whether h is the nil handle.
func (h Handle) IsNil() bool { return h == NilHandle }

const noSlot int32 = -1

type slot struct {
	part Particle
	gen  uint32
	live bool
	next int32 // live list successor, or freelist successor when free
	prev int32 // live list predecessor (noSlot when first)
}

// Pool is a block-allocated particle arena. Every slot is either on the
// freelist or on the live list. Blocks are never freed or moved, so growth
// does not invalidate *Particle pointers held for live handles.
//
// Not safe for concurrent use; a pool belongs to exactly one emitter.
type Pool struct {
	blocks    [][]slot
	blockSize int
	maxCap    int
	slots     int // slots across all blocks; only the last block may be short

	free     int32 // freelist head
	freeLen  int
	liveHead int32 // sentinel successor: first live slot
	n        int
}

// NewPool creates an empty pool that grows in blocks of blockSize slots.
// maxCapacity <= 0 means unbounded. A block never exceeds maxCapacity, and
// the last block is cut short so the pool can fill exactly to it.
func NewPool(blockSize, maxCapacity int) *Pool {
	if blockSize <= 0 {
		blockSize = 64
	}
	if maxCapacity > 0 && blockSize > maxCapacity {
		blockSize = maxCapacity
	}
	return &Pool{
		blockSize: blockSize,
		maxCap:    maxCapacity,
		free:      noSlot,
		liveHead:  noSlot,
	}
}

func (p *Pool) slot(i int32) *slot {
	return &p.blocks[int(i)/p.blockSize][int(i)%p.blockSize]
}

// grow 新增一個區塊並將其槽位推入 freelist。有上限時最後一塊可能較小。
func (p *Pool) grow() error {
	n := p.blockSize
	if p.maxCap > 0 {
		n = min(n, p.maxCap-p.slots)
	}
	if n <= 0 {
		return ErrPoolExhausted
	}
	base := int32(p.slots)
	block := make([]slot, n)
	p.blocks = append(p.blocks, block)
	// 反向推入，讓最小索引先被取出
	for i := n - 1; i >= 0; i-- {
		s := &block[i]
		s.gen = 1
		s.next = p.free
		s.prev = noSlot
		p.free = base + int32(i)
	}
	p.slots += n
	p.freeLen += n
	return nil
}

// Acquire 從 freelist 取出一個已清零的槽位，freelist 為空時先擴充一個區塊，
// 並把槽位接到存活串列的開頭。
func (p *Pool) Acquire() (Handle, *Particle, error) {
	if p.free == noSlot {
		if err := p.grow(); err != nil {
			return NilHandle, nil, err
		}
	}
	idx := p.free
	s := p.slot(idx)
	p.free = s.next
	p.freeLen--

	s.part = Particle{}
	s.live = true
	s.prev = noSlot
	s.next = p.liveHead
	if p.liveHead != noSlot {
		p.slot(p.liveHead).prev = idx
	}
	p.liveHead = idx
	p.n++
	return newHandle(idx, s.gen), &s.part, nil
}

// Release 將粒子從存活串列移除並歸還 freelist。
// 過期或空的 handle 直接忽略並回傳 false。
func (p *Pool) Release(h Handle) bool {
	s, idx := p.resolve(h)
	if s == nil {
		return false
	}
	if s.prev != noSlot {
		p.slot(s.prev).next = s.next
	} else {
		p.liveHead = s.next
	}
	if s.next != noSlot {
		p.slot(s.next).prev = s.prev
	}
	s.live = false
	s.gen++
	if s.gen == 0 {
		s.gen = 1
	}
	s.prev = noSlot
	s.next = p.free
	p.free = idx
	p.freeLen++
	p.n--
	return true
}

func (p *Pool) resolve(h Handle) (*slot, int32) {
	if h.IsNil() {
		return nil, noSlot
	}
	idx := h.index()
	if idx < 0 || int(idx) >= p.Cap() {
		return nil, noSlot
	}
	s := p.slot(idx)
	if !s.live || s.gen != h.generation() {
		return nil, noSlot
	}
	return s, idx
}

// Get returns the particle for a live handle, or nil.
func (p *Pool) Get(h Handle) *Particle {
	s, _ := p.resolve(h)
	if s == nil {
		return nil
	}
	return &s.part
}

// Head returns the first live handle, or NilHandle.
func (p *Pool) Head() Handle {
	if p.liveHead == noSlot {
		return NilHandle
	}
	return newHandle(p.liveHead, p.slot(p.liveHead).gen)
}

// Next returns the live handle after h. Capture it before releasing h.
func (p *Pool) Next(h Handle) Handle {
	s, _ := p.resolve(h)
	if s == nil || s.next == noSlot {
		return NilHandle
	}
	return newHandle(s.next, p.slot(s.next).gen)
}

// Walk visits every live particle in list order. fn may release the handle
// it is given; iteration stops early when fn returns false.
func (p *Pool) Walk(fn func(Handle, *Particle) bool) {
	for idx := p.liveHead; idx != noSlot; {
		s := p.slot(idx)
		next := s.next
		if !fn(newHandle(idx, s.gen), &s.part) {
			return
		}
		idx = next
	}
}

// Clear 釋放所有存活粒子。
func (p *Pool) Clear() {
	p.Walk(func(h Handle, _ *Particle) bool {
		p.Release(h)
		return true
	})
}

// Len returns the number of live particles.
func (p *Pool) Len() int { return p.n }

// Cap returns the total number of slots allocated across all blocks.
func (p *Pool) Cap() int { return p.slots }

// FreeLen returns the number of slots on the freelist.
func (p *Pool) FreeLen() int { return p.freeLen }

// BlockSize returns the growth increment.
func (p *Pool) BlockSize() int { return p.blockSize }

// countLive 走訪存活串列，用於驗證計數。
func (p *Pool) countLive() int {
	n := 0
	for idx := p.liveHead; idx != noSlot; idx = p.slot(idx).next {
		n++
	}
	return n
}

// countFree walks the freelist.
func (p *Pool) countFree() int {
	n := 0
	for idx := p.free; idx != noSlot; idx = p.slot(idx).next {
		n++
	}
	return n
}
