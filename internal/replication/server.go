package replication

import (
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/fx"
	gonet "github.com/l1jgo/meshfx/internal/net"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"go.uber.org/zap"
)

// Sender delivers one payload to an observer. Implemented by net.Session.
type Sender interface {
	Send(data []byte)
}

// ServerOptions tune the authoritative side.
type ServerOptions struct {
	Name            string // reported in S_WELCOME
	TickMS          uint16
	BudgetBits      int    // soft cap on ghost bits per update packet
	AckTimeoutTicks uint64 // unacked packets older than this are lost
}

// record 記錄單一封包帶了什麼，遺失時才能重新標髒。
type record struct {
	tick   uint64
	ghosts []uint32
	blocks []string
	wind   bool
}

type observer struct {
	id     uint64
	out    Sender
	seq    uint32
	ghosts map[uint32]*Ghost
	blocks map[string]bool // datablocks sent or in flight

	windDirty bool
	pending   map[uint32]record
	log       *zap.Logger
}

func (o *observer) nextSeq() uint32 {
	o.seq++
	return o.seq
}

// Server 將發射器同步給觀察者。僅限遊戲迴圈呼叫。
type Server struct {
	sources   map[uint32]*fx.Emitter
	observers map[uint64]*observer
	wind      *fx.Wind
	lastWind  mgl32.Vec3
	opts      ServerOptions
	log       *zap.Logger
}

func NewServer(wind *fx.Wind, opts ServerOptions, log *zap.Logger) *Server {
	if wind == nil {
		wind = fx.ProcessWind()
	}
	if opts.BudgetBits <= 0 {
		opts.BudgetBits = 8 * 1400
	}
	// 預算是軟上限，需預留跨越預算的那個 ghost 的空間
	opts.BudgetBits = min(opts.BudgetBits, datablockBits-maxGhostBits)
	if opts.AckTimeoutTicks == 0 {
		opts.AckTimeoutTicks = 30
	}
	return &Server{
		sources:   make(map[uint32]*fx.Emitter),
		observers: make(map[uint64]*observer),
		wind:      wind,
		lastWind:  wind.Velocity(),
		opts:      opts,
		log:       log,
	}
}

// AddGhost starts replicating e under id to every observer.
func (s *Server) AddGhost(id uint32, e *fx.Emitter) {
	s.sources[id] = e
	for _, o := range s.observers {
		o.ghosts[id] = NewGhost(id)
	}
}

// MarkDirty queues groups of ghost id for every observer.
func (s *Server) MarkDirty(id uint32, m fx.Mask) {
	if m == 0 {
		return
	}
	for _, o := range s.observers {
		if g, ok := o.ghosts[id]; ok && !g.Removing() {
			g.MarkDirty(m)
		}
	}
}

// RemoveGhost stops replicating id and tells observers to drop it.
func (s *Server) RemoveGhost(id uint32) {
	delete(s.sources, id)
	for _, o := range s.observers {
		if g, ok := o.ghosts[id]; ok {
			g.MarkRemove()
		}
	}
}

// AddObserver registers a synced observer, greets it and queues a full
// copy of every ghost.
func (s *Server) AddObserver(id uint64, out Sender) {
	o := &observer{
		id:        id,
		out:       out,
		ghosts:    make(map[uint32]*Ghost, len(s.sources)),
		blocks:    make(map[string]bool),
		windDirty: true,
		pending:   make(map[uint32]record),
		log:       s.log.With(zap.Uint64("observer", id)),
	}
	for gid := range s.sources {
		o.ghosts[gid] = NewGhost(gid)
	}
	s.observers[id] = o

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_WELCOME)
	w.WriteDU(o.nextSeq())
	w.WriteS(s.opts.Name)
	w.WriteH(s.opts.TickMS)
	out.Send(w.Bytes())
}

func (s *Server) RemoveObserver(id uint64) {
	delete(s.observers, id)
}

func (s *Server) Observers() int { return len(s.observers) }

// Ghost returns the delivery state of ghost gid for observer oid, or nil.
func (s *Server) Ghost(oid uint64, gid uint32) *Ghost {
	o, ok := s.observers[oid]
	if !ok {
		return nil
	}
	return o.ghosts[gid]
}

// HandleAck confirms delivery of one packet.
func (s *Server) HandleAck(oid uint64, seq uint32) {
	o, ok := s.observers[oid]
	if !ok {
		return
	}
	rec, ok := o.pending[seq]
	if !ok {
		return
	}
	delete(o.pending, seq)
	for _, gid := range rec.ghosts {
		g, ok := o.ghosts[gid]
		if ok && g.Ack(seq) {
			delete(o.ghosts, gid)
		}
	}
}

// HandleNack 立即將該封包視為遺失。
func (s *Server) HandleNack(oid uint64, seq uint32) {
	if o, ok := s.observers[oid]; ok {
		o.lost(seq)
	}
}

func (o *observer) lost(seq uint32) {
	rec, ok := o.pending[seq]
	if !ok {
		return
	}
	delete(o.pending, seq)
	for _, gid := range rec.ghosts {
		if g, ok := o.ghosts[gid]; ok {
			g.Nack(seq)
		}
	}
	for _, name := range rec.blocks {
		delete(o.blocks, name)
	}
	if rec.wind {
		o.windDirty = true
	}
}

// Flush 處理逾時封包，並送出每個觀察者缺少的內容：
// 先資料區塊，再風向，最後 ghost 更新。
func (s *Server) Flush(tick uint64) {
	if v := s.wind.Velocity(); v != s.lastWind {
		s.lastWind = v
		for _, o := range s.observers {
			o.windDirty = true
		}
	}
	for _, o := range s.observers {
		for seq, rec := range o.pending {
			if tick-rec.tick >= s.opts.AckTimeoutTicks {
				o.log.Debug("封包逾時未確認，重新排程", zap.Uint32("seq", seq))
				o.lost(seq)
			}
		}
		s.flushObserver(o, tick)
	}
}

func (s *Server) flushObserver(o *observer, tick uint64) {
	all := make([]uint32, 0, len(o.ghosts))
	for gid := range o.ghosts {
		all = append(all, gid)
	}
	slices.Sort(all)

	// 資料區塊對所有存活 ghost 檢查，不只髒的
	var blocks []*fx.Config
	ids := make([]uint32, 0, len(all))
	for _, gid := range all {
		g := o.ghosts[gid]
		if g.Pending() != 0 {
			ids = append(ids, gid)
		}
		src := s.sources[gid]
		if src == nil || g.Removing() {
			continue
		}
		cfg := src.Config()
		if cfg == nil || o.blocks[cfg.Name] {
			continue
		}
		o.blocks[cfg.Name] = true
		blocks = append(blocks, cfg)
	}
	if len(blocks) > 0 {
		s.sendDatablocks(o, blocks, tick)
	}

	if o.windDirty {
		o.windDirty = false
		seq := o.nextSeq()
		v := s.lastWind
		w := packet.NewWriterWithOpcode(packet.S_OPCODE_WIND)
		w.WriteDU(seq)
		w.WriteF(v.X())
		w.WriteF(v.Y())
		w.WriteF(v.Z())
		o.pending[seq] = record{tick: tick, wind: true}
		o.out.Send(w.Bytes())
	}

	for len(ids) > 0 {
		ids = s.sendGhosts(o, ids, tick)
	}
}

// datablockBits is the most bitstream a datablock packet can carry and still
// fit one frame after its opcode and sequence number.
const datablockBits = (gonet.MaxFrame - 5) * 8

// maxBlocksPerPacket is what the 8-bit count field holds.
const maxBlocksPerPacket = 255

// maxGhostBits bounds one fully dirty ghost: five 255-byte strings plus the
// numeric fields stay well under it.
const maxGhostBits = 4096 * 8

// sendDatablocks packs configs into as few packets as the budget allows. A
// config that would push a packet past one frame starts the next packet; a
// config too big for a frame of its own loses its trailing particle data.
func (s *Server) sendDatablocks(o *observer, blocks []*fx.Config, tick uint64) {
	for len(blocks) > 0 {
		seq := o.nextSeq()
		bw := packet.NewBitWriter()
		bw.WriteBits(0, 8)
		rec := record{tick: tick}
		written := 0
		for _, cfg := range blocks {
			if written > 0 && (bw.BitLen() >= s.opts.BudgetBits || written == maxBlocksPerPacket) {
				break
			}
			mark := bw.BitLen()
			kept := packConfig(bw, cfg, datablockBits)
			whole := kept == min(len(cfg.Particles), maxParticleData)
			if written > 0 && (!whole || bw.BitLen() > datablockBits) {
				bw.Truncate(mark)
				break
			}
			if !whole {
				o.log.Warn("資料區塊超過單一封包上限，粒子資料已截斷",
					zap.String("datablock", cfg.Name),
					zap.Int("kept", kept),
					zap.Int("total", len(cfg.Particles)),
				)
			}
			written++
			rec.blocks = append(rec.blocks, cfg.Name)
		}
		bw.PatchBits(0, uint64(written), 8)

		w := packet.NewWriterWithOpcode(packet.S_OPCODE_DATABLOCK)
		w.WriteDU(seq)
		w.WriteBits(bw)
		o.pending[seq] = rec
		o.out.Send(w.Bytes())
		o.log.Debug("送出資料區塊", zap.Int("count", written), zap.Int("bytes", w.Len()), zap.Uint32("seq", seq))
		blocks = blocks[written:]
	}
}

// sendGhosts writes one update packet and returns the ids that did not fit.
func (s *Server) sendGhosts(o *observer, ids []uint32, tick uint64) []uint32 {
	seq := o.nextSeq()
	bw := packet.NewBitWriter()
	bw.WriteBits(0, 16)
	rec := record{tick: tick}
	written := 0
	for _, gid := range ids {
		if written > 0 && (bw.BitLen() >= s.opts.BudgetBits || written == 1<<16-1) {
			break
		}
		g := o.ghosts[gid]
		m := g.Take(seq, tick)
		written++
		rec.ghosts = append(rec.ghosts, gid)
		bw.WriteBits(uint64(gid), 32)
		remove := m&removeMask != 0
		bw.WriteBool(remove)
		if remove {
			continue
		}
		rep := fx.Replica{}
		if src := s.sources[gid]; src != nil {
			rep = src.Replica()
		}
		PackUpdate(bw, &rep, m&fx.FullMask)
	}
	bw.PatchBits(0, uint64(written), 16)

	w := packet.NewWriterWithOpcode(packet.S_OPCODE_GHOST_UPDATE)
	w.WriteDU(seq)
	w.WriteBits(bw)
	o.pending[seq] = rec
	o.out.Send(w.Bytes())
	return ids[written:]
}
