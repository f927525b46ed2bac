package replication

import (
	"errors"
	"fmt"
	"slices"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/l1jgo/meshfx/internal/fx"
	"github.com/l1jgo/meshfx/internal/net/packet"
	"go.uber.org/zap"
)

// ClientOptions configure the observer side.
type ClientOptions struct {
	// Emitter is the template for locally created emitters; Name and Seed
	// are filled in per ghost.
	Emitter fx.Options
	// Samplers builds a surface sampler for a mesh name, or returns nil.
	Samplers func(mesh string, seed uint64) fx.SurfaceSampler
}

// Client rebuilds emitters from server updates and simulates them locally.
// It never receives particles, only the parameters that drive them.
type Client struct {
	configs  map[string]*fx.Config
	emitters map[uint32]*fx.Emitter
	replicas map[uint32]fx.Replica
	hosts    map[uint32]*fx.StaticHost
	wind     *fx.Wind
	opts     ClientOptions

	ServerName string
	TickMS     uint16
	Closed     string // disconnect reason, if any

	log *zap.Logger
}

func NewClient(wind *fx.Wind, opts ClientOptions, log *zap.Logger) *Client {
	if wind == nil {
		wind = fx.ProcessWind()
	}
	opts.Emitter.Wind = wind
	if opts.Emitter.Log == nil {
		opts.Emitter.Log = log
	}
	return &Client{
		configs:  make(map[string]*fx.Config),
		emitters: make(map[uint32]*fx.Emitter),
		replicas: make(map[uint32]fx.Replica),
		hosts:    make(map[uint32]*fx.StaticHost),
		wind:     wind,
		opts:     opts,
		log:      log,
	}
}

// Handle 套用一個伺服器封包並回傳其序號。回傳錯誤代表部分內容未套用，
// 呼叫端不應 ack，改送 C_NACK 讓伺服器立即重送。
func (c *Client) Handle(payload []byte) (uint32, error) {
	r := packet.NewReader(payload)
	op := r.Opcode()
	seq := r.ReadDU()
	if err := r.Err(); err != nil {
		return seq, err
	}
	switch op {
	case packet.S_OPCODE_WELCOME:
		name, tick := r.ReadS(), r.ReadH()
		if err := r.Err(); err != nil {
			return seq, err
		}
		c.ServerName, c.TickMS = name, tick
		return seq, nil
	case packet.S_OPCODE_DATABLOCK:
		return seq, c.handleDatablocks(r.Bits())
	case packet.S_OPCODE_WIND:
		v := mgl32.Vec3{r.ReadF(), r.ReadF(), r.ReadF()}
		if err := r.Err(); err != nil {
			return seq, err
		}
		c.wind.Set(v)
		return seq, nil
	case packet.S_OPCODE_GHOST_UPDATE:
		return seq, c.handleGhosts(r.Bits())
	case packet.S_OPCODE_DISCONNECT:
		c.Closed = r.ReadS()
		if c.Closed == "" {
			c.Closed = "disconnected"
		}
		return seq, nil
	default:
		return seq, fmt.Errorf("unexpected opcode %d", op)
	}
}

func (c *Client) handleDatablocks(br *packet.BitReader) error {
	n := int(br.ReadBits(8))
	for i := 0; i < n; i++ {
		cfg, err := UnpackConfig(br)
		if err != nil {
			return fmt.Errorf("datablock %d/%d: %w", i+1, n, err)
		}
		for _, w := range cfg.Validate() {
			c.log.Debug("資料區塊修正", zap.String("config", cfg.Name), zap.String("reason", w))
		}
		c.configs[cfg.Name] = cfg
		// 綁定比資料區塊先到的 ghost
		for id, e := range c.emitters {
			if e.Config() == nil && e.State().DataBlock == cfg.Name {
				e.ApplyReplica(c.replicas[id], fx.StateMask, c.Config)
			}
		}
	}
	return br.Err()
}

func (c *Client) handleGhosts(br *packet.BitReader) error {
	n := int(br.ReadBits(16))
	var errs []error
	for i := 0; i < n; i++ {
		id := uint32(br.ReadBits(32))
		remove := br.ReadBool()
		if err := br.Err(); err != nil {
			return errors.Join(append(errs, fmt.Errorf("%w: ghost header %d", ErrTruncated, i))...)
		}
		if remove {
			c.remove(id)
			continue
		}
		rep, ok := c.replicas[id]
		if !ok {
			rep = fx.Replica{
				State:  fx.State{Rotation: mgl32.QuatIdent()},
				Params: fx.DefaultParams(),
			}
		}
		applied, err := UnpackUpdate(br, &rep)
		if applied != 0 {
			c.replicas[id] = rep
			c.apply(id, rep, applied)
		}
		if err != nil {
			c.log.Warn("鬼影更新解碼失敗", zap.Uint32("ghost", id), zap.Error(err))
			errs = append(errs, fmt.Errorf("ghost %d: %w", id, err))
			if errors.Is(err, ErrTruncated) {
				break
			}
		}
	}
	return errors.Join(errs...)
}

func (c *Client) apply(id uint32, rep fx.Replica, applied fx.Mask) {
	host, ok := c.hosts[id]
	if !ok {
		host = &fx.StaticHost{Rot: mgl32.QuatIdent()}
		c.hosts[id] = host
	}
	if applied&fx.StateMask != 0 {
		host.Pos = rep.State.Position
		host.Rot = rep.State.Rotation
	}

	e, ok := c.emitters[id]
	if !ok {
		o := c.opts.Emitter
		o.Name = fmt.Sprintf("ghost-%d", id)
		o.Seed = rep.State.Seed
		e = fx.NewEmitter(c.configs[rep.State.DataBlock], o)
		c.emitters[id] = e
		c.log.Debug("建立鬼影發射器", zap.Uint32("ghost", id), zap.String("config", rep.State.DataBlock))
	}
	e.ApplyReplica(rep, applied, c.Config)
	if applied&fx.GeometryMask != 0 && c.opts.Samplers != nil {
		e.SetSampler(c.opts.Samplers(rep.Params.Geometry.EmitMesh, rep.State.Seed))
	}
}

func (c *Client) remove(id uint32) {
	delete(c.emitters, id)
	delete(c.replicas, id)
	delete(c.hosts, id)
}

// Config returns a received datablock, or nil.
func (c *Client) Config(name string) *fx.Config { return c.configs[name] }

// Emitter returns the local emitter for ghost id, or nil.
func (c *Client) Emitter(id uint32) *fx.Emitter { return c.emitters[id] }

// Wind is the last wind velocity the server sent.
func (c *Client) Wind() mgl32.Vec3 { return c.wind.Velocity() }

// Len returns the number of live ghosts.
func (c *Client) Len() int { return len(c.emitters) }

// IDs returns the ghost ids in ascending order.
func (c *Client) IDs() []uint32 {
	ids := make([]uint32, 0, len(c.emitters))
	for id := range c.emitters {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Tick 依 id 順序先推進再發射所有本地發射器。
func (c *Client) Tick(elapsedMs uint32) {
	for _, id := range c.IDs() {
		e := c.emitters[id]
		e.Advance(elapsedMs)
		e.Emit(elapsedMs, c.hosts[id])
	}
}
