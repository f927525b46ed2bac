package net

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/l1jgo/meshfx/internal/net/packet"
	"go.uber.org/zap"
)

// SessionOptions size a session's queues and limits.
type SessionOptions struct {
	InQueueSize  int
	OutQueueSize int
	PktPerSec    int           // 0 = unlimited
	WriteTimeout time.Duration // 0 = 10s
}

// Session 代表一條觀察者連線。網路 I/O 在專屬 goroutine 執行，
// 其餘狀態只由遊戲迴圈存取。
type Session struct {
	ID   uint64
	conn FrameConn

	state atomic.Int32 // packet.SessionState stored as int32

	InQueue  chan []byte // game loop reads packets from here
	OutQueue chan []byte // writer goroutine reads from here

	IP           string
	ObserverName string

	outBuf [][]byte // game loop only, flushed by the output system

	closeCh   chan struct{}
	closeOnce sync.Once
	closed    atomic.Bool

	// 僅限 readLoop goroutine
	pktPerSec  int
	pktCount   int
	pktResetAt int64

	writeTimeout time.Duration
	log          *zap.Logger
}

func NewSession(conn FrameConn, id uint64, opts SessionOptions, log *zap.Logger) *Session {
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 10 * time.Second
	}
	s := &Session{
		ID:           id,
		conn:         conn,
		InQueue:      make(chan []byte, opts.InQueueSize),
		OutQueue:     make(chan []byte, opts.OutQueueSize),
		IP:           conn.RemoteAddr(),
		closeCh:      make(chan struct{}),
		pktPerSec:    opts.PktPerSec,
		writeTimeout: opts.WriteTimeout,
		log:          log.With(zap.Uint64("session", id)),
	}
	s.state.Store(int32(packet.StateHandshake))
	return s
}

func (s *Session) State() packet.SessionState {
	return packet.SessionState(s.state.Load())
}

func (s *Session) SetState(st packet.SessionState) {
	s.state.Store(int32(st))
}

// Start launches the reader and writer goroutines.
func (s *Session) Start() {
	go s.readLoop()
	go s.writeLoop()
}

// Send 將封包放入輸出緩衝，FlushOutput 之前不會送出。
// 僅限遊戲迴圈 goroutine 呼叫。
func (s *Session) Send(data []byte) {
	if s.closed.Load() {
		return
	}
	s.outBuf = append(s.outBuf, data)
}

// FlushOutput 將緩衝封包移入 OutQueue。
// 佇列已滿代表觀察者跟不上，直接關閉連線。
func (s *Session) FlushOutput() {
	for _, data := range s.outBuf {
		select {
		case s.OutQueue <- data:
		default:
			s.log.Warn("輸出佇列已滿，斷開慢速連線")
			s.Close()
			clear(s.outBuf)
			s.outBuf = s.outBuf[:0]
			return
		}
	}
	clear(s.outBuf)
	s.outBuf = s.outBuf[:0]
}

// CloseAfterFlush 送出剩餘緩衝後關閉連線（例如 S_DISCONNECT 之後）。
// 之後不再派發任何封包。僅限遊戲迴圈呼叫。
func (s *Session) CloseAfterFlush() {
	s.SetState(packet.StateDisconnecting)
	s.FlushOutput()
	select {
	case s.OutQueue <- nil: // writer stops here
	default:
		s.Close()
	}
}

// Close 關閉連線，可從任何 goroutine 呼叫。
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.closed.Store(true)
		s.SetState(packet.StateDisconnecting)
		close(s.closeCh)
		s.conn.Close()
	})
}

func (s *Session) IsClosed() bool {
	return s.closed.Load()
}

// Done is closed when the session shuts down.
func (s *Session) Done() <-chan struct{} { return s.closeCh }

// overRate 將一個輸入封包計入每秒上限。
func (s *Session) overRate(now int64) bool {
	if s.pktPerSec <= 0 {
		return false
	}
	if now != s.pktResetAt {
		s.pktCount = 0
		s.pktResetAt = now
	}
	s.pktCount++
	return s.pktCount > s.pktPerSec
}

func (s *Session) readLoop() {
	defer s.Close()

	for {
		payload, err := s.conn.ReadFrame()
		if err != nil {
			if !s.closed.Load() {
				s.log.Debug("讀取錯誤", zap.Error(err))
			}
			return
		}

		if s.overRate(time.Now().Unix()) {
			s.log.Warn("封包速率超限，斷開連線", zap.Int("pps", s.pktCount))
			return
		}

		// 阻塞直到遊戲迴圈取走封包或連線關閉
		select {
		case s.InQueue <- payload:
		case <-s.closeCh:
			return
		}
	}
}

func (s *Session) writeLoop() {
	defer s.Close()

	for {
		select {
		case data := <-s.OutQueue:
			if data == nil {
				return
			}
			if len(data) > 0 {
				s.log.Debug("TX",
					zap.String("op", packet.OpcodeName(data[0])),
					zap.Int("len", len(data)),
				)
			}
			if err := s.conn.WriteFrame(data, time.Now().Add(s.writeTimeout)); err != nil {
				if !s.closed.Load() {
					s.log.Debug("寫入錯誤", zap.Error(err))
				}
				return
			}
		case <-s.closeCh:
			return
		}
	}
}
