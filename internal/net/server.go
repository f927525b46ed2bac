package net

import (
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Server 接受觀察者連線並建立 Session。
// 新連線與斷線皆透過 channel 交給遊戲迴圈。
type Server struct {
	listener net.Listener
	nextID   atomic.Uint64
	newConns chan *Session
	deadCh   chan uint64 // session IDs of dead sessions
	opts     SessionOptions
	readIdle time.Duration // TCP idle limit, 0 = none
	log      *zap.Logger
	closeCh  chan struct{}
	closed   atomic.Bool
}

// NewServer 監聽 bindAddr。bindAddr 為空時不開 listener，只接受 Adopt 進來的連線。
func NewServer(bindAddr string, opts SessionOptions, readIdle time.Duration, log *zap.Logger) (*Server, error) {
	s := &Server{
		newConns: make(chan *Session, 64),
		deadCh:   make(chan uint64, 64),
		opts:     opts,
		readIdle: readIdle,
		log:      log,
		closeCh:  make(chan struct{}),
	}
	if bindAddr != "" {
		ln, err := net.Listen("tcp", bindAddr)
		if err != nil {
			return nil, err
		}
		s.listener = ln
	}
	return s, nil
}

// AcceptLoop 在獨立 goroutine 中執行，直到 Shutdown。
func (s *Server) AcceptLoop() {
	if s.listener == nil {
		return
	}
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			s.log.Error("連線接受失敗", zap.Error(err))
			continue
		}
		s.Adopt(NewTCPConn(conn, s.readIdle))
	}
}

// Adopt 以已建立的連線啟動 Session 並交給遊戲迴圈。
// websocket 等其他傳輸層由此進入。伺服器關閉中或佇列已滿時回傳 nil。
func (s *Server) Adopt(conn FrameConn) *Session {
	if s.closed.Load() {
		conn.Close()
		return nil
	}
	id := s.nextID.Add(1)
	sess := NewSession(conn, id, s.opts, s.log)
	sess.Start()

	s.log.Info(fmt.Sprintf("觀察者連線  session=%d  ip=%s", id, sess.IP))

	select {
	case s.newConns <- sess:
		return sess
	default:
		s.log.Warn("連線佇列已滿，拒絕新連線")
		sess.Close()
		return nil
	}
}

// NewSessions returns the channel of newly connected sessions.
func (s *Server) NewSessions() <-chan *Session {
	return s.newConns
}

// NotifyDead 回報已斷線的 Session ID。
func (s *Server) NotifyDead(sessionID uint64) {
	select {
	case s.deadCh <- sessionID:
	default:
	}
}

// DeadSessions returns the channel of dead session IDs.
func (s *Server) DeadSessions() <-chan uint64 {
	return s.deadCh
}

// Shutdown 停止接受新連線。
func (s *Server) Shutdown() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	close(s.closeCh)
	if s.listener != nil {
		s.listener.Close()
	}
}

// Addr returns the listener's address, or nil without a listener.
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
