// Package session runs the message channel that sits next to the bulk
// transfer port. Peers open a session, may later ask to resume it, and end
// it explicitly.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/rescp17/noftp/pkg/netmsg"
	"github.com/rescp17/noftp/pkg/protoerr"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPort       = 24874
	DefaultSessionTTL = time.Hour

	acceptRetryDelay = 50 * time.Millisecond
)

// Server answers session requests on the control port. Sessions are kept
// in memory until the peer sends SessionEnd or they go unused for longer
// than the session TTL; expired sessions are swept whenever a new one is
// opened.
type Server struct {
	addr        string
	idleTimeout time.Duration
	ttl         time.Duration

	mu       sync.Mutex
	sessions map[netmsg.ConnectionID]time.Time
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewServer(addr string, idleTimeout time.Duration) *Server {
	return &Server{
		addr:        addr,
		idleTimeout: idleTimeout,
		ttl:         DefaultSessionTTL,
		sessions:    make(map[netmsg.ConnectionID]time.Time),
	}
}

// SetSessionTTL bounds how long an unused session stays resumable. Zero
// keeps sessions until SessionEnd. It must be called before Start.
func (s *Server) SetSessionTTL(ttl time.Duration) {
	s.ttl = ttl
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener != nil {
		return errors.New("session server already running")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	serveCtx, cancel := context.WithCancel(ctx)
	s.listener, s.cancel, s.done = ln, cancel, make(chan struct{})

	slog.Info("Session server listening", "addr", ln.Addr().String())
	go s.serve(serveCtx, ln, s.done)
	return nil
}

func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.listener, s.cancel, s.done = nil, nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Active reports whether id names an open, unexpired session.
func (s *Server) Active(id netmsg.ConnectionID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.liveLocked(id, time.Now())
}

func (s *Server) liveLocked(id netmsg.ConnectionID, now time.Time) bool {
	seen, ok := s.sessions[id]
	if ok && s.ttl > 0 && now.Sub(seen) > s.ttl {
		delete(s.sessions, id)
		return false
	}
	return ok
}

// touch marks id as used now, registering it when new.
func (s *Server) touch(id netmsg.ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[id] = time.Now()
}

func (s *Server) forget(id netmsg.ConnectionID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, id)
}

func (s *Server) sweep() {
	if s.ttl <= 0 {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id := range s.sessions {
		s.liveLocked(id, now)
	}
}

// Len is the number of sessions currently held.
func (s *Server) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) serve(ctx context.Context, ln net.Listener, done chan<- struct{}) {
	defer close(done)
	var g errgroup.Group
	stop := context.AfterFunc(ctx, func() { _ = ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Warn("Session accept failed", "error", err)
			select {
			case <-time.After(acceptRetryDelay):
			case <-ctx.Done():
			}
			continue
		}
		g.Go(func() error {
			s.handle(ctx, netmsg.NewConn(conn))
			return nil
		})
	}
	_ = g.Wait()
}

func (s *Server) handle(ctx context.Context, conn *netmsg.Conn) {
	defer conn.Close()
	conn.SetIdleTimeout(s.idleTimeout)
	logger := slog.With("remote", conn.RemoteAddr().String())

	// unblocks a pending write when the server stops
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	defer stop()

	var current netmsg.ConnectionID
	for {
		_, msg, err := conn.ReadMessage(ctx)
		switch {
		case err == io.EOF:
			return
		case errors.Is(err, protoerr.ErrMalformedHeader):
			logger.Warn("Malformed message, closing session channel", "error", err)
			_ = conn.WriteMessage(ctx, netmsg.ErrorMessage{Message: err.Error()})
			return
		case err != nil:
			logger.Debug("Session channel closed", "error", err, "kind", protoerr.KindOf(err).String())
			return
		}

		reply, end := s.dispatch(msg, &current)
		if reply != nil {
			if err := conn.WriteMessage(ctx, reply); err != nil {
				logger.Debug("Failed to reply", "error", err)
				return
			}
		}
		if end {
			logger.Info("Session ended", "session", current.String())
			return
		}
	}
}

// dispatch computes the reply to msg. current is the session bound to the
// connection, if any.
func (s *Server) dispatch(msg netmsg.Message, current *netmsg.ConnectionID) (reply netmsg.Message, end bool) {
	switch m := msg.(type) {
	case netmsg.SessionInitializationRequest:
		id := m.ID
		if id == "" {
			id = netmsg.NewConnectionID()
		}
		s.sweep()
		s.touch(id)
		*current = id
		slog.Info("Session opened", "session", id.String())
		return netmsg.SessionInitializationResponse{ID: id, Accept: true}, false

	case netmsg.SessionResumeRequest:
		accept := s.Active(m.ID)
		if accept {
			s.touch(m.ID)
			*current = m.ID
		}
		return netmsg.SessionResumeResponse{ID: m.ID, Accept: accept}, false

	case netmsg.SessionEnd:
		if *current != "" {
			s.forget(*current)
		}
		return nil, true

	case netmsg.Pause:
		slog.Info("Peer paused", "session", current.String())
		return nil, false

	case netmsg.ErrorMessage:
		slog.Warn("Peer reported an error", "session", current.String(), "message", m.Message)
		return nil, false

	default:
		return netmsg.ErrorMessage{Message: fmt.Sprintf("unsupported message %s", msg.Kind())}, false
	}
}
