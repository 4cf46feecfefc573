// Package receiver implements the bulk transfer listener: every accepted
// connection carries one preamble and one body which is written below the
// download directory.
package receiver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rescp17/noftp/internal/util"
	"github.com/rescp17/noftp/pkg/concurrency"
	"github.com/rescp17/noftp/pkg/netmsg"
	"github.com/rescp17/noftp/pkg/transfer"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

const (
	DefaultPort         = 24873
	DefaultDownloadPath = "downloads"

	acceptRetryDelay = 50 * time.Millisecond
	resultsBuffer    = 64
)

var ErrNotRunning = errors.New("server is not running")

// Settings selects where the server listens and where files land.
type Settings struct {
	Host         string `json:"host"`
	Port         int    `json:"port"`
	DownloadPath string `json:"download_path"`
}

func DefaultSettings() Settings {
	return Settings{Port: DefaultPort, DownloadPath: DefaultDownloadPath}
}

func (s Settings) Address() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Result reports the outcome of one connection.
type Result struct {
	ID     netmsg.ConnectionID
	Remote string
	Path   string // path announced by the peer
	Dest   string // resolved location on disk
	Type   transfer.SubHeaderType
	Bytes  int64
	// Complete is set once the file on disk reached the announced content
	// size; Checksum is its SHA-256 at that point.
	Complete bool
	Checksum string
	Err      error
}

type Server struct {
	config       *transfer.TransferConfig
	errorHandler transfer.ErrorHandler
	paths        *concurrency.PathGuard
	restartGuard *concurrency.ConcurrencyGuard

	results        chan Result
	resultsEnabled atomic.Bool

	mu       sync.Mutex
	settings Settings
	parent   context.Context
	listener net.Listener
	cancel   context.CancelFunc
	done     chan struct{}
}

func NewServer(settings Settings, config *transfer.TransferConfig) *Server {
	if config == nil {
		config = transfer.DefaultTransferConfig()
	}
	return &Server{
		config:       config,
		errorHandler: transfer.NewDefaultErrorHandler(nil),
		paths:        concurrency.NewPathGuard(),
		restartGuard: concurrency.NewConcurrencyGuard(),
		results:      make(chan Result, resultsBuffer),
		settings:     settings,
	}
}

// SetErrorHandler replaces the handler used to classify and log failures.
// It must be called before Start.
func (s *Server) SetErrorHandler(h transfer.ErrorHandler) {
	s.errorHandler = h
}

// Results delivers one Result per handled connection. Results are only
// produced once Results has been called, and the caller must keep
// draining the channel from then on.
func (s *Server) Results() <-chan Result {
	s.resultsEnabled.Store(true)
	return s.results
}

// Start binds the listener and runs the accept loop until ctx is done or
// Stop is called.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return errors.New("server already running")
	}
	if err := util.EnsureDirectory(s.settings.DownloadPath); err != nil {
		return fmt.Errorf("failed to prepare download directory: %w", err)
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.settings.Address())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.settings.Address(), err)
	}

	serveCtx, cancel := context.WithCancel(ctx)
	s.parent = ctx
	s.listener = ln
	s.cancel = cancel
	s.done = make(chan struct{})

	slog.Info("Receiver listening", "addr", ln.Addr().String(), "download_path", s.settings.DownloadPath)
	go s.serve(serveCtx, ln, s.settings.DownloadPath, s.done)
	return nil
}

// Addr is the bound listener address, or nil when the server is stopped.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

func (s *Server) Settings() Settings {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.settings
}

// Stop cancels the accept loop and every in-flight handler, then waits
// for all of them to return.
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
	slog.Info("Receiver stopped")
}

// Restart stops the server and starts it again with new settings, using
// the context the server was first started with.
func (s *Server) Restart(settings Settings) error {
	return s.restartGuard.Execute(func() error {
		s.mu.Lock()
		parent := s.parent
		s.mu.Unlock()
		if parent == nil {
			return ErrNotRunning
		}

		s.Stop()

		s.mu.Lock()
		s.settings = settings
		s.mu.Unlock()
		slog.Info("Restarting receiver", "addr", settings.Address(), "download_path", settings.DownloadPath)
		return s.Start(parent)
	})
}

func (s *Server) serve(ctx context.Context, ln net.Listener, root string, done chan<- struct{}) {
	defer close(done)

	var handlers errgroup.Group
	slots := semaphore.NewWeighted(int64(s.config.MaxConcurrentConnections))
	stop := context.AfterFunc(ctx, func() {
		_ = ln.Close()
	})
	defer stop()

	for {
		if err := slots.Acquire(ctx, 1); err != nil {
			break
		}
		conn, err := ln.Accept()
		if err != nil {
			slots.Release(1)
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				break
			}
			slog.Warn("Accept failed", "error", err)
			select {
			case <-time.After(acceptRetryDelay):
			case <-ctx.Done():
			}
			continue
		}

		handlers.Go(func() error {
			defer slots.Release(1)
			s.handleConn(ctx, conn, root)
			return nil
		})
	}

	_ = ln.Close()
	_ = handlers.Wait()
}

func (s *Server) publish(ctx context.Context, res Result) {
	if !s.resultsEnabled.Load() {
		return
	}
	select {
	case s.results <- res:
	case <-ctx.Done():
	}
}
