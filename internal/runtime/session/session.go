// Package session serves live client connections. Each connection runs one
// multiplexing loop over its hub handle, inbound client commands, the
// heartbeat ticker, the process shutdown signal and the request context.
//
// Two transports are supported: WebSocket, which is duplex and honors
// subscribe commands, and Server-Sent Events, which is push only.
package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
	"github.com/drblury/fluxnotify/internal/runtime/event"
	"github.com/drblury/fluxnotify/internal/runtime/hub"
	"github.com/drblury/fluxnotify/internal/runtime/ids"
	loggingpkg "github.com/drblury/fluxnotify/internal/runtime/logging"
	"github.com/drblury/fluxnotify/internal/runtime/metrics"
	"github.com/drblury/fluxnotify/internal/runtime/registry"
	"github.com/drblury/fluxnotify/internal/runtime/shutdown"
)

// State is the lifecycle position of a session.
type State int32

const (
	StateOpen State = iota
	StateClosing
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Options configures a Handler.
type Options struct {
	Hub      *hub.Hub[event.DomainEvent]
	Registry *registry.Registry
	// Shutdown closes every session when fired. Optional.
	Shutdown *shutdown.Signal
	Logger   loggingpkg.ServiceLogger
	Metrics  *metrics.Metrics

	// HeartbeatInterval spaces WebSocket pings and SSE keep-alive comments.
	// Zero or negative disables heartbeats.
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
	// FilterStreams applies subscribe commands to WebSocket delivery.
	FilterStreams  bool
	AllowedOrigins []string
}

// Session is one live client connection.
type Session struct {
	id        ids.ConnectionID
	transport string
	opened    time.Time
	state     atomic.Int32
	handle    *hub.Handle[event.DomainEvent]
	logger    loggingpkg.ServiceLogger
	done      chan struct{}
}

func (s *Session) ID() ids.ConnectionID { return s.id }

func (s *Session) Transport() string { return s.transport }

func (s *Session) State() State { return State(s.state.Load()) }

func (s *Session) setState(st State) { s.state.Store(int32(st)) }

// Handler creates and tracks sessions for both transports.
type Handler struct {
	opts Options

	mu       sync.Mutex
	sessions map[ids.ConnectionID]*Session
	draining bool
	wg       sync.WaitGroup
}

// NewHandler validates opts and returns a handler.
func NewHandler(opts Options) (*Handler, error) {
	if opts.Hub == nil {
		return nil, errspkg.ErrHubRequired
	}
	if opts.Registry == nil {
		return nil, errspkg.ErrRegistryRequired
	}
	if opts.Logger == nil {
		return nil, errspkg.ErrLoggerRequired
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.New(nil)
	}
	if opts.Shutdown == nil {
		opts.Shutdown = shutdown.New(opts.Logger)
	}
	return &Handler{
		opts:     opts,
		sessions: make(map[ids.ConnectionID]*Session),
	}, nil
}

// Active is the number of sessions not yet closed.
func (h *Handler) Active() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.sessions)
}

// Sessions returns a snapshot of the live sessions.
func (h *Handler) Sessions() []*Session {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]*Session, 0, len(h.sessions))
	for _, s := range h.sessions {
		out = append(out, s)
	}
	return out
}

// Wait blocks until every session has closed or ctx is done. New sessions are
// refused from the first call on.
func (h *Handler) Wait(ctx context.Context) error {
	h.mu.Lock()
	h.draining = true
	h.mu.Unlock()

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// open subscribes the new session to the hub before anything is written to
// the client, so no event published after the handshake is missed. It fails
// with ErrShuttingDown once the shutdown signal fired or Wait was called.
func (h *Handler) open(transport string) (*Session, func(), error) {
	s := &Session{
		id:        ids.NewConnectionID(),
		transport: transport,
		opened:    time.Now(),
		done:      make(chan struct{}),
	}
	s.logger = h.opts.Logger.With(loggingpkg.LogFields{
		"connection_id": s.id.String(),
		"transport":     transport,
	})

	h.mu.Lock()
	if h.draining || h.opts.Shutdown.Fired() {
		h.mu.Unlock()
		return nil, nil, errspkg.ErrShuttingDown
	}
	h.wg.Add(1)
	s.handle = h.opts.Hub.Subscribe()
	s.setState(StateOpen)
	h.sessions[s.id] = s
	h.mu.Unlock()

	sessionClosed := h.opts.Metrics.SessionOpened(transport)
	s.logger.Info("Session opened", nil)

	return s, func() {
		s.setState(StateClosing)
		s.handle.Close()
		h.opts.Registry.Remove(s.id)
		close(s.done)
		sessionClosed()

		h.mu.Lock()
		delete(h.sessions, s.id)
		h.mu.Unlock()

		s.setState(StateClosed)
		s.logger.Info("Session closed", loggingpkg.LogFields{"duration": time.Since(s.opened).String()})
		h.wg.Done()
	}, nil
}

// heartbeat returns a ticker channel, nil when heartbeats are disabled.
func (h *Handler) heartbeat() (<-chan time.Time, func()) {
	if h.opts.HeartbeatInterval <= 0 {
		return nil, func() {}
	}
	ticker := time.NewTicker(h.opts.HeartbeatInterval)
	return ticker.C, ticker.Stop
}

type writeFunc func(frame []byte) error

// next takes at most one event from the hub and writes it. It reports false
// when the session must close.
func (h *Handler) next(s *Session, filter bool, write writeFunc) (bool, error) {
	ev, err := s.handle.TryNext()
	if err != nil {
		if count, ok := errspkg.IsLagged(err); ok {
			h.opts.Metrics.Lagged(s.transport, count)
			s.logger.Info("Session lagged behind, events skipped", loggingpkg.LogFields{"skipped": count})
			return true, nil
		}
		if errors.Is(err, errspkg.ErrEmpty) {
			return true, nil
		}
		return false, err
	}

	if filter && !h.opts.Registry.Allows(s.id, ev.StreamID()) {
		h.opts.Metrics.EventFiltered()
		return true, nil
	}

	frame, err := event.Frame(ev)
	if err != nil {
		s.logger.Error("Failed to serialize event", err, loggingpkg.LogFields{"kind": ev.Kind()})
		return true, nil
	}
	if err := write(frame); err != nil {
		return false, err
	}
	h.opts.Metrics.FrameSent(s.transport)
	return true, nil
}

func (h *Handler) writeDeadline() time.Time {
	if h.opts.WriteTimeout <= 0 {
		return time.Time{}
	}
	return time.Now().Add(h.opts.WriteTimeout)
}
