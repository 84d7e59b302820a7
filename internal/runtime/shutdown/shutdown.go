// Package shutdown turns the first OS termination request into a one-shot,
// process-wide signal that every open session watches.
package shutdown

import (
	"os"
	"os/signal"
	"sync"
	"syscall"

	loggingpkg "github.com/drblury/fluxnotify/internal/runtime/logging"
)

// Signal fires at most once and is never reset.
type Signal struct {
	once   sync.Once
	done   chan struct{}
	reason string
	mu     sync.RWMutex

	stopOnce sync.Once
	stop     chan struct{}
	logger   loggingpkg.ServiceLogger
}

// New returns a signal that only fires through Fire.
func New(logger loggingpkg.ServiceLogger) *Signal {
	if logger == nil {
		logger = loggingpkg.NewNopLogger()
	}
	return &Signal{
		done:   make(chan struct{}),
		stop:   make(chan struct{}),
		logger: logger,
	}
}

// Start returns a signal that also fires on SIGINT or SIGTERM.
func Start(logger loggingpkg.ServiceLogger) *Signal {
	s := New(logger)
	s.watch(syscall.SIGINT, syscall.SIGTERM)
	return s
}

func (s *Signal) watch(sigs ...os.Signal) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, sigs...)

	go func() {
		defer signal.Stop(ch)
		select {
		case sig := <-ch:
			s.Fire(sig.String())
		case <-s.done:
		case <-s.stop:
		}
	}()
}

// Fire triggers the signal. Only the first call has an effect.
func (s *Signal) Fire(reason string) {
	s.once.Do(func() {
		s.mu.Lock()
		s.reason = reason
		s.mu.Unlock()

		s.logger.Info("Shutdown signal received", loggingpkg.LogFields{"reason": reason})
		close(s.done)
	})
}

// Done is closed once the signal has fired.
func (s *Signal) Done() <-chan struct{} { return s.done }

// Fired reports whether the signal has fired.
func (s *Signal) Fired() bool {
	select {
	case <-s.done:
		return true
	default:
		return false
	}
}

// Reason is what fired the signal, or "" while it has not fired.
func (s *Signal) Reason() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reason
}

// Stop detaches the OS watcher without firing.
func (s *Signal) Stop() {
	s.stopOnce.Do(func() { close(s.stop) })
}
