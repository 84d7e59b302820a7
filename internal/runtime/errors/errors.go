// Package errors holds the error taxonomy of the notification relay.
//
// Only ConnectError is fatal, and only at startup. Every other error is
// handled where it happens: logged, counted, and the loop moves on.
package errors

import (
	sterrors "errors"
	"fmt"
)

var (
	ErrConfigRequired   = sterrors.New("fluxnotify: configuration is required")
	ErrLoggerRequired   = sterrors.New("fluxnotify: logger is required")
	ErrSourceRequired   = sterrors.New("fluxnotify: event source is required")
	ErrHubRequired      = sterrors.New("fluxnotify: hub is required")
	ErrRegistryRequired = sterrors.New("fluxnotify: subscription registry is required")

	// ErrNoSubscribers is returned by a publish that found no live handle.
	// The event is discarded; callers treat it as a no-op.
	ErrNoSubscribers = sterrors.New("fluxnotify: no subscribers")
	// ErrClosed is returned by a hub handle once the hub is closed and drained.
	ErrClosed = sterrors.New("fluxnotify: hub closed")
	// ErrEmpty is returned by a non-blocking receive on a caught-up handle.
	ErrEmpty = sterrors.New("fluxnotify: no pending event")
	// ErrConsumerStreamed is returned when a consumer is asked for a second stream.
	ErrConsumerStreamed = sterrors.New("fluxnotify: consumer stream already taken")
	// ErrUnknownSource is returned when no source builder matches the configured kind.
	ErrUnknownSource = sterrors.New("fluxnotify: unknown event source")
	// ErrSourceEnded is returned by a running service whose event source
	// stopped yielding messages.
	ErrSourceEnded = sterrors.New("fluxnotify: event source ended")
	// ErrShuttingDown is returned when a session or injection arrives after
	// shutdown started.
	ErrShuttingDown = sterrors.New("fluxnotify: relay shutting down")
)

// ConnectError reports that the event source could not be reached or the
// durable consumer could not be created or bound.
type ConnectError struct {
	Source string
	Err    error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("fluxnotify: connect %s: %v", e.Source, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// DecodeError reports a payload that is malformed or carries a variant the
// relay does not know.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err == nil {
		return "fluxnotify: decode event: " + e.Reason
	}
	return fmt.Sprintf("fluxnotify: decode event: %s: %v", e.Reason, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// AckError reports a failed acknowledgement. The event has already been
// published, so the source may redeliver it.
type AckError struct {
	Err error
}

func (e *AckError) Error() string {
	return fmt.Sprintf("fluxnotify: ack: %v", e.Err)
}

func (e *AckError) Unwrap() error { return e.Err }

// LaggedError is returned by a hub handle that fell behind and had Count
// events overwritten before it could read them.
type LaggedError struct {
	Count uint64
}

func (e *LaggedError) Error() string {
	return fmt.Sprintf("fluxnotify: receiver lagged by %d events", e.Count)
}

// ConfigValidationError wraps the joined configuration problems found at startup.
type ConfigValidationError struct {
	Err error
}

func (e ConfigValidationError) Error() string {
	return "fluxnotify: invalid configuration: " + e.Err.Error()
}

func (e ConfigValidationError) Unwrap() error { return e.Err }

// IsLagged reports whether err is a LaggedError and returns the skipped count.
func IsLagged(err error) (uint64, bool) {
	var lagged *LaggedError
	if sterrors.As(err, &lagged) {
		return lagged.Count, true
	}
	return 0, false
}
