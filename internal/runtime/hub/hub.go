// Package hub is the process-wide fan-out point between the relay and the
// live client sessions.
//
// A Hub is a fixed-size ring buffer with one cursor per Handle. Publishing
// never blocks: a reader that falls more than Capacity events behind loses
// the overwritten events and is told how many with a LaggedError, then
// resumes from the oldest retained event. Memory stays bounded no matter how
// slow a client is.
package hub

import (
	"context"
	"errors"
	"sync"

	errspkg "github.com/drblury/fluxnotify/internal/runtime/errors"
)

var errInvalidCapacity = errors.New("fluxnotify: hub capacity must be positive")

// ready is handed out by Handle.Ready whenever a receive would not block.
var ready = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

// Hub broadcasts values of T to every subscribed Handle.
type Hub[T any] struct {
	mu      sync.Mutex
	buf     []T
	head    uint64 // sequence number the next Publish will take
	wake    chan struct{}
	handles int
	closed  bool
}

// New creates a hub retaining the last capacity published values.
func New[T any](capacity int) (*Hub[T], error) {
	if capacity <= 0 {
		return nil, errInvalidCapacity
	}
	return &Hub[T]{
		buf:  make([]T, capacity),
		wake: make(chan struct{}),
	}, nil
}

// Publish stores v and wakes every waiting handle. With no handle subscribed
// the value is discarded and ErrNoSubscribers is returned, which callers
// treat as a no-op.
func (h *Hub[T]) Publish(v T) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return errspkg.ErrClosed
	}
	if h.handles == 0 {
		return errspkg.ErrNoSubscribers
	}

	h.buf[h.head%uint64(len(h.buf))] = v
	h.head++
	close(h.wake)
	h.wake = make(chan struct{})
	return nil
}

// Subscribe returns a handle that observes values published from now on.
func (h *Hub[T]) Subscribe() *Handle[T] {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.handles++
	return &Handle[T]{hub: h, next: h.head}
}

// Close stops publishing. Handles drain what they have not read yet and then
// receive ErrClosed.
func (h *Hub[T]) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return
	}
	h.closed = true
	close(h.wake)
}

// Capacity is the number of values the ring retains.
func (h *Hub[T]) Capacity() int { return len(h.buf) }

// Subscribers is the number of open handles.
func (h *Hub[T]) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.handles
}

// Published is the total number of values accepted since creation.
func (h *Hub[T]) Published() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.head
}

// Handle is one reader's cursor into the hub. A Handle must be used by a
// single goroutine.
type Handle[T any] struct {
	hub    *Hub[T]
	next   uint64
	closed bool
}

// TryNext returns the next value without blocking. It fails with ErrEmpty
// when the handle is caught up, with *LaggedError when values were
// overwritten, and with ErrClosed once the hub is closed and drained.
func (r *Handle[T]) TryNext() (T, error) {
	h := r.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	var zero T
	if r.closed {
		return zero, errspkg.ErrClosed
	}

	capacity := uint64(len(h.buf))
	if h.head-r.next > capacity {
		oldest := h.head - capacity
		missed := oldest - r.next
		r.next = oldest
		return zero, &errspkg.LaggedError{Count: missed}
	}
	if r.next == h.head {
		if h.closed {
			return zero, errspkg.ErrClosed
		}
		return zero, errspkg.ErrEmpty
	}

	v := h.buf[r.next%capacity]
	r.next++
	return v, nil
}

// Ready returns a channel that is closed once TryNext would not return
// ErrEmpty. Fetch a new channel after every wake-up.
func (r *Handle[T]) Ready() <-chan struct{} {
	h := r.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.closed || h.closed || r.next != h.head {
		return ready
	}
	return h.wake
}

// Next blocks until a value, a lag report, hub closure or ctx cancellation.
func (r *Handle[T]) Next(ctx context.Context) (T, error) {
	for {
		v, err := r.TryNext()
		if !errors.Is(err, errspkg.ErrEmpty) {
			return v, err
		}
		select {
		case <-r.Ready():
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Close releases the handle. Closing twice is a no-op.
func (r *Handle[T]) Close() {
	h := r.hub
	h.mu.Lock()
	defer h.mu.Unlock()

	if r.closed {
		return
	}
	r.closed = true
	h.handles--
}
