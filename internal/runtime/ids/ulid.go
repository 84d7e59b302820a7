// Package ids generates the opaque identifiers handed to live connections.
package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// ConnectionID identifies one live client connection for its lifetime.
type ConnectionID string

func (id ConnectionID) String() string { return string(id) }

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// NewConnectionID returns a fresh, time-sortable connection identifier.
func NewConnectionID() ConnectionID {
	return ConnectionID(CreateULID())
}

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
func CreateULID() string {
	entropyMu.Lock()
	defer entropyMu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
