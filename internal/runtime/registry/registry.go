// Package registry records which streams each live connection wants to hear
// about.
package registry

import (
	"sync"

	"github.com/drblury/fluxnotify/internal/runtime/ids"
)

// Registry maps connection ids to their stream interest sets. An entry exists
// from the first subscribe command until the session removes it.
type Registry struct {
	mu      sync.RWMutex
	streams map[ids.ConnectionID]map[string]struct{}
}

// New returns an empty registry.
func New() *Registry {
	return &Registry{streams: make(map[ids.ConnectionID]map[string]struct{})}
}

// Subscribe replaces the interest set of conn with streamIDs. It does not
// merge with earlier calls.
func (r *Registry) Subscribe(conn ids.ConnectionID, streamIDs []string) {
	set := make(map[string]struct{}, len(streamIDs))
	for _, id := range streamIDs {
		set[id] = struct{}{}
	}

	r.mu.Lock()
	r.streams[conn] = set
	r.mu.Unlock()
}

// Interests returns a copy of the interest set of conn and whether conn has
// subscribed at all.
func (r *Registry) Interests(conn ids.ConnectionID) (map[string]struct{}, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.streams[conn]
	if !ok {
		return nil, false
	}
	out := make(map[string]struct{}, len(set))
	for id := range set {
		out[id] = struct{}{}
	}
	return out, true
}

// Allows reports whether an event scoped to streamID should reach conn.
// Unscoped events always pass, and so does everything for a connection that
// never subscribed.
func (r *Registry) Allows(conn ids.ConnectionID, streamID string) bool {
	if streamID == "" {
		return true
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	set, ok := r.streams[conn]
	if !ok {
		return true
	}
	_, ok = set[streamID]
	return ok
}

// Remove drops the entry of conn.
func (r *Registry) Remove(conn ids.ConnectionID) {
	r.mu.Lock()
	delete(r.streams, conn)
	r.mu.Unlock()
}

// Len is the number of connections with an entry.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.streams)
}
