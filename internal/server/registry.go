// Package server tracks live sessions in the SessionRegistry, the single
// source of truth for which connections exist.
package server

import (
	"errors"
	"sync"
)

var (
	// ErrDuplicateSession guards the invariant that session ids are unique.
	// Ids are generated, so hitting this indicates a bug, not a client error.
	ErrDuplicateSession = errors.New("session id already registered")

	// ErrSessionNotFound is returned by Lookup for unknown session ids.
	ErrSessionNotFound = errors.New("session not found")
)

// SessionRegistry maps session ids to their connection handles. A session id
// is present exactly while its connection is live. All operations are atomic
// with respect to the underlying map; callers never hold the lock across
// calls.
type SessionRegistry struct {
	mu      sync.RWMutex
	handles map[string]Handle
}

// NewSessionRegistry returns an empty registry.
func NewSessionRegistry() *SessionRegistry {
	return &SessionRegistry{handles: make(map[string]Handle)}
}

// Register inserts the handle under id, failing with ErrDuplicateSession if
// the id is already present.
func (r *SessionRegistry) Register(id string, handle Handle) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.handles[id]; exists {
		return ErrDuplicateSession
	}
	r.handles[id] = handle
	return nil
}

// Unregister removes id. Removing an absent id is a no-op.
func (r *SessionRegistry) Unregister(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handles, id)
}

// Lookup resolves a session id to its handle.
func (r *SessionRegistry) Lookup(id string) (Handle, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	handle, exists := r.handles[id]
	if !exists {
		return nil, ErrSessionNotFound
	}
	return handle, nil
}

// Len reports the number of live sessions.
func (r *SessionRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handles)
}
