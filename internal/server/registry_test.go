package server

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type nopHandle struct{}

func (nopHandle) Send(context.Context, []byte) error { return nil }
func (nopHandle) Receive() ([]byte, error)           { return nil, ErrDisconnected }
func (nopHandle) Close() error                       { return nil }

func TestRegistry_RegisterAndLookup(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry()
	sessionID := uuid.NewString()

	req.Zero(registry.Len())

	err := registry.Register(sessionID, nopHandle{})
	req.NoError(err)
	req.Equal(1, registry.Len())

	handle, err := registry.Lookup(sessionID)
	req.NoError(err)
	req.Equal(nopHandle{}, handle)
}

func TestRegistry_DuplicateRegistration(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry()
	sessionID := uuid.NewString()

	req.NoError(registry.Register(sessionID, nopHandle{}))

	err := registry.Register(sessionID, nopHandle{})
	req.ErrorIs(err, ErrDuplicateSession)
	req.Equal(1, registry.Len())
}

func TestRegistry_LookupUnknown(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry()

	_, err := registry.Lookup(uuid.NewString())
	req.ErrorIs(err, ErrSessionNotFound)
}

func TestRegistry_UnregisterIsIdempotent(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry()
	sessionID := uuid.NewString()

	req.NoError(registry.Register(sessionID, nopHandle{}))

	registry.Unregister(sessionID)
	req.Zero(registry.Len())

	// Second removal is a no-op, not an error.
	registry.Unregister(sessionID)
	req.Zero(registry.Len())

	_, err := registry.Lookup(sessionID)
	req.ErrorIs(err, ErrSessionNotFound)
}

func TestRegistry_ConcurrentMutation(t *testing.T) {
	req := require.New(t)
	registry := NewSessionRegistry()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := uuid.NewString()
			req.NoError(registry.Register(id, nopHandle{}))
			_, err := registry.Lookup(id)
			req.NoError(err)
			registry.Unregister(id)
		}()
	}
	wg.Wait()

	req.Zero(registry.Len())
}
