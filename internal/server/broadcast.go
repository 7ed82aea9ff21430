// Package server fans messages out to room members through the Broadcaster.
package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"
)

// Broadcaster resolves room membership at call time and dispatches one
// message to every member concurrently. Delivery is best effort: a failed
// send to one member is logged and skipped, never aborting the batch.
type Broadcaster struct {
	registry    *SessionRegistry
	rooms       *RoomIndex
	log         *slog.Logger
	sendTimeout time.Duration
}

// NewBroadcaster wires the engine to the shared registries.
func NewBroadcaster(registry *SessionRegistry, rooms *RoomIndex, log *slog.Logger, sendTimeout time.Duration) *Broadcaster {
	return &Broadcaster{
		registry:    registry,
		rooms:       rooms,
		log:         log,
		sendTimeout: sendTimeout,
	}
}

// Broadcast sends msg to every member of roomID. Membership is a snapshot
// taken at call time; sessions joining or leaving mid-dispatch are not
// guaranteed inclusion. Sends run concurrently, each bounded by the send
// timeout, and Broadcast returns only after all of them complete or fail.
func (b *Broadcaster) Broadcast(ctx context.Context, roomID string, msg Message) {
	frame, err := json.Marshal(msg)
	if err != nil {
		b.log.Error("broadcast.marshal", "room", roomID, "err", err)
		return
	}

	members := b.rooms.Members(roomID)
	var wg sync.WaitGroup
	for _, sessionID := range members {
		wg.Add(1)
		go func(sessionID string) {
			defer wg.Done()
			if err := b.send(ctx, sessionID, frame); err != nil {
				b.log.Debug("broadcast.send", "room", roomID, "session", sessionID, "err", err)
			}
		}(sessionID)
	}
	wg.Wait()
}

// Unicast sends msg to a single session. Unlike Broadcast the failure is
// surfaced: callers use Unicast for self-directed notices, and an unusable
// own handle means the session's loop should terminate.
func (b *Broadcaster) Unicast(ctx context.Context, sessionID string, msg Message) error {
	frame, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.send(ctx, sessionID, frame)
}

func (b *Broadcaster) send(ctx context.Context, sessionID string, frame []byte) error {
	handle, err := b.registry.Lookup(sessionID)
	if err != nil {
		// Member unregistered between snapshot and send; accepted staleness.
		return err
	}

	sendCtx, cancel := context.WithTimeout(ctx, b.sendTimeout)
	defer cancel()
	return handle.Send(sendCtx, frame)
}
