// Package server runs the per-connection session loop: login acknowledgment,
// message dispatch, and guaranteed cleanup on any termination path.
package server

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Keepalive tokens handled outside the envelope format.
var (
	keepaliveProbe = []byte("ping")
	keepaliveReply = []byte("pong")
)

// Session is one connected client: a generated id, its connection handle,
// and the set of rooms it has joined. The joined set is touched only by the
// session's own goroutine.
type Session struct {
	id      string
	handle  Handle
	joined  map[string]struct{}
	limiter *rateLimiter

	registry *SessionRegistry
	rooms    *RoomIndex
	caster   *Broadcaster
	log      *slog.Logger
}

// NewSession creates a session with a fresh process-unique id. The id is
// immutable for the session's lifetime.
func NewSession(handle Handle, registry *SessionRegistry, rooms *RoomIndex, caster *Broadcaster, limiter *rateLimiter, log *slog.Logger) *Session {
	id := uuid.NewString()
	return &Session{
		id:       id,
		handle:   handle,
		joined:   make(map[string]struct{}),
		limiter:  limiter,
		registry: registry,
		rooms:    rooms,
		caster:   caster,
		log:      log.With("session", id),
	}
}

// ID returns the session's identifier.
func (s *Session) ID() string { return s.id }

// Run registers the session, acknowledges the login, and processes frames in
// receipt order until the peer disconnects or the transport faults. Cleanup
// runs exactly once regardless of which path terminated the loop.
func (s *Session) Run(ctx context.Context) error {
	if err := s.registry.Register(s.id, s.handle); err != nil {
		return err
	}
	defer s.cleanup()

	ack := Message{Action: ActionLogin, Payload: s.id}
	if err := s.caster.Unicast(ctx, s.id, ack); err != nil {
		s.log.Warn("session.login_ack", "err", err)
		return err
	}
	s.log.Debug("session.active")

	for {
		frame, err := s.handle.Receive()
		if err != nil {
			if errors.Is(err, ErrDisconnected) {
				s.log.Debug("session.disconnected")
				return nil
			}
			// Unexpected transport fault; same cleanup path as disconnect.
			s.log.Warn("session.transport_fault", "err", err)
			return err
		}

		if bytes.Equal(frame, keepaliveProbe) {
			if err := s.handle.Send(ctx, keepaliveReply); err != nil {
				s.log.Warn("session.keepalive", "err", err)
				return err
			}
			continue
		}

		if s.limiter != nil && !s.limiter.allow() {
			s.log.Debug("session.rate_limited")
			continue
		}

		msg, err := ParseMessage(frame)
		if err != nil {
			// Malformed input never terminates the session.
			s.log.Debug("session.discard_frame", "err", err)
			continue
		}

		if err := s.dispatch(ctx, msg); err != nil {
			s.log.Warn("session.dispatch", "action", msg.Action, "err", err)
			return err
		}
	}
}

// dispatch handles one well-formed envelope. Only a failed send to the
// session's own handle is returned as an error; everything else is absorbed.
func (s *Session) dispatch(ctx context.Context, msg Message) error {
	switch msg.Action {
	case ActionListRooms:
		listing := Message{
			Action:  ActionListRooms,
			Payload: strings.Join(s.rooms.RoomIDs(), ","),
		}
		return s.caster.Unicast(ctx, s.id, listing)

	case ActionEnterRoom:
		if msg.RoomID == "" {
			return nil
		}
		s.rooms.Join(msg.RoomID, s.id)
		s.joined[msg.RoomID] = struct{}{}
		// Join precedes the broadcast, so the joiner hears its own entrance.
		s.caster.Broadcast(ctx, msg.RoomID, Message{
			Action:  ActionEnterRoom,
			RoomID:  msg.RoomID,
			Payload: s.id,
		})
		return nil

	case ActionExitRoom:
		if msg.RoomID == "" {
			return nil
		}
		delete(s.joined, msg.RoomID)
		if remaining := s.rooms.Leave(msg.RoomID, s.id); remaining > 0 {
			s.caster.Broadcast(ctx, msg.RoomID, Message{
				Action:  ActionExitRoom,
				RoomID:  msg.RoomID,
				Payload: s.id,
			})
		}
		return nil

	case ActionMessage:
		if msg.RoomID == "" {
			return nil
		}
		s.caster.Broadcast(ctx, msg.RoomID, msg)
		return nil

	case ActionLogin:
		// Server-to-self only; a client sending it has no effect.
		return nil
	}
	return nil
}

// cleanup tears the session down exactly once: unregister first so no new
// broadcast can target the dead handle, then leave every joined room. The
// courtesy exit notices run concurrently on a fresh context because the
// request context is typically already canceled at this point; failures are
// swallowed.
func (s *Session) cleanup() {
	s.registry.Unregister(s.id)

	ctx := context.Background()
	var wg sync.WaitGroup
	for roomID := range s.joined {
		wg.Add(1)
		go func(roomID string) {
			defer wg.Done()
			if remaining := s.rooms.Leave(roomID, s.id); remaining > 0 {
				s.caster.Broadcast(ctx, roomID, Message{
					Action:  ActionExitRoom,
					RoomID:  roomID,
					Payload: s.id,
				})
			}
		}(roomID)
	}
	wg.Wait()
	s.log.Debug("session.closed")
}
