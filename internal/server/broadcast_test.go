package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// recordingHandle is a scriptable in-memory Handle. Frames pushed into
// inbound come out of Receive; closing inbound reads as a peer disconnect,
// or as receiveErr when one is set via fail.
type recordingHandle struct {
	mu         sync.Mutex
	sent       [][]byte
	sendErr    error
	receiveErr error
	inbound    chan []byte
}

func newRecordingHandle() *recordingHandle {
	return &recordingHandle{inbound: make(chan []byte, 16)}
}

func (h *recordingHandle) Send(_ context.Context, frame []byte) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.sendErr != nil {
		return h.sendErr
	}
	h.sent = append(h.sent, append([]byte(nil), frame...))
	return nil
}

func (h *recordingHandle) Receive() ([]byte, error) {
	frame, ok := <-h.inbound
	if !ok {
		if h.receiveErr != nil {
			return nil, h.receiveErr
		}
		return nil, ErrDisconnected
	}
	return frame, nil
}

func (h *recordingHandle) Close() error { return nil }

func (h *recordingHandle) push(frame string) { h.inbound <- []byte(frame) }

func (h *recordingHandle) disconnect() { close(h.inbound) }

// fail makes the next Receive report a transport fault instead of an
// orderly disconnect. The write is ordered before the channel close.
func (h *recordingHandle) fail(err error) {
	h.receiveErr = err
	close(h.inbound)
}

// stallingHandle never completes a send; it only gives up when the send
// context does. It stands in for a hung peer.
type stallingHandle struct{}

func (stallingHandle) Send(ctx context.Context, _ []byte) error {
	<-ctx.Done()
	return ctx.Err()
}

func (stallingHandle) Receive() ([]byte, error) { return nil, ErrDisconnected }
func (stallingHandle) Close() error             { return nil }

// sentMessages decodes every recorded envelope frame.
func (h *recordingHandle) sentMessages(t *testing.T) []Message {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()

	msgs := make([]Message, 0, len(h.sent))
	for _, frame := range h.sent {
		var msg Message
		require.NoError(t, json.Unmarshal(frame, &msg))
		msgs = append(msgs, msg)
	}
	return msgs
}

func (h *recordingHandle) sentRaw() [][]byte {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([][]byte(nil), h.sent...)
}

type relayFixture struct {
	registry *SessionRegistry
	rooms    *RoomIndex
	caster   *Broadcaster
	log      *slog.Logger
}

func newRelayFixture() *relayFixture {
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	registry := NewSessionRegistry()
	rooms := NewRoomIndex()
	return &relayFixture{
		registry: registry,
		rooms:    rooms,
		caster:   NewBroadcaster(registry, rooms, log, 2*time.Second),
		log:      log,
	}
}

// addMember registers a recording handle and joins it to the room directly,
// standing in for an already-connected peer.
func (f *relayFixture) addMember(t *testing.T, roomID string) (string, *recordingHandle) {
	t.Helper()
	id := uuid.NewString()
	handle := newRecordingHandle()
	require.NoError(t, f.registry.Register(id, handle))
	if roomID != "" {
		f.rooms.Join(roomID, id)
	}
	return id, handle
}

func TestBroadcast_ReachesExactlyRoomMembers(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()

	_, inRoomA := f.addMember(t, "general")
	_, inRoomB := f.addMember(t, "general")
	_, elsewhere := f.addMember(t, "random")
	_, roomless := f.addMember(t, "")

	msg := Message{Action: ActionMessage, RoomID: "general", Payload: "hi"}
	f.caster.Broadcast(context.Background(), "general", msg)

	req.Equal([]Message{msg}, inRoomA.sentMessages(t))
	req.Equal([]Message{msg}, inRoomB.sentMessages(t))
	req.Empty(elsewhere.sentRaw())
	req.Empty(roomless.sentRaw())
}

func TestBroadcast_EmptyRoomIsNoOp(t *testing.T) {
	f := newRelayFixture()

	// No members anywhere; must return promptly without error.
	f.caster.Broadcast(context.Background(), "ghost", Message{Action: ActionMessage, RoomID: "ghost"})
}

func TestBroadcast_OneFailureDoesNotBlockOthers(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()

	_, healthy := f.addMember(t, "general")
	_, broken := f.addMember(t, "general")
	broken.sendErr = errors.New("write frame: broken pipe")

	msg := Message{Action: ActionMessage, RoomID: "general", Payload: "hi"}
	f.caster.Broadcast(context.Background(), "general", msg)

	req.Equal([]Message{msg}, healthy.sentMessages(t))
	req.Empty(broken.sentRaw())
}

func TestBroadcast_StuckPeerDoesNotStallBatch(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()

	// Tight per-send timeout so the test observes the bound directly.
	f.caster = NewBroadcaster(f.registry, f.rooms, f.log, 100*time.Millisecond)

	stuckID := uuid.NewString()
	req.NoError(f.registry.Register(stuckID, stallingHandle{}))
	f.rooms.Join("general", stuckID)

	_, healthy := f.addMember(t, "general")

	msg := Message{Action: ActionMessage, RoomID: "general", Payload: "hi"}
	start := time.Now()
	f.caster.Broadcast(context.Background(), "general", msg)

	// The batch is bounded by the send timeout, not by the hung peer.
	req.Less(time.Since(start), time.Second)
	req.Equal([]Message{msg}, healthy.sentMessages(t))
}

func TestBroadcast_ToleratesUnregisteredMember(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()

	stale, _ := f.addMember(t, "general")
	_, live := f.addMember(t, "general")

	// Simulate a disconnect race: session gone from the registry but still
	// present in the membership snapshot.
	f.registry.Unregister(stale)

	msg := Message{Action: ActionMessage, RoomID: "general", Payload: "hi"}
	f.caster.Broadcast(context.Background(), "general", msg)

	req.Equal([]Message{msg}, live.sentMessages(t))
}

func TestUnicast_SurfacesFailure(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()

	id, handle := f.addMember(t, "")
	handle.sendErr = errors.New("write frame: broken pipe")

	err := f.caster.Unicast(context.Background(), id, Message{Action: ActionLogin, Payload: id})
	req.Error(err)
}

func TestUnicast_UnknownSession(t *testing.T) {
	f := newRelayFixture()

	err := f.caster.Unicast(context.Background(), uuid.NewString(), Message{Action: ActionLogin})
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestUnicast_Delivers(t *testing.T) {
	req := require.New(t)
	f := newRelayFixture()

	id, handle := f.addMember(t, "")
	msg := Message{Action: ActionListRooms, Payload: "general,random"}

	req.NoError(f.caster.Unicast(context.Background(), id, msg))
	req.Equal([]Message{msg}, handle.sentMessages(t))
}
