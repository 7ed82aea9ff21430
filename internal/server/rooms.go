// Package server maintains room membership in the RoomIndex. Rooms exist
// implicitly: created on first join, deleted the moment the last member
// leaves.
package server

import (
	"sync"

	"github.com/samber/lo"
)

// RoomIndex maps room ids to their member session ids. Every mutation is
// atomic under the index's own lock, so a half-updated member set or an
// observable empty room never exists.
type RoomIndex struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{}
}

// NewRoomIndex returns an empty index.
func NewRoomIndex() *RoomIndex {
	return &RoomIndex{members: make(map[string]map[string]struct{})}
}

// Join adds sessionID to roomID, creating the room if absent.
func (r *RoomIndex) Join(roomID, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.members[roomID]
	if !exists {
		set = make(map[string]struct{})
		r.members[roomID] = set
	}
	set[sessionID] = struct{}{}
}

// Leave removes sessionID from roomID and reports how many members remain.
// The room is deleted in the same critical section when its set empties.
// Leaving an unknown room or a room not joined is a no-op returning 0.
func (r *RoomIndex) Leave(roomID, sessionID string) int {
	r.mu.Lock()
	defer r.mu.Unlock()

	set, exists := r.members[roomID]
	if !exists {
		return 0
	}
	delete(set, sessionID)
	if len(set) == 0 {
		delete(r.members, roomID)
		return 0
	}
	return len(set)
}

// Members returns a snapshot of roomID's member session ids, empty for an
// unknown room. The snapshot is independent of later mutations.
func (r *RoomIndex) Members(roomID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.members[roomID])
}

// RoomIDs lists all current room ids in unspecified order.
func (r *RoomIndex) RoomIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.members)
}

// Len reports the number of rooms with at least one member, which by
// construction is all of them.
func (r *RoomIndex) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}
