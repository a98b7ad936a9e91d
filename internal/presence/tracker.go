// Package presence tracks which participant is active in which room.
// State is purely in-memory and scoped to one Tracker instance; the
// tracker is constructed once per process and injected where needed.
package presence

import (
	"sort"
	"sync"
)

// Tracker is a bidirectional room<->handle map enforcing the
// single-active-room invariant: a handle is present in at most one
// room at any instant.
type Tracker struct {
	mu      sync.Mutex
	rooms   map[int64]map[string]struct{}
	current map[string]int64
}

// NewTracker constructs an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{
		rooms:   make(map[int64]map[string]struct{}),
		current: make(map[string]int64),
	}
}

// Join places handle into roomID. If the handle was present in another
// room it is removed from there first, and that room's ID is returned so
// the caller can broadcast a departure. The second return is false when
// this is the handle's first join.
func (t *Tracker) Join(roomID int64, handle string) (previousRoom int64, switched bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if prev, ok := t.current[handle]; ok {
		if prev == roomID {
			return 0, false
		}
		t.removeLocked(prev, handle)
		previousRoom, switched = prev, true
	}

	members, ok := t.rooms[roomID]
	if !ok {
		members = make(map[string]struct{})
		t.rooms[roomID] = members
	}
	members[handle] = struct{}{}
	t.current[handle] = roomID

	return previousRoom, switched
}

// Leave removes handle from roomID. Returns whether it was present.
// The last occupant leaving deletes the room's presence set.
func (t *Tracker) Leave(roomID int64, handle string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.current[handle]; !ok || cur != roomID {
		return false
	}
	t.removeLocked(roomID, handle)
	delete(t.current, handle)
	return true
}

// MembersOf returns a sorted copy of the room's member handles.
// Unknown or empty rooms yield an empty slice, never an error.
func (t *Tracker) MembersOf(roomID int64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	members := make([]string, 0, len(t.rooms[roomID]))
	for handle := range t.rooms[roomID] {
		members = append(members, handle)
	}
	sort.Strings(members)
	return members
}

// CurrentRoomOf returns the room the handle is active in, if any.
func (t *Tracker) CurrentRoomOf(handle string) (int64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	roomID, ok := t.current[handle]
	return roomID, ok
}

// Clear empties a room's presence set and returns the handles that were
// evicted. Used when a room is deleted.
func (t *Tracker) Clear(roomID int64) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	evicted := make([]string, 0, len(t.rooms[roomID]))
	for handle := range t.rooms[roomID] {
		evicted = append(evicted, handle)
		delete(t.current, handle)
	}
	delete(t.rooms, roomID)
	sort.Strings(evicted)
	return evicted
}

// removeLocked drops handle from a room's set, pruning empty sets.
// Caller holds the mutex.
func (t *Tracker) removeLocked(roomID int64, handle string) {
	members, ok := t.rooms[roomID]
	if !ok {
		return
	}
	delete(members, handle)
	if len(members) == 0 {
		delete(t.rooms, roomID)
	}
}
