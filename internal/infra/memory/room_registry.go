package memory

import (
	"sync"

	"tutor-live-service/internal/app"
	"tutor-live-service/internal/domain"
	"tutor-live-service/internal/metrics"
)

// RoomRegistry is an in-memory implementation of app.RoomRegistry. The lock
// only covers the maps; room state is guarded by each room's own mutex.
type RoomRegistry struct {
	mu      sync.RWMutex
	rooms   map[string]*app.Room
	handles map[string]string
}

func NewRoomRegistry() *RoomRegistry {
	return &RoomRegistry{
		rooms:   make(map[string]*app.Room),
		handles: make(map[string]string),
	}
}

// CreateRoom installs a fresh room, replacing any room with the same code.
func (r *RoomRegistry) CreateRoom(roomID, ownerID string, set domain.QuestionSet) *app.Room {
	room := app.NewRoom(roomID, ownerID, set)
	r.mu.Lock()
	r.rooms[roomID] = room
	n := len(r.rooms)
	r.mu.Unlock()
	metrics.SetRoomsActive(n)
	return room
}

func (r *RoomRegistry) Get(roomID string) (*app.Room, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	room, ok := r.rooms[roomID]
	return room, ok
}

// Exists reports whether roomID maps to a room that is still open. A room
// closed but not yet removed counts as gone.
func (r *RoomRegistry) Exists(roomID string) bool {
	room, ok := r.Get(roomID)
	return ok && !room.Closed()
}

func (r *RoomRegistry) Remove(roomID string) {
	r.mu.Lock()
	delete(r.rooms, roomID)
	n := len(r.rooms)
	r.mu.Unlock()
	metrics.SetRoomsActive(n)
}

// RemoveRoom deletes room only while its code still maps to it.
func (r *RoomRegistry) RemoveRoom(room *app.Room) bool {
	if room == nil {
		return false
	}
	r.mu.Lock()
	current, ok := r.rooms[room.ID()]
	if ok && current == room {
		delete(r.rooms, room.ID())
	}
	n := len(r.rooms)
	r.mu.Unlock()
	metrics.SetRoomsActive(n)
	return ok && current == room
}

// Bind points handle at roomID and returns the room it was bound to before.
func (r *RoomRegistry) Bind(handle, roomID string) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	previous := r.handles[handle]
	r.handles[handle] = roomID
	return previous
}

func (r *RoomRegistry) RoomOf(handle string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	roomID, ok := r.handles[handle]
	return roomID, ok
}

// Unbind drops the binding of handle if it still points at roomID.
func (r *RoomRegistry) Unbind(handle, roomID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.handles[handle] == roomID {
		delete(r.handles, handle)
	}
}

func (r *RoomRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// RoomIDs lists live room codes.
func (r *RoomRegistry) RoomIDs() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.rooms))
	for id := range r.rooms {
		out = append(out, id)
	}
	return out
}
