package room

import (
	"errors"
	"sync"
	"time"

	"whiteboard/internal/middleware"
	"whiteboard/internal/user"
)

var (
	ErrRoomCodeMissing = errors.New("room code missing")
	ErrMaxRooms        = errors.New("server at maximum room capacity")
)

const (
	emptyRoomTTL = 1 * time.Hour
	roomMaxAge   = 24 * time.Hour
)

// Manager manages all rooms in the application
type Manager struct {
	rooms        map[string]*Room
	limits       *middleware.Limits
	synchronizer *Synchronizer
	mu           sync.RWMutex
}

// NewManager creates a new room manager
func NewManager(limits *middleware.Limits, synchronizer *Synchronizer) *Manager {
	return &Manager{
		rooms:        make(map[string]*Room),
		limits:       limits,
		synchronizer: synchronizer,
	}
}

// CreateRoom returns the room for roomCode, creating it if there is capacity
func (rm *Manager) CreateRoom(roomCode string) (*Room, error) {
	if roomCode == "" {
		return nil, ErrRoomCodeMissing
	}

	rm.mu.Lock()
	defer rm.mu.Unlock()

	if room, exists := rm.rooms[roomCode]; exists {
		return room, nil
	}

	if len(rm.rooms) >= rm.limits.Get().MaxRooms {
		return nil, ErrMaxRooms
	}
	room := newRoom(roomCode)
	rm.rooms[roomCode] = room
	return room, nil
}

// JoinRoom adds a user to a room, creating it if necessary, and pushes the
// new roster to everyone in it
func (rm *Manager) JoinRoom(roomCode string, u *user.User, color string, ack func(color string) error) (*Room, error) {
	room, err := rm.CreateRoom(roomCode)
	if err != nil {
		return nil, err
	}

	if _, err := room.Join(u, color, rm.limits.Get().MaxRoomSize, ack); err != nil {
		return nil, err
	}

	rm.synchronizer.SyncPresence(room)
	return room, nil
}

// LeaveRoom removes a user and pushes the new roster
func (rm *Manager) LeaveRoom(room *Room, u *user.User) {
	if room.Leave(u) {
		rm.synchronizer.SyncPresence(room)
	}
}

// Cleanup removes expired rooms
func (rm *Manager) Cleanup() {
	rm.cleanup(time.Now())
}

func (rm *Manager) cleanup(now time.Time) {
	rm.mu.Lock()
	defer rm.mu.Unlock()

	// Room removed if 1 hour empty or 24 hours old
	for code, room := range rm.rooms {
		room.mu.RLock()
		empty := len(room.Connections) == 0
		inactive := now.Sub(room.LastActive) > emptyRoomTTL
		expired := now.Sub(room.CreatedAt) > roomMaxAge
		room.mu.RUnlock()

		if (inactive && empty) || expired {
			delete(rm.rooms, code)
		}
	}
}

// GetRoom: checks if a room exists and returns it
func (rm *Manager) GetRoom(roomCode string) (*Room, bool) {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	room, exists := rm.rooms[roomCode]
	return room, exists
}

// RoomCount returns the total number of rooms
func (rm *Manager) RoomCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	return len(rm.rooms)
}

// ClientCount returns the number of connected users across all rooms
func (rm *Manager) ClientCount() int {
	rm.mu.RLock()
	defer rm.mu.RUnlock()

	n := 0
	for _, room := range rm.rooms {
		n += room.ConnectionCount()
	}
	return n
}
