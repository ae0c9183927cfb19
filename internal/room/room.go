package room

import (
	"errors"
	"sort"
	"sync"
	"time"

	"whiteboard/internal/event"
	"whiteboard/internal/user"
)

var ErrRoomFull = errors.New("room is full")

// Room represents one named whiteboard channel on the relay
type Room struct {
	Code           string
	Connections    map[string]*user.User
	UserColors     map[string]string // userID → color (room-specific)
	colorGenerator *user.ColorGenerator
	LastActive     time.Time
	CreatedAt      time.Time
	mu             sync.RWMutex
}

func newRoom(code string) *Room {
	now := time.Now()
	return &Room{
		Code:           code,
		Connections:    make(map[string]*user.User),
		UserColors:     make(map[string]string),
		colorGenerator: user.NewColorGenerator(),
		LastActive:     now,
		CreatedAt:      now,
	}
}

// Join: adds user to room and settles its color. ack runs before the user is
// visible to broadcasts, so the user's first frame is always the ack.
func (r *Room) Join(u *user.User, color string, maxRoomSize int, ack func(color string) error) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev, rejoin := r.Connections[u.ID]
	if !rejoin && len(r.Connections) >= maxRoomSize {
		return "", ErrRoomFull
	}

	switch {
	case color != "":
		r.UserColors[u.ID] = color
	case r.UserColors[u.ID] == "":
		r.UserColors[u.ID] = r.colorGenerator.NextColor()
	}
	color = r.UserColors[u.ID]

	if ack != nil {
		if err := ack(color); err != nil {
			return "", err
		}
	}

	// same id on a new connection takes over
	if rejoin && prev != u {
		prev.Connection.Close()
	}
	r.Connections[u.ID] = u
	r.LastActive = time.Now()

	return color, nil
}

// Leave: remove user from room. A connection that was taken over is a no-op.
func (r *Room) Leave(u *user.User) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.Connections[u.ID] != u {
		return false
	}
	delete(r.Connections, u.ID)
	r.LastActive = time.Now()
	return true
}

// Touch: marks the room active
func (r *Room) Touch() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.LastActive = time.Now()
}

// ConnectionCount: returns number of connections in room
func (r *Room) ConnectionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.Connections)
}

// GetConnections: returns snapshot of current connections (for broadcasting)
func (r *Room) GetConnections() map[string]*user.User {
	r.mu.RLock()
	defer r.mu.RUnlock()

	snapshot := make(map[string]*user.User, len(r.Connections))
	for k, v := range r.Connections {
		snapshot[k] = v
	}
	return snapshot
}

// RemoveConnection: removes user connection from room (cleanup after failed broadcast)
func (r *Room) RemoveConnection(u *user.User) {
	r.Leave(u)
}

// GetUserColor: returns the user's color in this room
func (r *Room) GetUserColor(userID string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.UserColors[userID]
}

// Members: the roster, sorted by id
func (r *Room) Members() []event.Member {
	r.mu.RLock()
	defer r.mu.RUnlock()

	members := make([]event.Member, 0, len(r.Connections))
	for id, u := range r.Connections {
		members = append(members, u.Member(r.UserColors[id]))
	}
	sort.Slice(members, func(i, j int) bool { return members[i].ID < members[j].ID })
	return members
}
