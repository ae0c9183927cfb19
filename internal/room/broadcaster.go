package room

import (
	"log/slog"
	"sync"

	"github.com/gorilla/websocket"

	"whiteboard/internal/user"
)

// RoomConnections: minimum interface for broadcasting
type RoomConnections interface {
	GetConnections() map[string]*user.User
	RemoveConnection(u *user.User)
}

// Broadcaster: handles broadcasting messages to room users
type Broadcaster struct{}

// NewBroadcaster: creates a new broadcaster
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Broadcast: sends a message to all users in a room except sender (nil sends
// to everyone). Users whose write fails are removed, closed and returned.
func (b *Broadcaster) Broadcast(rm RoomConnections, msg []byte, sender *user.User) []*user.User {
	connections := rm.GetConnections()

	users := make([]*user.User, 0, len(connections))
	for _, u := range connections {
		if u != sender {
			users = append(users, u)
		}
	}

	// Concurrent write to all users
	var wg sync.WaitGroup
	var mu sync.Mutex
	var failedUsers []*user.User

	for _, u := range users {
		wg.Add(1)
		go func(usr *user.User) {
			defer wg.Done()

			if err := usr.WriteMessage(websocket.TextMessage, msg); err != nil {
				slog.Warn("broadcast failed", "userId", usr.ID, "err", err)
				mu.Lock()
				failedUsers = append(failedUsers, usr)
				mu.Unlock()
			}
		}(u)
	}

	wg.Wait()

	for _, u := range failedUsers {
		rm.RemoveConnection(u)
		u.Connection.Close()
	}
	return failedUsers
}
