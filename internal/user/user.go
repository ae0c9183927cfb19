package user

import (
	"sync"
	"time"

	"whiteboard/internal/event"
)

// writeWait bounds a single frame write
const writeWait = 10 * time.Second

// Conn is the part of a websocket connection the relay writes to
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	SetWriteDeadline(t time.Time) error
	Close() error
}

// User represents a connected client
type User struct {
	ID          string
	DisplayName string
	Session     *Session
	Connection  Conn

	// a websocket allows one concurrent writer
	writeMu sync.Mutex
}

func New(id, displayName string, session *Session, conn Conn) *User {
	return &User{
		ID:          id,
		DisplayName: displayName,
		Session:     session,
		Connection:  conn,
	}
}

// WriteMessage: writes one frame, serialized with every other writer of this user
func (u *User) WriteMessage(messageType int, data []byte) error {
	u.writeMu.Lock()
	defer u.writeMu.Unlock()

	u.Connection.SetWriteDeadline(time.Now().Add(writeWait))
	return u.Connection.WriteMessage(messageType, data)
}

// Member: roster entry for this user with the given room color
func (u *User) Member(color string) event.Member {
	return event.Member{
		ID:          u.ID,
		DisplayName: u.DisplayName,
		Color:       color,
	}
}
