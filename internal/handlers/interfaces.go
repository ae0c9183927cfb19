package handlers

import (
	"encoding/json"

	"whiteboard/internal/event"
	"whiteboard/internal/room"
	"whiteboard/internal/user"
)

// Broadcaster defines the broadcast operation for sending messages to room users
type Broadcaster interface {
	Broadcast(rm room.RoomConnections, msg []byte, sender *user.User) []*user.User
}

// PresenceSyncer pushes the roster after membership changed
type PresenceSyncer interface {
	SyncPresence(rm *room.Room)
}

// PayloadValidator checks and sanitizes an inbound payload for its kind
type PayloadValidator interface {
	ValidateAndSanitize(kind event.Kind, data json.RawMessage, userID string) (json.RawMessage, error)
}
