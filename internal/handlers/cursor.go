package handlers

import (
	"whiteboard/internal/event"
	"whiteboard/internal/room"
	"whiteboard/internal/user"
)

// CursorHandler handles cursor position update messages
type CursorHandler struct {
	relay
}

// NewCursorHandler creates a new cursor handler with dependencies
func NewCursorHandler(validator PayloadValidator, broadcaster Broadcaster, syncer PresenceSyncer) *CursorHandler {
	return &CursorHandler{relay{validator: validator, broadcaster: broadcaster, syncer: syncer}}
}

// Handle relays a cursor position. The relay keeps no cursor state.
func (h *CursorHandler) Handle(rm *room.Room, u *user.User, msg event.Message) error {
	return h.forward(rm, u, msg)
}
