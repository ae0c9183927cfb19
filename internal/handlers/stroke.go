package handlers

import (
	"whiteboard/internal/event"
	"whiteboard/internal/room"
	"whiteboard/internal/user"
)

// StrokeHandler: relays draw segments and clears
type StrokeHandler struct {
	relay
}

func NewStrokeHandler(validator PayloadValidator, broadcaster Broadcaster, syncer PresenceSyncer) *StrokeHandler {
	return &StrokeHandler{relay{validator: validator, broadcaster: broadcaster, syncer: syncer}}
}

// Handle: draw and clear messages. Nothing is stored; the relay keeps no
// drawing history.
func (h *StrokeHandler) Handle(rm *room.Room, u *user.User, msg event.Message) error {
	return h.forward(rm, u, msg)
}
