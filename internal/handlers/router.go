package handlers

import (
	"encoding/json"
	"errors"
	"fmt"

	"whiteboard/internal/event"
	"whiteboard/internal/room"
	"whiteboard/internal/user"
)

var (
	ErrRateLimited = errors.New("rate limit exceeded")
	ErrUnknownKind = errors.New("unknown message kind")
)

// MessageRouter routes incoming messages to appropriate handlers
type MessageRouter struct {
	strokeHandler *StrokeHandler
	cursorHandler *CursorHandler
}

func NewMessageRouter(validator PayloadValidator, broadcaster Broadcaster, syncer PresenceSyncer) *MessageRouter {
	return &MessageRouter{
		strokeHandler: NewStrokeHandler(validator, broadcaster, syncer),
		cursorHandler: NewCursorHandler(validator, broadcaster, syncer),
	}
}

// Route: process a message via appropriate handler. Over-limit frames are
// dropped with ErrRateLimited.
func (mr *MessageRouter) Route(rm *room.Room, u *user.User, raw []byte) error {
	var msg event.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return fmt.Errorf("unmarshal base message: %w", err)
	}

	switch msg.Kind {
	case event.KindDraw, event.KindClear:
		if u.Session != nil && !u.Session.AllowDraw() {
			return ErrRateLimited
		}
		return mr.strokeHandler.Handle(rm, u, msg)
	case event.KindCursor:
		if u.Session != nil && !u.Session.AllowCursor() {
			return ErrRateLimited
		}
		return mr.cursorHandler.Handle(rm, u, msg)
	case "":
		return fmt.Errorf("missing message kind")
	default:
		return fmt.Errorf("%w: %s", ErrUnknownKind, msg.Kind)
	}
}
