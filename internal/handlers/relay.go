package handlers

import (
	"encoding/json"
	"fmt"

	"whiteboard/internal/event"
	"whiteboard/internal/room"
	"whiteboard/internal/user"
)

// relay stamps a validated payload with the relay's id, time and sender and
// sends it to everyone else in the room
type relay struct {
	validator   PayloadValidator
	broadcaster Broadcaster
	syncer      PresenceSyncer
}

func (r *relay) forward(rm *room.Room, u *user.User, in event.Message) error {
	data, err := r.validator.ValidateAndSanitize(in.Kind, in.Data, u.ID)
	if err != nil {
		return fmt.Errorf("%s validation failed: %w", in.Kind, err)
	}

	out, err := event.NewMessage(in.Kind, u.ID, data)
	if err != nil {
		return err
	}

	msg, err := json.Marshal(out)
	if err != nil {
		return fmt.Errorf("marshal broadcast message: %w", err)
	}

	rm.Touch()
	if failed := r.broadcaster.Broadcast(rm, msg, u); len(failed) > 0 {
		r.syncer.SyncPresence(rm)
	}
	return nil
}
