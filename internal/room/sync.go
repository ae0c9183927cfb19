package room

import (
	"encoding/json"
	"fmt"
	"log/slog"

	"whiteboard/internal/event"
)

// Synchronizer: keeps every member's roster in step with the room
type Synchronizer struct {
	broadcaster *Broadcaster
}

// NewSynchronizer: creates new synchronizer
func NewSynchronizer(broadcaster *Broadcaster) *Synchronizer {
	return &Synchronizer{broadcaster: broadcaster}
}

// SyncPresence sends the full roster to every member. A member that cannot
// be written to leaves the room, which changes the roster, so the snapshot
// is rebuilt until a round goes out clean.
func (s *Synchronizer) SyncPresence(rm *Room) {
	for {
		msg, err := presenceMessage(rm)
		if err != nil {
			slog.Error("presence sync failed", "room", rm.Code, "err", err)
			return
		}

		if failed := s.broadcaster.Broadcast(rm, msg, nil); len(failed) == 0 {
			return
		}
	}
}

// presenceMessage builds the presence frame for the current roster
func presenceMessage(rm *Room) ([]byte, error) {
	msg, err := event.NewMessage(event.KindPresence, "", rm.Members())
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal presence message: %w", err)
	}
	return data, nil
}
