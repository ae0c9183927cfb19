// Package presence tracks the roster of connected participants and decides
// which remote cursors are shown.
package presence

import (
	"sort"

	"whiteboard/internal/coords"
	"whiteboard/internal/event"
	"whiteboard/internal/user"
)

// DefaultDisplayName is shown for participants that did not supply a name
const DefaultDisplayName = "Anonymous"

// Participant is one connected user
type Participant struct {
	ID              string
	DisplayName     string
	Color           string
	LastKnownCursor *coords.Point
}

// CursorMap holds the last known cursor position per participant id.
// Last write wins.
type CursorMap map[string]coords.Point

// CursorView is a remote cursor ready to be drawn
type CursorView struct {
	UserID      string
	DisplayName string
	Color       string
	X           float64
	Y           float64
}

// Tracker holds the latest roster snapshot. It is not safe for concurrent
// use; the dispatcher owns it.
type Tracker struct {
	localID      string
	participants map[string]Participant
}

// NewTracker creates a tracker for the local user localID
func NewTracker(localID string) *Tracker {
	return &Tracker{
		localID:      localID,
		participants: make(map[string]Participant),
	}
}

// LocalID returns the id of the local user
func (t *Tracker) LocalID() string {
	return t.localID
}

// Replace swaps the roster for the given snapshot
func (t *Tracker) Replace(members []event.Member) {
	next := make(map[string]Participant, len(members))
	for _, m := range members {
		if m.ID == "" {
			continue
		}
		p := Participant{
			ID:          m.ID,
			DisplayName: m.DisplayName,
			Color:       m.Color,
		}
		if p.DisplayName == "" {
			p.DisplayName = DefaultDisplayName
		}
		if p.Color == "" {
			p.Color = user.DefaultColor()
		}
		next[m.ID] = p
	}
	t.participants = next
}

// Participant looks up a participant in the latest snapshot
func (t *Tracker) Participant(id string) (Participant, bool) {
	p, ok := t.participants[id]
	return p, ok
}

// Len returns the roster size
func (t *Tracker) Len() int {
	return len(t.participants)
}

// Roster returns the participants ordered by id, with their last known
// cursor filled in from cursors
func (t *Tracker) Roster(cursors CursorMap) []Participant {
	out := make([]Participant, 0, len(t.participants))
	for _, p := range t.participants {
		if pos, ok := cursors[p.ID]; ok {
			p.LastKnownCursor = &pos
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ShowsCursor reports whether a cursor for id should be rendered: the id must
// be in the roster and must not be the local user
func (t *Tracker) ShowsCursor(id string) bool {
	if id == t.localID {
		return false
	}
	_, ok := t.participants[id]
	return ok
}

// VisibleCursors filters cursors against the roster. Entries for users that
// left stay in the map but are not returned.
func (t *Tracker) VisibleCursors(cursors CursorMap) []CursorView {
	out := make([]CursorView, 0, len(cursors))
	for id, pos := range cursors {
		if !t.ShowsCursor(id) {
			continue
		}
		p := t.participants[id]
		out = append(out, CursorView{
			UserID:      id,
			DisplayName: p.DisplayName,
			Color:       p.Color,
			X:           pos.X,
			Y:           pos.Y,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
