package event

import (
	"encoding/json"
	"fmt"
	"time"

	"whiteboard/internal/idgen"
)

// Kind names the type of a channel message
type Kind string

const (
	KindDraw   Kind = "draw"
	KindCursor Kind = "cursor"
	KindClear  Kind = "clear"

	// Control frames exchanged between a client channel and the relay
	KindPresence   Kind = "presence"
	KindSubscribe  Kind = "subscribe"
	KindSubscribed Kind = "subscribed"
	KindError      Kind = "error"
)

// Metadata keys carried on subscribe
const (
	MetaDisplayName = "displayName"
	MetaColor       = "color"
)

// DrawingEvent is one stroke segment, cursor sample or clear command.
// A draw without PrevX/PrevY marks the start of a stroke.
type DrawingEvent struct {
	Kind      Kind     `json:"kind"`
	X         float64  `json:"x"`
	Y         float64  `json:"y"`
	PrevX     *float64 `json:"prevX,omitempty"`
	PrevY     *float64 `json:"prevY,omitempty"`
	Color     string   `json:"color"`
	Timestamp int64    `json:"timestamp"`
	UserID    string   `json:"userId"`
}

// HasPrev reports whether the event carries a previous point
func (e DrawingEvent) HasPrev() bool {
	return e.PrevX != nil && e.PrevY != nil
}

// Cursor is the payload of a cursor message
type Cursor struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	UserID string  `json:"userId"`
}

// Member is one roster entry as seen by the transport
type Member struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName,omitempty"`
	Color       string `json:"color,omitempty"`
}

// Metadata returns the member's display data as subscribe metadata
func (m Member) Metadata() map[string]string {
	md := make(map[string]string, 2)
	if m.DisplayName != "" {
		md[MetaDisplayName] = m.DisplayName
	}
	if m.Color != "" {
		md[MetaColor] = m.Color
	}
	return md
}

// Message is the transport envelope around a payload
type Message struct {
	ID        string            `json:"id"`
	Kind      Kind              `json:"kind"`
	Data      json.RawMessage   `json:"data,omitempty"`
	Timestamp int64             `json:"timestamp"`
	UserID    string            `json:"userId"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// NewMessage wraps payload in an envelope stamped with a fresh id and time
func NewMessage(kind Kind, userID string, payload any) (Message, error) {
	msg := Message{
		ID:        idgen.NewULID(),
		Kind:      kind,
		Timestamp: Now(),
		UserID:    userID,
	}

	if payload != nil {
		switch p := payload.(type) {
		case json.RawMessage:
			msg.Data = p
		default:
			data, err := json.Marshal(payload)
			if err != nil {
				return Message{}, fmt.Errorf("marshal %s payload: %w", kind, err)
			}
			msg.Data = data
		}
	}

	return msg, nil
}

// Decode unmarshals the payload into v
func (m Message) Decode(v any) error {
	if len(m.Data) == 0 {
		return fmt.Errorf("empty %s payload", m.Kind)
	}
	return json.Unmarshal(m.Data, v)
}

// Now returns the current time in Unix milliseconds
func Now() int64 {
	return time.Now().UnixMilli()
}

// Subscription is the payload of the subscribe frame
type Subscription struct {
	UserID   string            `json:"userId"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Member builds the roster entry described by the subscription
func (s Subscription) Member() Member {
	return Member{
		ID:          s.UserID,
		DisplayName: s.Metadata[MetaDisplayName],
		Color:       s.Metadata[MetaColor],
	}
}

// Subscribed acknowledges a subscription
type Subscribed struct {
	UserID string `json:"userId"`
	Color  string `json:"color"`
}

// Failure carries an error back to a client
type Failure struct {
	Error string `json:"error"`
}
