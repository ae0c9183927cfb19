package transport

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"whiteboard/internal/event"
)

// frameWriter is satisfied by *websocket.Conn and *user.User
type frameWriter interface {
	WriteMessage(messageType int, data []byte) error
}

// readSubscription: reads the subscribe frame that must open every connection
func readSubscription(conn *websocket.Conn, timeout time.Duration) (event.Subscription, error) {
	conn.SetReadDeadline(time.Now().Add(timeout))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		return event.Subscription{}, fmt.Errorf("failed to receive subscribe message: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	var msg event.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		return event.Subscription{}, fmt.Errorf("invalid subscribe message format: %w", err)
	}

	if msg.Kind != event.KindSubscribe {
		return event.Subscription{}, fmt.Errorf("expected subscribe message, got: %q", msg.Kind)
	}

	var sub event.Subscription
	if len(msg.Data) > 0 {
		if err := msg.Decode(&sub); err != nil {
			return event.Subscription{}, fmt.Errorf("invalid subscribe payload: %w", err)
		}
	}
	if sub.UserID == "" {
		sub.UserID = msg.UserID
	}
	return sub, nil
}

func writeFrame(w frameWriter, kind event.Kind, payload any) error {
	msg, err := event.NewMessage(kind, "", payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s frame: %w", kind, err)
	}
	return w.WriteMessage(websocket.TextMessage, data)
}

// writeFailure tells the client why it was turned away
func writeFailure(w frameWriter, cause error) {
	if c, ok := w.(*websocket.Conn); ok {
		c.SetWriteDeadline(time.Now().Add(writeWait))
	}
	if err := writeFrame(w, event.KindError, event.Failure{Error: cause.Error()}); err != nil {
		slog.Debug("failure frame not sent", "err", err)
	}
}
