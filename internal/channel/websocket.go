package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"whiteboard/internal/event"
)

const (
	// handshakeTimeout bounds the wait for the relay's subscribe reply
	handshakeTimeout = 5 * time.Second

	// writeWait is the deadline for one outgoing frame
	writeWait = 10 * time.Second

	// sendBufSize is the outgoing message buffer depth
	sendBufSize = 64
)

// WebSocket is a Channel connected to the relay over a websocket
type WebSocket struct {
	handlers

	url    string
	dialer *websocket.Dialer

	mu   sync.Mutex
	self event.Member
	cur  *wsConn
}

var _ Channel = (*WebSocket)(nil)

// wsConn is the state of one live connection
type wsConn struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
	wg   sync.WaitGroup
}

func (c *wsConn) close() {
	c.once.Do(func() { close(c.done) })
}

// NewWebSocket creates a channel handle for name on the relay at baseURL
// (ws:// or wss://)
func NewWebSocket(baseURL, name string) *WebSocket {
	return &WebSocket{
		url:    strings.TrimRight(baseURL, "/") + "/ws/" + url.PathEscape(name),
		dialer: websocket.DefaultDialer,
	}
}

// URL returns the websocket endpoint of the channel
func (w *WebSocket) URL() string {
	return w.url
}

// Self returns the member as acknowledged by the relay
func (w *WebSocket) Self() event.Member {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.self
}

// Subscribe dials the relay and performs the subscribe handshake
func (w *WebSocket) Subscribe(ctx context.Context, self event.Member) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cur != nil {
		return ErrAlreadySubscribed
	}

	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}

	ack, err := handshake(conn, self)
	if err != nil {
		conn.Close()
		return err
	}

	self.ID = ack.UserID
	if ack.Color != "" {
		self.Color = ack.Color
	}
	w.self = self

	c := &wsConn{
		conn: conn,
		send: make(chan []byte, sendBufSize),
		done: make(chan struct{}),
	}
	w.cur = c

	c.wg.Add(2)
	go w.readPump(c)
	go w.writePump(c)
	return nil
}

// Publish queues one message for the relay. It never waits for delivery.
func (w *WebSocket) Publish(_ context.Context, kind event.Kind, payload any) error {
	w.mu.Lock()
	c, self := w.cur, w.self
	w.mu.Unlock()

	if c == nil {
		return ErrNotSubscribed
	}

	msg, err := event.NewMessage(kind, self.ID, payload)
	if err != nil {
		return err
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("marshal %s message: %w", kind, err)
	}

	select {
	case <-c.done:
		return ErrNotSubscribed
	default:
	}

	select {
	case c.send <- data:
		return nil
	default:
		return ErrBackpressure
	}
}

// Unsubscribe closes the connection and waits for its pumps to exit
func (w *WebSocket) Unsubscribe(ctx context.Context) error {
	w.mu.Lock()
	c := w.cur
	w.cur = nil
	w.mu.Unlock()

	if c == nil {
		return ErrNotSubscribed
	}
	c.close()

	stopped := make(chan struct{})
	go func() {
		c.wg.Wait()
		close(stopped)
	}()

	select {
	case <-stopped:
		return nil
	case <-ctx.Done():
		c.conn.Close()
		return ctx.Err()
	}
}

// handshake sends the subscribe frame and waits for the relay's answer
func handshake(conn *websocket.Conn, self event.Member) (event.Subscribed, error) {
	hello, err := event.NewMessage(event.KindSubscribe, self.ID, event.Subscription{
		UserID:   self.ID,
		Metadata: self.Metadata(),
	})
	if err != nil {
		return event.Subscribed{}, err
	}

	conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := conn.WriteJSON(hello); err != nil {
		return event.Subscribed{}, fmt.Errorf("send subscribe: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(handshakeTimeout))
	var reply event.Message
	if err := conn.ReadJSON(&reply); err != nil {
		return event.Subscribed{}, fmt.Errorf("read subscribe reply: %w", err)
	}
	conn.SetReadDeadline(time.Time{})

	switch reply.Kind {
	case event.KindSubscribed:
		var ack event.Subscribed
		if err := reply.Decode(&ack); err != nil {
			return event.Subscribed{}, fmt.Errorf("decode subscribe reply: %w", err)
		}
		return ack, nil
	case event.KindError:
		var failure event.Failure
		if err := reply.Decode(&failure); err != nil {
			return event.Subscribed{}, fmt.Errorf("subscribe rejected")
		}
		return event.Subscribed{}, fmt.Errorf("subscribe rejected: %s", failure.Error)
	default:
		return event.Subscribed{}, fmt.Errorf("unexpected subscribe reply: %s", reply.Kind)
	}
}

// readPump routes inbound frames to the registered handlers until the
// connection closes
func (w *WebSocket) readPump(c *wsConn) {
	defer func() {
		c.close()
		c.wg.Done()
		w.detach(c)
	}()

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.done:
			default:
				slog.Warn("channel connection lost", "url", w.url, "err", err)
			}
			return
		}

		var msg event.Message
		if err := json.Unmarshal(data, &msg); err != nil {
			continue
		}

		if msg.Kind == event.KindPresence {
			var members []event.Member
			if err := msg.Decode(&members); err != nil {
				continue
			}
			w.emitPresence(members)
			continue
		}
		w.emitMessage(msg)
	}
}

// writePump drains the send buffer onto the connection
func (w *WebSocket) writePump(c *wsConn) {
	defer func() {
		c.conn.Close()
		c.wg.Done()
	}()

	for {
		select {
		case data := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				c.close()
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")) //nolint:errcheck
			return
		}
	}
}

// detach forgets c if it is still the current connection
func (w *WebSocket) detach(c *wsConn) {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.cur == c {
		w.cur = nil
	}
}
