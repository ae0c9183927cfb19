package transport_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/channel"
	"whiteboard/internal/event"
	"whiteboard/internal/middleware"
	"whiteboard/internal/transport"
)

const waitFor = 2 * time.Second

type inbox struct {
	mu       sync.Mutex
	messages []event.Message
	roster   []event.Member
}

func (in *inbox) attach(ch channel.Channel) {
	ch.OnMessage(func(m event.Message) {
		in.mu.Lock()
		defer in.mu.Unlock()
		in.messages = append(in.messages, m)
	})
	ch.OnPresence(func(members []event.Member) {
		in.mu.Lock()
		defer in.mu.Unlock()
		in.roster = members
	})
}

func (in *inbox) ids() []string {
	in.mu.Lock()
	defer in.mu.Unlock()
	var out []string
	for _, m := range in.roster {
		out = append(out, m.ID)
	}
	return out
}

func (in *inbox) received() []event.Message {
	in.mu.Lock()
	defer in.mu.Unlock()
	return append([]event.Message(nil), in.messages...)
}

func newRelay(t *testing.T, rl middleware.RateLimit) *httptest.Server {
	t.Helper()
	_, ts := startRelay(t, rl)
	return ts
}

func startRelay(t *testing.T, rl middleware.RateLimit) (*transport.Server, *httptest.Server) {
	t.Helper()
	srv := transport.NewServer(
		[]string{"https://board.example"},
		middleware.NewLimits(rl),
		middleware.NewIPRateLimitWith(time.Millisecond, 100),
	)
	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return srv, ts
}

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func subscribe(t *testing.T, ts *httptest.Server, self event.Member) (*channel.WebSocket, *inbox) {
	t.Helper()
	ch := channel.NewWebSocket(wsURL(ts), "board")
	in := &inbox{}
	in.attach(ch)
	require.NoError(t, ch.Subscribe(context.Background(), self))
	t.Cleanup(func() { ch.Unsubscribe(context.Background()) })
	return ch, in
}

func TestRelay_PresenceAndBroadcast(t *testing.T) {
	ts := newRelay(t, middleware.DefaultRateLimit())
	ctx := context.Background()

	a, aIn := subscribe(t, ts, event.Member{ID: "a", DisplayName: "Ada", Color: "#FF0000"})
	_, bIn := subscribe(t, ts, event.Member{ID: "b"})

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"a", "b"}, aIn.ids()) &&
			assert.ObjectsAreEqual([]string{"a", "b"}, bIn.ids())
	}, waitFor, 10*time.Millisecond)

	prev := 10.0
	require.NoError(t, a.Publish(ctx, event.KindDraw, event.DrawingEvent{
		Kind: event.KindDraw, X: 20, Y: 20, PrevX: &prev, PrevY: &prev, Color: "#FF0000", UserID: "a",
	}))

	assert.Eventually(t, func() bool { return len(bIn.received()) == 1 }, waitFor, 10*time.Millisecond)
	got := bIn.received()[0]
	assert.Equal(t, event.KindDraw, got.Kind)
	assert.Equal(t, "a", got.UserID)

	var ev event.DrawingEvent
	require.NoError(t, got.Decode(&ev))
	assert.Equal(t, "#FF0000", ev.Color)
	require.True(t, ev.HasPrev())
	assert.Equal(t, 10.0, *ev.PrevX)

	time.Sleep(50 * time.Millisecond)
	assert.Empty(t, aIn.received(), "no echo to the sender")
}

func TestRelay_AssignsIdentity(t *testing.T) {
	ts := newRelay(t, middleware.DefaultRateLimit())

	ch, _ := subscribe(t, ts, event.Member{DisplayName: "Anon"})

	self := ch.Self()
	assert.NotEmpty(t, self.ID, "relay assigns an id")
	assert.NotEmpty(t, self.Color, "relay assigns a room color")
}

func TestRelay_LeaveUpdatesRoster(t *testing.T) {
	ts := newRelay(t, middleware.DefaultRateLimit())

	_, aIn := subscribe(t, ts, event.Member{ID: "a"})
	b := channel.NewWebSocket(wsURL(ts), "board")
	require.NoError(t, b.Subscribe(context.Background(), event.Member{ID: "b"}))

	assert.Eventually(t, func() bool { return len(aIn.ids()) == 2 }, waitFor, 10*time.Millisecond)

	require.NoError(t, b.Unsubscribe(context.Background()))
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"a"}, aIn.ids())
	}, waitFor, 10*time.Millisecond)
}

func TestRelay_TakeoverKeepsSession(t *testing.T) {
	srv, ts := startRelay(t, middleware.DefaultRateLimit())
	ctx := context.Background()

	first := channel.NewWebSocket(wsURL(ts), "board")
	require.NoError(t, first.Subscribe(ctx, event.Member{ID: "dup"}))
	t.Cleanup(func() { first.Unsubscribe(ctx) })

	second, _ := subscribe(t, ts, event.Member{ID: "dup"})
	_, watcher := subscribe(t, ts, event.Member{ID: "w"})

	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"dup", "w"}, watcher.ids())
	}, waitFor, 10*time.Millisecond)

	// the replaced connection tears down without dropping the live session
	assert.Never(t, func() bool {
		_, ok := srv.Sessions().Get("dup")
		return !ok
	}, 300*time.Millisecond, 10*time.Millisecond)

	session, ok := srv.Sessions().Get("dup")
	require.True(t, ok)
	rl := middleware.DefaultRateLimit()
	rl.DrawBurst = 3
	srv.ApplyLimits(rl)
	assert.Equal(t, 3, session.DrawLimiter.Burst(), "hot reload reaches the live connection")

	require.NoError(t, second.Unsubscribe(ctx))
	assert.Eventually(t, func() bool {
		_, ok := srv.Sessions().Get("dup")
		return !ok
	}, waitFor, 10*time.Millisecond)
	assert.Eventually(t, func() bool {
		return assert.ObjectsAreEqual([]string{"w"}, watcher.ids())
	}, waitFor, 10*time.Millisecond)
}

func TestRelay_SubscribeRejected(t *testing.T) {
	rl := middleware.DefaultRateLimit()
	rl.MaxRoomSize = 1
	ts := newRelay(t, rl)

	subscribe(t, ts, event.Member{ID: "a"})

	tests := []struct {
		name    string
		self    event.Member
		wantErr string
	}{
		{name: "room full", self: event.Member{ID: "b"}, wantErr: "room is full"},
		{name: "bad color", self: event.Member{ID: "c", Color: "red"}, wantErr: "hex"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch := channel.NewWebSocket(wsURL(ts), "board")
			err := ch.Subscribe(context.Background(), tt.self)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestRelay_RequiresSubscribeFirst(t *testing.T) {
	ts := newRelay(t, middleware.DefaultRateLimit())

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts)+"/ws/board", nil)
	require.NoError(t, err)
	defer conn.Close()

	msg, err := event.NewMessage(event.KindDraw, "x", nil)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))

	var reply event.Message
	require.NoError(t, conn.ReadJSON(&reply))
	assert.Equal(t, event.KindError, reply.Kind)

	var failure event.Failure
	require.NoError(t, reply.Decode(&failure))
	assert.Contains(t, failure.Error, "expected subscribe")
}

func TestRelay_OriginCheck(t *testing.T) {
	ts := newRelay(t, middleware.DefaultRateLimit())

	tests := []struct {
		name   string
		origin string
		ok     bool
	}{
		{name: "allowed domain", origin: "https://board.example", ok: true},
		{name: "foreign domain", origin: "https://evil.example", ok: false},
		{name: "no origin", origin: "", ok: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.origin != "" {
				header.Set("Origin", tt.origin)
			}

			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(ts)+"/ws/board", header)
			if tt.ok {
				require.NoError(t, err)
				conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestRelay_IPLimit(t *testing.T) {
	srv := transport.NewServer(nil, middleware.NewLimits(middleware.DefaultRateLimit()), middleware.NewIPRateLimitWith(time.Hour, 1))
	ts := httptest.NewServer(srv.Routes())
	defer ts.Close()

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts)+"/ws/board", nil)
	require.NoError(t, err)
	conn.Close()

	_, resp, err := websocket.DefaultDialer.Dial(wsURL(ts)+"/ws/board", nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
}

func TestRelay_Health(t *testing.T) {
	ts := newRelay(t, middleware.DefaultRateLimit())
	subscribe(t, ts, event.Member{ID: "a"})

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Status  string `json:"status"`
		Rooms   int    `json:"rooms"`
		Clients int    `json:"clients"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, 1, body.Rooms)
	assert.Equal(t, 1, body.Clients)
}

func TestRelay_DropsOversizedMessages(t *testing.T) {
	rl := middleware.DefaultRateLimit()
	rl.MaxMessageSize = 300
	ts := newRelay(t, rl)
	ctx := context.Background()

	a, _ := subscribe(t, ts, event.Member{ID: "a"})
	_, bIn := subscribe(t, ts, event.Member{ID: "b"})

	big := map[string]any{"x": 1, "y": 1, "pad": strings.Repeat("p", 400)}
	require.NoError(t, a.Publish(ctx, event.KindCursor, big))
	require.NoError(t, a.Publish(ctx, event.KindCursor, event.Cursor{X: 2, Y: 3}))

	assert.Eventually(t, func() bool { return len(bIn.received()) == 1 }, waitFor, 10*time.Millisecond)
	var cur event.Cursor
	require.NoError(t, bIn.received()[0].Decode(&cur))
	assert.Equal(t, 2.0, cur.X)
}
