package room

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/event"
	"whiteboard/internal/middleware"
	"whiteboard/internal/user"
)

type mockConn struct {
	mu     sync.Mutex
	frames [][]byte
	fail   bool
	closed bool
}

func (m *mockConn) WriteMessage(_ int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fail {
		return errors.New("broken pipe")
	}
	m.frames = append(m.frames, data)
	return nil
}

func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) messages(t *testing.T) []event.Message {
	t.Helper()
	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]event.Message, 0, len(m.frames))
	for _, f := range m.frames {
		var msg event.Message
		require.NoError(t, json.Unmarshal(f, &msg))
		out = append(out, msg)
	}
	return out
}

func (m *mockConn) isClosed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

func newUser(id string) (*user.User, *mockConn) {
	conn := &mockConn{}
	return user.New(id, id, nil, conn), conn
}

func newManager(rl middleware.RateLimit) *Manager {
	return NewManager(middleware.NewLimits(rl), NewSynchronizer(NewBroadcaster()))
}

func lastRoster(t *testing.T, conn *mockConn) []string {
	t.Helper()
	var ids []string
	for _, msg := range conn.messages(t) {
		if msg.Kind != event.KindPresence {
			continue
		}
		var members []event.Member
		require.NoError(t, msg.Decode(&members))
		ids = ids[:0]
		for _, m := range members {
			ids = append(ids, m.ID)
		}
	}
	return ids
}

func TestRoom_JoinColors(t *testing.T) {
	r := newRoom("board")

	a, _ := newUser("a")
	b, _ := newUser("b")

	color, err := r.Join(a, "#FF0000", 10, nil)
	require.NoError(t, err)
	assert.Equal(t, "#FF0000", color)

	color, err = r.Join(b, "", 10, nil)
	require.NoError(t, err)
	assert.NotEmpty(t, color)
	assert.Equal(t, color, r.GetUserColor("b"))
}

func TestRoom_JoinFull(t *testing.T) {
	r := newRoom("board")
	a, _ := newUser("a")
	b, _ := newUser("b")

	_, err := r.Join(a, "", 1, nil)
	require.NoError(t, err)
	_, err = r.Join(b, "", 1, nil)
	assert.ErrorIs(t, err, ErrRoomFull)
	assert.Equal(t, 1, r.ConnectionCount())
}

func TestRoom_AckFailureKeepsUserOut(t *testing.T) {
	r := newRoom("board")
	a, _ := newUser("a")

	_, err := r.Join(a, "", 10, func(string) error { return errors.New("write failed") })
	assert.Error(t, err)
	assert.Equal(t, 0, r.ConnectionCount())
}

func TestRoom_Takeover(t *testing.T) {
	r := newRoom("board")
	first, firstConn := newUser("a")
	second, _ := newUser("a")

	_, err := r.Join(first, "", 1, nil)
	require.NoError(t, err)
	_, err = r.Join(second, "", 1, nil)
	require.NoError(t, err)

	assert.True(t, firstConn.isClosed())
	assert.False(t, r.Leave(first), "stale connection does not remove the new one")
	assert.Equal(t, 1, r.ConnectionCount())
	assert.True(t, r.Leave(second))
}

func TestBroadcaster_ExcludesSender(t *testing.T) {
	r := newRoom("board")
	a, aConn := newUser("a")
	b, bConn := newUser("b")
	c, cConn := newUser("c")
	for _, u := range []*user.User{a, b, c} {
		_, err := r.Join(u, "", 10, nil)
		require.NoError(t, err)
	}

	failed := NewBroadcaster().Broadcast(r, []byte(`{}`), a)

	assert.Empty(t, failed)
	assert.Empty(t, aConn.frames)
	assert.Len(t, bConn.frames, 1)
	assert.Len(t, cConn.frames, 1)
}

func TestBroadcaster_DropsFailedUsers(t *testing.T) {
	r := newRoom("board")
	a, _ := newUser("a")
	b, bConn := newUser("b")
	bConn.fail = true
	for _, u := range []*user.User{a, b} {
		_, err := r.Join(u, "", 10, nil)
		require.NoError(t, err)
	}

	failed := NewBroadcaster().Broadcast(r, []byte(`{}`), nil)

	require.Len(t, failed, 1)
	assert.Equal(t, "b", failed[0].ID)
	assert.True(t, bConn.isClosed())
	assert.Equal(t, 1, r.ConnectionCount())
}

func TestManager_PresenceOnJoinAndLeave(t *testing.T) {
	m := newManager(middleware.DefaultRateLimit())

	a, aConn := newUser("a")
	b, bConn := newUser("b")

	room, err := m.JoinRoom("board", a, "#FF0000", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, lastRoster(t, aConn))

	_, err = m.JoinRoom("board", b, "", nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, lastRoster(t, aConn))
	assert.Equal(t, []string{"a", "b"}, lastRoster(t, bConn))

	m.LeaveRoom(room, b)
	assert.Equal(t, []string{"a"}, lastRoster(t, aConn))
	assert.Equal(t, 1, m.ClientCount())
}

func TestManager_PresenceDropsDeadMembers(t *testing.T) {
	m := newManager(middleware.DefaultRateLimit())

	a, aConn := newUser("a")
	b, bConn := newUser("b")
	c, _ := newUser("c")

	_, err := m.JoinRoom("board", a, "", nil)
	require.NoError(t, err)
	_, err = m.JoinRoom("board", b, "", nil)
	require.NoError(t, err)

	bConn.mu.Lock()
	bConn.fail = true
	bConn.mu.Unlock()

	_, err = m.JoinRoom("board", c, "", nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"a", "c"}, lastRoster(t, aConn))
}

func TestManager_Limits(t *testing.T) {
	tests := []struct {
		name    string
		code    string
		rl      middleware.RateLimit
		wantErr error
	}{
		{name: "missing code", code: "", rl: middleware.DefaultRateLimit(), wantErr: ErrRoomCodeMissing},
		{name: "max rooms", code: "second", rl: middleware.RateLimit{MaxRooms: 1, MaxRoomSize: 10}, wantErr: ErrMaxRooms},
		{name: "room full", code: "first", rl: middleware.RateLimit{MaxRooms: 1, MaxRoomSize: 1}, wantErr: ErrRoomFull},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := newManager(tt.rl)
			if tt.code != "" {
				existing, _ := newUser("existing")
				_, err := m.JoinRoom("first", existing, "", nil)
				require.NoError(t, err)
			}

			u, _ := newUser("u")
			_, err := m.JoinRoom(tt.code, u, "", nil)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestManager_Cleanup(t *testing.T) {
	m := newManager(middleware.DefaultRateLimit())

	u, _ := newUser("u")
	busy, err := m.JoinRoom("busy", u, "", nil)
	require.NoError(t, err)
	_, err = m.CreateRoom("idle")
	require.NoError(t, err)

	m.cleanup(time.Now())
	assert.Equal(t, 2, m.RoomCount())

	m.cleanup(time.Now().Add(2 * time.Hour))
	assert.Equal(t, 1, m.RoomCount())
	_, ok := m.GetRoom("busy")
	assert.True(t, ok, "occupied room survives inactivity")

	m.cleanup(busy.CreatedAt.Add(25 * time.Hour))
	assert.Equal(t, 0, m.RoomCount())
}
