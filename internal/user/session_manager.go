package user

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"whiteboard/internal/middleware"
)

// sessionTTL is how long an idle session is kept
const sessionTTL = 1 * time.Hour

// Session holds the per-user relay state. A takeover connection shares the
// session of the one it replaces, so it is reference counted.
type Session struct {
	UserID        string
	DrawLimiter   *rate.Limiter
	CursorLimiter *rate.Limiter

	mu       sync.Mutex
	lastSeen time.Time
	conns    int
}

// AllowDraw reports whether a draw or clear frame may be relayed now
func (s *Session) AllowDraw() bool {
	s.touch(time.Now())
	return s.DrawLimiter.Allow()
}

// AllowCursor reports whether a cursor frame may be relayed now
func (s *Session) AllowCursor() bool {
	s.touch(time.Now())
	return s.CursorLimiter.Allow()
}

// LastSeen returns the time of the last routed frame or connect
func (s *Session) LastSeen() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastSeen
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idle(now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conns == 0 && now.Sub(s.lastSeen) > sessionTTL
}

// SessionManager manages user sessions
type SessionManager struct {
	sessions map[string]*Session
	limits   *middleware.Limits
	mu       sync.RWMutex
}

// NewSessionManager creates a session manager whose limiters follow limits
func NewSessionManager(limits *middleware.Limits) *SessionManager {
	return &SessionManager{
		sessions: make(map[string]*Session),
		limits:   limits,
	}
}

// GetOrCreate gets an existing session or creates a new one. Every call
// holds a reference that the caller gives back with Release.
func (sm *SessionManager) GetOrCreate(userID string) *Session {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session, exists := sm.sessions[userID]
	if !exists {
		rl := sm.limits.Get()
		session = &Session{
			UserID:        userID,
			DrawLimiter:   rate.NewLimiter(rate.Limit(rl.DrawPerSecond), rl.DrawBurst),
			CursorLimiter: rate.NewLimiter(rate.Limit(rl.CursorPerSecond), rl.CursorBurst),
		}
		sm.sessions[userID] = session
	}

	session.mu.Lock()
	session.conns++
	session.lastSeen = time.Now()
	session.mu.Unlock()
	return session
}

// Get returns the session for userID
func (sm *SessionManager) Get(userID string) (*Session, bool) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	session, exists := sm.sessions[userID]
	return session, exists
}

// ApplyLimits retunes the limiters of every live session
func (sm *SessionManager) ApplyLimits(rl middleware.RateLimit) {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	for _, session := range sm.sessions {
		session.DrawLimiter.SetLimit(rate.Limit(rl.DrawPerSecond))
		session.DrawLimiter.SetBurst(rl.DrawBurst)
		session.CursorLimiter.SetLimit(rate.Limit(rl.CursorPerSecond))
		session.CursorLimiter.SetBurst(rl.CursorBurst)
	}
}

// Release drops one reference to session (called on disconnect). The session
// is removed once no connection holds it.
func (sm *SessionManager) Release(session *Session) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	session.mu.Lock()
	if session.conns > 0 {
		session.conns--
	}
	remaining := session.conns
	session.mu.Unlock()

	if remaining == 0 && sm.sessions[session.UserID] == session {
		delete(sm.sessions, session.UserID)
	}
}

// Len returns the number of live sessions
func (sm *SessionManager) Len() int {
	sm.mu.RLock()
	defer sm.mu.RUnlock()

	return len(sm.sessions)
}

// Cleanup removes unheld sessions inactive for longer than an hour
func (sm *SessionManager) Cleanup() {
	sm.cleanup(time.Now())
}

func (sm *SessionManager) cleanup(now time.Time) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	for userID, session := range sm.sessions {
		if session.idle(now) {
			delete(sm.sessions, userID)
		}
	}
}
