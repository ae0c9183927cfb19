package middleware

import (
	"sync/atomic"
)

// RateLimit: relay limits. Loaded from config and swapped as a whole on reload.
type RateLimit struct {
	MaxRoomSize     int
	MaxRooms        int
	MaxMessageSize  int
	DrawPerSecond   float64
	DrawBurst       int
	CursorPerSecond float64
	CursorBurst     int
}

// DefaultRateLimit: 30 strokes/sec burst 10, 60 cursors/sec burst 20
func DefaultRateLimit() RateLimit {
	return RateLimit{
		MaxRoomSize:     50,
		MaxRooms:        1000,
		MaxMessageSize:  4096,
		DrawPerSecond:   30,
		DrawBurst:       10,
		CursorPerSecond: 60,
		CursorBurst:     20,
	}
}

// ValidateMessageSize: checks if a message is within the size limit
func (rl RateLimit) ValidateMessageSize(msgSize int) bool {
	return msgSize <= rl.MaxMessageSize
}

// Limits: the live RateLimit, safe to read while it is being replaced
type Limits struct {
	cur atomic.Pointer[RateLimit]
}

func NewLimits(rl RateLimit) *Limits {
	l := &Limits{}
	l.cur.Store(&rl)
	return l
}

// Get: returns the current limits
func (l *Limits) Get() RateLimit {
	return *l.cur.Load()
}

// Update: replaces the current limits
func (l *Limits) Update(rl RateLimit) {
	l.cur.Store(&rl)
}
