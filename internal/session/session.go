// Package session wires identity, channel, dispatcher and input producer
// into one running whiteboard.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync/atomic"

	"golang.org/x/time/rate"

	"whiteboard/internal/canvas"
	"whiteboard/internal/channel"
	"whiteboard/internal/coords"
	"whiteboard/internal/dispatch"
	"whiteboard/internal/event"
	"whiteboard/internal/input"
	"whiteboard/internal/presence"
	"whiteboard/internal/user"
)

const (
	DefaultWidth  = 1280
	DefaultHeight = 720

	// ConnectFailedMessage is shown once when the board cannot be joined
	ConnectFailedMessage = "Unable to connect to the whiteboard. Please refresh and try again."
)

var (
	ErrIdentity = errors.New("session: identity unavailable")
	ErrConnect  = errors.New("session: connect failed")
)

// Config is everything Open needs. Channel and Identity are required.
type Config struct {
	Channel  channel.Channel
	Identity IdentityProvider
	Notifier Notifier

	Width  int
	Height int

	// Color overrides the random palette pick
	Color string
	Rand  *rand.Rand

	QueueSize   int
	CursorRate  rate.Limit
	CursorBurst int
}

// Session is one participant's whiteboard
type Session struct {
	ch        channel.Channel
	self      event.Member
	raster    *canvas.Raster
	disp      *dispatch.Dispatcher
	producer  *input.Producer
	connected atomic.Bool
}

// selfReporter is implemented by channels whose server may amend the member
// (assigned id or color) during Subscribe
type selfReporter interface {
	Self() event.Member
}

// Open resolves the identity, joins the channel and builds the local state.
// On failure the user is notified once and nothing is retried.
func Open(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.Notifier == nil {
		cfg.Notifier = LogNotifier{}
	}
	if cfg.Width <= 0 {
		cfg.Width = DefaultWidth
	}
	if cfg.Height <= 0 {
		cfg.Height = DefaultHeight
	}

	id, err := cfg.Identity.Identity(ctx)
	if err != nil {
		cfg.Notifier.Notify(ConnectFailedMessage)
		return nil, fmt.Errorf("%w: %w", ErrIdentity, err)
	}

	color := cfg.Color
	if color == "" {
		color = user.RandomColor(cfg.Rand)
	}
	self := event.Member{
		ID:          id.UserID,
		DisplayName: id.DisplayName,
		Color:       color,
	}

	s := &Session{
		ch:     cfg.Channel,
		raster: canvas.NewRaster(cfg.Width, cfg.Height),
	}

	tracker := presence.NewTracker(self.ID)
	s.disp = dispatch.New(s.raster, tracker, dispatch.WithQueueSize(cfg.QueueSize))

	s.ch.OnMessage(s.disp.Enqueue)
	s.ch.OnPresence(s.disp.EnqueueRoster)

	if err := s.ch.Subscribe(ctx, self); err != nil {
		cfg.Notifier.Notify(ConnectFailedMessage)
		return nil, fmt.Errorf("%w: %w", ErrConnect, err)
	}
	if sr, ok := s.ch.(selfReporter); ok {
		self = sr.Self()
	}
	s.self = self
	s.connected.Store(true)

	opts := []input.Option{
		input.WithConnected(s.connected.Load),
		input.WithBounds(func() *coords.Rect {
			return &coords.Rect{Width: float64(cfg.Width), Height: float64(cfg.Height)}
		}),
	}
	if cfg.CursorRate > 0 {
		opts = append(opts, input.WithCursorLimit(cfg.CursorRate, max(cfg.CursorBurst, 1)))
	}
	s.producer = input.New(self.ID, self.Color, s.disp.LocalRenderer(), s.ch, opts...)

	slog.Info("joined whiteboard", "userId", self.ID, "color", self.Color)
	return s, nil
}

// Run applies inbound and local events until ctx is cancelled
func (s *Session) Run(ctx context.Context) {
	s.disp.Run(ctx)
}

// Close leaves the channel
func (s *Session) Close(ctx context.Context) error {
	if !s.connected.Swap(false) {
		return nil
	}
	return s.ch.Unsubscribe(ctx)
}

// Connected reports whether the session is still subscribed
func (s *Session) Connected() bool {
	return s.connected.Load()
}

// Self returns the local participant
func (s *Session) Self() event.Member {
	return s.self
}

// Producer is the local input state machine
func (s *Session) Producer() *input.Producer {
	return s.producer
}

// Canvas is the local raster
func (s *Session) Canvas() *canvas.Raster {
	return s.raster
}

// Roster returns the current participants
func (s *Session) Roster() []presence.Participant {
	return s.disp.Roster()
}

// Cursors returns the remote cursors to draw
func (s *Session) Cursors() []presence.CursorView {
	return s.disp.Cursors()
}

// Cursor returns the last known position of id
func (s *Session) Cursor(id string) (coords.Point, bool) {
	return s.disp.Cursor(id)
}
