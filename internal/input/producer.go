// Package input turns local pointer and touch gestures into strokes that are
// rendered locally and published to the channel.
package input

import (
	"context"
	"log/slog"

	"golang.org/x/time/rate"

	"whiteboard/internal/canvas"
	"whiteboard/internal/coords"
	"whiteboard/internal/event"
)

// Publisher sends one message to the channel without waiting for delivery
type Publisher interface {
	Publish(ctx context.Context, kind event.Kind, payload any) error
}

// Pointer is a pointer or touch sample in client coordinates. Movement is the
// delta since the previous sample; touch samples leave it at zero.
type Pointer struct {
	ClientX   float64
	ClientY   float64
	MovementX float64
	MovementY float64
	Touch     bool
}

// State of the stroke state machine
type State int

const (
	Idle State = iota
	Drawing
)

func (s State) String() string {
	if s == Drawing {
		return "drawing"
	}
	return "idle"
}

// Producer runs the idle -> drawing -> idle state machine for one pointer.
// It is not safe for concurrent use; feed it from a single input goroutine.
type Producer struct {
	userID   string
	color    string
	renderer canvas.Renderer
	pub      Publisher

	bounds      func() *coords.Rect
	connected   func() bool
	cursorLimit *rate.Limiter
	now         func() int64

	state State
	last  coords.Point
}

// Option configures a Producer
type Option func(*Producer)

// WithBounds sets the source of the canvas bounding rectangle
func WithBounds(fn func() *coords.Rect) Option {
	return func(p *Producer) { p.bounds = fn }
}

// WithConnected gates cursor broadcasts on fn
func WithConnected(fn func() bool) Option {
	return func(p *Producer) { p.connected = fn }
}

// WithCursorLimit throttles cursor broadcasts. Strokes are never throttled.
func WithCursorLimit(limit rate.Limit, burst int) Option {
	return func(p *Producer) { p.cursorLimit = rate.NewLimiter(limit, burst) }
}

// WithClock overrides the timestamp source (Unix milliseconds)
func WithClock(fn func() int64) Option {
	return func(p *Producer) { p.now = fn }
}

// New creates a producer drawing in color for userID
func New(userID, color string, r canvas.Renderer, pub Publisher, opts ...Option) *Producer {
	p := &Producer{
		userID:    userID,
		color:     color,
		renderer:  r,
		pub:       pub,
		bounds:    func() *coords.Rect { return nil },
		connected: func() bool { return true },
		now:       event.Now,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current stroke state
func (p *Producer) State() State {
	return p.state
}

// Start begins a stroke. The start event carries no previous point, so it
// paints nothing on its own.
func (p *Producer) Start(ctx context.Context, ptr Pointer) {
	p.state = Drawing

	pos := coords.FromClient(ptr.ClientX, ptr.ClientY, p.bounds())
	p.last = pos

	p.emit(ctx, event.DrawingEvent{
		Kind:      event.KindDraw,
		X:         pos.X,
		Y:         pos.Y,
		Color:     p.color,
		Timestamp: p.now(),
		UserID:    p.userID,
	})
}

// Move broadcasts the cursor and, while drawing, extends the stroke by one
// segment
func (p *Producer) Move(ctx context.Context, ptr Pointer) {
	rect := p.bounds()
	pos := coords.FromClient(ptr.ClientX, ptr.ClientY, rect)

	if p.connected() {
		p.publishCursor(ctx, pos)
	}

	if p.state != Drawing {
		return
	}

	prev := p.last
	if !ptr.Touch {
		prev = coords.FromClient(ptr.ClientX-ptr.MovementX, ptr.ClientY-ptr.MovementY, rect)
	}
	p.last = pos

	p.emit(ctx, event.DrawingEvent{
		Kind:      event.KindDraw,
		X:         pos.X,
		Y:         pos.Y,
		PrevX:     &prev.X,
		PrevY:     &prev.Y,
		Color:     p.color,
		Timestamp: p.now(),
		UserID:    p.userID,
	})
}

// End finishes the stroke (pointer up, pointer leave, touch end)
func (p *Producer) End() {
	p.state = Idle
}

// Clear wipes the local canvas and asks everyone else to do the same
func (p *Producer) Clear(ctx context.Context) {
	p.renderer.Clear()
	p.publish(ctx, event.KindClear, nil)
}

func (p *Producer) emit(ctx context.Context, ev event.DrawingEvent) {
	p.renderer.ApplyDraw(ev)
	p.publish(ctx, event.KindDraw, ev)
}

func (p *Producer) publishCursor(ctx context.Context, pos coords.Point) {
	if p.cursorLimit != nil && !p.cursorLimit.Allow() {
		return
	}
	p.publish(ctx, event.KindCursor, event.Cursor{X: pos.X, Y: pos.Y, UserID: p.userID})
}

// publish is fire-and-forget: failures are logged and dropped
func (p *Producer) publish(ctx context.Context, kind event.Kind, payload any) {
	if err := p.pub.Publish(ctx, kind, payload); err != nil {
		slog.Debug("publish dropped", "kind", kind, "userId", p.userID, "err", err)
	}
}
