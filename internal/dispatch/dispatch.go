// Package dispatch applies inbound channel traffic to local whiteboard state.
//
// Messages are applied in arrival order with no sequencing, deduplication or
// timestamp comparison. All mutation happens on the goroutine running Run;
// transports and the local input producer only push onto its queue.
package dispatch

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"whiteboard/internal/canvas"
	"whiteboard/internal/coords"
	"whiteboard/internal/event"
	"whiteboard/internal/presence"
)

// DefaultQueueSize is the inbound queue depth
const DefaultQueueSize = 256

type op struct {
	msg    *event.Message
	roster []event.Member
	local  func(canvas.Renderer)
}

// Dispatcher owns the cursor map and roster and routes messages to the renderer
type Dispatcher struct {
	renderer canvas.Renderer
	tracker  *presence.Tracker

	// mu guards cursors and tracker for readers outside the loop
	mu      sync.RWMutex
	cursors presence.CursorMap

	inbox    chan op
	running  atomic.Bool
	done     chan struct{}
	stopOnce sync.Once
}

// Option configures a Dispatcher
type Option func(*Dispatcher)

// WithQueueSize sets the inbound queue depth
func WithQueueSize(n int) Option {
	return func(d *Dispatcher) {
		if n > 0 {
			d.inbox = make(chan op, n)
		}
	}
}

// New creates a dispatcher painting onto r and tracking presence in t
func New(r canvas.Renderer, t *presence.Tracker, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		renderer: r,
		tracker:  t,
		cursors:  make(presence.CursorMap),
		inbox:    make(chan op, DefaultQueueSize),
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Handle applies a single inbound message. Unknown kinds and payloads that
// do not decode are ignored.
func (d *Dispatcher) Handle(msg event.Message) {
	switch msg.Kind {
	case event.KindDraw:
		var ev event.DrawingEvent
		if err := msg.Decode(&ev); err != nil {
			return
		}
		if ev.UserID == "" {
			ev.UserID = msg.UserID
		}
		d.renderer.ApplyDraw(ev)

	case event.KindCursor:
		var c event.Cursor
		if err := msg.Decode(&c); err != nil {
			return
		}
		id := msg.UserID
		if id == "" {
			id = c.UserID
		}
		if id == "" {
			return
		}
		d.mu.Lock()
		d.cursors[id] = coords.Point{X: c.X, Y: c.Y}
		d.mu.Unlock()

	case event.KindClear:
		d.renderer.Clear()
	}
}

// ApplyRoster replaces the roster with a full presence snapshot
func (d *Dispatcher) ApplyRoster(members []event.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.tracker.Replace(members)
}

// Enqueue queues an inbound message for the loop. While the loop runs it
// waits for room in the queue. Before Run starts a full queue drops the
// message, as does a stopped loop, so a peer that never runs cannot stall
// the publisher delivering to it.
func (d *Dispatcher) Enqueue(msg event.Message) {
	d.submit(op{msg: &msg})
}

// EnqueueRoster queues a presence snapshot for the loop
func (d *Dispatcher) EnqueueRoster(members []event.Member) {
	d.submit(op{roster: members})
}

// LocalRenderer returns a Renderer whose calls are applied on the loop, so
// local strokes interleave with remote ones instead of racing them
func (d *Dispatcher) LocalRenderer() canvas.Renderer {
	return localRenderer{d: d}
}

// Run drains the queue until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	d.running.Store(true)
	defer d.stop()

	for {
		select {
		case <-ctx.Done():
			return
		case o := <-d.inbox:
			d.apply(o)
		}
	}
}

// Cursors returns the remote cursors that should currently be drawn
func (d *Dispatcher) Cursors() []presence.CursorView {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.tracker.VisibleCursors(d.cursors)
}

// Cursor returns the last known position for id, whether or not it is shown
func (d *Dispatcher) Cursor(id string) (coords.Point, bool) {
	d.mu.RLock()
	defer d.mu.RUnlock()

	p, ok := d.cursors[id]
	return p, ok
}

// Roster returns the current participants
func (d *Dispatcher) Roster() []presence.Participant {
	d.mu.RLock()
	defer d.mu.RUnlock()

	return d.tracker.Roster(d.cursors)
}

func (d *Dispatcher) submit(o op) {
	select {
	case <-d.done:
		return
	default:
	}

	if !d.running.Load() {
		select {
		case d.inbox <- o:
		default:
			slog.Debug("dispatch queue full before start, dropping", "depth", cap(d.inbox))
		}
		return
	}

	select {
	case d.inbox <- o:
	case <-d.done:
	}
}

func (d *Dispatcher) apply(o op) {
	switch {
	case o.msg != nil:
		d.Handle(*o.msg)
	case o.local != nil:
		o.local(d.renderer)
	default:
		d.ApplyRoster(o.roster)
	}
}

func (d *Dispatcher) stop() {
	d.stopOnce.Do(func() { close(d.done) })
}

type localRenderer struct {
	d *Dispatcher
}

func (l localRenderer) ApplyDraw(ev event.DrawingEvent) {
	l.d.submit(op{local: func(r canvas.Renderer) { r.ApplyDraw(ev) }})
}

func (l localRenderer) Clear() {
	l.d.submit(op{local: func(r canvas.Renderer) { r.Clear() }})
}
