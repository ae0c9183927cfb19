package canvas

import (
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"whiteboard/internal/event"
)

var red = color.RGBA{R: 0xff, A: 0xff}

func segment(x0, y0, x1, y1 float64, c string) event.DrawingEvent {
	return event.DrawingEvent{Kind: event.KindDraw, X: x1, Y: y1, PrevX: &x0, PrevY: &y0, Color: c}
}

func TestRaster_ApplyDraw_PaintsSegment(t *testing.T) {
	r := NewRaster(64, 64)
	r.ApplyDraw(segment(10, 10, 20, 20, "#FF0000"))

	// along the segment
	for _, p := range [][2]int{{10, 10}, {15, 15}, {19, 19}} {
		assert.Equal(t, red, r.At(p[0], p[1]), "pixel %v", p)
	}
	// well off the segment
	for _, p := range [][2]int{{20, 10}, {10, 20}, {30, 30}, {5, 5}} {
		assert.Equal(t, color.RGBA{}, r.At(p[0], p[1]), "pixel %v", p)
	}
}

func TestRaster_ApplyDraw_StartIsNoop(t *testing.T) {
	r := NewRaster(32, 32)
	r.ApplyDraw(event.DrawingEvent{Kind: event.KindDraw, X: 5, Y: 5, Color: "#FF0000"})

	assert.True(t, r.Blank())
}

func TestRaster_ApplyDraw_RoundCaps(t *testing.T) {
	r := NewRaster(32, 32)
	r.ApplyDraw(segment(10, 10, 10, 10, "#FF0000"))

	// a zero-length segment still leaves a dot
	assert.Equal(t, red, r.At(10, 10))
	assert.False(t, r.Blank())
}

func TestRaster_ApplyDraw_Idempotent(t *testing.T) {
	ev := segment(3, 7, 40, 22, "#00FF00")

	once := NewRaster(64, 64)
	once.ApplyDraw(ev)

	twice := NewRaster(64, 64)
	twice.ApplyDraw(ev)
	twice.ApplyDraw(ev)

	assert.Equal(t, once.Snapshot().Pix, twice.Snapshot().Pix)
}

func TestRaster_ApplyDraw_InvalidColorFallsBack(t *testing.T) {
	r := NewRaster(32, 32)
	r.ApplyDraw(segment(1, 1, 10, 1, "not-a-color"))

	got := r.At(5, 1)
	assert.Equal(t, parseColor("#E53935"), got)
}

func TestRaster_ApplyDraw_ClipsToSurface(t *testing.T) {
	r := NewRaster(16, 16)

	require.NotPanics(t, func() {
		r.ApplyDraw(segment(-50, -50, 100, 100, "#FF0000"))
		r.ApplyDraw(segment(500, 500, 600, 600, "#FF0000"))
	})
	assert.Equal(t, red, r.At(8, 8))
}

func TestRaster_Clear(t *testing.T) {
	tests := []struct {
		name   string
		events []event.DrawingEvent
	}{
		{name: "empty surface"},
		{name: "one segment", events: []event.DrawingEvent{segment(1, 1, 30, 30, "#FF0000")}},
		{
			name: "many segments",
			events: []event.DrawingEvent{
				segment(1, 1, 30, 30, "#FF0000"),
				segment(30, 1, 1, 30, "#0000FF"),
				segment(0, 16, 31, 16, "#123456"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := NewRaster(32, 32)
			for _, ev := range tt.events {
				r.ApplyDraw(ev)
			}

			r.Clear()
			assert.True(t, r.Blank())
		})
	}
}

func TestRaster_SnapshotIsCopy(t *testing.T) {
	r := NewRaster(8, 8)
	snap := r.Snapshot()

	r.ApplyDraw(segment(0, 0, 7, 7, "#FF0000"))
	assert.Equal(t, color.RGBA{}, snap.RGBAAt(3, 3))
}
