// Package canvas paints drawing events onto a raster surface.
//
// Painting is purely additive: no stroke history is kept, so a surface can
// only be rebuilt by replaying the events that produced it.
package canvas

import (
	"image"
	"image/color"
	"math"
	"sync"

	"github.com/lucasb-eyer/go-colorful"

	"whiteboard/internal/event"
	"whiteboard/internal/user"
)

// DefaultLineWidth is the stroke width in pixels
const DefaultLineWidth = 3

// Renderer applies draw and clear operations to a drawing surface
type Renderer interface {
	ApplyDraw(ev event.DrawingEvent)
	Clear()
}

// Raster is a Renderer backed by an RGBA image. Strokes are painted without
// antialiasing so repainting a segment leaves its pixels unchanged.
type Raster struct {
	mu    sync.RWMutex
	img   *image.RGBA
	width float64
}

// NewRaster creates a blank surface of w x h pixels
func NewRaster(w, h int) *Raster {
	return &Raster{
		img:   image.NewRGBA(image.Rect(0, 0, w, h)),
		width: DefaultLineWidth,
	}
}

// ApplyDraw strokes the segment from the previous point to the current one.
// Events without a previous point only mark the start of a stroke.
func (r *Raster) ApplyDraw(ev event.DrawingEvent) {
	if !ev.HasPrev() {
		return
	}

	c := parseColor(ev.Color)

	r.mu.Lock()
	defer r.mu.Unlock()
	strokeSegment(r.img, *ev.PrevX, *ev.PrevY, ev.X, ev.Y, r.width/2, c)
}

// Clear erases the whole surface
func (r *Raster) Clear() {
	r.mu.Lock()
	defer r.mu.Unlock()

	clear(r.img.Pix)
}

// At returns the color of the pixel at x, y
func (r *Raster) At(x, y int) color.RGBA {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return r.img.RGBAAt(x, y)
}

// Blank reports whether no pixel has been painted
func (r *Raster) Blank() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, b := range r.img.Pix {
		if b != 0 {
			return false
		}
	}
	return true
}

// Snapshot returns a copy of the current surface
func (r *Raster) Snapshot() *image.RGBA {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cp := image.NewRGBA(r.img.Rect)
	copy(cp.Pix, r.img.Pix)
	return cp
}

// Bounds returns the surface size
func (r *Raster) Bounds() image.Rectangle {
	return r.img.Rect
}

// parseColor reads a hex color, falling back to the default palette color
func parseColor(hex string) color.RGBA {
	c, err := colorful.Hex(hex)
	if err != nil {
		c, _ = colorful.Hex(user.DefaultColor())
	}
	cr, cg, cb := c.RGB255()
	return color.RGBA{R: cr, G: cg, B: cb, A: 0xff}
}

// strokeSegment paints every pixel whose center lies within radius of the
// segment (x0,y0)-(x1,y1). The covered shape is a capsule, which gives round
// caps, and round joins between consecutive segments.
func strokeSegment(img *image.RGBA, x0, y0, x1, y1, radius float64, c color.RGBA) {
	minX := int(math.Floor(math.Min(x0, x1) - radius))
	maxX := int(math.Ceil(math.Max(x0, x1) + radius))
	minY := int(math.Floor(math.Min(y0, y1) - radius))
	maxY := int(math.Ceil(math.Max(y0, y1) + radius))

	area := image.Rect(minX, minY, maxX+1, maxY+1).Intersect(img.Rect)
	if area.Empty() {
		return
	}

	r2 := radius * radius
	for py := area.Min.Y; py < area.Max.Y; py++ {
		for px := area.Min.X; px < area.Max.X; px++ {
			if distSq(float64(px)+0.5, float64(py)+0.5, x0, y0, x1, y1) <= r2 {
				img.SetRGBA(px, py, c)
			}
		}
	}
}

// distSq is the squared distance from (px,py) to the segment (x0,y0)-(x1,y1)
func distSq(px, py, x0, y0, x1, y1 float64) float64 {
	dx, dy := x1-x0, y1-y0
	lenSq := dx*dx + dy*dy

	t := 0.0
	if lenSq > 0 {
		t = ((px-x0)*dx + (py-y0)*dy) / lenSq
		t = math.Max(0, math.Min(1, t))
	}

	cx, cy := x0+t*dx, y0+t*dy
	return (px-cx)*(px-cx) + (py-cy)*(py-cy)
}
