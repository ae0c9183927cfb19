// Package coords maps pointer positions from client space into canvas space.
package coords

// Point is a position in canvas-local space
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is the canvas bounding rectangle in client space
type Rect struct {
	Left   float64
	Top    float64
	Width  float64
	Height float64
}

// FromClient converts client coordinates into canvas-local coordinates.
// A nil rect (no canvas mounted) maps everything to the origin.
func FromClient(clientX, clientY float64, rect *Rect) Point {
	if rect == nil {
		return Point{}
	}
	return Point{X: clientX - rect.Left, Y: clientY - rect.Top}
}
