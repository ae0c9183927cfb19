package user

import (
	"math"
	"sync"

	"github.com/lucasb-eyer/go-colorful"
)

const goldenRatio = 0.618033988749895

// ColorGenerator: hands out room colors spread around the hue wheel by the
// golden ratio, so consecutive members never get neighbouring hues
type ColorGenerator struct {
	counter    int
	saturation float64
	lightness  float64
	mu         sync.Mutex
}

func NewColorGenerator() *ColorGenerator {
	return &ColorGenerator{
		saturation: 0.85,
		lightness:  0.55,
	}
}

// NextColor: returns the next color in the sequence as #rrggbb
func (cg *ColorGenerator) NextColor() string {
	cg.mu.Lock()
	defer cg.mu.Unlock()

	_, hue := math.Modf(float64(cg.counter) * goldenRatio)
	cg.counter++

	return colorful.Hsl(hue*360, cg.saturation, cg.lightness).Hex()
}
