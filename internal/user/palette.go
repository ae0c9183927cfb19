package user

import "math/rand"

// Palette is the fixed set of colors handed out to participants
var Palette = [10]string{
	"#E53935",
	"#8E24AA",
	"#3949AB",
	"#039BE5",
	"#00897B",
	"#7CB342",
	"#FDD835",
	"#FB8C00",
	"#6D4C41",
	"#546E7A",
}

// DefaultColor is used when a participant arrives without a color
func DefaultColor() string {
	return Palette[0]
}

// RandomColor picks a palette color using rng, or the global source if rng is nil
func RandomColor(rng *rand.Rand) string {
	if rng == nil {
		return Palette[rand.Intn(len(Palette))]
	}
	return Palette[rng.Intn(len(Palette))]
}
