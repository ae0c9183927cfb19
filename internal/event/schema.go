package event

// Validation limit constants
const (
	MaxStringLength = 100
	MaxCoordinate   = 1000000
	MinCoordinate   = -1000000
	MaxColorLength  = 50
)

// AllowedKinds lists the kinds a client may publish
var AllowedKinds = map[Kind]bool{
	KindDraw:   true,
	KindCursor: true,
	KindClear:  true,
}

// schemaFor returns the struct a payload of the given kind must decode into
func schemaFor(kind Kind) interface{} {
	switch kind {
	case KindDraw:
		return &drawSchema{}
	case KindCursor:
		return &cursorSchema{}
	case KindClear:
		return &clearSchema{}
	default:
		return nil
	}
}

// Coordinates are not "required": zero is a valid canvas position.

type drawSchema struct {
	X     float64  `json:"x" validate:"min=-1000000,max=1000000"`
	Y     float64  `json:"y" validate:"min=-1000000,max=1000000"`
	PrevX *float64 `json:"prevX" validate:"omitempty,min=-1000000,max=1000000"`
	PrevY *float64 `json:"prevY" validate:"omitempty,min=-1000000,max=1000000"`
	Color string   `json:"color" validate:"required,max=50,hexcolor"`
}

type cursorSchema struct {
	X float64 `json:"x" validate:"min=-1000000,max=1000000"`
	Y float64 `json:"y" validate:"min=-1000000,max=1000000"`
}

type clearSchema struct{}

type memberSchema struct {
	ID          string `validate:"required,max=100"`
	DisplayName string `validate:"max=100"`
	Color       string `validate:"omitempty,max=50,hexcolor"`
}
