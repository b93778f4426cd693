package roadgraph

import (
	"errors"
	"fmt"
	"math"

	"roadgrid/internal/geo"
)

// Direction indexes one of the four neighbor slots of a Node
type Direction int

const (
	Top Direction = iota
	Bottom
	Left
	Right
)

// NumDirections is the fixed number of neighbor slots per node
const NumDirections = 4

var (
	// ErrInvariant is matched by every invariant violation raised while building
	ErrInvariant = errors.New("road graph invariant violated")

	ErrAngleOutOfRange  = fmt.Errorf("%w: angle not in ]0, 2PI] range", ErrInvariant)
	ErrInvalidDirection = fmt.Errorf("%w: unknown neighbor index", ErrInvariant)
)

var directionNames = [NumDirections]string{"top", "bottom", "left", "right"}

var reverseDirection = [NumDirections]Direction{
	Top:    Bottom,
	Bottom: Top,
	Left:   Right,
	Right:  Left,
}

// Valid reports whether d addresses one of the four slots
func (d Direction) Valid() bool {
	return d >= 0 && d < NumDirections
}

func (d Direction) String() string {
	if !d.Valid() {
		return fmt.Sprintf("Direction(%d)", int(d))
	}
	return directionNames[d]
}

// ParseDirection accepts "top"/"up", "bottom"/"down", "left" and "right"
func ParseDirection(s string) (Direction, error) {
	switch s {
	case "top", "up":
		return Top, nil
	case "bottom", "down":
		return Bottom, nil
	case "left":
		return Left, nil
	case "right":
		return Right, nil
	}
	return -1, fmt.Errorf("unknown direction %q", s)
}

// Reverse returns the opposite slot: top<->bottom, left<->right
func Reverse(d Direction) (Direction, error) {
	if !d.Valid() {
		return -1, fmt.Errorf("%w %d", ErrInvalidDirection, int(d))
	}
	return reverseDirection[d], nil
}

// Classify returns the slot of a node at `from` that a node at `to` belongs in.
//
// The angle atan2(dy, dx)+PI is bucketed into quarters whose boundaries sit
// at PI/4, 3PI/4, 5PI/4 and 7PI/4; each interval is open below and closed above.
func Classify(from, to geo.Point3D) (Direction, error) {
	dx := to.X - from.X
	dy := to.Y - from.Y
	return classifyAngle(math.Atan2(dy, dx) + math.Pi)
}

func classifyAngle(angle float64) (Direction, error) {
	// atan2 yields -PI for a negative-zero dy
	if angle == 0 {
		angle = 2 * math.Pi
	}

	switch {
	case angle > 0 && angle <= math.Pi/4:
		return Left, nil
	case angle > math.Pi/4 && angle <= 3*math.Pi/4:
		return Bottom, nil
	case angle > 3*math.Pi/4 && angle <= 5*math.Pi/4:
		return Right, nil
	case angle > 5*math.Pi/4 && angle <= 7*math.Pi/4:
		return Top, nil
	case angle > 7*math.Pi/4 && angle <= 2*math.Pi:
		return Left, nil
	}
	return -1, fmt.Errorf("%w: %v", ErrAngleOutOfRange, angle)
}
