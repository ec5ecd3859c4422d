package resultlog

import (
	"fmt"
	"strings"
)

// Direction is the sense of optimization.
type Direction string

const (
	Minimize Direction = "minimize"
	Maximize Direction = "maximize"
)

// ParseDirection accepts "min", "minimize", "max" and "maximize"; the empty
// string means Minimize.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "min", "minimize":
		return Minimize, nil
	case "max", "maximize":
		return Maximize, nil
	default:
		return "", fmt.Errorf("invalid direction %q: must be minimize or maximize", s)
	}
}

// Better reports whether a is strictly better than b.
func (d Direction) Better(a, b float64) bool {
	if d == Maximize {
		return a > b
	}
	return a < b
}

// Sign maps values into minimization orientation when multiplied.
func (d Direction) Sign() float64 {
	if d == Maximize {
		return -1
	}
	return 1
}
