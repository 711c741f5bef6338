package models

import (
	"fmt"
)

// Coordinate is a labeled point in the canonical region-point space
type Coordinate struct {
	// X is the column of the point
	X int

	// Y is the row of the point
	Y int
}

// String formats the coordinate as "(x, y)"
func (c Coordinate) String() string {
	return fmt.Sprintf("(%d, %d)", c.X, c.Y)
}

// Pair is a pair of regions together with the Pearson correlation
// coefficient of their activity traces
type Pair struct {
	// A is the first region of the pair. For significant pairs A > B.
	A int `yaml:"a"`

	// B is the second region of the pair
	B int `yaml:"b"`

	// R is the correlation coefficient. It is NaN when either trace is constant.
	R float64 `yaml:"r"`
}

// Label returns the file-name friendly label used for per-pair outputs,
// e.g. "complement_0-3_r0.981"
func (p Pair) Label() string {
	return fmt.Sprintf("complement_%d-%d_r%.3f", p.A, p.B, p.R)
}
