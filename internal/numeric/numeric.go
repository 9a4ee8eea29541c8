// Package numeric holds the small clamping and guarded-division helpers
// shared by the behavioral model and the allocator.
package numeric

import (
	"math"

	"golang.org/x/exp/constraints"
)

// Clamp bounds v to [lo, hi].
func Clamp[T constraints.Integer | constraints.Float](v, lo, hi T) T {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// Unit clamps v to [0, 1]. NaN maps to 0.
func Unit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return Clamp(v, 0, 1)
}

// SafeDiv returns a/b, or 0 when b is zero or the result is not finite.
func SafeDiv(a, b float64) float64 {
	if b == 0 {
		return 0
	}
	q := a / b
	if math.IsNaN(q) || math.IsInf(q, 0) {
		return 0
	}
	return q
}
