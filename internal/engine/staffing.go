package engine

import (
	"math"
	"math/rand"
)

// Headcount converts a fractional number of affordable enforcers into an
// integer roster size. The whole part is guaranteed; the fraction becomes one
// more enforcer with that probability, so the expected headcount equals
// potential.
func Headcount(potential float64, rng *rand.Rand) int {
	if potential <= 0 || math.IsNaN(potential) || math.IsInf(potential, 0) {
		return 0
	}
	whole := math.Floor(potential)
	n := int(whole)
	if rng.Float64() < potential-whole {
		n++
	}
	return n
}
