package engine

import "github.com/talgya/wastewise/internal/numeric"

// DriftCapital applies one tick of political capital drift. Heavy average
// enforcement erodes capital at rate alpha; the slack recovers it at rate beta.
func DriftCapital(capital, avgEnforcement, alpha, beta float64) float64 {
	decay := alpha * avgEnforcement
	recovery := beta * (1 - avgEnforcement)
	return numeric.Unit(capital - decay + recovery)
}
