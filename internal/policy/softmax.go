package policy

import (
	"context"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/talgya/wastewise/internal/engine"
)

// Softmax maps raw scores to a probability vector. The maximum is subtracted
// first so large scores do not overflow.
func Softmax(raw []float64) []float64 {
	if len(raw) == 0 {
		return nil
	}
	out := make([]float64, len(raw))
	peak := floats.Max(raw)
	for i, r := range raw {
		out[i] = math.Exp(r - peak)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// Normalized passes a controller's raw output through Softmax.
type Normalized struct {
	Inner engine.Controller
}

// Decide returns the softmax of the inner controller's answer.
func (n Normalized) Decide(ctx context.Context, obs engine.Observation) ([]float64, error) {
	raw, err := n.Inner.Decide(ctx, obs)
	if err != nil {
		return nil, err
	}
	return Softmax(raw), nil
}
