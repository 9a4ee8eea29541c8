package policy

import (
	"context"
	"fmt"

	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/engine"
)

// Triage reshapes a base controller's per-zone vector around the worst zone.
// Zones above the maintenance threshold get a fixed maintenance mix, the
// least compliant zone is amplified and every other zone is damped.
type Triage struct {
	Base        engine.Controller
	Threshold   float64
	Maintenance []float64
	Amplify     float64
	Damp        float64
}

// NewTriage wraps base with the calibrated triage parameters.
func NewTriage(base engine.Controller, pc config.PolicyConfig) *Triage {
	return &Triage{
		Base:        base,
		Threshold:   pc.MaintenanceThreshold,
		Maintenance: pc.MaintenanceVector,
		Amplify:     pc.Amplify,
		Damp:        pc.Damp,
	}
}

// Decide asks the base controller and reshapes its answer. A 3-length base
// answer is first repeated for every zone.
func (t *Triage) Decide(ctx context.Context, obs engine.Observation) ([]float64, error) {
	raw, err := t.Base.Decide(ctx, obs)
	if err != nil {
		return nil, err
	}
	n := engine.Interventions
	v := make([]float64, 0, n*obs.Zones)
	switch len(raw) {
	case n * obs.Zones:
		v = append(v, raw...)
	case n:
		for i := 0; i < obs.Zones; i++ {
			v = append(v, raw...)
		}
	default:
		return nil, fmt.Errorf("%w: base returned %d values", engine.ErrDecisionLength, len(raw))
	}
	return t.Apply(v, obs.Compliance), nil
}

// Apply reshapes a per-zone vector in place given zone compliance rates.
func (t *Triage) Apply(v, compliance []float64) []float64 {
	n := engine.Interventions
	worst, worstRate := -1, 1.0
	for i, c := range compliance {
		if c < worstRate {
			worst, worstRate = i, c
		}
	}
	for i, c := range compliance {
		if (i+1)*n > len(v) {
			break
		}
		seg := v[i*n : (i+1)*n]
		switch {
		case c > t.Threshold && len(t.Maintenance) == n:
			copy(seg, t.Maintenance)
		case i == worst:
			for k := range seg {
				seg[k] *= t.Amplify
			}
		default:
			for k := range seg {
				seg[k] *= t.Damp
			}
		}
	}
	return v
}
