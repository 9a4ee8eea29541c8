package engine

import (
	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/numeric"
)

// Observation is what a policy controller sees at a decision point.
// Every value is normalized to [0,1].
type Observation struct {
	Tick       uint64    `json:"tick"`
	Quarter    int       `json:"quarter"`
	Zones      int       `json:"zones"`
	Compliance []float64 `json:"compliance"`
	Attitude   []float64 `json:"attitude,omitempty"` // per-zone average, when enabled
	Budget     float64   `json:"budget"`             // remaining balance / annual budget
	Time       float64   `json:"time"`               // quarter / time scale
	Capital    float64   `json:"capital"`
}

// Vector flattens the observation into the controller state layout:
// compliance per zone, optional attitudes, then budget, time and capital.
func (o Observation) Vector() []float64 {
	v := make([]float64, 0, len(o.Compliance)+len(o.Attitude)+3)
	v = append(v, o.Compliance...)
	v = append(v, o.Attitude...)
	return append(v, o.Budget, o.Time, o.Capital)
}

// AvgCompliance returns the unweighted mean of zone compliance rates.
func (o Observation) AvgCompliance() float64 {
	sum := 0.0
	for _, c := range o.Compliance {
		sum += c
	}
	return numeric.SafeDiv(sum, float64(len(o.Compliance)))
}

// Reward scores an observation: a convex compliance term with penalties for
// an empty purse and for lost political capital.
func Reward(o Observation, rc config.RewardConfig) float64 {
	avg := o.AvgCompliance()
	r := rc.ComplianceScale * avg * avg
	if o.Budget <= rc.BudgetFloor {
		r -= rc.BudgetPenalty
	}
	if o.Capital < rc.CapitalFloor {
		r -= rc.CapitalPenalty
	}
	return r
}
