// Household behavior: Theory of Planned Behavior utility with shielded decay.

package agents

import (
	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/numeric"
	"github.com/talgya/wastewise/internal/world"
)

// Household is one simulated family unit.
type Household struct {
	ID     AgentID    `json:"id"`
	Zone   int        `json:"zone"` // index into the zone arena
	Income IncomeTier `json:"income"`

	Compliant bool    `json:"compliant"`
	Attitude  float64 `json:"attitude"` // 0.0–attitude ceiling
	Norm      float64 `json:"social_norm"`
	Control   float64 `json:"perceived_control"`
	Utility   float64 `json:"utility"`
	Rewarded  bool    `json:"rewarded"` // reset every quarter

	Behavior config.Behavior `json:"behavior"`

	TimesFined int `json:"times_fined"`
}

// Step runs one tick of household behavior.
func (h *Household) Step(env *Env) {
	h.UpdateAttitude(env)
	h.UpdateSocialNorm(env)
	h.Decide(env)
	h.AttemptRedemption(env)
}

// UpdateSocialNorm blends perceived norm toward local peer compliance plus an
// authority term. Falling targets are resisted once the zone is mostly compliant.
func (h *Household) UpdateSocialNorm(env *Env) {
	hc := &env.Cal.Household

	local := 0.0
	if pos, ok := env.Pop.Grid.Position(uint64(h.ID)); ok {
		peers, compliant := 0, 0
		for _, id := range env.Pop.Grid.Neighbors(pos, hc.NeighborRadius, false) {
			n, ok := env.Pop.Household(AgentID(id))
			if !ok || n.Zone != h.Zone {
				continue
			}
			peers++
			if n.Compliant {
				compliant++
			}
		}
		local = numeric.SafeDiv(float64(compliant), float64(peers))
	}

	zoneCompliance, enforcement := 0.0, 0.0
	if z := env.zone(h.Zone); z != nil {
		zoneCompliance = z.ComplianceRate()
		enforcement = z.EnforcementIntensity()
	}

	target := min(hc.NormCeiling, local+hc.AuthorityWeight*enforcement)

	next := target
	if target < h.Norm {
		retain := 0.0
		switch {
		case zoneCompliance > hc.HighThreshold:
			retain = hc.HighRetention
		case zoneCompliance > hc.MidThreshold:
			retain = hc.MidRetention
		}
		next = retain*h.Norm + (1-retain)*target
	}
	h.Norm = numeric.Unit(next)
}

// UpdateAttitude applies damped decay, the IEC×enforcement synergy boost, and
// the fatigue or peace-of-mind term under heavy enforcement.
func (h *Household) UpdateAttitude(env *Env) {
	hc := &env.Cal.Household
	z := env.zone(h.Zone)

	zoneCompliance, enforcement, iec := 0.0, 0.0, 0.0
	if z != nil {
		zoneCompliance = z.ComplianceRate()
		enforcement = z.EnforcementIntensity()
		iec = z.IECIntensity()
	}

	damper := 1.0
	switch {
	case zoneCompliance > hc.HighThreshold:
		damper = hc.HighDamper
	case zoneCompliance > hc.MidThreshold:
		damper = hc.MidDamper
	}
	a := h.Attitude - h.Behavior.Decay*damper

	a += iec * hc.IECBaseFactor * (1 + hc.SynergyWeight*enforcement)

	if enforcement > hc.FatigueThreshold {
		if zoneCompliance >= hc.HighThreshold {
			a += hc.PeaceOfMind
		} else {
			a -= hc.FatiguePenalty
		}
	}

	h.Attitude = h.clampAttitude(env, a)
}

// clampAttitude bounds a to [0, ceiling]. Values pushed past the ceiling land
// slightly below it so the population does not pile up on one exact value.
func (h *Household) clampAttitude(env *Env, a float64) float64 {
	hc := &env.Cal.Household
	if a > hc.AttitudeCeiling {
		a = hc.AttitudeCeiling - env.Rng.Float64()*hc.CeilingErosion
	}
	return numeric.Clamp(a, 0, hc.AttitudeCeiling)
}

// Decide computes utility and sets the compliance flag.
func (h *Household) Decide(env *Env) {
	hc := &env.Cal.Household

	impact := 0.0
	if z := env.zone(h.Zone); z != nil {
		impact = z.IncentiveValue() + z.FineAmount()*z.EnforcementIntensity()
	}
	netCost := h.Behavior.Effort - env.Cal.IncomeMultiplier(int(h.Income))*impact/hc.Normalizer

	noise := env.Rng.NormFloat64() * hc.NoiseSigma
	h.Utility = h.Behavior.WAttitude*h.Attitude +
		h.Behavior.WNorm*h.Norm +
		h.Behavior.WControl*h.Control -
		netCost + noise

	h.Compliant = h.Utility > 0
	if h.Compliant && env.Rng.Float64() < hc.SlipProbability {
		h.Compliant = false
	}
}

// AttemptRedemption claims the zone incentive at most once per quarter.
func (h *Household) AttemptRedemption(env *Env) {
	if !h.Compliant || h.Rewarded {
		return
	}
	z := env.zone(h.Zone)
	if z == nil {
		return
	}
	if env.Rng.Float64() >= env.Cal.Household.RedemptionProbability {
		return
	}
	amount := z.IncentiveValue()
	if amount <= 0 || !z.GiveReward(amount) {
		return
	}
	h.Rewarded = true
	h.Attitude = h.clampAttitude(env, h.Attitude+env.Cal.Household.RedemptionBoost)
	env.Ledger.IncentivesPaid += amount
	env.Ledger.Redemptions++
}

// Fine applies the penalty of being caught non-compliant.
func (h *Household) Fine(env *Env, amount float64) {
	hc := &env.Cal.Household
	h.Utility -= hc.FineUtilityPenalty
	h.Attitude = numeric.Clamp(h.Attitude-hc.FineAttitudePenalty, 0, hc.AttitudeCeiling)
	h.TimesFined++

	if z := env.zone(h.Zone); z != nil {
		z.RecordFine(amount)
	}
	env.Ledger.RecordFine(amount)
}

// Position returns the household's grid cell.
func (h *Household) Position(pop *Population) (world.Cell, bool) {
	return pop.Grid.Position(uint64(h.ID))
}
