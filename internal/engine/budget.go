package engine

import (
	"github.com/talgya/wastewise/internal/numeric"
	"github.com/talgya/wastewise/internal/social"
)

// Budget is the municipal purse and its running cost counters.
type Budget struct {
	Annual    float64 `json:"annual"`
	Quarterly float64 `json:"quarterly"`
	Balance   float64 `json:"balance"`

	IECCost         float64 `json:"iec_cost"`
	EnforcementCost float64 `json:"enforcement_cost"`
	IncentiveCost   float64 `json:"incentive_cost"`
	FinesLogged     float64 `json:"fines_logged"` // statistics only, never spendable
}

// NewBudget starts a full annual balance.
func NewBudget(annual float64) Budget {
	return Budget{Annual: annual, Quarterly: annual / 4, Balance: annual}
}

// Deplete charges one day of fixed program cost: the IEC and enforcement funds
// of every zone spread over the quarter. Fines are logged but not credited.
func (b *Budget) Deplete(zones []*social.Zone, ticksPerQuarter int, fines, incentives float64) float64 {
	days := float64(ticksPerQuarter)
	var iec, enf float64
	for _, z := range zones {
		iec += z.Combined.IEC
		enf += z.Combined.Enforcement
	}
	daily := numeric.SafeDiv(iec+enf, days)
	b.IECCost += numeric.SafeDiv(iec, days)
	b.EnforcementCost += numeric.SafeDiv(enf, days)
	b.IncentiveCost += incentives
	b.FinesLogged += fines
	b.Balance -= daily
	return daily
}

// Replenish restores the balance to the annual amount.
func (b *Budget) Replenish() {
	b.Balance = b.Annual
}

// Fraction returns the remaining balance as a share of the annual budget in [0,1].
func (b *Budget) Fraction() float64 {
	return numeric.Unit(numeric.SafeDiv(b.Balance, b.Annual))
}

// Exhausted reports whether the balance has run out.
func (b *Budget) Exhausted() bool {
	return b.Balance <= 0
}
