// Package social provides the zone (barangay): its budgets, funded program
// intensities, incentive cash, and compliance statistics.
package social

import (
	"sync"

	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/numeric"
)

// ZoneID is a unique identifier for a zone.
type ZoneID = uint64

// Funds holds one amount per intervention.
type Funds struct {
	IEC         float64 `json:"iec"`
	Enforcement float64 `json:"enforcement"`
	Incentive   float64 `json:"incentive"`
}

// Total returns the sum across interventions.
func (f Funds) Total() float64 {
	return f.IEC + f.Enforcement + f.Incentive
}

// Zone is an administrative unit with its own households and budget.
type Zone struct {
	ID    ZoneID `json:"id"`
	Index int    `json:"index"` // position in the zone arena
	Name  string `json:"name"`

	Households int `json:"households"`

	// Local (ordinance-authorized) money and how the zone splits it on its own.
	LocalAnnual    float64           `json:"local_annual"`
	LocalQuarterly float64           `json:"local_quarterly"`
	LocalRatios    config.Allocation `json:"local_ratios"`

	// Recomputed on every policy application.
	Baseline Funds `json:"baseline"` // local share
	TopUp    Funds `json:"top_up"`   // municipal (LGU) share received this quarter
	Combined Funds `json:"combined"` // Baseline + TopUp

	IEC         float64 `json:"iec_intensity"`
	Enforcement float64 `json:"enforcement_intensity"`
	Incentive   float64 `json:"incentive_value"` // per household

	Fine           float64 `json:"fine_amount"`
	EnforcerCost   float64 `json:"enforcer_cost"`
	ActiveEnforcer int     `json:"active_enforcers"`

	// Refreshed every tick.
	Compliant  int     `json:"compliant"`
	Total      int     `json:"total"`
	Compliance float64 `json:"compliance"`

	FinesIssued int     `json:"fines_issued"`
	FinesAmount float64 `json:"fines_amount"`
	RewardsPaid float64 `json:"rewards_paid"`

	cashMu     sync.Mutex
	cashOnHand float64
	costs      config.CostConfig
}

// NewZone creates a zone from its spec. Intensities start at zero until the
// first policy application.
func NewZone(index int, spec config.ZoneSpec, cal *config.Config) *Zone {
	return &Zone{
		ID:             ZoneID(index + 1),
		Index:          index,
		Name:           spec.Name,
		Households:     spec.Households,
		LocalAnnual:    spec.LocalBudget,
		LocalQuarterly: spec.LocalBudget / 4,
		LocalRatios:    cal.AllocationFor(spec.AllocationProfile),
		Fine:           cal.Costs.FineAmount,
		EnforcerCost:   cal.Costs.EnforcerCost,
		costs:          cal.Costs,
	}
}

// UpdatePolicy stacks the municipal top-up on the local baseline and derives
// saturation-capped intensities from the combined funds.
func (z *Zone) UpdatePolicy(topUp Funds) {
	z.Baseline = Funds{
		IEC:         z.LocalQuarterly * z.LocalRatios.IEC,
		Enforcement: z.LocalQuarterly * z.LocalRatios.Enforcement,
		Incentive:   z.LocalQuarterly * z.LocalRatios.Incentive,
	}
	z.TopUp = Funds{
		IEC:         max(0, topUp.IEC),
		Enforcement: max(0, topUp.Enforcement),
		Incentive:   max(0, topUp.Incentive),
	}
	z.Combined = Funds{
		IEC:         z.Baseline.IEC + z.TopUp.IEC,
		Enforcement: z.Baseline.Enforcement + z.TopUp.Enforcement,
		Incentive:   z.Baseline.Incentive + z.TopUp.Incentive,
	}

	z.cashMu.Lock()
	z.cashOnHand = z.Combined.Incentive
	z.cashMu.Unlock()

	saturation := z.costs.IECFallbackSaturation
	if z.Households > 0 {
		saturation = float64(z.Households) * z.costs.IECPerHousehold
	}
	z.IEC = numeric.Unit(numeric.SafeDiv(z.Combined.IEC, saturation))
	z.Enforcement = numeric.Unit(numeric.SafeDiv(z.Combined.Enforcement, z.costs.EnforcementSaturation))
	z.Incentive = numeric.SafeDiv(z.Combined.Incentive, float64(z.Households))
}

// RefreshCompliance recomputes compliance statistics from member flags.
func (z *Zone) RefreshCompliance(flags []bool) {
	z.Total = len(flags)
	z.Compliant = 0
	for _, c := range flags {
		if c {
			z.Compliant++
		}
	}
	z.Compliance = numeric.SafeDiv(float64(z.Compliant), float64(z.Total))
}

// ComplianceRate returns the last refreshed compliance rate.
func (z *Zone) ComplianceRate() float64 { return z.Compliance }

// EnforcementIntensity returns the enforcement score in [0,1].
func (z *Zone) EnforcementIntensity() float64 { return z.Enforcement }

// IECIntensity returns the education score in [0,1].
func (z *Zone) IECIntensity() float64 { return z.IEC }

// IncentiveValue returns the incentive per household.
func (z *Zone) IncentiveValue() float64 { return z.Incentive }

// FineAmount returns the fine per capture.
func (z *Zone) FineAmount() float64 { return z.Fine }

// GiveReward debits the incentive cash. Returns false if there is not enough.
func (z *Zone) GiveReward(amount float64) bool {
	z.cashMu.Lock()
	defer z.cashMu.Unlock()
	if amount < 0 || z.cashOnHand < amount {
		return false
	}
	z.cashOnHand -= amount
	z.RewardsPaid += amount
	return true
}

// CashOnHand returns the remaining incentive cash this quarter.
func (z *Zone) CashOnHand() float64 {
	z.cashMu.Lock()
	defer z.cashMu.Unlock()
	return z.cashOnHand
}

// RecordFine counts a fine for reporting. Fines are never added to cash.
func (z *Zone) RecordFine(amount float64) {
	z.FinesIssued++
	z.FinesAmount += amount
}

// AffordableEnforcers returns enforcement funds divided by the unit cost.
func (z *Zone) AffordableEnforcers() float64 {
	return numeric.SafeDiv(z.Combined.Enforcement, z.EnforcerCost)
}

// Shares returns each intervention's percentage of combined funds.
func (z *Zone) Shares() Funds {
	total := z.Combined.Total()
	return Funds{
		IEC:         100 * numeric.SafeDiv(z.Combined.IEC, total),
		Enforcement: 100 * numeric.SafeDiv(z.Combined.Enforcement, total),
		Incentive:   100 * numeric.SafeDiv(z.Combined.Incentive, total),
	}
}
