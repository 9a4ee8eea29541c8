package engine

import (
	"errors"
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"

	"github.com/talgya/wastewise/internal/social"
)

// Interventions is the number of spending categories per zone: IEC, enforcement, incentives.
const Interventions = 3

var (
	// ErrDecisionLength is returned when a decision vector is neither 3 nor 3×zones long.
	ErrDecisionLength = errors.New("decision vector has wrong length")
	// ErrNegativeDesire is returned when a decision contains a negative or non-finite weight.
	ErrNegativeDesire = errors.New("decision vector has negative or non-finite weight")
)

// ZoneNeed is what the allocator knows about a zone.
type ZoneNeed struct {
	Households int
	Compliance float64
}

// AllocOptions carries the allocator's calibration.
type AllocOptions struct {
	Quarterly      float64 // municipal pot for the quarter
	Epsilon        float64 // total desire below this spends nothing
	NeedyThreshold float64 // global form funds only zones below this compliance
	HouseholdCap   float64 // per household per quarter, 0 = uncapped
}

// Allocation is the result of turning one desire vector into zone top-ups.
type Allocation struct {
	TopUps      []social.Funds `json:"top_ups"`
	Scale       float64        `json:"scale"`
	Global      bool           `json:"global"`      // 3-length form
	Needy       []bool         `json:"needy"`       // zones funded in global form
	Unallocated float64        `json:"unallocated"` // withheld by the household cap, not reclaimed
}

// Spent returns the total top-up handed to zones.
func (a Allocation) Spent() float64 {
	total := 0.0
	for _, f := range a.TopUps {
		total += f.Total()
	}
	return total
}

// CheckDecision validates a decision's length and weights against a zone count.
func CheckDecision(desire []float64, zones int) error {
	if n := len(desire); n != Interventions && n != Interventions*zones {
		return fmt.Errorf("%w: got %d, want %d or %d", ErrDecisionLength, n, Interventions, Interventions*zones)
	}
	for i, d := range desire {
		if d < 0 || math.IsNaN(d) || math.IsInf(d, 0) {
			return fmt.Errorf("%w: element %d is %v", ErrNegativeDesire, i, d)
		}
	}
	return nil
}

// Allocate converts a desire vector into per-zone LGU top-ups.
//
// The desire is scaled so the whole quarterly pot is spent; a vector summing
// below epsilon spends nothing. The 3-length form is split across needy zones
// by household count. The per-zone form is scaled directly and may be shrunk
// by the household cap; money freed that way stays unallocated.
func Allocate(desire []float64, zones []ZoneNeed, opts AllocOptions) (Allocation, error) {
	if err := CheckDecision(desire, len(zones)); err != nil {
		return Allocation{}, err
	}

	out := Allocation{TopUps: make([]social.Funds, len(zones))}
	// Sum the desire relative to its largest weight so that finite weights
	// near MaxFloat64 cannot overflow the total.
	peak := floats.Max(desire)
	if peak <= 0 {
		out.Global = len(desire) == Interventions
		return out, nil
	}
	unit := make([]float64, len(desire))
	floats.ScaleTo(unit, 1/peak, desire)
	relative := floats.Sum(unit)
	if relative*peak < opts.Epsilon {
		out.Global = len(desire) == Interventions
		return out, nil
	}
	share := opts.Quarterly / relative
	out.Scale = share / peak

	scaled := make([]float64, len(desire))
	floats.ScaleTo(scaled, share, unit)

	// A single zone makes both forms the same length; per-zone wins.
	if len(desire) == Interventions && len(zones) != 1 {
		out.Global = true
		var fallback bool
		out.Needy, fallback = needyZones(zones, opts.NeedyThreshold)
		weights := needWeights(zones, out.Needy, fallback)
		for i, w := range weights {
			out.TopUps[i] = social.Funds{
				IEC:         scaled[0] * w,
				Enforcement: scaled[1] * w,
				Incentive:   scaled[2] * w,
			}
		}
		return out, nil
	}

	for i, z := range zones {
		f := social.Funds{
			IEC:         scaled[i*Interventions],
			Enforcement: scaled[i*Interventions+1],
			Incentive:   scaled[i*Interventions+2],
		}
		if opts.HouseholdCap > 0 {
			limit := opts.HouseholdCap * float64(z.Households)
			if sum := f.Total(); sum > limit {
				shrink := limit / sum
				f = social.Funds{IEC: f.IEC * shrink, Enforcement: f.Enforcement * shrink, Incentive: f.Incentive * shrink}
				out.Unallocated += sum - f.Total()
			}
		}
		out.TopUps[i] = f
	}
	return out, nil
}

// needyZones marks zones below the compliance threshold. When none qualify,
// every zone is marked and fallback is true.
func needyZones(zones []ZoneNeed, threshold float64) (needy []bool, fallback bool) {
	needy = make([]bool, len(zones))
	found := false
	for i, z := range zones {
		if z.Compliance < threshold {
			needy[i] = true
			found = true
		}
	}
	if !found {
		for i := range needy {
			needy[i] = true
		}
	}
	return needy, !found
}

// needWeights splits the pot among needy zones by household count. The split
// is equal in the fallback case or when needy zones have no households.
// Weights sum to 1.
func needWeights(zones []ZoneNeed, needy []bool, equal bool) []float64 {
	weights := make([]float64, len(zones))
	households, count := 0.0, 0
	for i, z := range zones {
		if needy[i] {
			households += float64(z.Households)
			count++
		}
	}
	for i, z := range zones {
		if !needy[i] {
			continue
		}
		if households > 0 && !equal {
			weights[i] = float64(z.Households) / households
		} else {
			weights[i] = 1 / float64(count)
		}
	}
	return weights
}
