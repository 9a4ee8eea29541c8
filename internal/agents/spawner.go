// Household spawning: income tier, initial compliance, and seeded psychology
// from a zone's demographic and behavior profiles.

package agents

import (
	"math/rand"

	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/world"
)

// Spawner creates households for the simulation.
type Spawner struct {
	rng *rand.Rand
	cal *config.Config
}

// NewSpawner creates a household spawner with the given seed.
func NewSpawner(seed int64, cal *config.Config) *Spawner {
	return &Spawner{
		rng: rand.New(rand.NewSource(seed + 300)),
		cal: cal,
	}
}

// SpawnZone creates and places every household of one zone.
func (s *Spawner) SpawnZone(pop *Population, zone int, spec config.ZoneSpec, placer *world.Placer) ([]*Household, error) {
	behavior := s.cal.BehaviorFor(spec.BehaviorProfile)
	income := s.cal.IncomeFor(spec.IncomeProfile)

	out := make([]*Household, 0, spec.Households)
	for i := 0; i < spec.Households; i++ {
		h := s.spawnOne(pop.NextID(), zone, spec.InitialCompliance, income, behavior)
		if err := pop.AddHousehold(h, placer.Cell(zone)); err != nil {
			return out, err
		}
		out = append(out, h)
	}
	return out, nil
}

func (s *Spawner) spawnOne(id AgentID, zone int, initialCompliance float64, income []float64, behavior config.Behavior) *Household {
	seed := &s.cal.Household.Seeding
	h := &Household{
		ID:        id,
		Zone:      zone,
		Income:    s.weightedTier(income),
		Compliant: s.rng.Float64() < initialCompliance,
		Behavior:  behavior,
	}

	// Compliant households start with a formed habit; the rest start low on every axis.
	if h.Compliant {
		h.Attitude = s.uniform(seed.CompliantAttitude)
		h.Norm = s.uniform(seed.CompliantOther)
		h.Control = s.uniform(seed.CompliantOther)
	} else {
		h.Attitude = s.uniform(seed.NonCompliant)
		h.Norm = s.uniform(seed.NonCompliant)
		h.Control = s.uniform(seed.NonCompliant)
	}
	return h
}

func (s *Spawner) weightedTier(shares []float64) IncomeTier {
	total := 0.0
	for _, w := range shares {
		total += w
	}
	if total <= 0 {
		return IncomeMid
	}
	r := s.rng.Float64() * total
	for i, w := range shares {
		if r < w {
			return IncomeTier(i + 1)
		}
		r -= w
	}
	return IncomeTier(len(shares))
}

func (s *Spawner) uniform(r []float64) float64 {
	if len(r) < 2 {
		return 0
	}
	return r[0] + s.rng.Float64()*(r[1]-r[0])
}
