package agents

import (
	"fmt"
	"math/rand"

	"github.com/talgya/wastewise/internal/world"
)

// Population is the agent arena. Households are created once and never removed;
// enforcers come and go with quarterly staffing. Zone membership is an index,
// so zones and agents never own each other.
type Population struct {
	Grid       *world.Grid
	Households []*Household
	Enforcers  []*Enforcer // oldest first

	households map[AgentID]*Household
	kinds      map[AgentID]Kind
	byZone     [][]*Household
	nextID     AgentID
	nextSeq    uint64
}

// NewPopulation creates an empty arena over a grid with the given zone count.
func NewPopulation(g *world.Grid, zones int) *Population {
	return &Population{
		Grid:       g,
		households: make(map[AgentID]*Household),
		kinds:      make(map[AgentID]Kind),
		byZone:     make([][]*Household, zones),
		nextID:     1,
	}
}

// NextID issues a fresh agent ID.
func (p *Population) NextID() AgentID {
	id := p.nextID
	p.nextID++
	return id
}

// AddHousehold registers a household and places it on the grid.
func (p *Population) AddHousehold(h *Household, c world.Cell) error {
	if h.Zone < 0 || h.Zone >= len(p.byZone) {
		return fmt.Errorf("household %d: zone %d out of range", h.ID, h.Zone)
	}
	if err := p.Grid.Place(uint64(h.ID), c); err != nil {
		return fmt.Errorf("household %d: %w", h.ID, err)
	}
	p.Households = append(p.Households, h)
	p.households[h.ID] = h
	p.kinds[h.ID] = KindHousehold
	p.byZone[h.Zone] = append(p.byZone[h.Zone], h)
	return nil
}

// Household looks up a household by ID.
func (p *Population) Household(id AgentID) (*Household, bool) {
	h, ok := p.households[id]
	return h, ok
}

// Kind reports which variant an ID belongs to. IDs of removed enforcers and
// IDs never issued report false.
func (p *Population) Kind(id AgentID) (Kind, bool) {
	k, ok := p.kinds[id]
	return k, ok
}

// InZone returns the households of a zone.
func (p *Population) InZone(zone int) []*Household {
	if zone < 0 || zone >= len(p.byZone) {
		return nil
	}
	return p.byZone[zone]
}

// AddEnforcer creates an enforcer for a zone at cell c.
func (p *Population) AddEnforcer(zone int, c world.Cell, fine float64, patrolRadius int) (*Enforcer, error) {
	e := NewEnforcer(p.NextID(), zone, fine, patrolRadius, p.nextSeq)
	p.nextSeq++
	if err := p.Grid.Place(uint64(e.ID), c); err != nil {
		return nil, fmt.Errorf("enforcer %d: %w", e.ID, err)
	}
	p.Enforcers = append(p.Enforcers, e)
	p.kinds[e.ID] = KindEnforcer
	return e, nil
}

// EnforcersIn returns a zone's enforcers, oldest first.
func (p *Population) EnforcersIn(zone int) []*Enforcer {
	var out []*Enforcer
	for _, e := range p.Enforcers {
		if e.Zone == zone {
			out = append(out, e)
		}
	}
	return out
}

// RemoveEnforcer takes an enforcer off the grid and out of the arena.
func (p *Population) RemoveEnforcer(id AgentID) bool {
	for i, e := range p.Enforcers {
		if e.ID == id {
			p.Grid.Remove(uint64(id))
			delete(p.kinds, id)
			p.Enforcers = append(p.Enforcers[:i], p.Enforcers[i+1:]...)
			return true
		}
	}
	return false
}

// Staff grows or shrinks a zone's enforcer roster to target.
// New enforcers start on a random cell; surplus ones are removed oldest first.
func (p *Population) Staff(zone, target int, rng *rand.Rand, fine float64, patrolRadius int) (added, removed int, err error) {
	current := p.EnforcersIn(zone)
	switch {
	case len(current) < target:
		for i := len(current); i < target; i++ {
			if _, err := p.AddEnforcer(zone, p.Grid.RandomCell(rng), fine, patrolRadius); err != nil {
				return added, removed, err
			}
			added++
		}
	case len(current) > target:
		for _, e := range current[:len(current)-target] {
			p.RemoveEnforcer(e.ID)
			removed++
		}
	}
	return added, removed, nil
}

// ResetRewards clears every household's per-quarter reward flag.
func (p *Population) ResetRewards() {
	for _, h := range p.Households {
		h.Rewarded = false
	}
}

// ShuffledHouseholds returns a fresh random permutation of the households.
func (p *Population) ShuffledHouseholds(rng *rand.Rand) []*Household {
	out := make([]*Household, len(p.Households))
	copy(out, p.Households)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}

// ShuffledEnforcers returns a fresh random permutation of the enforcers.
func (p *Population) ShuffledEnforcers(rng *rand.Rand) []*Enforcer {
	out := make([]*Enforcer, len(p.Enforcers))
	copy(out, p.Enforcers)
	rng.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	return out
}
