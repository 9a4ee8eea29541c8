package agents

import (
	"github.com/talgya/wastewise/internal/world"
)

// Enforcer patrols one zone for its whole life and fines non-compliant households.
type Enforcer struct {
	ID           AgentID    `json:"id"`
	Zone         int        `json:"zone"`
	PatrolRadius int        `json:"patrol_radius"`
	FineAmount   float64    `json:"fine_amount"`
	Mode         PatrolMode `json:"mode"`
	Seq          uint64     `json:"seq"` // creation order; lower is older

	// Households already seen up close. Cleared only when the enforcer is recreated.
	visited map[AgentID]struct{}
}

// NewEnforcer creates an enforcer bound to a zone.
func NewEnforcer(id AgentID, zone int, fine float64, patrolRadius int, seq uint64) *Enforcer {
	return &Enforcer{
		ID:           id,
		Zone:         zone,
		PatrolRadius: patrolRadius,
		FineAmount:   fine,
		Seq:          seq,
		visited:      make(map[AgentID]struct{}),
	}
}

// Visited reports whether the household has been marked.
func (e *Enforcer) Visited(id AgentID) bool {
	_, ok := e.visited[id]
	return ok
}

// VisitedCount returns the size of the visited set.
func (e *Enforcer) VisitedCount() int {
	return len(e.visited)
}

// Step runs one tick: mark, move (chase or patrol), then capture.
func (e *Enforcer) Step(env *Env) {
	grid := env.Pop.Grid
	pos, ok := grid.Position(uint64(e.ID))
	if !ok {
		return
	}
	capture := env.Cal.Enforcer.CaptureRadius

	for _, id := range grid.Neighbors(pos, capture, true) {
		if k, ok := env.Pop.Kind(AgentID(id)); ok && k == KindHousehold {
			e.visited[AgentID(id)] = struct{}{}
		}
	}

	next := pos
	steps := grid.Adjacent(pos)
	if target, found := e.nearestTarget(env, pos); found {
		e.Mode = Chasing
		best := -1.0
		for _, s := range steps {
			d := world.Euclidean(s, target)
			if best < 0 || d < best {
				best = d
				next = s
			}
		}
	} else {
		e.Mode = Patrolling
		if len(steps) > 0 {
			next = steps[env.Rng.Intn(len(steps))]
		}
	}
	if next != pos {
		_ = grid.Move(uint64(e.ID), next)
	}

	for _, id := range grid.Neighbors(next, capture, true) {
		if k, ok := env.Pop.Kind(AgentID(id)); !ok || k != KindHousehold {
			continue
		}
		if h, _ := env.Pop.Household(AgentID(id)); !h.Compliant {
			h.Fine(env, e.FineAmount)
		}
	}
}

// nearestTarget returns the cell of the closest unvisited same-zone household in scan range.
func (e *Enforcer) nearestTarget(env *Env, pos world.Cell) (world.Cell, bool) {
	grid := env.Pop.Grid
	var target world.Cell
	best := -1.0
	for _, id := range grid.Neighbors(pos, env.Cal.Enforcer.ScanRadius, false) {
		h, ok := env.Pop.Household(AgentID(id))
		if !ok || h.Zone != e.Zone || e.Visited(h.ID) {
			continue
		}
		c, _ := grid.Position(id)
		d := world.Euclidean(pos, c)
		if best < 0 || d < best {
			best = d
			target = c
		}
	}
	return target, best >= 0
}
