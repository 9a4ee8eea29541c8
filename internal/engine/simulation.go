package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"sync"

	"github.com/talgya/wastewise/internal/agents"
	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/entropy"
	"github.com/talgya/wastewise/internal/social"
	"github.com/talgya/wastewise/internal/world"
)

// ErrTerminated is returned when stepping past the horizon.
var ErrTerminated = errors.New("simulation terminated")

// Controller supplies one decision per quarter: a non-negative desire vector of
// length 3 (global intent) or 3×zones (per-zone intent).
type Controller interface {
	Decide(ctx context.Context, obs Observation) ([]float64, error)
}

// Simulation holds the complete model state.
type Simulation struct {
	mu sync.RWMutex

	Cal     *config.Config
	Grid    *world.Grid
	Pop     *agents.Population
	Zones   []*social.Zone
	Ledger  agents.Ledger
	Budget  Budget
	Capital float64

	Tick    uint64 // next tick to process
	Quarter int    // decisions applied so far
	Horizon uint64
	RunID   string

	Controller     Controller
	ControllerName string
	Decisions      *DecisionLog
	Reports        []ZoneReport // from the latest decision point

	// Observers, called on the engine goroutine with the state lock released.
	OnSample   []func(TickSample)
	OnQuarter  []func([]ZoneReport, Decision)
	OnRejected []func(Decision)

	rng *rand.Rand
	env *agents.Env
}

// New builds a simulation from a calibration: zones, households and their
// placement. No decision is made until the first Step.
func New(cal *config.Config, ctrl Controller, name string) (*Simulation, error) {
	seed := cal.Simulation.Seed
	if seed == 0 {
		seed = entropy.Seed()
		cal.Simulation.Seed = seed
		slog.Info("drew random seed", "seed", seed)
	}
	grid := world.NewGrid(cal.Simulation.GridWidth, cal.Simulation.GridHeight)
	pop := agents.NewPopulation(grid, len(cal.Zones))

	s := &Simulation{
		Cal:            cal,
		Grid:           grid,
		Pop:            pop,
		Budget:         NewBudget(cal.Budget.Annual),
		Capital:        cal.Politics.Initial,
		Horizon:        uint64(cal.Derived.HorizonTicks),
		Controller:     ctrl,
		ControllerName: name,
		Decisions:      NewDecisionLog(cal.Policy.HistorySize),
		rng:            rand.New(rand.NewSource(seed)),
	}

	var centers []world.Cell
	if cal.Simulation.Placement == world.PlacementClustered {
		centers = world.PlaceZoneCenters(grid, len(cal.Zones), seed)
	}
	placer := world.NewPlacer(grid, rand.New(rand.NewSource(seed+100)), cal.Simulation.Placement, seed, centers)
	spawner := agents.NewSpawner(seed, cal)

	zones := make([]agents.Zone, len(cal.Zones))
	for i, spec := range cal.Zones {
		z := social.NewZone(i, spec, cal)
		s.Zones = append(s.Zones, z)
		zones[i] = z
		if _, err := spawner.SpawnZone(pop, i, spec, placer); err != nil {
			return nil, fmt.Errorf("spawning zone %q: %w", spec.Name, err)
		}
	}

	s.env = &agents.Env{
		Rng:    s.rng,
		Cal:    cal,
		Pop:    pop,
		Zones:  zones,
		Ledger: &s.Ledger,
	}
	s.refreshStats()

	slog.Info("simulation created",
		"zones", len(s.Zones),
		"households", len(pop.Households),
		"grid", grid.String(),
		"horizon", s.Horizon,
		"controller", name,
		"seed", seed,
	)
	return s, nil
}

// Terminated reports whether the horizon has been reached.
func (s *Simulation) Terminated() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Tick >= s.Horizon
}

// CurrentTick returns the next tick to be processed.
func (s *Simulation) CurrentTick() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Tick
}

// Run steps until the horizon or until ctx is cancelled.
func (s *Simulation) Run(ctx context.Context) error {
	for !s.Terminated() {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.Step(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Step processes one tick. At quarter boundaries the controller is asked for a
// decision first; a rejected decision fails the tick with nothing applied.
func (s *Simulation) Step(ctx context.Context) error {
	if s.Terminated() {
		return ErrTerminated
	}

	tpq := uint64(s.Cal.Simulation.TicksPerQuarter)
	if s.Tick%tpq == 0 {
		if s.Cal.Budget.ReplenishAnnually && s.Tick > 0 && s.Tick%(4*tpq) == 0 {
			s.mu.Lock()
			s.Budget.Replenish()
			s.mu.Unlock()
			slog.Info("municipal budget replenished", "tick", s.Tick, "balance", s.Budget.Balance)
		}
		if err := s.decide(ctx); err != nil {
			return err
		}
	}

	s.mu.Lock()
	sample := s.advance()
	s.mu.Unlock()

	for _, fn := range s.OnSample {
		fn(sample)
	}
	return nil
}

// advance runs the per-tick phases after any decision. Caller holds the lock.
func (s *Simulation) advance() TickSample {
	s.refreshStats()

	paidBefore := s.Ledger.IncentivesPaid
	for _, h := range s.Pop.ShuffledHouseholds(s.rng) {
		h.Step(s.env)
	}
	for _, e := range s.Pop.ShuffledEnforcers(s.rng) {
		e.Step(s.env)
	}
	paid := s.Ledger.IncentivesPaid - paidBefore

	avgEnf := 0.0
	for _, z := range s.Zones {
		avgEnf += z.Enforcement
	}
	if len(s.Zones) > 0 {
		avgEnf /= float64(len(s.Zones))
	}
	s.Capital = DriftCapital(s.Capital, avgEnf, s.Cal.Politics.Alpha, s.Cal.Politics.Beta)

	wasExhausted := s.Budget.Exhausted()
	fines := s.Ledger.TakeRecentFines()
	s.Budget.Deplete(s.Zones, s.Cal.Simulation.TicksPerQuarter, fines, paid)
	if !wasExhausted && s.Budget.Exhausted() {
		slog.Warn("municipal budget exhausted", "tick", s.Tick, "balance", s.Budget.Balance)
	}
	if fines > 0 {
		slog.Debug("fines logged", "tick", s.Tick, "amount", fines)
	}

	sample := s.sample()
	s.Tick++
	return sample
}

// decide asks the controller for a decision and applies it. The controller is
// called without holding the state lock so API readers are never blocked on it.
func (s *Simulation) decide(ctx context.Context) error {
	s.mu.Lock()
	s.refreshStats()
	obs := s.observe()
	s.mu.Unlock()

	if s.Controller == nil {
		return fmt.Errorf("tick %d: no controller", obs.Tick)
	}
	desire, err := s.Controller.Decide(ctx, obs)
	if err != nil {
		return fmt.Errorf("tick %d: controller %s: %w", obs.Tick, s.ControllerName, err)
	}
	return s.ApplyDecision(desire)
}

// ApplyDecision starts a new quarter with the given desire vector: rewards are
// reset, zone funds reallocated, enforcers restaffed and a report emitted.
// The vector is validated before anything changes.
func (s *Simulation) ApplyDecision(desire []float64) error {
	s.mu.Lock()
	d, reports, err := s.applyLocked(desire)
	s.mu.Unlock()
	if err != nil {
		for _, fn := range s.OnRejected {
			fn(d)
		}
		return err
	}
	for _, fn := range s.OnQuarter {
		fn(reports, d)
	}
	return nil
}

func (s *Simulation) applyLocked(desire []float64) (Decision, []ZoneReport, error) {
	needs := make([]ZoneNeed, len(s.Zones))
	for i, z := range s.Zones {
		needs[i] = ZoneNeed{Households: z.Households, Compliance: z.Compliance}
	}
	alloc, err := Allocate(desire, needs, AllocOptions{
		Quarterly:      s.Budget.Quarterly,
		Epsilon:        s.Cal.Budget.Epsilon,
		NeedyThreshold: s.Cal.Budget.NeedyThreshold,
		HouseholdCap:   s.Cal.Budget.HouseholdCap,
	})
	if err != nil {
		rejected := Decision{
			Quarter:    s.Quarter + 1,
			Tick:       s.Tick,
			Controller: s.ControllerName,
			Desire:     append([]float64(nil), desire...),
			Global:     s.globalCompliance(),
			Error:      err.Error(),
		}
		s.Decisions.Record(rejected)
		return rejected, nil, fmt.Errorf("tick %d: %w", s.Tick, err)
	}

	s.Quarter++
	s.Pop.ResetRewards()

	for i, z := range s.Zones {
		z.UpdatePolicy(alloc.TopUps[i])
		s.staff(z)
	}

	obs := s.observe()
	d := Decision{
		Quarter:     s.Quarter,
		Tick:        s.Tick,
		Controller:  s.ControllerName,
		Desire:      append([]float64(nil), desire...),
		Scale:       alloc.Scale,
		Spent:       alloc.Spent(),
		Unallocated: alloc.Unallocated,
		Global:      s.globalCompliance(),
		Reward:      Reward(obs, s.Cal.Policy.Reward),
	}
	s.Decisions.Record(d)

	s.Reports = s.Reports[:0]
	for _, z := range s.Zones {
		r := zoneReport(z, s.Pop.InZone(z.Index), s.Budget.Quarterly)
		r.Quarter, r.Tick, r.Capital = s.Quarter, s.Tick, s.Capital
		s.Reports = append(s.Reports, r)
	}
	reports := append([]ZoneReport(nil), s.Reports...)

	slog.Info("quarter decision applied",
		"quarter", s.Quarter,
		"tick", s.Tick,
		"date", SimDate(s.Tick, s.Cal.Simulation.TicksPerQuarter),
		"controller", s.ControllerName,
		"spent", fmt.Sprintf("%.0f", d.Spent),
		"unallocated", fmt.Sprintf("%.0f", d.Unallocated),
		"compliance", fmt.Sprintf("%.3f", d.Global),
		"capital", fmt.Sprintf("%.3f", s.Capital),
		"balance", fmt.Sprintf("%.0f", s.Budget.Balance),
		"enforcers", len(s.Pop.Enforcers),
	)
	return d, reports, nil
}

// staff resizes a zone's enforcer roster to its affordable headcount.
func (s *Simulation) staff(z *social.Zone) {
	target := Headcount(z.AffordableEnforcers(), s.rng)
	added, removed, err := s.Pop.Staff(z.Index, target, s.rng, z.Fine, s.Cal.Enforcer.PatrolRadius)
	if err != nil {
		slog.Error("staffing failed", "zone", z.Name, "target", target, "error", err)
	}
	z.ActiveEnforcer = len(s.Pop.EnforcersIn(z.Index))
	if added > 0 || removed > 0 {
		slog.Debug("enforcers restaffed", "zone", z.Name, "added", added, "removed", removed, "active", z.ActiveEnforcer)
	}
}

// refreshStats recomputes every zone's compliance from its households.
func (s *Simulation) refreshStats() {
	for _, z := range s.Zones {
		members := s.Pop.InZone(z.Index)
		flags := make([]bool, len(members))
		for i, h := range members {
			flags[i] = h.Compliant
		}
		z.RefreshCompliance(flags)
	}
}

func (s *Simulation) globalCompliance() float64 {
	total, compliant := len(s.Pop.Households), 0
	for _, h := range s.Pop.Households {
		if h.Compliant {
			compliant++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(compliant) / float64(total)
}

// observe builds the controller's view. Caller holds the lock.
func (s *Simulation) observe() Observation {
	o := Observation{
		Tick:       s.Tick,
		Quarter:    s.Quarter,
		Zones:      len(s.Zones),
		Compliance: make([]float64, len(s.Zones)),
		Budget:     s.Budget.Fraction(),
		Time:       min(1, max(0, float64(s.Quarter)/float64(s.Cal.Simulation.TimeScale))),
		Capital:    s.Capital,
	}
	for i, z := range s.Zones {
		o.Compliance[i] = z.Compliance
	}
	if s.Cal.Simulation.StateAttitudes {
		o.Attitude = make([]float64, len(s.Zones))
		for i, z := range s.Zones {
			members := s.Pop.InZone(z.Index)
			for _, h := range members {
				o.Attitude[i] += h.Attitude
			}
			if len(members) > 0 {
				o.Attitude[i] /= float64(len(members))
			}
		}
	}
	return o
}

// sample records the state after the tick's updates. Caller holds the lock.
func (s *Simulation) sample() TickSample {
	ts := TickSample{
		Tick:       s.Tick,
		Quarter:    s.Quarter,
		Global:     s.globalCompliance(),
		Zones:      make([]float64, len(s.Zones)),
		Capital:    s.Capital,
		Balance:    s.Budget.Balance,
		TotalFines: s.Ledger.TotalFines,
		Enforcers:  len(s.Pop.Enforcers),
	}
	for i, z := range s.Zones {
		members := s.Pop.InZone(z.Index)
		n := 0
		for _, h := range members {
			if h.Compliant {
				n++
			}
		}
		if len(members) > 0 {
			ts.Zones[i] = float64(n) / float64(len(members))
		}
	}
	return ts
}

// Observe returns the controller's current view of the state.
func (s *Simulation) Observe() Observation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.observe()
}

// QuarterReport returns a copy of the reports from the latest decision point.
func (s *Simulation) QuarterReport() []ZoneReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]ZoneReport(nil), s.Reports...)
}

// RecentDecisions returns up to n of the latest decisions, oldest first.
func (s *Simulation) RecentDecisions(n int) []Decision {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.Decisions.Recent(n)
}

// Status returns a run summary.
func (s *Simulation) Status() Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Status{
		RunID:           s.RunID,
		Tick:            s.Tick,
		Horizon:         s.Horizon,
		Quarter:         s.Quarter,
		Terminated:      s.Tick >= s.Horizon,
		Households:      len(s.Pop.Households),
		Enforcers:       len(s.Pop.Enforcers),
		Global:          s.globalCompliance(),
		Capital:         s.Capital,
		Budget:          s.Budget,
		BudgetExhausted: s.Budget.Exhausted(),
		TotalFines:      s.Ledger.TotalFines,
		FineCount:       s.Ledger.FineCount,
		Redemptions:     s.Ledger.Redemptions,
	}
}

// ZoneSnapshot is a read-only copy of a zone's public state.
type ZoneSnapshot struct {
	ID                   uint64       `json:"id"`
	Name                 string       `json:"name"`
	Households           int          `json:"households"`
	Compliance           float64      `json:"compliance"`
	Funds                social.Funds `json:"funds"`
	TopUp                social.Funds `json:"top_up"`
	IECIntensity         float64      `json:"iec_intensity"`
	EnforcementIntensity float64      `json:"enforcement_intensity"`
	IncentiveValue       float64      `json:"incentive_value"`
	CashOnHand           float64      `json:"cash_on_hand"`
	ActiveEnforcers      int          `json:"active_enforcers"`
	FinesIssued          int          `json:"fines_issued"`
	RewardsPaid          float64      `json:"rewards_paid"`
}

// ZoneSnapshots returns copies of every zone's public state.
func (s *Simulation) ZoneSnapshots() []ZoneSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ZoneSnapshot, len(s.Zones))
	for i, z := range s.Zones {
		out[i] = ZoneSnapshot{
			ID:                   z.ID,
			Name:                 z.Name,
			Households:           z.Households,
			Compliance:           z.Compliance,
			Funds:                z.Combined,
			TopUp:                z.TopUp,
			IECIntensity:         z.IEC,
			EnforcementIntensity: z.Enforcement,
			IncentiveValue:       z.Incentive,
			CashOnHand:           z.CashOnHand(),
			ActiveEnforcers:      z.ActiveEnforcer,
			FinesIssued:          z.FinesIssued,
			RewardsPaid:          z.RewardsPaid,
		}
	}
	return out
}

// EnforcerSnapshot is a read-only copy of one enforcer's state.
type EnforcerSnapshot struct {
	ID           uint64  `json:"id"`
	Zone         string  `json:"zone"`
	X            int     `json:"x"`
	Y            int     `json:"y"`
	Mode         string  `json:"mode"`
	PatrolRadius int     `json:"patrol_radius"`
	FineAmount   float64 `json:"fine_amount"`
	Visited      int     `json:"visited"`
}

// EnforcerSnapshots returns every active enforcer, oldest first.
func (s *Simulation) EnforcerSnapshots() []EnforcerSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]EnforcerSnapshot, 0, len(s.Pop.Enforcers))
	for _, e := range s.Pop.Enforcers {
		pos, _ := s.Grid.Position(uint64(e.ID))
		out = append(out, EnforcerSnapshot{
			ID:           uint64(e.ID),
			Zone:         s.Zones[e.Zone].Name,
			X:            pos.X,
			Y:            pos.Y,
			Mode:         e.Mode.String(),
			PatrolRadius: e.PatrolRadius,
			FineAmount:   e.FineAmount,
			Visited:      e.VisitedCount(),
		})
	}
	return out
}
