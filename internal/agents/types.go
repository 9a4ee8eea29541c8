// Package agents provides the household and enforcer models, the agent arena,
// and population spawning.
package agents

import (
	"math/rand"

	"github.com/talgya/wastewise/internal/config"
)

// AgentID is a unique identifier for an agent. Households and enforcers share one ID space.
type AgentID uint64

// Kind tags an agent's variant.
type Kind uint8

const (
	KindHousehold Kind = iota
	KindEnforcer
)

// IncomeTier is the household income bracket, 1 (lowest) to 3 (highest).
type IncomeTier uint8

const (
	IncomeLow  IncomeTier = 1
	IncomeMid  IncomeTier = 2
	IncomeHigh IncomeTier = 3
)

// PatrolMode is derived each tick from what an enforcer can see.
type PatrolMode uint8

const (
	Patrolling PatrolMode = iota // no unvisited target in range, random step
	Chasing                      // moving toward the nearest unvisited target
)

func (m PatrolMode) String() string {
	if m == Chasing {
		return "chasing"
	}
	return "patrolling"
}

// Zone is the view of a zone that agents read and act on.
type Zone interface {
	ComplianceRate() float64
	EnforcementIntensity() float64
	IECIntensity() float64
	IncentiveValue() float64
	FineAmount() float64
	// GiveReward debits amount from the zone's incentive cash. Returns false if short.
	GiveReward(amount float64) bool
	RecordFine(amount float64)
}

// Ledger accumulates global fine and incentive statistics.
// Fines recorded here never flow back into any spendable budget.
type Ledger struct {
	TotalFines     float64 `json:"total_fines"`
	RecentFines    float64 `json:"recent_fines"` // since the last depletion step
	FineCount      int     `json:"fine_count"`
	IncentivesPaid float64 `json:"incentives_paid"`
	Redemptions    int     `json:"redemptions"`
}

// RecordFine adds one fine to the totals.
func (l *Ledger) RecordFine(amount float64) {
	l.TotalFines += amount
	l.RecentFines += amount
	l.FineCount++
}

// TakeRecentFines returns and resets the fines collected since the last call.
func (l *Ledger) TakeRecentFines() float64 {
	f := l.RecentFines
	l.RecentFines = 0
	return f
}

// Env is the context passed to every agent step.
type Env struct {
	Rng    *rand.Rand
	Cal    *config.Config
	Pop    *Population
	Zones  []Zone
	Ledger *Ledger
}

func (e *Env) zone(i int) Zone {
	if i < 0 || i >= len(e.Zones) {
		return nil
	}
	return e.Zones[i]
}
