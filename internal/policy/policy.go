// Package policy implements quarterly budget controllers: fixed strategies,
// a triage heuristic, softmax normalization, and a JSON-over-HTTP contract for
// external controllers (client and server side).
package policy

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/engine"
)

// ErrUnknownPolicy is returned by New for names it does not recognize.
var ErrUnknownPolicy = errors.New("unknown policy")

// Built-in strategy names.
const (
	StatusQuo       = "status_quo"
	PureEnforcement = "pure_enforcement"
	PureIncentives  = "pure_incentives"
	GlobalName      = "global"
	TriageName      = "triage"
)

// Fixed gives every zone the same weight on one intervention mix.
type Fixed struct {
	Mix [engine.Interventions]float64
}

// Decide returns a per-zone vector with the mix repeated for every zone.
func (f Fixed) Decide(_ context.Context, obs engine.Observation) ([]float64, error) {
	out := make([]float64, 0, engine.Interventions*obs.Zones)
	for i := 0; i < obs.Zones; i++ {
		out = append(out, f.Mix[:]...)
	}
	return out, nil
}

// Global returns the same 3-vector every quarter, redistributed to needy zones by the engine.
type Global struct {
	Desire [engine.Interventions]float64
}

// Decide returns the configured global desire.
func (g Global) Decide(context.Context, engine.Observation) ([]float64, error) {
	return append([]float64(nil), g.Desire[:]...), nil
}

var fixedMixes = map[string][engine.Interventions]float64{
	StatusQuo:       {1, 0, 0},
	PureEnforcement: {0, 1, 0},
	PureIncentives:  {0, 0, 1},
}

// Names returns every built-in strategy name.
func Names() []string {
	names := []string{GlobalName, TriageName}
	for n := range fixedMixes {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// New builds a named built-in controller. global is the 3-vector used by the
// "global" strategy and as the base of "triage" (nil means equal weights).
func New(name string, global []float64, cal *config.Config) (engine.Controller, error) {
	if mix, ok := fixedMixes[name]; ok {
		return Fixed{Mix: mix}, nil
	}
	desire := [engine.Interventions]float64{1, 1, 1}
	if global != nil {
		if len(global) != engine.Interventions {
			return nil, fmt.Errorf("%w: global vector needs %d values, got %d", engine.ErrDecisionLength, engine.Interventions, len(global))
		}
		copy(desire[:], global)
	}
	switch name {
	case GlobalName:
		return Global{Desire: desire}, nil
	case TriageName:
		return NewTriage(Fixed{Mix: desire}, cal.Policy), nil
	}
	return nil, fmt.Errorf("%w: %q (known: %s)", ErrUnknownPolicy, name, strings.Join(Names(), ", "))
}

// ParseVector parses "1,0,0" into a float slice.
func ParseVector(s string) ([]float64, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]float64, len(parts))
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return nil, fmt.Errorf("parse vector element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}
