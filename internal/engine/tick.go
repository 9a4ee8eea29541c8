// Package engine provides the simulation state, the quarterly allocation
// algorithm and the paced tick loop.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Stepper is anything the engine can drive one tick at a time.
type Stepper interface {
	Step(ctx context.Context) error
	Terminated() bool
	CurrentTick() uint64
}

// Engine paces a Stepper in wall-clock time.
type Engine struct {
	Interval time.Duration // base tick interval; 0 runs as fast as possible

	mu    sync.Mutex
	speed float64 // 1.0 = one tick per Interval, 0 = paused

	// OnTick runs after every successful step.
	OnTick func(tick uint64)
}

// NewEngine creates an engine with default settings.
func NewEngine(interval time.Duration) *Engine {
	return &Engine{Interval: interval, speed: 1.0}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier. Zero or less pauses the loop.
func (e *Engine) SetSpeed(v float64) {
	e.mu.Lock()
	e.speed = v
	e.mu.Unlock()
}

// Run drives s until it terminates, a step fails, or ctx is cancelled.
func (e *Engine) Run(ctx context.Context, s Stepper) error {
	slog.Info("simulation engine started", "tick", s.CurrentTick(), "speed", e.Speed(), "interval", e.Interval)
	defer func() { slog.Info("simulation engine stopped", "tick", s.CurrentTick()) }()

	for !s.Terminated() {
		if err := ctx.Err(); err != nil {
			return err
		}
		speed := e.Speed()
		if speed <= 0 {
			// Paused: check again shortly.
			if err := sleep(ctx, 100*time.Millisecond); err != nil {
				return err
			}
			continue
		}

		start := time.Now()
		if err := s.Step(ctx); err != nil {
			return err
		}
		if e.OnTick != nil {
			e.OnTick(s.CurrentTick())
		}

		if e.Interval > 0 {
			target := time.Duration(float64(e.Interval) / speed)
			if elapsed := time.Since(start); elapsed < target {
				if err := sleep(ctx, target-elapsed); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// SimDate renders a tick as a calendar position, e.g. "Y2 Q3 day 14".
func SimDate(tick uint64, ticksPerQuarter int) string {
	if ticksPerQuarter <= 0 {
		return fmt.Sprintf("tick %d", tick)
	}
	tpq := uint64(ticksPerQuarter)
	quarters := tick / tpq
	day := tick%tpq + 1
	return fmt.Sprintf("Y%d Q%d day %d", quarters/4+1, quarters%4+1, day)
}
