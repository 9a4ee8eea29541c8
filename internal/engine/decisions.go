package engine

import (
	"fmt"
	"strings"
)

// Decision records one quarterly allocation.
type Decision struct {
	Quarter     int       `json:"quarter"`
	Tick        uint64    `json:"tick"`
	Controller  string    `json:"controller"`
	Desire      []float64 `json:"desire"`
	Scale       float64   `json:"scale"`
	Spent       float64   `json:"spent"`
	Unallocated float64   `json:"unallocated"`
	Global      float64   `json:"global_compliance"` // at decision time
	Reward      float64   `json:"reward"`
	Error       string    `json:"error,omitempty"`
}

// DecisionLog keeps the most recent decisions.
type DecisionLog struct {
	Records []Decision `json:"records"`
	limit   int
}

// NewDecisionLog creates a log holding at most limit records (0 = unbounded).
func NewDecisionLog(limit int) *DecisionLog {
	return &DecisionLog{limit: limit}
}

// Record appends a decision, trimming the oldest past the limit.
func (l *DecisionLog) Record(d Decision) {
	l.Records = append(l.Records, d)
	if l.limit > 0 && len(l.Records) > l.limit {
		l.Records = l.Records[len(l.Records)-l.limit:]
	}
}

// Last returns the most recent decision.
func (l *DecisionLog) Last() (Decision, bool) {
	if len(l.Records) == 0 {
		return Decision{}, false
	}
	return l.Records[len(l.Records)-1], true
}

// Recent returns a copy of the last n records, oldest first.
func (l *DecisionLog) Recent(n int) []Decision {
	start := 0
	if n > 0 && len(l.Records) > n {
		start = len(l.Records) - n
	}
	out := make([]Decision, len(l.Records)-start)
	copy(out, l.Records[start:])
	return out
}

// Format summarizes the last n decisions, one line each.
func (l *DecisionLog) Format(n int) string {
	var b strings.Builder
	for _, d := range l.Recent(n) {
		fmt.Fprintf(&b, "- Q%d tick %d: %s spent=%.0f unallocated=%.0f compliance=%.3f reward=%.2f",
			d.Quarter, d.Tick, d.Controller, d.Spent, d.Unallocated, d.Global, d.Reward)
		if d.Error != "" {
			fmt.Fprintf(&b, " error=%s", d.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}
