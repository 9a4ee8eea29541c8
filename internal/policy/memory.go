package policy

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// Served captures one answered decision request.
type Served struct {
	Tick       uint64    `json:"tick"`
	Quarter    int       `json:"quarter"`
	Compliance float64   `json:"compliance"` // average over zones at request time
	Capital    float64   `json:"capital"`
	Action     []float64 `json:"action"`
	Error      string    `json:"error,omitempty"`
}

// Memory keeps the most recent served decisions, optionally backed by a file.
type Memory struct {
	mu      sync.Mutex
	Records []Served `json:"records"`
	limit   int
	path    string
}

// LoadMemory reads the memory file at path. Returns empty memory if it is
// missing or unreadable. An empty path keeps memory in-process only.
func LoadMemory(path string, limit int) *Memory {
	m := &Memory{limit: limit, path: path}
	if path == "" {
		return m
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return m
	}
	if err := json.Unmarshal(data, m); err != nil {
		slog.Warn("controller memory corrupted, starting fresh", "path", path, "error", err)
		m.Records = nil
	}
	m.trim()
	return m
}

// Save writes the memory to its file, if it has one.
func (m *Memory) Save() error {
	if m.path == "" {
		return nil
	}
	m.mu.Lock()
	data, err := json.MarshalIndent(m, "", "  ")
	m.mu.Unlock()
	if err != nil {
		return fmt.Errorf("marshal controller memory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(m.path), 0755); err != nil {
		return fmt.Errorf("create memory dir: %w", err)
	}
	if err := os.WriteFile(m.path, data, 0644); err != nil {
		return fmt.Errorf("write controller memory: %w", err)
	}
	return nil
}

// Record adds a served decision, trimming to the limit.
func (m *Memory) Record(s Served) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Records = append(m.Records, s)
	m.trim()
}

func (m *Memory) trim() {
	if m.limit > 0 && len(m.Records) > m.limit {
		m.Records = m.Records[len(m.Records)-m.limit:]
	}
}

// Snapshot returns a copy of the records, oldest first.
func (m *Memory) Snapshot() []Served {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Served(nil), m.Records...)
}

// Format summarizes the last n records, one line each.
func (m *Memory) Format(n int) string {
	recs := m.Snapshot()
	if n > 0 && len(recs) > n {
		recs = recs[len(recs)-n:]
	}
	var b strings.Builder
	for _, r := range recs {
		fmt.Fprintf(&b, "- Q%d tick %d: compliance=%.3f capital=%.3f action=%v", r.Quarter, r.Tick, r.Compliance, r.Capital, r.Action)
		if r.Error != "" {
			fmt.Fprintf(&b, " error=%s", r.Error)
		}
		b.WriteString("\n")
	}
	return b.String()
}
