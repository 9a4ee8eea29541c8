package policy

import (
	"context"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/engine"
)

func obs(compliance ...float64) engine.Observation {
	return engine.Observation{Zones: len(compliance), Compliance: compliance, Budget: 1, Capital: 1}
}

func TestFixedStrategies(t *testing.T) {
	cal := config.Default()
	cases := map[string][]float64{
		StatusQuo:       {1, 0, 0, 1, 0, 0},
		PureEnforcement: {0, 1, 0, 0, 1, 0},
		PureIncentives:  {0, 0, 1, 0, 0, 1},
	}
	for name, want := range cases {
		c, err := New(name, nil, cal)
		if err != nil {
			t.Fatalf("New(%s): %v", name, err)
		}
		got, _ := c.Decide(context.Background(), obs(0.2, 0.4))
		if len(got) != len(want) {
			t.Fatalf("%s: %v", name, got)
		}
		for i := range want {
			if got[i] != want[i] {
				t.Fatalf("%s: got %v want %v", name, got, want)
			}
		}
	}
}

func TestNewRejectsUnknownAndBadGlobal(t *testing.T) {
	cal := config.Default()
	if _, err := New("ppo", nil, cal); !errors.Is(err, ErrUnknownPolicy) {
		t.Fatalf("unknown: %v", err)
	}
	if _, err := New(GlobalName, []float64{1, 0}, cal); !errors.Is(err, engine.ErrDecisionLength) {
		t.Fatalf("bad global: %v", err)
	}
	c, err := New(GlobalName, []float64{1, 0, 0}, cal)
	if err != nil {
		t.Fatalf("global: %v", err)
	}
	got, _ := c.Decide(context.Background(), obs(0.1, 0.2, 0.3))
	if len(got) != 3 || got[0] != 1 {
		t.Fatalf("global desire: %v", got)
	}
}

func TestTriageShapesAroundWorstZone(t *testing.T) {
	cal := config.Default()
	tr := NewTriage(Fixed{Mix: [3]float64{1, 1, 1}}, cal.Policy)
	got, err := tr.Decide(context.Background(), obs(0.9, 0.1, 0.5))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	want := []float64{0.1, 0.2, 0.1, 100, 100, 100, 0.1, 0.1, 0.1}
	for i := range want {
		if math.Abs(got[i]-want[i]) > 1e-12 {
			t.Fatalf("triage: got %v want %v", got, want)
		}
	}
	if err := engine.CheckDecision(got, 3); err != nil {
		t.Fatalf("triage output rejected: %v", err)
	}
}

func TestTriageExpandsGlobalBase(t *testing.T) {
	cal := config.Default()
	tr := NewTriage(Global{Desire: [3]float64{1, 0, 0}}, cal.Policy)
	got, err := tr.Decide(context.Background(), obs(0.2, 0.3))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(got) != 6 || got[0] != 100 || got[3] != 0.1 {
		t.Fatalf("expanded triage: %v", got)
	}
}

func TestSoftmax(t *testing.T) {
	p := Softmax([]float64{1000, 1000, 1000})
	for _, v := range p {
		if math.Abs(v-1.0/3) > 1e-12 {
			t.Fatalf("large equal scores should split evenly: %v", p)
		}
	}
	p = Softmax([]float64{0, math.Log(3)})
	if math.Abs(p[0]-0.25) > 1e-12 || math.Abs(p[1]-0.75) > 1e-12 {
		t.Fatalf("softmax: %v", p)
	}
	if Softmax(nil) != nil {
		t.Fatalf("empty input")
	}
}

func TestParseVector(t *testing.T) {
	v, err := ParseVector("1, 0,0.5")
	if err != nil || len(v) != 3 || v[2] != 0.5 {
		t.Fatalf("ParseVector: %v %v", v, err)
	}
	if _, err := ParseVector("1,x"); err == nil {
		t.Fatalf("expected parse error")
	}
	if v, _ := ParseVector(""); v != nil {
		t.Fatalf("empty string: %v", v)
	}
}

func TestRemoteRoundTrip(t *testing.T) {
	cal := config.Default()
	mem := LoadMemory(filepath.Join(t.TempDir(), "memory.json"), 5)
	srv := httptest.NewServer(NewHandler(NewTriage(Fixed{Mix: [3]float64{1, 1, 1}}, cal.Policy), TriageName, mem))
	defer srv.Close()

	r := NewRemote(srv.URL)
	action, err := r.Decide(context.Background(), obs(0.3, 0.6))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	if len(action) != 6 || action[0] != 100 {
		t.Fatalf("action: %v", action)
	}
	if recs := mem.Snapshot(); len(recs) != 1 || recs[0].Error != "" {
		t.Fatalf("memory: %+v", recs)
	}

	// A reloaded memory sees the saved record.
	if again := LoadMemory(mem.path, 5); len(again.Records) != 1 {
		t.Fatalf("reloaded memory: %+v", again.Records)
	}
}

type badController struct{}

func (badController) Decide(context.Context, engine.Observation) ([]float64, error) {
	return []float64{1, 2}, nil
}

func TestHandlerRejectsBadAction(t *testing.T) {
	srv := httptest.NewServer(NewHandler(badController{}, "bad", nil))
	defer srv.Close()

	_, err := NewRemote(srv.URL).Decide(context.Background(), obs(0.3, 0.6))
	if err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected 422, got %v", err)
	}

	resp, err := http.Post(srv.URL+"/decide", "application/json", strings.NewReader("{"))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("malformed body: status %d", resp.StatusCode)
	}
}

func TestNormalizedSumsToOne(t *testing.T) {
	n := Normalized{Inner: Fixed{Mix: [3]float64{2, -1, 0.5}}}
	got, err := n.Decide(context.Background(), obs(0.5, 0.5))
	if err != nil {
		t.Fatalf("Decide: %v", err)
	}
	sum := 0.0
	for _, v := range got {
		if v <= 0 {
			t.Fatalf("softmax output should be positive: %v", got)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-12 {
		t.Fatalf("sum %v", sum)
	}
}

func TestMemoryTrims(t *testing.T) {
	m := LoadMemory("", 2)
	for i := 0; i < 5; i++ {
		m.Record(Served{Tick: uint64(i)})
	}
	recs := m.Snapshot()
	if len(recs) != 2 || recs[0].Tick != 3 {
		t.Fatalf("trim: %+v", recs)
	}
	if !strings.Contains(m.Format(1), "tick 4") {
		t.Fatalf("format: %q", m.Format(1))
	}
}
