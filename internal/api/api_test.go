package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/talgya/wastewise/internal/config"
	"github.com/talgya/wastewise/internal/engine"
)

type zeroController struct{}

func (zeroController) Decide(_ context.Context, obs engine.Observation) ([]float64, error) {
	return make([]float64, engine.Interventions*obs.Zones), nil
}

func newTestServer(t *testing.T, adminKey string) (*Server, *httptest.Server) {
	t.Helper()
	cal := config.Default()
	cal.Simulation.GridWidth = 15
	cal.Simulation.GridHeight = 15
	cal.Simulation.TicksPerQuarter = 5
	cal.Simulation.Quarters = 2
	cal.Simulation.Seed = 3
	cal.Zones = []config.ZoneSpec{
		{Name: "East", Households: 30, LocalBudget: 10000, InitialCompliance: 0.4, IncomeProfile: "Mati", BehaviorProfile: "Mati", AllocationProfile: "standard"},
		{Name: "West", Households: 20, LocalBudget: 10000, InitialCompliance: 0.6, IncomeProfile: "Binuni", BehaviorProfile: "Binuni", AllocationProfile: "standard"},
	}
	cal.Recompute()

	sim, err := engine.New(cal, zeroController{}, "zero")
	if err != nil {
		t.Fatalf("engine.New: %v", err)
	}
	srv := NewServer(sim, engine.NewEngine(0), adminKey)
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return srv, ts
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode %s: %v", url, err)
	}
}

func TestStatusAndZones(t *testing.T) {
	srv, ts := newTestServer(t, "")
	if err := srv.Sim.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}

	var status struct {
		Status  engine.Status `json:"status"`
		SimDate string        `json:"sim_date"`
		Speed   float64       `json:"speed"`
	}
	getJSON(t, ts.URL+"/api/v1/status", &status)
	if status.Status.Tick != 1 || status.Status.Households != 50 {
		t.Fatalf("status = %+v", status.Status)
	}
	if status.SimDate != "Y1 Q1 day 2" {
		t.Fatalf("sim_date = %q", status.SimDate)
	}
	if status.Speed != 1 {
		t.Fatalf("speed = %v", status.Speed)
	}

	var zones []engine.ZoneSnapshot
	getJSON(t, ts.URL+"/api/v1/zones", &zones)
	if len(zones) != 2 || zones[0].Name != "East" || zones[1].Households != 20 {
		t.Fatalf("zones = %+v", zones)
	}
}

func TestEnforcersListed(t *testing.T) {
	srv, ts := newTestServer(t, "")
	if err := srv.Sim.ApplyDecision([]float64{0, 1, 0}); err != nil {
		t.Fatalf("ApplyDecision: %v", err)
	}

	var enforcers []engine.EnforcerSnapshot
	getJSON(t, ts.URL+"/api/v1/enforcers", &enforcers)
	active := 0
	for _, z := range srv.Sim.ZoneSnapshots() {
		active += z.ActiveEnforcers
	}
	if active == 0 || len(enforcers) != active {
		t.Fatalf("listed %d enforcers, zones report %d", len(enforcers), active)
	}
	for _, e := range enforcers {
		if e.PatrolRadius != srv.Sim.Cal.Enforcer.PatrolRadius || e.Mode != "patrolling" || e.Visited != 0 {
			t.Fatalf("fresh enforcer = %+v", e)
		}
		if e.Zone != "East" && e.Zone != "West" {
			t.Fatalf("enforcer zone %q", e.Zone)
		}
	}
}

func TestStateIncludesVectorAndReward(t *testing.T) {
	srv, ts := newTestServer(t, "")
	var state struct {
		Observation engine.Observation `json:"observation"`
		Vector      []float64          `json:"vector"`
		Reward      float64            `json:"reward"`
	}
	getJSON(t, ts.URL+"/api/v1/state", &state)
	want := srv.Sim.Observe().Vector()
	if len(state.Vector) != len(want) {
		t.Fatalf("vector length %d, want %d", len(state.Vector), len(want))
	}
	if state.Observation.Zones != 2 {
		t.Fatalf("observation zones = %d", state.Observation.Zones)
	}
}

func TestDecisionsQuery(t *testing.T) {
	srv, ts := newTestServer(t, "")
	if err := srv.Sim.Step(context.Background()); err != nil {
		t.Fatalf("Step: %v", err)
	}
	var decisions []engine.Decision
	getJSON(t, ts.URL+"/api/v1/decisions?n=5", &decisions)
	if len(decisions) != 1 || decisions[0].Controller != "zero" {
		t.Fatalf("decisions = %+v", decisions)
	}

	resp, err := http.Get(ts.URL + "/api/v1/decisions?n=-1")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("bad n: status %d", resp.StatusCode)
	}
}

func TestSpeedRequiresAdmin(t *testing.T) {
	post := func(url, key string) int {
		req, _ := http.NewRequest(http.MethodPost, url+"/api/v1/speed", strings.NewReader(`{"speed": 4}`))
		if key != "" {
			req.Header.Set("Authorization", "Bearer "+key)
		}
		resp, err := http.DefaultClient.Do(req)
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		return resp.StatusCode
	}

	_, open := newTestServer(t, "")
	if code := post(open.URL, "anything"); code != http.StatusForbidden {
		t.Fatalf("no admin key: status %d, want 403", code)
	}

	srv, ts := newTestServer(t, "secret")
	if code := post(ts.URL, "wrong"); code != http.StatusUnauthorized {
		t.Fatalf("wrong key: status %d, want 401", code)
	}
	if code := post(ts.URL, "secret"); code != http.StatusOK {
		t.Fatalf("right key: status %d", code)
	}
	if got := srv.Eng.Speed(); got != 4 {
		t.Fatalf("speed = %v, want 4", got)
	}
}

func TestStreamDeliversSamples(t *testing.T) {
	srv, ts := newTestServer(t, "")
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/stream"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for i := 0; i < 3; i++ {
		if err := srv.Sim.Step(context.Background()); err != nil {
			t.Fatalf("Step: %v", err)
		}
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for want := uint64(0); want < 3; want++ {
		var sample engine.TickSample
		if err := conn.ReadJSON(&sample); err != nil {
			t.Fatalf("read sample %d: %v", want, err)
		}
		if sample.Tick != want {
			t.Fatalf("sample tick = %d, want %d", sample.Tick, want)
		}
		if len(sample.Zones) != 2 {
			t.Fatalf("sample zones = %v", sample.Zones)
		}
	}
}

func TestRateLimiterWindow(t *testing.T) {
	clock := time.Unix(0, 0)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return clock }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("first two requests should pass")
	}
	if rl.Allow("a") {
		t.Fatal("third request should be limited")
	}
	if !rl.Allow("b") {
		t.Fatal("other clients have their own budget")
	}
	if got := rl.RetryAfter("a"); got != 61 {
		t.Fatalf("RetryAfter = %d, want 61", got)
	}
	clock = clock.Add(time.Minute)
	if !rl.Allow("a") {
		t.Fatal("window reset should allow again")
	}
}

func TestClientIP(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.5:4321"
	if got := clientIP(r); got != "10.0.0.5" {
		t.Fatalf("clientIP = %q", got)
	}
	r.Header.Set("X-Forwarded-For", "203.0.113.9, 10.0.0.1")
	if got := clientIP(r); got != "203.0.113.9" {
		t.Fatalf("clientIP = %q", got)
	}
}
