// Package api provides the HTTP API for watching a running simulation.
// GET endpoints are public (read-only observation).
// POST endpoints require a bearer token (admin control plane).
package api

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/talgya/wastewise/internal/engine"
)

// Server serves simulation state over HTTP.
type Server struct {
	Sim      *engine.Simulation
	Eng      *engine.Engine
	AdminKey string // Bearer token for POST endpoints. Empty = POST disabled.

	hub     *hub
	limiter *RateLimiter
}

// NewServer wires a server to sim. It registers a sample observer, so it must
// be called before the simulation starts stepping.
func NewServer(sim *engine.Simulation, eng *engine.Engine, adminKey string) *Server {
	s := &Server{
		Sim:      sim,
		Eng:      eng,
		AdminKey: adminKey,
		hub:      newHub(),
		limiter:  NewRateLimiter(30, time.Minute),
	}
	sim.OnSample = append(sim.OnSample, s.hub.broadcast)
	return s
}

// Handler returns the routed API with CORS applied.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/status", s.handleStatus)
	mux.HandleFunc("GET /api/v1/zones", s.handleZones)
	mux.HandleFunc("GET /api/v1/enforcers", s.handleEnforcers)
	mux.HandleFunc("GET /api/v1/state", s.handleState)
	mux.HandleFunc("GET /api/v1/decisions", s.handleDecisions)
	mux.HandleFunc("GET /api/v1/reports", s.handleReports)
	mux.HandleFunc("GET /api/v1/stream", RateLimitMiddleware(s.limiter, s.handleStream))

	mux.HandleFunc("GET /api/v1/speed", s.handleSpeed)
	mux.HandleFunc("POST /api/v1/speed", s.adminOnly(s.handleSpeed))

	return corsMiddleware(mux)
}

// Start serves the API on addr in a goroutine and returns the server so the
// caller can shut it down.
func (s *Server) Start(addr string) *http.Server {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	slog.Info("HTTP API starting", "addr", addr, "admin_auth", s.AdminKey != "")

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("HTTP server error", "error", err)
		}
	}()
	return srv
}

// corsMiddleware adds CORS headers for allowed dashboard origins.
// CORS_ORIGINS is a comma-separated list; localhost dev servers are always allowed.
func corsMiddleware(next http.Handler) http.Handler {
	allowedOrigins := map[string]bool{
		"http://localhost:5173": true,
		"http://localhost:3000": true,
	}
	if env := os.Getenv("CORS_ORIGINS"); env != "" {
		for _, origin := range strings.Split(env, ",") {
			if origin = strings.TrimSpace(origin); origin != "" {
				allowedOrigins[origin] = true
			}
		}
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if allowedOrigins[origin] {
			w.Header().Set("Access-Control-Allow-Origin", origin)
			w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) checkBearerToken(r *http.Request) bool {
	auth := r.Header.Get("Authorization")
	return strings.HasPrefix(auth, "Bearer ") && strings.TrimPrefix(auth, "Bearer ") == s.AdminKey
}

// adminOnly requires the admin bearer token.
func (s *Server) adminOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.AdminKey == "" {
			http.Error(w, "admin endpoints disabled (no WASTEWISE_ADMIN_KEY set)", http.StatusForbidden)
			return
		}
		if !s.checkBearerToken(r) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next(w, r)
	}
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st := s.Sim.Status()
	resp := map[string]any{
		"status":   st,
		"sim_date": engine.SimDate(st.Tick, s.Sim.Cal.Simulation.TicksPerQuarter),
		"streams":  s.hub.count(),
	}
	if s.Eng != nil {
		resp["speed"] = s.Eng.Speed()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleZones(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.ZoneSnapshots())
}

func (s *Server) handleEnforcers(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.EnforcerSnapshots())
}

// handleState returns the controller's view: the observation, its flat
// vector form and the reward it would earn.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	obs := s.Sim.Observe()
	writeJSON(w, http.StatusOK, map[string]any{
		"observation": obs,
		"vector":      obs.Vector(),
		"reward":      engine.Reward(obs, s.Sim.Cal.Policy.Reward),
	})
}

func (s *Server) handleDecisions(w http.ResponseWriter, r *http.Request) {
	n := 20
	if v := r.URL.Query().Get("n"); v != "" {
		parsed, err := strconv.Atoi(v)
		if err != nil || parsed <= 0 {
			http.Error(w, "n must be a positive integer", http.StatusBadRequest)
			return
		}
		n = parsed
	}
	writeJSON(w, http.StatusOK, s.Sim.RecentDecisions(n))
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.Sim.QuarterReport())
}

func (s *Server) handleSpeed(w http.ResponseWriter, r *http.Request) {
	if s.Eng == nil {
		http.Error(w, "simulation is not paced", http.StatusServiceUnavailable)
		return
	}
	if r.Method == http.MethodPost {
		var req struct {
			Speed float64 `json:"speed"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		if req.Speed < 0 || req.Speed > 1000 {
			http.Error(w, "speed must be 0-1000", http.StatusBadRequest)
			return
		}
		s.Eng.SetSpeed(req.Speed)
		slog.Info("speed changed", "speed", req.Speed)
	}
	writeJSON(w, http.StatusOK, map[string]float64{"speed": s.Eng.Speed()})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(data); err != nil {
		slog.Debug("write response", "error", err)
	}
}
