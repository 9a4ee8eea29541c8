package policy

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/talgya/wastewise/internal/engine"
)

// maxRequestBytes bounds a decide request body.
const maxRequestBytes = 1 << 20

// Handler serves a Controller over the remote decision contract:
//
//	POST /decide   {"observation": {...}, "state": [...]} -> {"action": [...]}
//	GET  /history  recently served decisions
//	GET  /healthz
type Handler struct {
	Controller engine.Controller
	Name       string
	Memory     *Memory
	mux        *http.ServeMux
}

// NewHandler wraps a controller. mem may be nil.
func NewHandler(ctrl engine.Controller, name string, mem *Memory) *Handler {
	if mem == nil {
		mem = LoadMemory("", 0)
	}
	h := &Handler{Controller: ctrl, Name: name, Memory: mem, mux: http.NewServeMux()}
	h.mux.HandleFunc("POST /decide", h.handleDecide)
	h.mux.HandleFunc("GET /history", h.handleHistory)
	h.mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "policy": h.Name})
	})
	return h
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

func (h *Handler) handleDecide(w http.ResponseWriter, r *http.Request) {
	var req DecideRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBytes)).Decode(&req); err != nil {
		http.Error(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	obs := req.Observation
	if obs.Zones == 0 {
		obs.Zones = len(obs.Compliance)
	}

	rec := Served{Tick: obs.Tick, Quarter: obs.Quarter, Compliance: obs.AvgCompliance(), Capital: obs.Capital}
	action, err := h.Controller.Decide(r.Context(), obs)
	if err == nil {
		err = engine.CheckDecision(action, obs.Zones)
	}
	if err != nil {
		rec.Error = err.Error()
		h.Memory.Record(rec)
		slog.Warn("decision failed", "policy", h.Name, "tick", obs.Tick, "error", err)
		http.Error(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}
	rec.Action = action
	h.Memory.Record(rec)
	if err := h.Memory.Save(); err != nil {
		slog.Warn("saving controller memory", "error", err)
	}

	slog.Info("decision served", "policy", h.Name, "quarter", obs.Quarter, "tick", obs.Tick, "compliance", rec.Compliance)
	writeJSON(w, http.StatusOK, DecideResponse{Action: action})
}

func (h *Handler) handleHistory(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Memory.Snapshot())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	enc.Encode(v)
}
