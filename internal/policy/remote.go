package policy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/talgya/wastewise/internal/engine"
)

// DecideRequest is the body of POST /decide.
type DecideRequest struct {
	Observation engine.Observation `json:"observation"`
	State       []float64          `json:"state"` // Observation.Vector()
}

// DecideResponse is the reply from POST /decide.
type DecideResponse struct {
	Action []float64 `json:"action"`
}

// Remote asks an external controller over HTTP.
type Remote struct {
	BaseURL    string
	HTTPClient *http.Client
}

// NewRemote creates a client targeting the controller's base URL.
func NewRemote(baseURL string) *Remote {
	return &Remote{
		BaseURL: baseURL,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Decide sends the observation to POST /decide and returns the action.
func (r *Remote) Decide(ctx context.Context, obs engine.Observation) ([]float64, error) {
	body, err := json.Marshal(DecideRequest{Observation: obs, State: obs.Vector()})
	if err != nil {
		return nil, fmt.Errorf("marshal observation: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.BaseURL+"/decide", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("POST decide: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("decide failed (%d): %s", resp.StatusCode, string(respBody))
	}

	var out DecideResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return out.Action, nil
}
