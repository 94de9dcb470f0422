// Package health provides health check endpoints for the API.
package health

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/quiet-harbor/guardrail/pkg/config"
)

// Checker defines the interface for health checkers.
type Checker interface {
	Name() string
	Check(ctx context.Context) error
}

// Handler manages health check endpoints. Required checkers gate
// readiness; optional ones (the evaluation archive) are reported but
// never fail the probe, since the matching path does not depend on them.
type Handler struct {
	mu       sync.RWMutex
	required []Checker
	optional []Checker
}

// NewHandler creates a new health handler.
func NewHandler() *Handler {
	return &Handler{}
}

// RegisterChecker adds a dependency checker that gates readiness.
func (h *Handler) RegisterChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.required = append(h.required, c)
}

// RegisterOptionalChecker adds a checker whose failure degrades but does
// not fail readiness.
func (h *Handler) RegisterOptionalChecker(c Checker) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.optional = append(h.optional, c)
}

// HealthResponse represents the health check response.
type HealthResponse struct {
	Status  string            `json:"status"`
	Version string            `json:"version,omitempty"`
	Checks  map[string]string `json:"checks,omitempty"`
}

// Health returns basic health status with the running version.
// This endpoint is for simple "is the process running" checks.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{Status: "ok", Version: config.Version})
}

// Live returns liveness probe status.
// Use for Kubernetes liveness probes.
func (h *Handler) Live(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(HealthResponse{Status: "live"})
}

// Ready returns readiness probe status. 200 only when every required
// dependency checks out; optional dependency failures downgrade the
// status to "degraded" without failing the probe.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	h.mu.RLock()
	required := append([]Checker(nil), h.required...)
	optional := append([]Checker(nil), h.optional...)
	h.mu.RUnlock()

	results := make(map[string]string)

	status := "ready"
	code := http.StatusOK

	for _, checker := range required {
		if err := checker.Check(ctx); err != nil {
			results[checker.Name()] = err.Error()
			status = "not_ready"
			code = http.StatusServiceUnavailable
		} else {
			results[checker.Name()] = "ok"
		}
	}

	for _, checker := range optional {
		if err := checker.Check(ctx); err != nil {
			results[checker.Name()] = err.Error()
			if status == "ready" {
				status = "degraded"
			}
		} else {
			results[checker.Name()] = "ok"
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(HealthResponse{Status: status, Checks: results})
}
