// Package results implements the test result ingest endpoint.
package results

import (
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/quiet-harbor/guardrail/internal/alerting"
	"github.com/quiet-harbor/guardrail/internal/models"
)

// Response helpers
type errorResponse struct {
	Error errorBody `json:"error"`
}
type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}
type dataResponse struct {
	Data any `json:"data"`
}

const (
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeInternalError    = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonAccepted(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// Handler handles the test result ingest endpoint.
type Handler struct {
	engine *alerting.Engine
}

// NewHandler creates a results handler.
func NewHandler(engine *alerting.Engine) *Handler {
	return &Handler{engine: engine}
}

// IngestRequest is one completed compliance test result.
type IngestRequest struct {
	TestID    string         `json:"test_id"`
	ControlID string         `json:"control_id"`
	Status    string         `json:"status"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details"`
	TestedAt  time.Time      `json:"tested_at"`
}

// FiredAlert is the summary of one alert a result caused to fire.
type FiredAlert struct {
	ID          string          `json:"id"`
	AlertNumber int64           `json:"alert_number"`
	RuleID      string          `json:"rule_id"`
	Severity    models.Severity `json:"severity"`
}

// IngestResponse reports the outcome of one ingested result.
type IngestResponse struct {
	AlertsFired []FiredAlert `json:"alerts_fired"`
}

// Ingest evaluates one completed test result against all enabled rules.
// Delivery happens asynchronously; the 202 only confirms evaluation and
// alert creation.
func (h *Handler) Ingest(w http.ResponseWriter, r *http.Request) {
	var req IngestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}

	if req.TestedAt.IsZero() {
		req.TestedAt = time.Now()
	}

	result := &models.TestResult{
		TestID:    req.TestID,
		ControlID: req.ControlID,
		Status:    models.ResultStatus(req.Status),
		Severity:  models.Severity(req.Severity),
		Message:   req.Message,
		Details:   req.Details,
		TestedAt:  req.TestedAt,
	}

	fired, err := h.engine.Process(r.Context(), result)
	if err != nil {
		if alerting.IsValidation(err) {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
			return
		}
		log.Printf("process result for test %s error: %v", req.TestID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	resp := IngestResponse{AlertsFired: make([]FiredAlert, len(fired))}
	for i, alert := range fired {
		resp.AlertsFired[i] = FiredAlert{
			ID:          alert.ID,
			AlertNumber: alert.AlertNumber,
			RuleID:      alert.RuleID,
			Severity:    alert.Severity,
		}
	}

	jsonAccepted(w, resp)
}
