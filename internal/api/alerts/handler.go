// Package alerts implements the alert workflow endpoints.
package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quiet-harbor/guardrail/internal/alerting"
	"github.com/quiet-harbor/guardrail/internal/api/middleware"
	"github.com/quiet-harbor/guardrail/internal/models"
	"github.com/quiet-harbor/guardrail/internal/notifier"
	"github.com/quiet-harbor/guardrail/internal/storage"
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
	errCodeBadRequest        = "BAD_REQUEST"
	errCodeValidationFailed  = "VALIDATION_FAILED"
	errCodeNotFound          = "NOT_FOUND"
	errCodeInvalidTransition = "INVALID_TRANSITION"
	errCodeInternalError     = "INTERNAL_ERROR"
)

func jsonError(w http.ResponseWriter, status int, code, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(errorResponse{Error: errorBody{Code: code, Message: message}}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// AlertResponse is an alert enriched with the derived SLA state and the
// actions available from its current status.
type AlertResponse struct {
	*models.Alert
	SLA              *SLABody             `json:"sla,omitempty"`
	AvailableActions []models.AlertStatus `json:"available_actions"`
}

// SLABody is the derived SLA clock for one alert.
type SLABody struct {
	Deadline       time.Time `json:"deadline"`
	HoursRemaining float64   `json:"hours_remaining"`
	Breached       bool      `json:"breached"`
}

func toResponse(alert *models.Alert, now time.Time) *AlertResponse {
	resp := &AlertResponse{
		Alert:            alert,
		AvailableActions: models.NextStatuses(alert.Status),
	}
	state := alerting.ComputeSLA(alert, now)
	if alert.SLADeadline != nil {
		resp.SLA = &SLABody{
			Deadline:       *state.Deadline,
			HoursRemaining: state.HoursRemaining,
			Breached:       state.Breached,
		}
	}
	return resp
}

// ListResponse wraps an alert list with pagination info.
type ListResponse struct {
	Items   []*AlertResponse `json:"items"`
	Total   int64            `json:"total"`
	Page    int              `json:"page"`
	PerPage int              `json:"per_page"`
}

// Handler handles alert workflow endpoints.
type Handler struct {
	storage    storage.Storage
	lifecycle  *alerting.Lifecycle
	dispatcher *notifier.Dispatcher
}

// NewHandler creates an alerts handler.
func NewHandler(store storage.Storage, lifecycle *alerting.Lifecycle, dispatcher *notifier.Dispatcher) *Handler {
	return &Handler{storage: store, lifecycle: lifecycle, dispatcher: dispatcher}
}

// List returns alerts with filters and pagination, newest first.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)
	q := r.URL.Query()

	filter := storage.AlertFilter{
		AssignedTo: q.Get("assigned_to"),
		RuleID:     q.Get("rule_id"),
		TestID:     q.Get("test_id"),
	}
	if v := q.Get("status"); v != "" {
		if !models.ValidAlertStatus(v) {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid status filter")
			return
		}
		filter.Status = models.AlertStatus(v)
	}
	if v := q.Get("severity"); v != "" {
		if !models.ValidSeverity(v) {
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid severity filter")
			return
		}
		filter.Severity = models.Severity(v)
	}

	alerts, total, err := h.storage.Alerts().List(r.Context(), filter, perPage, (page-1)*perPage)
	if err != nil {
		log.Printf("list alerts error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	now := time.Now()
	items := make([]*AlertResponse, len(alerts))
	for i, alert := range alerts {
		items[i] = toResponse(alert, now)
	}

	jsonOK(w, ListResponse{Items: items, Total: total, Page: page, PerPage: perPage})
}

// Get returns one alert by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}
	jsonOK(w, toResponse(alert, time.Now()))
}

// Counts returns alert counts grouped by status.
func (h *Handler) Counts(w http.ResponseWriter, r *http.Request) {
	counts, err := h.storage.Alerts().CountByStatus(r.Context())
	if err != nil {
		log.Printf("count alerts error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	jsonOK(w, counts)
}

// Acknowledge moves an alert to acknowledged.
func (h *Handler) Acknowledge(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(id, actor string) (*models.Alert, error) {
		return h.lifecycle.Acknowledge(r.Context(), id, actor)
	})
}

// Start moves an alert to in_progress.
func (h *Handler) Start(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(id, actor string) (*models.Alert, error) {
		return h.lifecycle.StartProgress(r.Context(), id, actor)
	})
}

type resolveRequest struct {
	ResolutionNotes string `json:"resolution_notes"`
}

// Resolve moves an alert to resolved. Resolution notes are required.
func (h *Handler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	h.applyTransition(w, r, func(id, actor string) (*models.Alert, error) {
		return h.lifecycle.Resolve(r.Context(), id, actor, req.ResolutionNotes)
	})
}

type suppressRequest struct {
	Reason string    `json:"reason"`
	Until  time.Time `json:"until"`
}

// Suppress silences an alert until a given time.
func (h *Handler) Suppress(w http.ResponseWriter, r *http.Request) {
	var req suppressRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	h.applyTransition(w, r, func(id, actor string) (*models.Alert, error) {
		return h.lifecycle.Suppress(r.Context(), id, actor, req.Reason, req.Until)
	})
}

// Unsuppress manually reopens a suppressed alert.
func (h *Handler) Unsuppress(w http.ResponseWriter, r *http.Request) {
	h.applyTransition(w, r, func(id, actor string) (*models.Alert, error) {
		return h.lifecycle.Unsuppress(r.Context(), id, actor)
	})
}

type closeRequest struct {
	Notes string `json:"notes"`
}

// Close moves an alert to closed.
func (h *Handler) Close(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
			return
		}
	}
	h.applyTransition(w, r, func(id, actor string) (*models.Alert, error) {
		return h.lifecycle.Close(r.Context(), id, actor, req.Notes)
	})
}

type assignRequest struct {
	AssignedTo string `json:"assigned_to"`
}

// Assign sets an alert's assignee.
func (h *Handler) Assign(w http.ResponseWriter, r *http.Request) {
	var req assignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	h.applyTransition(w, r, func(id, actor string) (*models.Alert, error) {
		return h.lifecycle.Assign(r.Context(), id, actor, req.AssignedTo)
	})
}

// Redeliver re-attempts delivery on all of the alert's channels and
// returns the per-channel outcomes. Channels that already succeeded are
// sent again; recipients may see a duplicate.
func (h *Handler) Redeliver(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}
	if len(alert.DeliveryChannels) == 0 {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "alert has no delivery channels")
		return
	}

	rule, err := h.storage.Rules().GetByID(r.Context(), alert.RuleID)
	if err != nil {
		log.Printf("get rule %s error: %v", alert.RuleID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if rule == nil {
		jsonError(w, http.StatusConflict, errCodeInvalidTransition, "originating rule no longer exists")
		return
	}

	actor := middleware.GetActor(r.Context())
	attempts := h.dispatcher.DeliverSync(r.Context(), alert, rule.ChannelSettings)

	h.recordEvent(r.Context(), alert.ID, "redeliver", actor)

	jsonOK(w, map[string]any{"attempts": attempts})
}

// Deliveries returns the alert's delivery attempt log.
func (h *Handler) Deliveries(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}

	attempts, err := h.storage.Deliveries().ListByAlert(r.Context(), alert.ID)
	if err != nil {
		log.Printf("list deliveries for alert %s error: %v", alert.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if attempts == nil {
		attempts = []*models.DeliveryAttempt{}
	}
	jsonOK(w, attempts)
}

// Events returns the alert's audit trail.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	alert, ok := h.loadAlert(w, r)
	if !ok {
		return
	}

	events, err := h.storage.Events().ListByAlert(r.Context(), alert.ID)
	if err != nil {
		log.Printf("list events for alert %s error: %v", alert.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if events == nil {
		events = []*models.AlertEvent{}
	}
	jsonOK(w, events)
}

// applyTransition runs a lifecycle action and maps its errors onto the
// API error codes.
func (h *Handler) applyTransition(w http.ResponseWriter, r *http.Request, fn func(id, actor string) (*models.Alert, error)) {
	id := chi.URLParam(r, "id")
	actor := middleware.GetActor(r.Context())

	alert, err := fn(id, actor)
	if err != nil {
		switch {
		case errors.Is(err, alerting.ErrNotFound):
			jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		case alerting.IsValidation(err):
			jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		case alerting.IsInvalidTransition(err):
			jsonError(w, http.StatusConflict, errCodeInvalidTransition, err.Error())
		default:
			log.Printf("alert %s action error: %v", id, err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		}
		return
	}

	jsonOK(w, toResponse(alert, time.Now()))
}

func (h *Handler) loadAlert(w http.ResponseWriter, r *http.Request) (*models.Alert, bool) {
	id := chi.URLParam(r, "id")
	alert, err := h.storage.Alerts().GetByID(r.Context(), id)
	if err != nil {
		log.Printf("get alert %s error: %v", id, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil, false
	}
	if alert == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "alert not found")
		return nil, false
	}
	return alert, true
}

func (h *Handler) recordEvent(ctx context.Context, alertID, action, actor string) {
	event := &models.AlertEvent{
		ID:        uuid.New().String(),
		AlertID:   alertID,
		Action:    action,
		Actor:     actor,
		CreatedAt: time.Now(),
	}
	if err := h.storage.Events().Create(ctx, event); err != nil {
		log.Printf("warning: record %s event for alert %s: %v", action, alertID, err)
	}
}

func parsePagination(r *http.Request) (page, perPage int) {
	page = 1
	perPage = 50
	if v := r.URL.Query().Get("page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			page = n
		}
	}
	if v := r.URL.Query().Get("per_page"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			perPage = n
		}
	}
	if perPage > 200 {
		perPage = 200
	}
	return page, perPage
}
