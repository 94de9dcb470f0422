// Package rules implements the alert rule management endpoints.
package rules

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/quiet-harbor/guardrail/internal/models"
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
	errCodeBadRequest       = "BAD_REQUEST"
	errCodeValidationFailed = "VALIDATION_FAILED"
	errCodeNotFound         = "NOT_FOUND"
	errCodeInternalError    = "INTERNAL_ERROR"
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

func jsonCreated(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

func jsonNoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
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

// ListResponse wraps a rule list with pagination info.
type ListResponse struct {
	Items   []*models.AlertRule `json:"items"`
	Total   int64               `json:"total"`
	Page    int                 `json:"page"`
	PerPage int                 `json:"per_page"`
}

// Handler handles alert rule endpoints.
type Handler struct {
	storage storage.Storage
}

// NewHandler creates a rules handler.
func NewHandler(store storage.Storage) *Handler {
	return &Handler{storage: store}
}

// RuleRequest carries the writable fields of a rule for create and update.
type RuleRequest struct {
	Name                string   `json:"name"`
	Description         string   `json:"description"`
	Enabled             *bool    `json:"enabled"`
	Priority            int      `json:"priority"`
	MatchSeverities     []string `json:"match_severities"`
	MatchResultStatuses []string `json:"match_result_statuses"`
	ConsecutiveFailures int      `json:"consecutive_failures"`
	CooldownMinutes     int      `json:"cooldown_minutes"`
	AlertSeverity       string   `json:"alert_severity"`
	SLAHours            float64  `json:"sla_hours"`
	DeliveryChannels    []string `json:"delivery_channels"`
	SlackWebhookURL     string   `json:"slack_webhook_url"`
	EmailRecipients     []string `json:"email_recipients"`
	WebhookURL          string   `json:"webhook_url"`
}

func (req *RuleRequest) applyDefaults() {
	if req.MatchResultStatuses == nil {
		req.MatchResultStatuses = []string{string(models.ResultStatusFail)}
	}
	if req.ConsecutiveFailures == 0 {
		req.ConsecutiveFailures = 1
	}
}

func (req *RuleRequest) apply(rule *models.AlertRule) {
	rule.Name = req.Name
	rule.Description = req.Description
	rule.Priority = req.Priority
	if req.Enabled != nil {
		rule.Enabled = *req.Enabled
	}

	rule.MatchSeverities = make([]models.Severity, len(req.MatchSeverities))
	for i, s := range req.MatchSeverities {
		rule.MatchSeverities[i] = models.Severity(s)
	}
	rule.MatchResultStatuses = make([]models.ResultStatus, len(req.MatchResultStatuses))
	for i, s := range req.MatchResultStatuses {
		rule.MatchResultStatuses[i] = models.ResultStatus(s)
	}

	rule.ConsecutiveFailures = req.ConsecutiveFailures
	rule.CooldownMinutes = req.CooldownMinutes
	rule.AlertSeverity = models.Severity(req.AlertSeverity)
	rule.SLAHours = req.SLAHours

	rule.DeliveryChannels = make([]models.DeliveryChannel, len(req.DeliveryChannels))
	for i, ch := range req.DeliveryChannels {
		rule.DeliveryChannels[i] = models.DeliveryChannel(ch)
	}
	rule.ChannelSettings = models.ChannelSettings{
		SlackWebhookURL: req.SlackWebhookURL,
		EmailRecipients: req.EmailRecipients,
		WebhookURL:      req.WebhookURL,
	}
}

// Create creates a new alert rule.
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	req.applyDefaults()

	if err := validateRule(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	now := time.Now()
	rule := &models.AlertRule{
		ID:        uuid.New().String(),
		Enabled:   true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	req.apply(rule)

	if err := h.storage.Rules().Create(r.Context(), rule); err != nil {
		log.Printf("create rule error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonCreated(w, rule)
}

// List returns rules with pagination, ordered by priority.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)

	filter := storage.RuleFilter{
		IncludeDeprecated: r.URL.Query().Get("include_deprecated") == "true",
	}
	if v := r.URL.Query().Get("enabled"); v != "" {
		enabled := v == "true"
		filter.Enabled = &enabled
	}

	items, total, err := h.storage.Rules().List(r.Context(), filter, perPage, (page-1)*perPage)
	if err != nil {
		log.Printf("list rules error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if items == nil {
		items = []*models.AlertRule{}
	}

	jsonOK(w, ListResponse{Items: items, Total: total, Page: page, PerPage: perPage})
}

// Get returns one rule by id.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadRule(w, r)
	if !ok {
		return
	}
	jsonOK(w, rule)
}

// Update replaces a rule's editable fields. Edits apply to future
// evaluations only; alerts already fired keep their copied configuration.
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadRule(w, r)
	if !ok {
		return
	}

	var req RuleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	req.applyDefaults()

	if err := validateRule(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, err.Error())
		return
	}

	req.apply(rule)
	rule.UpdatedAt = time.Now()

	if err := h.storage.Rules().Update(r.Context(), rule); err != nil {
		log.Printf("update rule %s error: %v", rule.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonOK(w, rule)
}

// Delete removes a rule. A rule that has generated alerts is deprecated
// instead of hard-deleted so alert provenance stays resolvable.
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	rule, ok := h.loadRule(w, r)
	if !ok {
		return
	}

	if rule.AlertsGenerated > 0 {
		if err := h.storage.Rules().SetDeprecated(r.Context(), rule.ID, true); err != nil {
			log.Printf("deprecate rule %s error: %v", rule.ID, err)
			jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
			return
		}
		jsonOK(w, map[string]any{"id": rule.ID, "deprecated": true})
		return
	}

	if err := h.storage.Rules().Delete(r.Context(), rule.ID); err != nil {
		log.Printf("delete rule %s error: %v", rule.ID, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	jsonNoContent(w)
}

// Enable turns a rule on.
func (h *Handler) Enable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, true)
}

// Disable turns a rule off. Disabling does not clear consecutive-failure
// streaks; they resume where they left off on re-enable.
func (h *Handler) Disable(w http.ResponseWriter, r *http.Request) {
	h.setEnabled(w, r, false)
}

func (h *Handler) setEnabled(w http.ResponseWriter, r *http.Request, enabled bool) {
	rule, ok := h.loadRule(w, r)
	if !ok {
		return
	}

	if err := h.storage.Rules().SetEnabled(r.Context(), rule.ID, enabled); err != nil {
		log.Printf("set rule %s enabled=%v error: %v", rule.ID, enabled, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}

	rule.Enabled = enabled
	jsonOK(w, rule)
}

func (h *Handler) loadRule(w http.ResponseWriter, r *http.Request) (*models.AlertRule, bool) {
	id := chi.URLParam(r, "id")
	rule, err := h.storage.Rules().GetByID(r.Context(), id)
	if err != nil {
		log.Printf("get rule %s error: %v", id, err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return nil, false
	}
	if rule == nil {
		jsonError(w, http.StatusNotFound, errCodeNotFound, "rule not found")
		return nil, false
	}
	return rule, true
}
