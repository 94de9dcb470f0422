// Package notifications implements test delivery and the in-app feed
// endpoints.
package notifications

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

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

func jsonOK(w http.ResponseWriter, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(dataResponse{Data: data}); err != nil {
		log.Printf("json encode error: %v", err)
	}
}

// Handler handles notification endpoints.
type Handler struct {
	storage    storage.Storage
	dispatcher *notifier.Dispatcher
}

// NewHandler creates a notifications handler.
func NewHandler(store storage.Storage, dispatcher *notifier.Dispatcher) *Handler {
	return &Handler{storage: store, dispatcher: dispatcher}
}

// TestRequest is one ad hoc delivery probe.
type TestRequest struct {
	Channel         string   `json:"channel"`
	SlackWebhookURL string   `json:"slack_webhook_url"`
	EmailRecipients []string `json:"email_recipients"`
	WebhookURL      string   `json:"webhook_url"`
}

// TestResponse reports the probe outcome. A failed send is reported in
// the body, not as an HTTP error.
type TestResponse struct {
	Channel   string `json:"channel"`
	Succeeded bool   `json:"succeeded"`
	Reason    string `json:"reason,omitempty"`
}

// Test sends a probe notification to the given channel and settings
// without creating an alert. Used to validate configuration before a
// rule is saved.
func (h *Handler) Test(w http.ResponseWriter, r *http.Request) {
	var req TestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		jsonError(w, http.StatusBadRequest, errCodeBadRequest, "invalid request body")
		return
	}
	if !models.ValidChannel(req.Channel) {
		jsonError(w, http.StatusBadRequest, errCodeValidationFailed, "invalid delivery channel")
		return
	}

	settings := models.ChannelSettings{
		SlackWebhookURL: req.SlackWebhookURL,
		EmailRecipients: req.EmailRecipients,
		WebhookURL:      req.WebhookURL,
	}

	resp := TestResponse{Channel: req.Channel, Succeeded: true}
	if err := h.dispatcher.TestDelivery(r.Context(), models.DeliveryChannel(req.Channel), settings); err != nil {
		resp.Succeeded = false
		resp.Reason = err.Error()
	}

	jsonOK(w, resp)
}

// FeedResponse wraps the in-app notification feed.
type FeedResponse struct {
	Items   []*models.FeedItem `json:"items"`
	Total   int64              `json:"total"`
	Page    int                `json:"page"`
	PerPage int                `json:"per_page"`
}

// Feed returns the in-app notification feed, newest first.
func (h *Handler) Feed(w http.ResponseWriter, r *http.Request) {
	page, perPage := parsePagination(r)

	items, total, err := h.storage.Feed().List(r.Context(), perPage, (page-1)*perPage)
	if err != nil {
		log.Printf("list feed error: %v", err)
		jsonError(w, http.StatusInternalServerError, errCodeInternalError, "internal server error")
		return
	}
	if items == nil {
		items = []*models.FeedItem{}
	}

	jsonOK(w, FeedResponse{Items: items, Total: total, Page: page, PerPage: perPage})
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
