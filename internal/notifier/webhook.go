package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

// WebhookNotifier POSTs a generic JSON payload to the rule's webhook URL.
type WebhookNotifier struct {
	httpClient *http.Client
}

// NewWebhookNotifier creates a new generic webhook notifier.
func NewWebhookNotifier(client *http.Client) *WebhookNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &WebhookNotifier{httpClient: client}
}

// Channel returns "webhook".
func (n *WebhookNotifier) Channel() models.DeliveryChannel {
	return models.ChannelWebhook
}

// webhookPayload is the JSON body sent to generic webhook consumers.
// Field names mirror the public API.
type webhookPayload struct {
	Event       string                `json:"event"`
	AlertID     string                `json:"alert_id"`
	AlertNumber int64                 `json:"alert_number"`
	Title       string                `json:"title"`
	Description string                `json:"description,omitempty"`
	Severity    models.Severity       `json:"severity"`
	Status      models.AlertStatus    `json:"status"`
	RuleID      string                `json:"rule_id"`
	RuleName    string                `json:"rule_name"`
	TestID      string                `json:"test_id"`
	ControlID   string                `json:"control_id"`
	Result      models.ResultSnapshot `json:"result"`
	SLADeadline *time.Time            `json:"sla_deadline,omitempty"`
	CreatedAt   time.Time             `json:"created_at"`
}

// Send posts the alert payload to the configured URL.
func (n *WebhookNotifier) Send(ctx context.Context, alert *models.Alert, settings models.ChannelSettings) error {
	if settings.WebhookURL == "" {
		return fmt.Errorf("webhook config: URL is required")
	}

	payload := webhookPayload{
		Event:       "alert.fired",
		AlertID:     alert.ID,
		AlertNumber: alert.AlertNumber,
		Title:       alert.Title,
		Description: alert.Description,
		Severity:    alert.Severity,
		Status:      alert.Status,
		RuleID:      alert.RuleID,
		RuleName:    alert.RuleName,
		TestID:      alert.TestID,
		ControlID:   alert.ControlID,
		Result:      alert.Result,
		SLADeadline: alert.SLADeadline,
		CreatedAt:   alert.CreatedAt,
	}

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.WebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "guardrail-webhook/1.0")

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("webhook error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}
