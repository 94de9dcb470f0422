package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

// SlackNotifier posts alerts to a Slack incoming webhook. The webhook URL
// comes from the firing rule's settings, so one notifier serves all rules.
type SlackNotifier struct {
	httpClient *http.Client
}

// NewSlackNotifier creates a new Slack notifier.
func NewSlackNotifier(client *http.Client) *SlackNotifier {
	if client == nil {
		client = &http.Client{Timeout: 10 * time.Second}
	}
	return &SlackNotifier{httpClient: client}
}

// Channel returns "slack".
func (s *SlackNotifier) Channel() models.DeliveryChannel {
	return models.ChannelSlack
}

// Send posts a Block Kit message to the rule's webhook URL.
func (s *SlackNotifier) Send(ctx context.Context, alert *models.Alert, settings models.ChannelSettings) error {
	if err := validateWebhookURL(settings.SlackWebhookURL); err != nil {
		return fmt.Errorf("slack config: %w", err)
	}

	payload := buildSlackPayload(alert)

	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, settings.SlackWebhookURL, bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("slack API error: status %d, body: %s", resp.StatusCode, string(body))
	}

	return nil
}

func validateWebhookURL(url string) error {
	if url == "" {
		return fmt.Errorf("webhook URL is required")
	}
	if !strings.HasPrefix(url, "https://") {
		return fmt.Errorf("webhook URL must use HTTPS")
	}
	return nil
}

// slackMessage represents the Slack webhook payload.
type slackMessage struct {
	Blocks []slackBlock `json:"blocks"`
}

// slackBlock represents a Slack Block Kit block.
type slackBlock struct {
	Type     string      `json:"type"`
	Text     *slackText  `json:"text,omitempty"`
	Fields   []slackText `json:"fields,omitempty"`
	Elements []slackText `json:"elements,omitempty"`
}

// slackText represents text in Slack Block Kit.
type slackText struct {
	Type  string `json:"type"`
	Text  string `json:"text"`
	Emoji bool   `json:"emoji,omitempty"`
}

// buildSlackPayload builds the Block Kit message for an alert.
func buildSlackPayload(alert *models.Alert) slackMessage {
	emoji := severityEmoji(alert.Severity)

	blocks := []slackBlock{
		{
			Type: "header",
			Text: &slackText{
				Type:  "plain_text",
				Text:  fmt.Sprintf("%s Guardrail Alert #%d: %s", emoji, alert.AlertNumber, alert.RuleName),
				Emoji: true,
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Severity:*\n%s %s", emoji, strings.ToUpper(string(alert.Severity))),
				},
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Fired:*\n%s", alert.CreatedAt.Format("2006-01-02 15:04:05 MST")),
				},
			},
		},
		{
			Type: "section",
			Fields: []slackText{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Test:*\n`%s`", alert.TestID),
				},
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("*Control:*\n`%s`", alert.ControlID),
				},
			},
		},
		{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("*%s*\n%s", alert.Title, truncate(alert.Description, 400)),
			},
		},
	}

	if alert.Result.Message != "" {
		blocks = append(blocks, slackBlock{
			Type: "section",
			Text: &slackText{
				Type: "mrkdwn",
				Text: fmt.Sprintf("```%s [%s] %s```",
					alert.Result.TestedAt.Format("15:04:05"),
					strings.ToUpper(string(alert.Result.Status)),
					truncate(alert.Result.Message, 200)),
			},
		})
	}

	if alert.SLADeadline != nil {
		blocks = append(blocks, slackBlock{
			Type: "context",
			Elements: []slackText{
				{
					Type: "mrkdwn",
					Text: fmt.Sprintf("SLA deadline: %s", alert.SLADeadline.Format("2006-01-02 15:04 MST")),
				},
			},
		})
	}

	return slackMessage{Blocks: blocks}
}

// severityEmoji returns an emoji for the severity level.
func severityEmoji(severity models.Severity) string {
	switch severity {
	case models.SeverityCritical:
		return "\U0001F534" // red circle
	case models.SeverityHigh:
		return "\U0001F7E0" // orange circle
	case models.SeverityMedium:
		return "\U0001F7E1" // yellow circle
	case models.SeverityLow:
		return "\U0001F7E2" // green circle
	default:
		return "⚪" // white circle
	}
}

// truncate truncates a string to max length with ellipsis.
func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max-3] + "..."
}
