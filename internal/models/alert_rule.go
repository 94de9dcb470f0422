package models

import "time"

// DeliveryChannel is one notification medium a firing alert is dispatched to.
type DeliveryChannel string

const (
	ChannelSlack   DeliveryChannel = "slack"
	ChannelEmail   DeliveryChannel = "email"
	ChannelWebhook DeliveryChannel = "webhook"
	ChannelInApp   DeliveryChannel = "in_app"
)

// ValidChannel reports whether s is a known delivery channel.
func ValidChannel(s string) bool {
	switch DeliveryChannel(s) {
	case ChannelSlack, ChannelEmail, ChannelWebhook, ChannelInApp:
		return true
	}
	return false
}

// ChannelSettings carries the per-channel destination configuration a rule
// provides. Each notifier reads only the field for its own channel and
// rejects the send when that field is missing.
type ChannelSettings struct {
	SlackWebhookURL string   `json:"slack_webhook_url,omitempty"`
	EmailRecipients []string `json:"email_recipients,omitempty"`
	WebhookURL      string   `json:"webhook_url,omitempty"`
}

// AlertRule is a firing policy evaluated against incoming test results.
type AlertRule struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Enabled     bool   `json:"enabled"`
	// Priority orders evaluation; lower values are evaluated first.
	// Ties are broken by rule id so evaluation order is deterministic.
	Priority int `json:"priority"`

	// Match predicate. An empty MatchSeverities set matches any severity.
	MatchSeverities     []Severity     `json:"match_severities"`
	MatchResultStatuses []ResultStatus `json:"match_result_statuses"`

	// Trigger shaping.
	ConsecutiveFailures int `json:"consecutive_failures"`
	CooldownMinutes     int `json:"cooldown_minutes"`

	// Output shaping. AlertSeverity is independent of the triggering
	// test's severity. SLAHours of 0 means no SLA deadline.
	AlertSeverity    Severity          `json:"alert_severity"`
	SLAHours         float64           `json:"sla_hours,omitempty"`
	DeliveryChannels []DeliveryChannel `json:"delivery_channels"`
	ChannelSettings

	// AlertsGenerated counts alerts this rule has fired, for observability.
	// A rule that has generated alerts is never hard-deleted, only
	// deprecated, so alert-to-rule provenance stays resolvable.
	AlertsGenerated int64 `json:"alerts_generated"`
	Deprecated      bool  `json:"deprecated"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// MatchesSeverity reports whether the rule's severity filter accepts sev.
func (r *AlertRule) MatchesSeverity(sev Severity) bool {
	if len(r.MatchSeverities) == 0 {
		return true
	}
	for _, s := range r.MatchSeverities {
		if s == sev {
			return true
		}
	}
	return false
}

// MatchesStatus reports whether the rule's status filter accepts status.
func (r *AlertRule) MatchesStatus(status ResultStatus) bool {
	for _, s := range r.MatchResultStatuses {
		if s == status {
			return true
		}
	}
	return false
}

// Matches evaluates the full match predicate against a test result.
func (r *AlertRule) Matches(result *TestResult) bool {
	return r.MatchesSeverity(result.Severity) && r.MatchesStatus(result.Status)
}

// Cooldown returns the configured cooldown as a duration.
func (r *AlertRule) Cooldown() time.Duration {
	return time.Duration(r.CooldownMinutes) * time.Minute
}

// HasChannel reports whether ch is in the rule's delivery channel set.
func (r *AlertRule) HasChannel(ch DeliveryChannel) bool {
	for _, c := range r.DeliveryChannels {
		if c == ch {
			return true
		}
	}
	return false
}

// NewAlertRule creates an enabled rule with defaults applied: match
// statuses default to {fail}, consecutive failures to 1.
func NewAlertRule(name string, alertSeverity Severity) *AlertRule {
	now := time.Now()
	return &AlertRule{
		Name:                name,
		Enabled:             true,
		MatchSeverities:     []Severity{},
		MatchResultStatuses: []ResultStatus{ResultStatusFail},
		ConsecutiveFailures: 1,
		AlertSeverity:       alertSeverity,
		DeliveryChannels:    []DeliveryChannel{},
		CreatedAt:           now,
		UpdatedAt:           now,
	}
}
