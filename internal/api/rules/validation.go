package rules

import (
	"errors"
	"fmt"
	"strings"

	"github.com/quiet-harbor/guardrail/internal/models"
)

const (
	maxNameLength        = 200
	maxDescriptionLength = 2000
	maxConsecutive       = 100
	maxCooldownMinutes   = 60 * 24 * 30 // 30 days
	maxSLAHours          = 24 * 365
)

// ValidateName checks the rule name.
func ValidateName(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return errors.New("name is required")
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("name must be %d characters or less", maxNameLength)
	}
	return nil
}

func validateSeverities(severities []string) error {
	for _, s := range severities {
		if !models.ValidSeverity(s) {
			return fmt.Errorf("invalid severity %q", s)
		}
	}
	return nil
}

func validateStatuses(statuses []string) error {
	if len(statuses) == 0 {
		return errors.New("match_result_statuses must not be empty")
	}
	for _, s := range statuses {
		if !models.ValidResultStatus(s) {
			return fmt.Errorf("invalid result status %q", s)
		}
	}
	return nil
}

func validateTrigger(consecutive, cooldownMinutes int) error {
	if consecutive < 1 || consecutive > maxConsecutive {
		return fmt.Errorf("consecutive_failures must be between 1 and %d", maxConsecutive)
	}
	if cooldownMinutes < 0 || cooldownMinutes > maxCooldownMinutes {
		return fmt.Errorf("cooldown_minutes must be between 0 and %d", maxCooldownMinutes)
	}
	return nil
}

// validateChannels checks the channel list and that every selected channel
// has its destination configured. A rule with a channel but no destination
// would fail every delivery, so it is rejected at write time.
func validateChannels(channels []string, settings models.ChannelSettings) error {
	if len(channels) == 0 {
		return errors.New("at least one delivery channel is required")
	}
	seen := map[string]bool{}
	for _, ch := range channels {
		if !models.ValidChannel(ch) {
			return fmt.Errorf("invalid delivery channel %q", ch)
		}
		if seen[ch] {
			return fmt.Errorf("duplicate delivery channel %q", ch)
		}
		seen[ch] = true

		switch models.DeliveryChannel(ch) {
		case models.ChannelSlack:
			if strings.TrimSpace(settings.SlackWebhookURL) == "" {
				return errors.New("slack_webhook_url is required for the slack channel")
			}
		case models.ChannelEmail:
			if len(settings.EmailRecipients) == 0 {
				return errors.New("email_recipients is required for the email channel")
			}
		case models.ChannelWebhook:
			if strings.TrimSpace(settings.WebhookURL) == "" {
				return errors.New("webhook_url is required for the webhook channel")
			}
		}
	}
	return nil
}

func validateRule(req *RuleRequest) error {
	if err := ValidateName(req.Name); err != nil {
		return err
	}
	if len(req.Description) > maxDescriptionLength {
		return fmt.Errorf("description must be %d characters or less", maxDescriptionLength)
	}
	if err := validateSeverities(req.MatchSeverities); err != nil {
		return err
	}
	if err := validateStatuses(req.MatchResultStatuses); err != nil {
		return err
	}
	if err := validateTrigger(req.ConsecutiveFailures, req.CooldownMinutes); err != nil {
		return err
	}
	if !models.ValidSeverity(req.AlertSeverity) {
		return fmt.Errorf("invalid alert_severity %q", req.AlertSeverity)
	}
	if req.SLAHours < 0 || req.SLAHours > maxSLAHours {
		return fmt.Errorf("sla_hours must be between 0 and %d", maxSLAHours)
	}
	return validateChannels(req.DeliveryChannels, models.ChannelSettings{
		SlackWebhookURL: req.SlackWebhookURL,
		EmailRecipients: req.EmailRecipients,
		WebhookURL:      req.WebhookURL,
	})
}
