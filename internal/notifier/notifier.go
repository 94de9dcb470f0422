// Package notifier provides per-channel notification delivery for alerts.
package notifier

import (
	"context"

	"github.com/quiet-harbor/guardrail/internal/models"
)

// Notifier is the interface for one delivery channel. Send performs a
// single best-effort delivery attempt; a returned error is recorded as the
// attempt's failure reason, never propagated to the matching path.
type Notifier interface {
	// Channel returns the channel this notifier serves.
	Channel() models.DeliveryChannel
	// Send delivers one alert using the rule's channel settings.
	Send(ctx context.Context, alert *models.Alert, settings models.ChannelSettings) error
}
