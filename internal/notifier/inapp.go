package notifier

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/quiet-harbor/guardrail/internal/models"
)

// FeedWriter persists in-app notifications. Implemented by the feed
// repository in storage.
type FeedWriter interface {
	AddFeedItem(ctx context.Context, item *models.FeedItem) error
}

// InAppNotifier writes alerts to the in-application feed. It succeeds
// whenever the write layer is reachable and needs no per-rule settings.
type InAppNotifier struct {
	feed FeedWriter
}

// NewInAppNotifier creates a new in-app notifier.
func NewInAppNotifier(feed FeedWriter) *InAppNotifier {
	return &InAppNotifier{feed: feed}
}

// Channel returns "in_app".
func (n *InAppNotifier) Channel() models.DeliveryChannel {
	return models.ChannelInApp
}

// Send persists one feed item for the alert.
func (n *InAppNotifier) Send(ctx context.Context, alert *models.Alert, _ models.ChannelSettings) error {
	item := &models.FeedItem{
		ID:          uuid.New().String(),
		AlertID:     alert.ID,
		AlertNumber: alert.AlertNumber,
		Title:       alert.Title,
		Severity:    alert.Severity,
		Message:     alert.Description,
		CreatedAt:   time.Now(),
	}
	if err := n.feed.AddFeedItem(ctx, item); err != nil {
		return fmt.Errorf("write feed item: %w", err)
	}
	return nil
}
