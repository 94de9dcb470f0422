package storage

import (
	"context"
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

// Facade methods. These let *SQLiteStorage plug directly into the
// matching engine, the lifecycle state machine, and the delivery
// dispatcher without adapter types at the wiring site.

// ListEnabled returns the enabled, non-deprecated rules.
func (s *SQLiteStorage) ListEnabled(ctx context.Context) ([]*models.AlertRule, error) {
	return s.rules.ListEnabled(ctx)
}

// CreateAlert persists a fired alert and assigns its alert number.
func (s *SQLiteStorage) CreateAlert(ctx context.Context, alert *models.Alert) error {
	return s.alerts.Create(ctx, alert)
}

// IncrementAlertsGenerated bumps a rule's fired-alert counter.
func (s *SQLiteStorage) IncrementAlertsGenerated(ctx context.Context, ruleID string) error {
	return s.rules.IncrementAlertsGenerated(ctx, ruleID)
}

// GetAlert returns an alert by id, or (nil, nil) when unknown.
func (s *SQLiteStorage) GetAlert(ctx context.Context, id string) (*models.Alert, error) {
	return s.alerts.GetByID(ctx, id)
}

// UpdateAlert persists a lifecycle change.
func (s *SQLiteStorage) UpdateAlert(ctx context.Context, alert *models.Alert) error {
	return s.alerts.Update(ctx, alert)
}

// AppendEvent records one audit-trail entry.
func (s *SQLiteStorage) AppendEvent(ctx context.Context, event *models.AlertEvent) error {
	return s.events.Create(ctx, event)
}

// ListSuppressedDue returns suppressed alerts whose window has lapsed.
func (s *SQLiteStorage) ListSuppressedDue(ctx context.Context, now time.Time) ([]*models.Alert, error) {
	return s.alerts.ListSuppressedDue(ctx, now)
}

// RecordAttempt stores one delivery outcome.
func (s *SQLiteStorage) RecordAttempt(ctx context.Context, attempt *models.DeliveryAttempt) error {
	return s.deliveries.Create(ctx, attempt)
}

// MarkDelivered stamps an alert's delivered_at entry for a channel.
func (s *SQLiteStorage) MarkDelivered(ctx context.Context, alertID string, channel models.DeliveryChannel, at time.Time) error {
	return s.alerts.MarkDelivered(ctx, alertID, channel, at)
}

// AddFeedItem appends one in-app notification row.
func (s *SQLiteStorage) AddFeedItem(ctx context.Context, item *models.FeedItem) error {
	return s.feed.Create(ctx, item)
}
