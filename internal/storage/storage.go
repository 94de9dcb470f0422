// Package storage provides database storage interfaces and implementations.
package storage

import (
	"context"
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

// Storage is the main interface for database operations.
type Storage interface {
	// Open initializes the database connection.
	Open() error
	// Close closes the database connection.
	Close() error
	// Migrate runs database migrations.
	Migrate() error

	// Repository accessors
	Rules() RuleRepository
	Alerts() AlertRepository
	Deliveries() DeliveryRepository
	Events() EventRepository
	Feed() FeedRepository
}

// RuleFilter narrows rule listings.
type RuleFilter struct {
	// Enabled filters on the enabled flag when non-nil.
	Enabled *bool
	// IncludeDeprecated includes soft-deleted rules in listings.
	IncludeDeprecated bool
}

// RuleRepository defines operations for alert rule management.
type RuleRepository interface {
	Create(ctx context.Context, rule *models.AlertRule) error
	GetByID(ctx context.Context, id string) (*models.AlertRule, error)
	Update(ctx context.Context, rule *models.AlertRule) error
	// Delete hard-deletes a rule. Callers must only use it for rules that
	// have never generated an alert; rules with history are deprecated
	// instead so provenance stays resolvable.
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filter RuleFilter, limit, offset int) ([]*models.AlertRule, int64, error)
	ListEnabled(ctx context.Context) ([]*models.AlertRule, error)
	SetEnabled(ctx context.Context, id string, enabled bool) error
	SetDeprecated(ctx context.Context, id string, deprecated bool) error
	IncrementAlertsGenerated(ctx context.Context, id string) error
}

// AlertFilter narrows alert listings.
type AlertFilter struct {
	Status     models.AlertStatus
	Severity   models.Severity
	AssignedTo string
	RuleID     string
	TestID     string
}

// AlertRepository defines operations for alert management. Create assigns
// the alert's sequential alert_number.
type AlertRepository interface {
	Create(ctx context.Context, alert *models.Alert) error
	GetByID(ctx context.Context, id string) (*models.Alert, error)
	GetByNumber(ctx context.Context, number int64) (*models.Alert, error)
	Update(ctx context.Context, alert *models.Alert) error
	List(ctx context.Context, filter AlertFilter, limit, offset int) ([]*models.Alert, int64, error)
	ListSuppressedDue(ctx context.Context, now time.Time) ([]*models.Alert, error)
	MarkDelivered(ctx context.Context, id string, channel models.DeliveryChannel, at time.Time) error
	CountByStatus(ctx context.Context) (map[models.AlertStatus]int64, error)
}

// DeliveryRepository defines operations for the delivery attempt log.
type DeliveryRepository interface {
	Create(ctx context.Context, attempt *models.DeliveryAttempt) error
	ListByAlert(ctx context.Context, alertID string) ([]*models.DeliveryAttempt, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// EventRepository defines operations for the alert audit trail.
type EventRepository interface {
	Create(ctx context.Context, event *models.AlertEvent) error
	ListByAlert(ctx context.Context, alertID string) ([]*models.AlertEvent, error)
}

// FeedRepository defines operations for the in-app notification feed.
type FeedRepository interface {
	Create(ctx context.Context, item *models.FeedItem) error
	List(ctx context.Context, limit, offset int) ([]*models.FeedItem, int64, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
