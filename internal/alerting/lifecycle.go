package alerting

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quiet-harbor/guardrail/internal/models"
)

const (
	// minSuppressionReason is the minimum length of a suppression reason.
	minSuppressionReason = 20
	// maxSuppressionWindow bounds how far in the future an alert may be
	// suppressed.
	maxSuppressionWindow = 90 * 24 * time.Hour
)

// SystemActor is the actor recorded for automatic transitions.
const SystemActor = "system"

// LifecycleStore is the persistence the state machine needs. GetAlert
// returns (nil, nil) for an unknown id.
type LifecycleStore interface {
	GetAlert(ctx context.Context, id string) (*models.Alert, error)
	UpdateAlert(ctx context.Context, alert *models.Alert) error
	AppendEvent(ctx context.Context, event *models.AlertEvent) error
	ListSuppressedDue(ctx context.Context, now time.Time) ([]*models.Alert, error)
}

// Lifecycle owns alert status transitions and their side effects. Every
// transition is validated against the shared table in models and recorded
// with actor and timestamp.
type Lifecycle struct {
	store LifecycleStore
}

// NewLifecycle creates the alert lifecycle state machine.
func NewLifecycle(store LifecycleStore) *Lifecycle {
	return &Lifecycle{store: store}
}

// Acknowledge moves an open alert to acknowledged.
func (l *Lifecycle) Acknowledge(ctx context.Context, id, actor string) (*models.Alert, error) {
	return l.transition(ctx, id, actor, "acknowledge", models.StatusAcknowledged, "", nil)
}

// StartProgress moves an alert to in_progress.
func (l *Lifecycle) StartProgress(ctx context.Context, id, actor string) (*models.Alert, error) {
	return l.transition(ctx, id, actor, "start_progress", models.StatusInProgress, "", nil)
}

// Resolve moves an alert to resolved. Resolution notes are required.
func (l *Lifecycle) Resolve(ctx context.Context, id, actor, notes string) (*models.Alert, error) {
	notes = strings.TrimSpace(notes)
	if notes == "" {
		return nil, NewValidationError("resolution_notes is required")
	}

	now := time.Now()
	return l.transition(ctx, id, actor, "resolve", models.StatusResolved, notes, func(a *models.Alert) {
		a.ResolutionNotes = notes
		a.ResolvedBy = actor
		a.ResolvedAt = &now
	})
}

// Suppress moves an alert to suppressed until the given time. The reason
// must be at least 20 characters and the window at most 90 days out.
func (l *Lifecycle) Suppress(ctx context.Context, id, actor, reason string, until time.Time) (*models.Alert, error) {
	return l.suppressAt(ctx, id, actor, reason, until, time.Now())
}

func (l *Lifecycle) suppressAt(ctx context.Context, id, actor, reason string, until time.Time, now time.Time) (*models.Alert, error) {
	reason = strings.TrimSpace(reason)
	if len(reason) < minSuppressionReason {
		return nil, NewValidationError("suppression_reason must be at least %d characters", minSuppressionReason)
	}
	if until.IsZero() || !until.After(now) {
		return nil, NewValidationError("suppressed_until must be in the future")
	}
	if until.After(now.Add(maxSuppressionWindow)) {
		return nil, NewValidationError("suppressed_until must be within 90 days")
	}

	return l.transition(ctx, id, actor, "suppress", models.StatusSuppressed, reason, func(a *models.Alert) {
		a.SuppressionReason = reason
		a.SuppressedUntil = &until
	})
}

// Unsuppress manually returns a suppressed alert to open.
func (l *Lifecycle) Unsuppress(ctx context.Context, id, actor string) (*models.Alert, error) {
	return l.transition(ctx, id, actor, "unsuppress", models.StatusOpen, "", func(a *models.Alert) {
		a.SuppressionReason = ""
		a.SuppressedUntil = nil
	})
}

// Close moves an alert to closed. Notes are optional; closed is terminal
// but the alert is retained for audit.
func (l *Lifecycle) Close(ctx context.Context, id, actor, notes string) (*models.Alert, error) {
	notes = strings.TrimSpace(notes)
	return l.transition(ctx, id, actor, "close", models.StatusClosed, notes, func(a *models.Alert) {
		if notes != "" {
			a.ResolutionNotes = notes
		}
	})
}

// Assign sets the assignee. Assignment is orthogonal to status and is
// permitted while the alert is not resolved or closed.
func (l *Lifecycle) Assign(ctx context.Context, id, actor, assignee string) (*models.Alert, error) {
	assignee = strings.TrimSpace(assignee)
	if assignee == "" {
		return nil, NewValidationError("assigned_to is required")
	}

	alert, err := l.get(ctx, id)
	if err != nil {
		return nil, err
	}
	if alert.Status == models.StatusResolved || alert.Status == models.StatusClosed {
		return nil, NewValidationError("cannot assign an alert in status %q", alert.Status)
	}

	now := time.Now()
	alert.AssignedTo = assignee
	alert.AssignedBy = actor
	alert.AssignedAt = &now
	alert.UpdatedAt = now

	if err := l.store.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}
	l.record(ctx, alert, "assign", alert.Status, alert.Status, actor, assignee)
	return alert, nil
}

// SweepSuppressed returns every suppressed alert whose window has passed
// back to open. Called periodically; the actor is recorded as "system".
func (l *Lifecycle) SweepSuppressed(ctx context.Context, now time.Time) (int, error) {
	due, err := l.store.ListSuppressedDue(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("list suppressed alerts: %w", err)
	}

	reopened := 0
	for _, alert := range due {
		if _, err := l.Unsuppress(ctx, alert.ID, SystemActor); err != nil {
			log.Printf("warning: unsuppress alert %s: %v", alert.ID, err)
			continue
		}
		reopened++
	}
	return reopened, nil
}

// AvailableActions returns the statuses reachable from an alert's current
// state, for UI "next actions" rendering. Driven by the same table as
// transition validation.
func (l *Lifecycle) AvailableActions(ctx context.Context, id string) ([]models.AlertStatus, error) {
	alert, err := l.get(ctx, id)
	if err != nil {
		return nil, err
	}
	return models.NextStatuses(alert.Status), nil
}

func (l *Lifecycle) get(ctx context.Context, id string) (*models.Alert, error) {
	alert, err := l.store.GetAlert(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get alert: %w", err)
	}
	if alert == nil {
		return nil, fmt.Errorf("alert %s: %w", id, ErrNotFound)
	}
	return alert, nil
}

// transition applies one validated status change. The mutate hook runs
// after validation and before persisting.
func (l *Lifecycle) transition(ctx context.Context, id, actor, action string, to models.AlertStatus, note string, mutate func(*models.Alert)) (*models.Alert, error) {
	alert, err := l.get(ctx, id)
	if err != nil {
		return nil, err
	}

	from := alert.Status
	if !models.CanTransition(from, to) {
		return nil, &InvalidTransitionError{From: from, To: to}
	}

	alert.Status = to
	alert.UpdatedAt = time.Now()
	if mutate != nil {
		mutate(alert)
	}

	if err := l.store.UpdateAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("update alert: %w", err)
	}

	l.record(ctx, alert, action, from, to, actor, note)
	log.Printf("alert %s: %s -> %s by %s", alert.ID, from, to, actor)
	return alert, nil
}

// record appends an audit event. Audit failures are logged, not surfaced;
// the transition itself already committed.
func (l *Lifecycle) record(ctx context.Context, alert *models.Alert, action string, from, to models.AlertStatus, actor, note string) {
	event := &models.AlertEvent{
		ID:         uuid.New().String(),
		AlertID:    alert.ID,
		Action:     action,
		FromStatus: from,
		ToStatus:   to,
		Actor:      actor,
		Note:       note,
		CreatedAt:  time.Now(),
	}
	if err := l.store.AppendEvent(ctx, event); err != nil {
		log.Printf("warning: append alert event for %s: %v", alert.ID, err)
	}
}
