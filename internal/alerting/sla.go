package alerting

import (
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

// SLAState is the derived SLA view of an alert at a point in time.
type SLAState struct {
	// Deadline is the alert's SLA deadline, nil when the rule set none.
	Deadline *time.Time
	// HoursRemaining is (deadline - now) in hours; negative past the
	// deadline. Zero and meaningless when Deadline is nil.
	HoursRemaining float64
	// Breached is true when the deadline has passed and the alert is
	// still being worked (not resolved or closed). An alert resolved
	// after its deadline keeps the breach as a historical fact; one
	// resolved before it is never flagged.
	Breached bool
}

// ComputeSLA derives the SLA state for an alert. It is a pure function of
// (deadline, now, status, resolution time); nothing is stored.
func ComputeSLA(alert *models.Alert, now time.Time) SLAState {
	if alert.SLADeadline == nil {
		return SLAState{}
	}

	deadline := *alert.SLADeadline
	state := SLAState{
		Deadline:       alert.SLADeadline,
		HoursRemaining: deadline.Sub(now).Hours(),
	}

	switch alert.Status {
	case models.StatusResolved, models.StatusClosed:
		// The clock stopped when work ended. Breach is judged against
		// the resolution time, so a late resolve stays breached as
		// history and an on-time one never becomes breached.
		ended := alert.ResolvedAt
		if ended == nil {
			ended = &alert.UpdatedAt
		}
		state.Breached = ended.After(deadline)
	default:
		state.Breached = state.HoursRemaining < 0
	}

	return state
}

// Deadline computes an alert's SLA deadline from its rule's sla_hours,
// returning nil when the rule has no SLA.
func Deadline(rule *models.AlertRule, createdAt time.Time) *time.Time {
	if rule.SLAHours <= 0 {
		return nil
	}
	d := createdAt.Add(time.Duration(rule.SLAHours * float64(time.Hour)))
	return &d
}
