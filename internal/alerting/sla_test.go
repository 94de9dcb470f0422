package alerting

import (
	"math"
	"testing"
	"time"

	"github.com/quiet-harbor/guardrail/internal/models"
)

func TestComputeSLA_NoDeadline(t *testing.T) {
	alert := &models.Alert{Status: models.StatusOpen}
	state := ComputeSLA(alert, time.Now())
	if state.Deadline != nil || state.Breached || state.HoursRemaining != 0 {
		t.Errorf("no deadline: got %+v, want zero state", state)
	}
}

func TestComputeSLA_OpenAlert(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		now       time.Time
		wantHours float64
		breached  bool
	}{
		{"well before deadline", deadline.Add(-4 * time.Hour), 4.0, false},
		{"just before deadline", deadline.Add(-30 * time.Minute), 0.5, false},
		{"past deadline", deadline.Add(2 * time.Hour), -2.0, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			alert := &models.Alert{Status: models.StatusOpen, SLADeadline: &deadline}
			state := ComputeSLA(alert, tt.now)
			if math.Abs(state.HoursRemaining-tt.wantHours) > 1e-9 {
				t.Errorf("hours remaining = %v, want %v", state.HoursRemaining, tt.wantHours)
			}
			if state.Breached != tt.breached {
				t.Errorf("breached = %v, want %v", state.Breached, tt.breached)
			}
		})
	}
}

func TestComputeSLA_ResolvedStopsClock(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	// Resolved an hour before the deadline; read long after. The breach
	// state must not flip once work ended.
	resolved := deadline.Add(-time.Hour)
	alert := &models.Alert{
		Status:      models.StatusResolved,
		SLADeadline: &deadline,
		ResolvedAt:  &resolved,
	}
	state := ComputeSLA(alert, deadline.Add(48*time.Hour))
	if state.Breached {
		t.Error("resolved before deadline should not be breached")
	}
}

func TestComputeSLA_LateResolutionKeepsBreach(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	resolved := deadline.Add(3 * time.Hour)
	alert := &models.Alert{
		Status:      models.StatusResolved,
		SLADeadline: &deadline,
		ResolvedAt:  &resolved,
	}
	state := ComputeSLA(alert, resolved.Add(time.Minute))
	if !state.Breached {
		t.Error("resolved after deadline should stay breached")
	}
}

func TestComputeSLA_ClosedUsesUpdatedAt(t *testing.T) {
	deadline := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	alert := &models.Alert{
		Status:      models.StatusClosed,
		SLADeadline: &deadline,
		UpdatedAt:   deadline.Add(-time.Hour),
	}
	state := ComputeSLA(alert, deadline.Add(24*time.Hour))
	if state.Breached {
		t.Error("closed before deadline should not be breached")
	}
}

func TestDeadline(t *testing.T) {
	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	rule := &models.AlertRule{SLAHours: 0}
	if d := Deadline(rule, created); d != nil {
		t.Errorf("zero sla_hours: deadline = %v, want nil", d)
	}

	rule = &models.AlertRule{SLAHours: 4.5}
	d := Deadline(rule, created)
	if d == nil {
		t.Fatal("deadline should be set")
	}
	want := created.Add(4*time.Hour + 30*time.Minute)
	if !d.Equal(want) {
		t.Errorf("deadline = %v, want %v", d, want)
	}
}
