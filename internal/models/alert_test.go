package models

import "testing"

func TestCanTransition(t *testing.T) {
	tests := []struct {
		from, to AlertStatus
		want     bool
	}{
		{StatusOpen, StatusAcknowledged, true},
		{StatusOpen, StatusClosed, true},
		{StatusAcknowledged, StatusInProgress, true},
		{StatusAcknowledged, StatusOpen, false},
		{StatusInProgress, StatusResolved, true},
		{StatusInProgress, StatusAcknowledged, false},
		{StatusResolved, StatusClosed, true},
		{StatusResolved, StatusOpen, false},
		{StatusSuppressed, StatusOpen, true},
		{StatusSuppressed, StatusSuppressed, true},
		{StatusClosed, StatusOpen, false},
		{StatusClosed, StatusClosed, false},
		{StatusOpen, StatusOpen, false},
	}

	for _, tt := range tests {
		if got := CanTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("CanTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}

func TestNextStatuses_Copies(t *testing.T) {
	next := NextStatuses(StatusOpen)
	if len(next) != 5 {
		t.Fatalf("next from open = %v", next)
	}
	// Mutating the returned slice must not affect the table.
	next[0] = StatusClosed
	if got := NextStatuses(StatusOpen); got[0] != StatusAcknowledged {
		t.Error("transition table was mutated through the returned slice")
	}

	if got := NextStatuses(StatusClosed); len(got) != 0 {
		t.Errorf("next from closed = %v, want none", got)
	}
}

func TestValidAlertStatus(t *testing.T) {
	for _, s := range []string{"open", "acknowledged", "in_progress", "resolved", "suppressed", "closed"} {
		if !ValidAlertStatus(s) {
			t.Errorf("%q should be valid", s)
		}
	}
	if ValidAlertStatus("escalated") {
		t.Error("unknown status should be invalid")
	}
}
