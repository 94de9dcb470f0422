package models

import "time"

// AlertStatus is the lifecycle state of an alert.
type AlertStatus string

const (
	StatusOpen         AlertStatus = "open"
	StatusAcknowledged AlertStatus = "acknowledged"
	StatusInProgress   AlertStatus = "in_progress"
	StatusResolved     AlertStatus = "resolved"
	StatusSuppressed   AlertStatus = "suppressed"
	StatusClosed       AlertStatus = "closed"
)

// ValidAlertStatus reports whether s is a known alert status.
func ValidAlertStatus(s string) bool {
	switch AlertStatus(s) {
	case StatusOpen, StatusAcknowledged, StatusInProgress,
		StatusResolved, StatusSuppressed, StatusClosed:
		return true
	}
	return false
}

// transitions is the single source of truth for permitted status changes.
// Both transition validation and the "available actions" API are driven
// from this table so the two cannot drift apart.
var transitions = map[AlertStatus][]AlertStatus{
	StatusOpen:         {StatusAcknowledged, StatusInProgress, StatusResolved, StatusSuppressed, StatusClosed},
	StatusAcknowledged: {StatusInProgress, StatusResolved, StatusSuppressed, StatusClosed},
	StatusInProgress:   {StatusResolved, StatusSuppressed, StatusClosed},
	StatusResolved:     {StatusSuppressed, StatusClosed},
	StatusSuppressed:   {StatusOpen, StatusSuppressed, StatusClosed},
	StatusClosed:       {},
}

// CanTransition reports whether from -> to is a permitted status change.
func CanTransition(from, to AlertStatus) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// NextStatuses returns the statuses reachable from the given state.
func NextStatuses(from AlertStatus) []AlertStatus {
	next := transitions[from]
	out := make([]AlertStatus, len(next))
	copy(out, next)
	return out
}

// ResultSnapshot is the immutable copy of the test result that caused an
// alert to fire. Later changes to the live result do not affect it.
type ResultSnapshot struct {
	Status   ResultStatus   `json:"status"`
	Message  string         `json:"message,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
	TestedAt time.Time      `json:"tested_at"`
}

// Alert is one firing instance of a rule against a test.
type Alert struct {
	ID string `json:"id"`
	// AlertNumber is a sequential human-facing reference, unique and
	// strictly increasing per store.
	AlertNumber int64  `json:"alert_number"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`

	Severity Severity    `json:"severity"`
	Status   AlertStatus `json:"status"`

	// Provenance.
	RuleID    string         `json:"rule_id"`
	RuleName  string         `json:"rule_name"`
	TestID    string         `json:"test_id"`
	ControlID string         `json:"control_id"`
	Result    ResultSnapshot `json:"result"`

	// Workflow fields.
	AssignedTo        string     `json:"assigned_to,omitempty"`
	AssignedBy        string     `json:"assigned_by,omitempty"`
	AssignedAt        *time.Time `json:"assigned_at,omitempty"`
	ResolutionNotes   string     `json:"resolution_notes,omitempty"`
	ResolvedBy        string     `json:"resolved_by,omitempty"`
	ResolvedAt        *time.Time `json:"resolved_at,omitempty"`
	SuppressionReason string     `json:"suppression_reason,omitempty"`
	SuppressedUntil   *time.Time `json:"suppressed_until,omitempty"`

	// SLA. Breach and remaining time are derived on read, not stored.
	SLADeadline *time.Time `json:"sla_deadline,omitempty"`

	// Delivery. DeliveryChannels is copied from the rule at fire time;
	// later rule edits do not change it. DeliveredAt holds a timestamp
	// only for channels that succeeded.
	DeliveryChannels []DeliveryChannel             `json:"delivery_channels"`
	DeliveredAt      map[DeliveryChannel]time.Time `json:"delivered_at"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// DeliveryAttempt records one (alert, channel, timestamp) delivery outcome.
// Produced only by the dispatcher; never user-editable.
type DeliveryAttempt struct {
	ID          string          `json:"id"`
	AlertID     string          `json:"alert_id"`
	Channel     DeliveryChannel `json:"channel"`
	Succeeded   bool            `json:"succeeded"`
	Reason      string          `json:"reason,omitempty"`
	AttemptedAt time.Time       `json:"attempted_at"`
}

// AlertEvent is one audited lifecycle action on an alert.
type AlertEvent struct {
	ID         string      `json:"id"`
	AlertID    string      `json:"alert_id"`
	Action     string      `json:"action"`
	FromStatus AlertStatus `json:"from_status,omitempty"`
	ToStatus   AlertStatus `json:"to_status,omitempty"`
	Actor      string      `json:"actor"`
	Note       string      `json:"note,omitempty"`
	CreatedAt  time.Time   `json:"created_at"`
}

// FeedItem is one in-app notification row written by the in_app channel.
type FeedItem struct {
	ID          string    `json:"id"`
	AlertID     string    `json:"alert_id"`
	AlertNumber int64     `json:"alert_number"`
	Title       string    `json:"title"`
	Severity    Severity  `json:"severity"`
	Message     string    `json:"message,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}
