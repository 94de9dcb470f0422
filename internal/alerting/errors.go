package alerting

import (
	"errors"
	"fmt"

	"github.com/quiet-harbor/guardrail/internal/models"
)

// ErrNotFound is returned when a referenced rule or alert does not exist.
var ErrNotFound = errors.New("not found")

// ValidationError reports malformed rule or alert-action input. It is
// surfaced to the caller and causes no state change.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string {
	return e.Msg
}

// NewValidationError creates a ValidationError with a formatted message.
func NewValidationError(format string, args ...any) *ValidationError {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// InvalidTransitionError reports a status change not permitted from the
// alert's current state. The alert is left unchanged.
type InvalidTransitionError struct {
	From models.AlertStatus
	To   models.AlertStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("invalid transition from %q to %q", e.From, e.To)
}

// IsInvalidTransition reports whether err is an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var te *InvalidTransitionError
	return errors.As(err, &te)
}
