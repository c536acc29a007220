// Package apperr defines the error taxonomy shared by the benefit request
// engine. All engine operations return one of these errors (possibly
// wrapped); the transport layer maps them to HTTP status codes with
// errors.Is / errors.As.
package apperr

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a request or approval step does not exist.
	ErrNotFound = errors.New("not found")

	// ErrInvalidTransition is returned when the requested operation is not
	// legal from the request's current status.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrNotAuthorized is returned when the actor lacks the role, relation
	// or turn required for the operation.
	ErrNotAuthorized = errors.New("not authorized")

	// ErrTransitionConflict is returned when an optimistic precondition
	// failed because another actor mutated the request concurrently. The
	// caller should reload and may retry; the engine never retries.
	ErrTransitionConflict = errors.New("transition conflict")
)

// IneligibleError blocks request creation with a human-readable reason.
type IneligibleError struct {
	Reason string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("ineligible: %s", e.Reason)
}

// Ineligible creates an IneligibleError with the given reason.
func Ineligible(reason string) error {
	return &IneligibleError{Reason: reason}
}

// ValidationError reports an input outside policy bounds or a missing
// required field.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed on %s: %s", e.Field, e.Reason)
}

// Validation creates a ValidationError for the given field.
func Validation(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

// NotAuthorized wraps ErrNotAuthorized with a reason.
func NotAuthorized(reason string) error {
	return fmt.Errorf("%w: %s", ErrNotAuthorized, reason)
}

// InvalidTransition wraps ErrInvalidTransition with operation context.
func InvalidTransition(op, status string) error {
	return fmt.Errorf("%w: %s not permitted from status %s", ErrInvalidTransition, op, status)
}
