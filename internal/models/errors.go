package models

import (
	"errors"
	"fmt"
)

// Sentinel errors shared across the service. Callers match them with errors.Is.
var (
	// ErrValidation marks malformed administrative input.
	ErrValidation = errors.New("validation failed")

	// ErrNotFound marks lookups of unknown or soft-deleted records.
	ErrNotFound = errors.New("not found")

	// ErrCollaboratorUnavailable marks an unreachable or timed out external
	// collaborator (blocking service, encryption backend). It is recovered
	// locally and never fails a request.
	ErrCollaboratorUnavailable = errors.New("collaborator unavailable")

	// ErrPersistence marks a storage write failure.
	ErrPersistence = errors.New("persistence failure")

	// ErrInvalidTransition marks an alert status move that is not a forward
	// lifecycle step and was not requested as an admin override.
	ErrInvalidTransition = fmt.Errorf("%w: invalid alert status transition", ErrValidation)

	// ErrStaleStatus marks a status write whose expected current status no
	// longer matches the stored one.
	ErrStaleStatus = fmt.Errorf("%w: alert status changed concurrently", ErrInvalidTransition)
)

// ValidationError describes one rejected field. Messages are safe to show to users.
type ValidationError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Error implements error.
func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Unwrap lets errors.Is(err, ErrValidation) succeed.
func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NewValidationError builds a ValidationError for field.
func NewValidationError(field, format string, args ...interface{}) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError wraps ErrNotFound with the kind and id of the missing record.
func NotFoundError(kind, id string) error {
	return fmt.Errorf("%s %q: %w", kind, id, ErrNotFound)
}
