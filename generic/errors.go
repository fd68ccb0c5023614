/*
errors.go - Centralized error types for the staffing engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages wrap these with context; the api layer maps them to
  HTTP status codes.

ERROR CATEGORIES:
  1. Validation errors - bad dates, missing fields, unknown/inactive ids, bad enums
  2. Not-found errors - unknown submission / notification / counsellor
  3. Authorization errors - role or ownership mismatch
  4. Transition errors - lifecycle move not allowed from the current state

USAGE:
  if errors.Is(err, generic.ErrNotFound) {
      // 404
  }

SEE ALSO:
  - api/handlers.go: writeServiceError maps these to HTTP responses
*/
package generic

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the parent of every input validation failure.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidPeriod is returned when end_date precedes start_date.
	ErrInvalidPeriod = fmt.Errorf("%w: end_date before start_date", ErrValidation)

	// ErrNotFound is returned when a referenced record doesn't exist.
	ErrNotFound = errors.New("not found")

	// ErrForbidden is returned on role or ownership mismatch.
	ErrForbidden = errors.New("forbidden")

	// ErrInvalidTransition is returned when a lifecycle move is not allowed
	// from the record's current state.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}

// NotFoundError names the record kind and id that could not be resolved.
type NotFoundError struct {
	Kind string
	ID   any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error {
	return ErrNotFound
}

// TransitionError describes a rejected lifecycle move.
type TransitionError struct {
	From   string
	Action string
	Reason string
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("cannot %s from %s: %s", e.Action, e.From, e.Reason)
}

func (e *TransitionError) Unwrap() error {
	return ErrInvalidTransition
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) || errors.Is(err, ErrInvalidTransition)
}

// IsNotFound returns true if the error indicates a missing resource.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsForbidden returns true on role/ownership failures.
func IsForbidden(err error) bool {
	return errors.Is(err, ErrForbidden)
}
