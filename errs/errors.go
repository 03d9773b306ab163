/*
Package errs centralizes the error kinds of the payroll engine.

PURPOSE:
  Every failure mode the core can produce maps to exactly one sentinel
  below. Domain packages wrap these with additional context and the API
  layer maps them to HTTP status codes.

ERROR KINDS:
  NotFound         entity id not present within the caller's tenant
  Conflict         uniqueness violated (duplicate employee_code, duplicate
                   mapping key, duplicate withholding slip)
  InvalidState     state-machine precondition failed
  PermissionDenied non-admin acting outside own scope
  Validation       schema-level violation (range checks, required fields)
  AmbiguousRate    two candidate rate rows tied on selection criteria
  Internal         invariant check failed at commit; a code or data bug

PROPAGATION POLICY:
  The core does not retry. Transitions either commit or roll back.
  NotFound and InvalidState are expected business outcomes and are
  surfaced verbatim; Internal is fatal.

USAGE:
  if errs.IsNotFound(err) { ... }

  return errs.InvalidStatef("confirmed", rec.Status)
*/
package errs

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when an entity does not exist within the
	// caller's tenant. Also used for rate/tax table misses, which callers
	// may treat as non-fatal.
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a uniqueness constraint is violated.
	ErrConflict = errors.New("conflict")

	// ErrInvalidState is returned when a state-machine precondition fails,
	// e.g. Confirm on a non-draft payroll record.
	ErrInvalidState = errors.New("invalid state")

	// ErrPermissionDenied is returned when a non-admin actor operates
	// outside their own employee scope.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrValidation is returned for schema-level violations: out-of-range
	// closing_day, negative amounts, missing required fields.
	ErrValidation = errors.New("validation failed")

	// ErrAmbiguousRate is returned when two candidate rate rows tie on the
	// selection criteria. This is a data error, not a caller error.
	ErrAmbiguousRate = errors.New("ambiguous rate")

	// ErrInternal indicates an invariant check failed at commit time.
	ErrInternal = errors.New("internal invariant violation")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// InvalidStateError names the status a transition expected and found.
type InvalidStateError struct {
	Expected string
	Current  string
}

func (e *InvalidStateError) Error() string {
	return fmt.Sprintf("invalid state: expected %q, current %q", e.Expected, e.Current)
}

func (e *InvalidStateError) Unwrap() error { return ErrInvalidState }

// InvalidStatef builds an InvalidStateError.
func InvalidStatef(expected, current string) error {
	return &InvalidStateError{Expected: expected, Current: current}
}

// AmbiguousRateError identifies the tied lookup.
type AmbiguousRateError struct {
	Table string // e.g. "insurance_rates"
	Key   string // human-readable selection key
}

func (e *AmbiguousRateError) Error() string {
	return fmt.Sprintf("ambiguous rate in %s for %s", e.Table, e.Key)
}

func (e *AmbiguousRateError) Unwrap() error { return ErrAmbiguousRate }

// ValidationError carries the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation failed: %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// Validationf builds a ValidationError.
func Validationf(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// NotFoundError names the missing entity.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// NotFoundf builds a NotFoundError.
func NotFoundf(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// ConflictError names the violated uniqueness key.
type ConflictError struct {
	Entity string
	Key    string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s already exists for %s", e.Entity, e.Key)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// Conflictf builds a ConflictError.
func Conflictf(entity, keyFormat string, args ...any) error {
	return &ConflictError{Entity: entity, Key: fmt.Sprintf(keyFormat, args...)}
}

// Internalf wraps an invariant violation. Fatal: the transaction must
// roll back.
func Internalf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInternal, fmt.Sprintf(format, args...))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

func IsNotFound(err error) bool     { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool     { return errors.Is(err, ErrConflict) }
func IsInvalidState(err error) bool { return errors.Is(err, ErrInvalidState) }
func IsValidation(err error) bool   { return errors.Is(err, ErrValidation) }

// IsClientError reports whether the error is an expected business outcome
// rather than a bug.
func IsClientError(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalidState) ||
		errors.Is(err, ErrPermissionDenied) ||
		errors.Is(err, ErrValidation)
}
