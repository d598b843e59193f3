/*
errors.go - Centralized error taxonomy for the scheduling engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  Domain packages should wrap these errors with additional context.

ERROR CATEGORIES:
  1. Validation errors  - field or policy-threshold violations; the caller
     can correct the request and resubmit
  2. Transition errors  - attempted a (from, to) pair not in the machine's
     table; always a caller bug, never retried
  3. Conflict errors    - overlapping window detected; caller should
     re-query availability and resubmit
  4. Policy errors      - tenant has no current policy; fatal configuration
  5. Capacity errors    - concurrency limit reached; retry later or escalate

PROPAGATION:
  Errors are raised at the point of detection and surfaced unchanged to
  the caller. The engine never downgrades a validation failure to a
  warning and never retries internally; retries for transient persistence
  failures belong to the store implementations.

USAGE:
  Domain packages can classify with errors.Is:

    if errors.Is(err, generic.ErrConflict) {
        // re-query availability
    }

SEE ALSO:
  - validate.go: Raises validation/capacity/conflict errors
  - machine.go: Raises transition errors
*/
package generic

import (
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation is the base of every field-level or policy-threshold
	// violation. Recoverable by correcting the request.
	ErrValidation = errors.New("validation failed")

	// ErrInvalidTransition is returned for (from, to) pairs absent from a
	// machine's transition table.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrConflict is returned when a candidate window overlaps an existing
	// one on the same resource, buffer included.
	ErrConflict = errors.New("window conflict")

	// ErrPolicyNotFound is returned when a tenant has no current policy for
	// a kind. A configuration error, not user-recoverable.
	ErrPolicyNotFound = errors.New("policy not found")

	// ErrCapacityExceeded is returned when the active-window count for a
	// resource has reached the policy cap.
	ErrCapacityExceeded = errors.New("capacity exceeded")

	// ErrWindowNotFound is returned when a referenced window doesn't exist.
	ErrWindowNotFound = errors.New("window not found")

	// ErrStaffNotFound is returned when a referenced employee doesn't exist.
	ErrStaffNotFound = errors.New("staff member not found")

	// ErrVersionConflict is returned when optimistic locking detects that
	// the window was superseded since it was read.
	ErrVersionConflict = errors.New("concurrent modification detected")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError identifies which rule failed so callers do not retry
// without changing the request.
type ValidationError struct {
	Rule    string // e.g. "advance_notice", "duration_range", "blackout"
	Field   string // offending field, when field-level
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("%s: %s: %s", e.Rule, e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Rule, e.Message)
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

// InvalidTransitionError names the attempted (from, to) pair.
type InvalidTransitionError struct {
	Kind string
	From Status
	To   Status
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("%s: transition %q -> %q not allowed", e.Kind, e.From, e.To)
}

func (e *InvalidTransitionError) Unwrap() error { return ErrInvalidTransition }

// ConflictError describes the existing window that blocked the candidate.
type ConflictError struct {
	ResourceID ResourceID
	Existing   WindowID
	Start      time.Time
	End        time.Time
	Buffer     time.Duration
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("resource %s already reserved %s - %s (buffer %s, window %s)",
		e.ResourceID,
		e.Start.Format(time.RFC3339), e.End.Format(time.RFC3339),
		e.Buffer, e.Existing)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// PolicyNotFoundError identifies the missing (tenant, kind) policy.
type PolicyNotFoundError struct {
	Tenant TenantID
	Kind   PolicyKind
}

func (e *PolicyNotFoundError) Error() string {
	return fmt.Sprintf("no current %s policy for tenant %s", e.Kind, e.Tenant)
}

func (e *PolicyNotFoundError) Unwrap() error { return ErrPolicyNotFound }

// CapacityError reports the cap that was hit.
type CapacityError struct {
	ResourceID ResourceID
	Limit      int
	Active     int
}

func (e *CapacityError) Error() string {
	return fmt.Sprintf("resource %s at capacity: %d active, limit %d",
		e.ResourceID, e.Active, e.Limit)
}

func (e *CapacityError) Unwrap() error { return ErrCapacityExceeded }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsRetryable returns true if the error might succeed on retry without the
// caller changing anything (a concurrent writer won the race).
func IsRetryable(err error) bool {
	return errors.Is(err, ErrVersionConflict)
}

// IsClientError returns true if the error is due to the caller's input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInvalidTransition) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrCapacityExceeded)
}

// IsNotFound returns true if the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrPolicyNotFound) ||
		errors.Is(err, ErrWindowNotFound) ||
		errors.Is(err, ErrStaffNotFound)
}
