/*
errors.go - Centralized error types for the transition engine

PURPOSE:
  All engine error types in one place for consistency and discoverability.
  Domain packages wrap these with additional context where useful.

ERROR CATEGORIES:
  1. State errors - The request is well-formed but illegal given the
     current state (SameStatus, TerminalState, NoSuchRule, UnknownStatus)
  2. Conflict errors - A concurrent writer won the race; safe to retry
     after re-reading
  3. Not-found errors - Entity absent, or belongs to another tenant
     (reported identically, never leaking existence)

USAGE:
  Structured types carry the offending values so callers can render
  actionable text; each unwraps to a sentinel for errors.Is checks:

    if errors.Is(err, statemachine.ErrConflict) {
        // re-fetch and let the user retry
    }
*/
package statemachine

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrSameStatus is returned when source and target status are equal.
	// Surfaced to users as "already in this state", never a silent no-op.
	ErrSameStatus = errors.New("already in this state")

	// ErrUnknownStatus is returned when a status code is not defined for
	// the entity kind and tenant.
	ErrUnknownStatus = errors.New("unknown status")

	// ErrTerminalState is returned when the source status is terminal.
	// Terminal states have no rules by construction; this is the more
	// informative error for that case.
	ErrTerminalState = errors.New("status is terminal")

	// ErrNoSuchRule is returned when no transition rule permits the change.
	ErrNoSuchRule = errors.New("transition not permitted")

	// ErrConflict is returned when optimistic concurrency detects that a
	// concurrent writer changed the entity since it was read. Callers
	// should re-fetch and retry at their discretion; the engine never
	// retries on its own.
	ErrConflict = errors.New("conflict: entity changed concurrently")

	// ErrNotFound is returned when an entity does not exist within the
	// caller's tenant. A cross-tenant reference reports this identically.
	ErrNotFound = errors.New("not found")

	// ErrTableNotFound is returned when no transition table is defined
	// for an entity kind (and tenant, for customizable kinds).
	ErrTableNotFound = errors.New("no transition table for entity kind")
)

// IsRetryable returns true if the error might succeed after re-reading.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrConflict)
}

// IsStateError returns true if the operation was well-formed but illegal
// given current state. Maps to HTTP 400 at the API boundary.
func IsStateError(err error) bool {
	return errors.Is(err, ErrSameStatus) ||
		errors.Is(err, ErrUnknownStatus) ||
		errors.Is(err, ErrTerminalState) ||
		errors.Is(err, ErrNoSuchRule)
}

// =============================================================================
// STRUCTURED ERRORS - Carry the offending values
// =============================================================================

// SameStatusError reports an attempted self-transition.
type SameStatusError struct {
	Kind   EntityKind
	Status StatusCode
}

func (e *SameStatusError) Error() string {
	return fmt.Sprintf("%s is already %s", e.Kind, e.Status)
}

func (e *SameStatusError) Unwrap() error { return ErrSameStatus }

// UnknownStatusError reports a status code with no definition.
type UnknownStatusError struct {
	Kind   EntityKind
	Status StatusCode
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("status %q is not defined for %s", e.Status, e.Kind)
}

func (e *UnknownStatusError) Unwrap() error { return ErrUnknownStatus }

// TerminalStateError reports a transition out of a terminal status.
type TerminalStateError struct {
	Kind EntityKind
	From StatusCode
}

func (e *TerminalStateError) Error() string {
	return fmt.Sprintf("%s status %q is terminal: no further transitions are allowed", e.Kind, e.From)
}

func (e *TerminalStateError) Unwrap() error { return ErrTerminalState }

// NoRuleError reports a transition with no permitting rule.
type NoRuleError struct {
	Kind EntityKind
	From StatusCode
	To   StatusCode
}

func (e *NoRuleError) Error() string {
	return fmt.Sprintf("invalid transition: %s -> %s", e.From, e.To)
}

func (e *NoRuleError) Unwrap() error { return ErrNoSuchRule }

// ConflictError reports an optimistic-concurrency loss: the entity's
// status changed between the caller's read and this write.
type ConflictError struct {
	Kind     EntityKind
	EntityID string
	Expected StatusCode
	Actual   StatusCode
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s changed concurrently: expected status %q, found %q",
		e.Kind, e.EntityID, e.Expected, e.Actual)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing (or cross-tenant) entity.
type NotFoundError struct {
	Kind     EntityKind
	EntityID string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.EntityID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }
