/*
store.go - Persistence interfaces for the transition engine

PURPOSE:
  Defines the boundary between the engine and the database. The engine
  never talks to a driver directly; it reads and writes through these
  interfaces inside a unit of work supplied by a TxRunner.

KEY INTERFACES:
  StatusStore: Read/write the current status of any status-bearing entity
  AuditLog:    Append-only trail of every state and quantity change
  Stores:      The set of stores visible inside one unit of work
  TxRunner:    Executes a function as one atomic unit of work

TENANT ISOLATION:
  Every method takes the tenant. Implementations must treat a
  cross-tenant ID exactly like a missing one (ErrNotFound) - existence
  must never leak through a different error code.

APPEND-ONLY CONTRACT:
  AuditLog has Append and List. No Update, no Delete. Corrections to
  entities happen through new transitions, which append new entries.

IMPLEMENTATIONS:
  - statemachine/store/memory.go: In-memory, for tests and dev
  - store/sqlite: Production SQLite store

SEE ALSO:
  - applicator.go: The only writer of entity status + audit pairs
*/
package statemachine

import (
	"context"
	"time"
)

// =============================================================================
// STATUS STORE
// =============================================================================

// StatusStore reads and writes the lifecycle status of a status-bearing
// entity. The applicator re-reads through this interface inside its
// transaction so a stale caller loses with ErrConflict instead of
// clobbering a concurrent change.
type StatusStore interface {
	// ReadStatus returns the entity's current status.
	// Returns ErrNotFound when the entity is absent or cross-tenant.
	ReadStatus(ctx context.Context, kind EntityKind, tenant TenantID, entityID string) (StatusCode, error)

	// WriteStatus persists a new status. Only the Applicator (and the
	// inventory ledger's sanctioned reversal pathway) may call this.
	WriteStatus(ctx context.Context, kind EntityKind, tenant TenantID, entityID string, status StatusCode) error
}

// =============================================================================
// AUDIT TRAIL - Append-only
// =============================================================================

// AuditEntry records one field change on one entity. Never updated or
// deleted. Display order is OccurredAt descending; storage order is
// insertion order.
type AuditEntry struct {
	ID          string
	TenantID    TenantID
	SubjectType string // entity kind or table-level subject ("inventory_unit")
	SubjectID   string
	FieldName   string // "status", "quantity", ...
	OldValue    string
	NewValue    string
	Reason      string // optional
	ActorID     string
	OccurredAt  time.Time
}

// AuditLog stores audit entries. Append-only: no Update, no Delete.
// Entries are written in the same unit of work as the change they
// describe - never from a side channel, or they can desynchronize
// from the entity.
type AuditLog interface {
	Append(ctx context.Context, e AuditEntry) error

	// List returns entries for one subject, newest first.
	List(ctx context.Context, tenant TenantID, subjectType, subjectID string) ([]AuditEntry, error)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// Stores is the set of stores visible inside one unit of work.
// Domain packages widen this with their own stores.
type Stores interface {
	Statuses() StatusStore
	Audit() AuditLog
}

// TxRunner executes fn as one atomic unit of work. If fn returns an
// error, every write inside it is rolled back; side effects are
// visible only on success.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Stores) error) error
}
