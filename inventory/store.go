/*
store.go - Persistence interfaces for the consumption ledger

PURPOSE:
  Widens the engine's unit-of-work with the inventory stores. One
  transaction sees all of them, so a quantity decrement, a lifecycle
  transition, a record insert and their audit entries commit or roll
  back together.

QUANTITY GUARDS:
  DecrementQuantity and IncrementQuantity take an expectedCurrent
  guard: if the unit's quantity changed since it was read, the call
  fails with statemachine.ErrConflict rather than silently applying to
  a stale base. This is what serializes two concurrent consume calls
  against the same unit - at most one may win the race.

TENANT ISOLATION:
  Every method is tenant-scoped. A cross-tenant ID behaves exactly like
  a missing one (statemachine.ErrNotFound).

SEE ALSO:
  - statemachine/store.go: The engine half of the unit of work
  - store/sqlite: The production implementation
*/
package inventory

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/inventory-engine/statemachine"
)

// =============================================================================
// UNIT STORE
// =============================================================================

// UnitStore persists inventory units. Quantity changes only through the
// guarded decrement/increment; status changes only through the engine.
type UnitStore interface {
	// Get returns a unit by ID within the tenant, or ErrNotFound.
	Get(ctx context.Context, tenant statemachine.TenantID, id string) (*Unit, error)

	// GetByNumber returns a unit by its human plate number.
	GetByNumber(ctx context.Context, tenant statemachine.TenantID, number string) (*Unit, error)

	// Put inserts a unit. Receiving workflows and test seeding only.
	Put(ctx context.Context, u *Unit) error

	// DecrementQuantity subtracts amount, guarded by expectedCurrent.
	// Fails with ErrConflict when the stored quantity no longer equals
	// expectedCurrent, ErrNotFound when absent or cross-tenant.
	DecrementQuantity(ctx context.Context, tenant statemachine.TenantID, id string, amount, expectedCurrent decimal.Decimal) error

	// IncrementQuantity adds amount, guarded the same way.
	IncrementQuantity(ctx context.Context, tenant statemachine.TenantID, id string, amount, expectedCurrent decimal.Decimal) error
}

// =============================================================================
// REQUIREMENT STORE
// =============================================================================

// RequirementStore persists work-order material requirements.
type RequirementStore interface {
	Get(ctx context.Context, tenant statemachine.TenantID, id string) (*MaterialRequirement, error)
	Put(ctx context.Context, r *MaterialRequirement) error

	// AddConsumed adjusts the consumed-quantity roll-up by delta
	// (negative on reversal).
	AddConsumed(ctx context.Context, tenant statemachine.TenantID, id string, delta decimal.Decimal) error
}

// =============================================================================
// RECORD STORE
// =============================================================================

// ListFilter narrows and pages a consumption listing.
type ListFilter struct {
	Status        statemachine.StatusCode // optional: consumed or reversed
	RequirementID string                  // optional
	Page          int                     // 1-based; defaults to 1
	PageSize      int                     // defaults to DefaultPageSize, capped at MaxPageSize
	SortAsc       bool                    // default newest first (consumedAt desc)
}

const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// RecordStore persists consumption records.
type RecordStore interface {
	Get(ctx context.Context, tenant statemachine.TenantID, id string) (*Record, error)
	Create(ctx context.Context, r *Record) error

	// MarkReversed stamps the reversal fields. The status flip itself
	// runs through the engine so the consumed->reversed rule (and its
	// audit entry) is enforced there.
	MarkReversed(ctx context.Context, tenant statemachine.TenantID, id string, reason ReversalReason, notes, actorID string, at time.Time) error

	// List returns one page of records for a work order plus the total
	// match count.
	List(ctx context.Context, tenant statemachine.TenantID, workOrderID string, f ListFilter) ([]Record, int, error)
}

// =============================================================================
// UNIT OF WORK
// =============================================================================

// Stores is everything one ledger transaction can touch. Embedding the
// engine's Stores lets the applicator run inside the same unit of work.
type Stores interface {
	statemachine.Stores
	Units() UnitStore
	Requirements() RequirementStore
	Records() RecordStore
}

// TxRunner executes fn as one atomic unit of work over the full store set.
type TxRunner interface {
	InTx(ctx context.Context, fn func(Stores) error) error
}
