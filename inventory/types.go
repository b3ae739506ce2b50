/*
Package inventory provides the consumption ledger built on the
status-transition engine.

PURPOSE:
  Tracks discrete, uniquely numbered inventory units ("license plates"),
  each carrying a mutable on-hand quantity and a lifecycle status.
  Records atomic consumption events against a work order's material
  requirement, supports reversal with quantity restoration and mandatory
  justification, and maintains an immutable audit trail of every state
  and quantity change.

KEY CONCEPTS IN THIS FILE (types.go):
  - Unit: A license plate - one product, one location, one quantity
  - MaterialRequirement: What a work order needs of one product
  - Record: One atomic act of drawing quantity from a unit
  - ReversalReason: The closed justification set for undoing a record

DESIGN PRINCIPLES:
  1. Precision: Quantities are decimal.Decimal, never floats
  2. Immutability: Records are created by Consume and mutated exactly
     once, by Reverse; audit entries are never touched again
  3. Guarded mutation: quantityOnHand and lifecycleStatus change only
     through the ledger's guarded operations - no other code path
     writes them

SEE ALSO:
  - ledger.go: Consume / Reverse / ListConsumptions
  - errors.go: The typed failure taxonomy
  - statemachine/tables.go: The fixed inventory_unit lifecycle table
*/
package inventory

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/inventory-engine/statemachine"
)

// =============================================================================
// QUALITY STATUS
// =============================================================================

// QualityStatus is the QA disposition of a unit. It gates consumption
// independently of lifecycle status: only "passed" material may be
// consumed.
type QualityStatus string

const (
	QualityPending    QualityStatus = "pending"
	QualityPassed     QualityStatus = "passed"
	QualityFailed     QualityStatus = "failed"
	QualityQuarantine QualityStatus = "quarantine"
)

// =============================================================================
// INVENTORY UNIT ("license plate")
// =============================================================================

// Unit is a physically distinct, uniquely numbered quantity of one
// product at one location.
//
// INVARIANTS:
//   - Quantity is non-negative; it strictly decreases only through
//     consumption and strictly increases only through reversal
//   - Status == consumed implies Quantity is zero
//   - Status transitions satisfy the inventory_unit table (consumed is
//     terminal; reversal is the one sanctioned exception)
type Unit struct {
	ID       string
	TenantID statemachine.TenantID

	// Number is the human-readable plate number, e.g. "LP-2025-08877".
	Number string

	ProductID string
	Quantity  decimal.Decimal
	UoM       string

	Status   statemachine.StatusCode // available, reserved, consumed, blocked
	QAStatus QualityStatus

	LocationID  string
	WarehouseID string
	BatchNumber string
	ExpiryDate  *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Consumable reports whether the unit's lifecycle status permits
// drawing quantity from it. Quality gating is separate.
func (u *Unit) Consumable() bool {
	return u.Status == statemachine.UnitAvailable || u.Status == statemachine.UnitReserved
}

// =============================================================================
// MATERIAL REQUIREMENT
// =============================================================================

// MaterialRequirement is one line of a work order's bill of materials:
// the product and quantity the order needs. ConsumedQty is the roll-up
// maintained by the ledger.
type MaterialRequirement struct {
	ID          string
	TenantID    statemachine.TenantID
	WorkOrderID string

	ProductID   string
	Name        string
	RequiredQty decimal.Decimal
	ConsumedQty decimal.Decimal
	UoM         string
	Sequence    int

	// ConsumeWholeUnit requires any consumption against this
	// requirement to take a unit's full quantity exactly (one-to-one
	// consumption; no partials).
	ConsumeWholeUnit bool

	CreatedAt time.Time
}

// =============================================================================
// CONSUMPTION RECORD
// =============================================================================

// ReversalReason is the closed justification set for reversing a
// consumption. "other" requires free-text notes.
type ReversalReason string

const (
	ReasonScannedWrongUnit ReversalReason = "scanned_wrong_lp"
	ReasonWrongQuantity    ReversalReason = "wrong_quantity"
	ReasonOperatorError    ReversalReason = "operator_error"
	ReasonQualityIssue     ReversalReason = "quality_issue"
	ReasonOther            ReversalReason = "other"
)

// ValidReason reports membership in the closed reason set.
func ValidReason(r ReversalReason) bool {
	switch r {
	case ReasonScannedWrongUnit, ReasonWrongQuantity, ReasonOperatorError, ReasonQualityIssue, ReasonOther:
		return true
	}
	return false
}

// Record is one atomic act of drawing quantity from one unit against
// one work-order material requirement. Created only by Consume;
// mutated exactly once, by Reverse.
type Record struct {
	ID       string
	TenantID statemachine.TenantID

	WorkOrderID   string
	RequirementID string
	UnitID        string
	UnitNumber    string

	Qty decimal.Decimal
	UoM string

	Status statemachine.StatusCode // consumed, reversed (terminal)

	ConsumedAt time.Time
	ConsumedBy string

	// Set only when reversed.
	ReversalReason ReversalReason
	ReversalNotes  string
	ReversedAt     *time.Time
	ReversedBy     string
}

// Reversed reports whether the record has already been undone.
func (r *Record) Reversed() bool { return r.Status == statemachine.RecordReversed }
