/*
errors.go - Typed failure taxonomy for the consumption ledger

PURPOSE:
  Every failure the ledger can produce, in one place. Each carries the
  concrete offending value (the plate number, the actual status, the
  quantities) so the calling UI can render actionable text without
  re-deriving it - "LP-2025-08877 is blocked", never "operation failed".

CATEGORIES:
  Validation errors  - malformed input, rejected before any store access
  State errors       - well-formed but illegal given current state
  Conflict errors    - a concurrent writer won; re-read and retry
  Not-found errors   - absent or cross-tenant, reported identically

  Conflict and not-found reuse the engine's sentinels
  (statemachine.ErrConflict, statemachine.ErrNotFound) so callers have
  a single errors.Is target for each.

SEE ALSO:
  - ledger.go: Where these are produced, in documented order
  - api: The HTTP status mapping
*/
package inventory

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrUnitNotAvailable is returned when a unit's lifecycle status is
	// not available or reserved.
	ErrUnitNotAvailable = errors.New("unit not available for consumption")

	// ErrQualityNotPassed is returned when a unit's QA status is not passed.
	ErrQualityNotPassed = errors.New("unit has not passed quality")

	// ErrProductMismatch is returned when a unit holds the wrong product
	// for the material requirement.
	ErrProductMismatch = errors.New("product mismatch")

	// ErrUoMMismatch is returned when a unit's unit of measure differs
	// from the requirement's.
	ErrUoMMismatch = errors.New("unit of measure mismatch")

	// ErrInsufficientQuantity is returned when the requested quantity is
	// not positive or exceeds on-hand quantity.
	ErrInsufficientQuantity = errors.New("insufficient quantity")

	// ErrPartialConsumption is returned when a whole-unit-only
	// requirement receives anything but the unit's full quantity.
	ErrPartialConsumption = errors.New("partial consumption not allowed")

	// ErrAlreadyReversed is returned when reversing a record twice.
	ErrAlreadyReversed = errors.New("consumption already reversed")

	// ErrReasonRequired is returned when a reversal carries no reason,
	// or one outside the closed set.
	ErrReasonRequired = errors.New("reversal reason required")

	// ErrNotesRequired is returned when reason is "other" and notes are
	// empty.
	ErrNotesRequired = errors.New("reversal notes required")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// UnitNotAvailableError names the unit's actual lifecycle status.
type UnitNotAvailableError struct {
	Number string
	Status string
}

func (e *UnitNotAvailableError) Error() string {
	return fmt.Sprintf("%s is not available for consumption: status is %s", e.Number, e.Status)
}

func (e *UnitNotAvailableError) Unwrap() error { return ErrUnitNotAvailable }

// QualityNotPassedError names the unit's actual QA status.
type QualityNotPassedError struct {
	Number   string
	QAStatus QualityStatus
}

func (e *QualityNotPassedError) Error() string {
	return fmt.Sprintf("%s has not passed quality: QA status is %s", e.Number, e.QAStatus)
}

func (e *QualityNotPassedError) Unwrap() error { return ErrQualityNotPassed }

// ProductMismatchError names both products.
type ProductMismatchError struct {
	Number      string
	UnitProduct string
	WantProduct string
}

func (e *ProductMismatchError) Error() string {
	return fmt.Sprintf("%s holds product %s, requirement expects %s", e.Number, e.UnitProduct, e.WantProduct)
}

func (e *ProductMismatchError) Unwrap() error { return ErrProductMismatch }

// UoMMismatchError names both units of measure.
type UoMMismatchError struct {
	Number  string
	UnitUoM string
	WantUoM string
}

func (e *UoMMismatchError) Error() string {
	return fmt.Sprintf("%s is measured in %s, requirement expects %s", e.Number, e.UnitUoM, e.WantUoM)
}

func (e *UoMMismatchError) Unwrap() error { return ErrUoMMismatch }

// InsufficientQuantityError names the shortfall.
type InsufficientQuantityError struct {
	Number    string
	OnHand    decimal.Decimal
	Requested decimal.Decimal
}

func (e *InsufficientQuantityError) Error() string {
	if !e.Requested.IsPositive() {
		return fmt.Sprintf("requested quantity %s must be positive", e.Requested)
	}
	return fmt.Sprintf("%s has %s on hand, cannot consume %s", e.Number, e.OnHand, e.Requested)
}

func (e *InsufficientQuantityError) Unwrap() error { return ErrInsufficientQuantity }

// PartialConsumptionError is returned for whole-unit-only requirements.
type PartialConsumptionError struct {
	Number    string
	OnHand    decimal.Decimal
	Requested decimal.Decimal
}

func (e *PartialConsumptionError) Error() string {
	return fmt.Sprintf("requirement consumes whole units only: %s holds %s, requested %s",
		e.Number, e.OnHand, e.Requested)
}

func (e *PartialConsumptionError) Unwrap() error { return ErrPartialConsumption }

// AlreadyReversedError names the record and when it was first reversed.
type AlreadyReversedError struct {
	RecordID   string
	ReversedAt string
}

func (e *AlreadyReversedError) Error() string {
	if e.ReversedAt != "" {
		return fmt.Sprintf("consumption %s was already reversed at %s", e.RecordID, e.ReversedAt)
	}
	return fmt.Sprintf("consumption %s was already reversed", e.RecordID)
}

func (e *AlreadyReversedError) Unwrap() error { return ErrAlreadyReversed }

// IsStateError returns true for failures that are well-formed but
// illegal given current state. Maps to HTTP 400 at the API boundary.
func IsStateError(err error) bool {
	return errors.Is(err, ErrUnitNotAvailable) ||
		errors.Is(err, ErrQualityNotPassed) ||
		errors.Is(err, ErrProductMismatch) ||
		errors.Is(err, ErrUoMMismatch) ||
		errors.Is(err, ErrInsufficientQuantity) ||
		errors.Is(err, ErrPartialConsumption) ||
		errors.Is(err, ErrAlreadyReversed) ||
		errors.Is(err, ErrReasonRequired) ||
		errors.Is(err, ErrNotesRequired)
}
