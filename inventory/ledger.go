/*
ledger.go - The consumption ledger: Consume, Reverse, ListConsumptions

PURPOSE:
  The only code path that changes a unit's quantity or creates/reverses
  consumption records. Each operation is one serializable unit of work:
  on any failure the unit, the record and the audit log are unchanged.

CONSUME VALIDATION ORDER (first failure wins):
  1. Unit exists in the caller's tenant          -> ErrNotFound
  2. Requirement exists, belongs to work order   -> ErrNotFound
  3. Product matches the requirement             -> ErrProductMismatch
  4. Unit of measure matches                     -> ErrUoMMismatch
  5. Lifecycle is available or reserved          -> ErrUnitNotAvailable
  6. QA status is passed                         -> ErrQualityNotPassed
  7. 0 < requested <= on hand                    -> ErrInsufficientQuantity
  8. Whole-unit requirement takes all or nothing -> ErrPartialConsumption

REVERSAL AND THE TERMINAL INVARIANT:
  "consumed" is terminal in the inventory_unit table; nothing routes a
  consumed unit back through the generic engine. Reversal is the one
  sanctioned exception: it restores the unit to "available" through a
  dedicated pathway inside the same unit of work, writing the status
  and its audit entry directly. Keeping the exception out of the table
  means no other caller can weaken the invariant.

CONCURRENCY:
  Correctness is delegated to the store's transaction isolation plus
  the explicit quantity guard: the decrement carries the quantity the
  ledger just read, so of two concurrent consumes one loses with
  ErrConflict (or ErrInsufficientQuantity after re-reading) - never a
  silent over-draw. The ledger does not retry: a timed-out caller must
  re-query before trying again, because a blind retry can change
  business outcomes.

SEE ALSO:
  - statemachine/applicator.go: ApplyIn, used for lifecycle and record
    status transitions inside the ledger's transaction
*/
package inventory

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/warp/inventory-engine/statemachine"
)

// =============================================================================
// LEDGER
// =============================================================================

// Ledger performs consumption and reversal against inventory units.
type Ledger struct {
	tx         TxRunner
	applicator *statemachine.Applicator
}

// NewLedger builds a ledger over a unit-of-work runner and the engine's
// table source.
func NewLedger(tx TxRunner, tables statemachine.TableSource) *Ledger {
	return &Ledger{
		tx:         tx,
		applicator: &statemachine.Applicator{Tables: tables},
	}
}

// =============================================================================
// CONSUME
// =============================================================================

// ConsumeRequest describes one proposed consumption.
type ConsumeRequest struct {
	Tenant        statemachine.TenantID
	WorkOrderID   string
	RequirementID string
	UnitID        string
	Qty           decimal.Decimal
	ActorID       string
}

// Consume validates and records one consumption. On success the unit's
// quantity is decremented, the unit transitions to consumed if the
// quantity reached exactly zero, the requirement roll-up is updated,
// and a consumption record plus audit entries exist - all atomically.
func (l *Ledger) Consume(ctx context.Context, req ConsumeRequest) (*Record, error) {
	var rec *Record
	err := l.tx.InTx(ctx, func(st Stores) error {
		r, err := l.consume(ctx, st, req)
		rec = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (l *Ledger) consume(ctx context.Context, st Stores, req ConsumeRequest) (*Record, error) {
	unit, err := st.Units().Get(ctx, req.Tenant, req.UnitID)
	if err != nil {
		return nil, err
	}

	mr, err := st.Requirements().Get(ctx, req.Tenant, req.RequirementID)
	if err != nil {
		return nil, err
	}
	if mr.WorkOrderID != req.WorkOrderID {
		// A requirement on another work order is, to this caller,
		// not found - same as a cross-tenant reference.
		return nil, &statemachine.NotFoundError{Kind: "material_requirement", EntityID: req.RequirementID}
	}

	if unit.ProductID != mr.ProductID {
		return nil, &ProductMismatchError{Number: unit.Number, UnitProduct: unit.ProductID, WantProduct: mr.ProductID}
	}
	if unit.UoM != mr.UoM {
		return nil, &UoMMismatchError{Number: unit.Number, UnitUoM: unit.UoM, WantUoM: mr.UoM}
	}
	if !unit.Consumable() {
		return nil, &UnitNotAvailableError{Number: unit.Number, Status: string(unit.Status)}
	}
	if unit.QAStatus != QualityPassed {
		return nil, &QualityNotPassedError{Number: unit.Number, QAStatus: unit.QAStatus}
	}
	if !req.Qty.IsPositive() || req.Qty.GreaterThan(unit.Quantity) {
		return nil, &InsufficientQuantityError{Number: unit.Number, OnHand: unit.Quantity, Requested: req.Qty}
	}
	if mr.ConsumeWholeUnit && !req.Qty.Equal(unit.Quantity) {
		return nil, &PartialConsumptionError{Number: unit.Number, OnHand: unit.Quantity, Requested: req.Qty}
	}

	// The quantity just read is the optimistic-concurrency token.
	if err := st.Units().DecrementQuantity(ctx, req.Tenant, unit.ID, req.Qty, unit.Quantity); err != nil {
		return nil, err
	}
	remaining := unit.Quantity.Sub(req.Qty)

	now := time.Now().UTC()
	rec := &Record{
		ID:            uuid.NewString(),
		TenantID:      req.Tenant,
		WorkOrderID:   req.WorkOrderID,
		RequirementID: mr.ID,
		UnitID:        unit.ID,
		UnitNumber:    unit.Number,
		Qty:           req.Qty,
		UoM:           unit.UoM,
		Status:        statemachine.RecordConsumed,
		ConsumedAt:    now,
		ConsumedBy:    req.ActorID,
	}

	// Quantity exhausted: the unit's lifecycle follows, through the
	// engine, inside this same unit of work.
	if remaining.IsZero() {
		_, err := l.applicator.ApplyIn(ctx, st, statemachine.ApplyRequest{
			Kind:     statemachine.KindInventoryUnit,
			Tenant:   req.Tenant,
			EntityID: unit.ID,
			Current:  unit.Status,
			Target:   statemachine.UnitConsumed,
			ActorID:  req.ActorID,
			Reason:   "fully consumed by work order " + req.WorkOrderID,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := st.Requirements().AddConsumed(ctx, req.Tenant, mr.ID, req.Qty); err != nil {
		return nil, err
	}
	if err := st.Records().Create(ctx, rec); err != nil {
		return nil, err
	}

	entry := statemachine.AuditEntry{
		ID:          uuid.NewString(),
		TenantID:    req.Tenant,
		SubjectType: string(statemachine.KindInventoryUnit),
		SubjectID:   unit.ID,
		FieldName:   "quantity",
		OldValue:    unit.Quantity.String(),
		NewValue:    remaining.String(),
		Reason:      "consumption " + rec.ID + " against work order " + req.WorkOrderID,
		ActorID:     req.ActorID,
		OccurredAt:  now,
	}
	if err := st.Audit().Append(ctx, entry); err != nil {
		return nil, err
	}

	return rec, nil
}

// =============================================================================
// REVERSE
// =============================================================================

// ReverseRequest describes one reversal. The caller must have verified
// its capability (manager-class) before invoking; the ledger is
// role-agnostic.
type ReverseRequest struct {
	Tenant   statemachine.TenantID
	RecordID string
	Reason   ReversalReason
	Notes    string
	ActorID  string
}

// ReverseResult is the updated record plus the unit's restored state
// for caller display.
type ReverseResult struct {
	Record       *Record
	UnitQuantity decimal.Decimal
	UnitStatus   statemachine.StatusCode
}

// Reverse undoes a consumption: restores exactly the consumed quantity
// to the originating unit, flips the record to reversed with the
// justification, and audits both - atomically. A record reverses at
// most once; the second attempt fails with ErrAlreadyReversed and
// never double-restores.
func (l *Ledger) Reverse(ctx context.Context, req ReverseRequest) (*ReverseResult, error) {
	var res *ReverseResult
	err := l.tx.InTx(ctx, func(st Stores) error {
		r, err := l.reverse(ctx, st, req)
		res = r
		return err
	})
	if err != nil {
		return nil, err
	}
	return res, nil
}

func (l *Ledger) reverse(ctx context.Context, st Stores, req ReverseRequest) (*ReverseResult, error) {
	rec, err := st.Records().Get(ctx, req.Tenant, req.RecordID)
	if err != nil {
		return nil, err
	}
	if rec.Reversed() {
		at := ""
		if rec.ReversedAt != nil {
			at = rec.ReversedAt.Format(time.RFC3339)
		}
		return nil, &AlreadyReversedError{RecordID: rec.ID, ReversedAt: at}
	}
	if req.Reason == "" || !ValidReason(req.Reason) {
		return nil, ErrReasonRequired
	}
	if req.Reason == ReasonOther && strings.TrimSpace(req.Notes) == "" {
		return nil, ErrNotesRequired
	}

	unit, err := st.Units().Get(ctx, req.Tenant, rec.UnitID)
	if err != nil {
		return nil, err
	}

	if err := st.Units().IncrementQuantity(ctx, req.Tenant, unit.ID, rec.Qty, unit.Quantity); err != nil {
		return nil, err
	}
	restored := unit.Quantity.Add(rec.Qty)

	now := time.Now().UTC()

	// Restore the lifecycle if consumption had exhausted the unit.
	// This is the sanctioned exception to "consumed is terminal":
	// a dedicated pathway, not a table edge, so the generic engine
	// keeps rejecting consumed -> anything for every other caller.
	// A unit that was reserved before a partial consumption never
	// transitioned, so there is nothing to restore.
	unitStatus := unit.Status
	if unit.Status == statemachine.UnitConsumed {
		if err := st.Statuses().WriteStatus(ctx, statemachine.KindInventoryUnit, req.Tenant, unit.ID, statemachine.UnitAvailable); err != nil {
			return nil, err
		}
		unitStatus = statemachine.UnitAvailable
		statusEntry := statemachine.AuditEntry{
			ID:          uuid.NewString(),
			TenantID:    req.Tenant,
			SubjectType: string(statemachine.KindInventoryUnit),
			SubjectID:   unit.ID,
			FieldName:   "status",
			OldValue:    string(statemachine.UnitConsumed),
			NewValue:    string(statemachine.UnitAvailable),
			Reason:      "reversal of consumption " + rec.ID,
			ActorID:     req.ActorID,
			OccurredAt:  now,
		}
		if err := st.Audit().Append(ctx, statusEntry); err != nil {
			return nil, err
		}
	}

	// The record's own status flip runs through the engine: the
	// consumed -> reversed rule and its audit entry live there.
	if _, err := l.applicator.ApplyIn(ctx, st, statemachine.ApplyRequest{
		Kind:     statemachine.KindConsumptionRecord,
		Tenant:   req.Tenant,
		EntityID: rec.ID,
		Current:  rec.Status,
		Target:   statemachine.RecordReversed,
		ActorID:  req.ActorID,
		Reason:   string(req.Reason),
	}); err != nil {
		return nil, err
	}

	if err := st.Records().MarkReversed(ctx, req.Tenant, rec.ID, req.Reason, req.Notes, req.ActorID, now); err != nil {
		return nil, err
	}
	if err := st.Requirements().AddConsumed(ctx, req.Tenant, rec.RequirementID, rec.Qty.Neg()); err != nil {
		return nil, err
	}

	qtyEntry := statemachine.AuditEntry{
		ID:          uuid.NewString(),
		TenantID:    req.Tenant,
		SubjectType: string(statemachine.KindInventoryUnit),
		SubjectID:   unit.ID,
		FieldName:   "quantity",
		OldValue:    unit.Quantity.String(),
		NewValue:    restored.String(),
		Reason:      "reversal of consumption " + rec.ID + ": " + string(req.Reason),
		ActorID:     req.ActorID,
		OccurredAt:  now,
	}
	if err := st.Audit().Append(ctx, qtyEntry); err != nil {
		return nil, err
	}

	rec.Status = statemachine.RecordReversed
	rec.ReversalReason = req.Reason
	rec.ReversalNotes = req.Notes
	rec.ReversedAt = &now
	rec.ReversedBy = req.ActorID

	return &ReverseResult{Record: rec, UnitQuantity: restored, UnitStatus: unitStatus}, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// ListConsumptions returns one page of a work order's consumption
// records plus the total match count. Defaults: page 1, page size 20,
// newest first.
func (l *Ledger) ListConsumptions(ctx context.Context, tenant statemachine.TenantID, workOrderID string, f ListFilter) ([]Record, int, error) {
	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = DefaultPageSize
	}
	if f.PageSize > MaxPageSize {
		f.PageSize = MaxPageSize
	}

	var (
		records []Record
		total   int
	)
	err := l.tx.InTx(ctx, func(st Stores) error {
		var err error
		records, total, err = st.Records().List(ctx, tenant, workOrderID, f)
		return err
	})
	if err != nil {
		return nil, 0, err
	}
	return records, total, nil
}
