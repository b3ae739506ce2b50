/*
applicator.go - Transactional validate -> persist -> audit

PURPOSE:
  The Applicator is the single code path through which any status-bearing
  entity changes state. Every apply is one atomic unit of work:

    1. Re-read the entity's current status from the store (NOT the
       caller-supplied value). If it differs from what the caller saw,
       fail with Conflict - a concurrent writer won; re-fetch and retry.
    2. Run the transition validator.
    3. Persist the new status and append one audit entry.

  On any failure the entity and the audit log are unchanged.

ROLE CHECKS:
  Some kinds require a capability before a transition may even be
  attempted (releasing a quality hold, for example). That predicate is
  the caller's responsibility; the Applicator is role-agnostic so it
  stays reusable across every entity kind.

CONCURRENCY:
  Two concurrent transitions on the same entity are serialized by the
  re-read-then-compare-then-write sequence inside the transaction; at
  most one wins. The loser gets ErrConflict. The engine never retries:
  blind retries can mask true business conflicts.

SEE ALSO:
  - validator.go: The pure check this wraps
  - store.go: StatusStore / AuditLog / TxRunner contracts
*/
package statemachine

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// APPLICATOR
// =============================================================================

// ApplyRequest describes one requested status change.
type ApplyRequest struct {
	Kind     EntityKind
	Tenant   TenantID
	EntityID string

	// Current is the status the caller last read. Used as the
	// optimistic-concurrency token; a mismatch with the stored value
	// fails with ErrConflict.
	Current StatusCode
	Target  StatusCode

	ActorID string
	Reason  string // optional, recorded on the audit entry
}

// Applicator orchestrates validate -> persist -> audit for any entity
// kind. One instance serves the whole system.
type Applicator struct {
	Tables TableSource
	Tx     TxRunner
}

// NewApplicator builds an applicator over the given table source and
// transaction runner.
func NewApplicator(tables TableSource, tx TxRunner) *Applicator {
	return &Applicator{Tables: tables, Tx: tx}
}

// Apply performs one status change as its own atomic unit of work and
// returns the new status.
func (a *Applicator) Apply(ctx context.Context, req ApplyRequest) (StatusCode, error) {
	var applied StatusCode
	err := a.Tx.InTx(ctx, func(st Stores) error {
		s, err := a.ApplyIn(ctx, st, req)
		applied = s
		return err
	})
	if err != nil {
		return "", err
	}
	return applied, nil
}

// ApplyIn performs one status change inside a caller-supplied unit of
// work. Used by the consumption ledger so a quantity change and the
// resulting lifecycle transition commit or roll back together.
func (a *Applicator) ApplyIn(ctx context.Context, st Stores, req ApplyRequest) (StatusCode, error) {
	table, err := a.Tables.Table(ctx, req.Kind, req.Tenant)
	if err != nil {
		return "", err
	}

	// Guard against a stale read: trust the store, not the caller.
	actual, err := st.Statuses().ReadStatus(ctx, req.Kind, req.Tenant, req.EntityID)
	if err != nil {
		return "", err
	}
	if actual != req.Current {
		return "", &ConflictError{
			Kind:     req.Kind,
			EntityID: req.EntityID,
			Expected: req.Current,
			Actual:   actual,
		}
	}

	if err := table.Validate(actual, req.Target); err != nil {
		return "", err
	}

	if err := st.Statuses().WriteStatus(ctx, req.Kind, req.Tenant, req.EntityID, req.Target); err != nil {
		return "", err
	}

	entry := AuditEntry{
		ID:          uuid.NewString(),
		TenantID:    req.Tenant,
		SubjectType: string(req.Kind),
		SubjectID:   req.EntityID,
		FieldName:   "status",
		OldValue:    string(actual),
		NewValue:    string(req.Target),
		Reason:      req.Reason,
		ActorID:     req.ActorID,
		OccurredAt:  time.Now().UTC(),
	}
	if err := st.Audit().Append(ctx, entry); err != nil {
		return "", err
	}

	return req.Target, nil
}
