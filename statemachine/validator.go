/*
validator.go - Pure transition validation

PURPOSE:
  Answers one question with no side effects: is the change from
  fromStatus to toStatus legal for this entity kind right now?

ERROR ORDER (first failure wins):
  1. SameStatus      from == to ("already in this state")
  2. UnknownStatus   either side undefined for (kind, tenant)
  3. TerminalState   source is terminal (more informative than a
                     missing-rule error, which is also true by
                     construction)
  4. NoSuchRule      no rule permits (from, to)

Safe to call speculatively - e.g. to decide which actions a client may
offer - without committing anything.

SEE ALSO:
  - applicator.go: The transactional consumer of this validation
*/
package statemachine

import "context"

// TableSource resolves the transition table for an entity kind. For
// customizable kinds the table is tenant-scoped; fixed kinds ignore
// the tenant. Tables are immutable at evaluation time: the source is
// consulted once per operation.
type TableSource interface {
	Table(ctx context.Context, kind EntityKind, tenant TenantID) (*Table, error)
}

// Validate checks one transition against this table. Pure; no I/O.
func (t *Table) Validate(from, to StatusCode) error {
	if from == to {
		return &SameStatusError{Kind: t.Kind, Status: from}
	}
	if _, ok := t.statuses[from]; !ok {
		return &UnknownStatusError{Kind: t.Kind, Status: from}
	}
	if _, ok := t.statuses[to]; !ok {
		return &UnknownStatusError{Kind: t.Kind, Status: to}
	}
	if t.statuses[from].IsTerminal {
		return &TerminalStateError{Kind: t.Kind, From: from}
	}
	if !t.CanTransition(from, to) {
		return &NoRuleError{Kind: t.Kind, From: from, To: to}
	}
	return nil
}

// Validator resolves a table and validates a transition. The lookup is
// the only I/O; the check itself is Table.Validate.
type Validator struct {
	Tables TableSource
}

// Validate checks a transition for (kind, tenant) without applying it.
func (v *Validator) Validate(ctx context.Context, kind EntityKind, tenant TenantID, from, to StatusCode) error {
	table, err := v.Tables.Table(ctx, kind, tenant)
	if err != nil {
		return err
	}
	return table.Validate(from, to)
}
