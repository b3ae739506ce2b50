package statemachine

import (
	"context"
	"errors"
)

// Admin errors for customizable kinds.
var (
	// ErrSystemManaged is returned when a write would alter a
	// system-managed status or rule beyond its editable fields.
	ErrSystemManaged = errors.New("status is system managed")

	// ErrStatusInUse is returned when deleting a status definition
	// that entities or transition rules still reference.
	ErrStatusInUse = errors.New("status is in use")

	// ErrDuplicateStatus is returned when creating a status whose code
	// already exists for the kind and tenant.
	ErrDuplicateStatus = errors.New("status code already exists")
)

// DefinitionStore manages the tenant-scoped status definitions and
// transition rules behind customizable kinds. Fixed kinds never pass
// through here; their tables are compiled in.
type DefinitionStore interface {
	// ListStatusDefinitions returns the definitions for a kind in
	// display order.
	ListStatusDefinitions(ctx context.Context, kind EntityKind, tenant TenantID) ([]StatusDefinition, error)

	// ListTransitionRules returns all rules for a kind.
	ListTransitionRules(ctx context.Context, kind EntityKind, tenant TenantID) ([]TransitionRule, error)

	// CreateStatusDefinition adds a new status. Fails with
	// ErrDuplicateStatus when the code exists.
	CreateStatusDefinition(ctx context.Context, kind EntityKind, tenant TenantID, def StatusDefinition) error

	// UpdateStatusDefinition modifies a status. For system statuses
	// only color and display order may change; anything else fails
	// with ErrSystemManaged.
	UpdateStatusDefinition(ctx context.Context, kind EntityKind, tenant TenantID, def StatusDefinition) error

	// DeleteStatusDefinition removes a status. System statuses fail
	// with ErrSystemManaged; statuses referenced by entities or rules
	// fail with ErrStatusInUse.
	DeleteStatusDefinition(ctx context.Context, kind EntityKind, tenant TenantID, code StatusCode) error

	// CreateTransitionRule adds a rule between two existing statuses.
	CreateTransitionRule(ctx context.Context, kind EntityKind, tenant TenantID, rule TransitionRule) error

	// DeleteTransitionRule removes a rule. System rules fail with
	// ErrSystemManaged.
	DeleteTransitionRule(ctx context.Context, kind EntityKind, tenant TenantID, from, to StatusCode) error
}
