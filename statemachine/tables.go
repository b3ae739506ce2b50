/*
tables.go - Built-in fixed tables and the kind registry

PURPOSE:
  Some entity kinds are closed system enums (inventory units, consumption
  records, quality holds): their statuses and rules are compiled in and
  locked against tenant edits. Other kinds (purchase orders) let each
  organization define its own statuses, colors and ordering; those tables
  are tenant-scoped rows loaded from storage.

  Both shapes flow through the same StatusDefinition / TransitionRule
  model - fixed kinds are simply pre-seeded and locked, which avoids two
  parallel state-machine implementations.

INVENTORY UNIT LIFECYCLE:
  available <-> blocked     manual, bidirectional
  available <-> reserved    reservation and release
  available  -> consumed    only as a consequence of consumption driving
  reserved   -> consumed    quantity to exactly zero (the API refuses a
                            standalone status edit to "consumed")
  consumed is terminal. The consumption ledger's reversal is the one
  sanctioned exception, modeled as a dedicated pathway rather than a
  table edge, so the terminal invariant holds for every other caller.

SEE ALSO:
  - inventory: The ledger that owns the consumed/reversal semantics
  - store/sqlite: Tenant-scoped storage for customizable kinds
*/
package statemachine

import "context"

// =============================================================================
// ENTITY KINDS
// =============================================================================

const (
	KindInventoryUnit     EntityKind = "inventory_unit"
	KindConsumptionRecord EntityKind = "consumption_record"
	KindQualityHold       EntityKind = "quality_hold"
	KindPurchaseOrder     EntityKind = "purchase_order"
	KindSalesOrder        EntityKind = "sales_order"
	KindWorkOrder         EntityKind = "work_order"
)

// =============================================================================
// STATUS CODES - Fixed kinds
// =============================================================================

// Inventory unit ("license plate") lifecycle.
const (
	UnitAvailable StatusCode = "available"
	UnitReserved  StatusCode = "reserved"
	UnitConsumed  StatusCode = "consumed"
	UnitBlocked   StatusCode = "blocked"
)

// Consumption record lifecycle. Reversed is terminal: a record may be
// reversed at most once.
const (
	RecordConsumed StatusCode = "consumed"
	RecordReversed StatusCode = "reversed"
)

// Quality hold lifecycle.
const (
	HoldActive   StatusCode = "active"
	HoldReleased StatusCode = "released"
	HoldDisposed StatusCode = "disposed"
)

// =============================================================================
// BUILT-IN TABLES
// =============================================================================

func mustTable(kind EntityKind, defs []StatusDefinition, rules []TransitionRule) *Table {
	t, err := NewTable(kind, defs, rules)
	if err != nil {
		panic(err) // compiled-in tables are validated at init
	}
	return t
}

var inventoryUnitTable = mustTable(KindInventoryUnit,
	[]StatusDefinition{
		{Code: UnitAvailable, DisplayName: "Available", DisplayOrder: 1, Color: ColorGreen, IsDefault: true, IsSystem: true},
		{Code: UnitReserved, DisplayName: "Reserved", DisplayOrder: 2, Color: ColorBlue, IsSystem: true},
		{Code: UnitConsumed, DisplayName: "Consumed", DisplayOrder: 3, Color: ColorGray, IsTerminal: true, IsSystem: true},
		{Code: UnitBlocked, DisplayName: "Blocked", DisplayOrder: 4, Color: ColorRed, IsSystem: true},
	},
	[]TransitionRule{
		{From: UnitAvailable, To: UnitReserved, IsSystem: true},
		{From: UnitAvailable, To: UnitBlocked, IsSystem: true},
		{From: UnitAvailable, To: UnitConsumed, IsSystem: true},
		{From: UnitReserved, To: UnitAvailable, IsSystem: true},
		{From: UnitReserved, To: UnitConsumed, IsSystem: true},
		{From: UnitBlocked, To: UnitAvailable, IsSystem: true},
	},
)

var consumptionRecordTable = mustTable(KindConsumptionRecord,
	[]StatusDefinition{
		{Code: RecordConsumed, DisplayName: "Consumed", DisplayOrder: 1, Color: ColorGreen, IsDefault: true, IsSystem: true},
		{Code: RecordReversed, DisplayName: "Reversed", DisplayOrder: 2, Color: ColorOrange, IsTerminal: true, IsSystem: true},
	},
	[]TransitionRule{
		{From: RecordConsumed, To: RecordReversed, IsSystem: true},
	},
)

var qualityHoldTable = mustTable(KindQualityHold,
	[]StatusDefinition{
		{Code: HoldActive, DisplayName: "Active", DisplayOrder: 1, Color: ColorYellow, IsDefault: true, IsSystem: true},
		{Code: HoldReleased, DisplayName: "Released", DisplayOrder: 2, Color: ColorGreen, IsTerminal: true, IsSystem: true},
		{Code: HoldDisposed, DisplayName: "Disposed", DisplayOrder: 3, Color: ColorRed, IsTerminal: true, IsSystem: true},
	},
	[]TransitionRule{
		{From: HoldActive, To: HoldReleased, IsSystem: true},
		{From: HoldActive, To: HoldDisposed, IsSystem: true},
	},
)

var builtinTables = map[EntityKind]*Table{
	KindInventoryUnit:     inventoryUnitTable,
	KindConsumptionRecord: consumptionRecordTable,
	KindQualityHold:       qualityHoldTable,
}

// IsFixedKind reports whether a kind's table is compiled in and locked
// against tenant edits.
func IsFixedKind(kind EntityKind) bool {
	_, ok := builtinTables[kind]
	return ok
}

// =============================================================================
// DEFAULT SEEDS - Customizable kinds
// =============================================================================

// DefaultPurchaseOrderStatuses are seeded for every new tenant. The
// tenant may add custom statuses around them; system statuses accept
// only color and display-order edits.
func DefaultPurchaseOrderStatuses() []StatusDefinition {
	return []StatusDefinition{
		{Code: "draft", DisplayName: "Draft", DisplayOrder: 1, Color: ColorGray, IsDefault: true, IsSystem: true},
		{Code: "submitted", DisplayName: "Submitted", DisplayOrder: 2, Color: ColorBlue, IsSystem: true},
		{Code: "pending_approval", DisplayName: "Pending Approval", DisplayOrder: 3, Color: ColorYellow, IsSystem: true},
		{Code: "confirmed", DisplayName: "Confirmed", DisplayOrder: 4, Color: ColorGreen, IsSystem: true},
		{Code: "receiving", DisplayName: "Receiving", DisplayOrder: 5, Color: ColorPurple, IsSystem: true},
		{Code: "closed", DisplayName: "Closed", DisplayOrder: 6, Color: ColorEmerald, IsTerminal: true, IsSystem: true},
		{Code: "cancelled", DisplayName: "Cancelled", DisplayOrder: 7, Color: ColorRed, IsTerminal: true, IsSystem: true},
	}
}

// DefaultPurchaseOrderRules pair with DefaultPurchaseOrderStatuses.
// confirmed->receiving and receiving->closed are system rules the
// receiving workflow depends on; tenants may not remove them.
func DefaultPurchaseOrderRules() []TransitionRule {
	return []TransitionRule{
		{From: "draft", To: "submitted"},
		{From: "draft", To: "cancelled"},
		{From: "submitted", To: "pending_approval"},
		{From: "submitted", To: "cancelled"},
		{From: "pending_approval", To: "confirmed"},
		{From: "pending_approval", To: "draft"},
		{From: "pending_approval", To: "cancelled"},
		{From: "confirmed", To: "receiving", IsSystem: true},
		{From: "confirmed", To: "cancelled"},
		{From: "receiving", To: "closed", IsSystem: true},
	}
}

// =============================================================================
// REGISTRY - One TableSource over fixed and customizable kinds
// =============================================================================

// Registry serves built-in tables from code and delegates customizable
// kinds to tenant-scoped storage. Custom may be nil, in which case only
// fixed kinds resolve.
type Registry struct {
	Custom TableSource
}

// NewRegistry builds a registry over a storage-backed source for
// customizable kinds.
func NewRegistry(custom TableSource) *Registry {
	return &Registry{Custom: custom}
}

// Table resolves the transition table for (kind, tenant).
func (r *Registry) Table(ctx context.Context, kind EntityKind, tenant TenantID) (*Table, error) {
	if t, ok := builtinTables[kind]; ok {
		return t, nil
	}
	if r.Custom == nil {
		return nil, ErrTableNotFound
	}
	return r.Custom.Table(ctx, kind, tenant)
}
