/*
Package statemachine provides the generic status-transition engine.

PURPOSE:
  This package contains domain-agnostic types and algorithms for managing
  the lifecycle status of any status-bearing entity. Whether tracking a
  purchase order, a quality hold, or an inventory unit, the same engine
  validates and applies state changes against a declarative transition table.

KEY CONCEPTS IN THIS FILE (types.go):
  - EntityKind: Which transition table applies ("purchase_order", ...)
  - StatusDefinition: A named state with display metadata
  - TransitionRule: A permitted (from, to) state change
  - Table: The full directed transition graph for one kind

DESIGN PRINCIPLES:
  1. Declarative: Legal transitions are data, not code
  2. Tenant-aware: Customizable kinds carry tenant-scoped tables;
     fixed kinds share one locked table
  3. Graph, not sequence: Cycles (hold -> released -> on_hold again)
     are ordinary edges, never a special case
  4. Validation is membership: The validator checks adjacency, it
     never traverses

USAGE:
  table, _ := statemachine.NewTable("quality_hold", defs, rules)
  if err := table.Validate("active", "released"); err != nil {
      // transition is not legal right now
  }

SEE ALSO:
  - validator.go: Pure transition validation
  - applicator.go: Transactional validate -> persist -> audit
  - tables.go: Built-in fixed tables (inventory_unit, quality_hold, ...)
*/
package statemachine

import (
	"fmt"
	"sort"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

// EntityKind names which transition table applies to an entity.
type EntityKind string

// TenantID identifies an isolated organization. Every read and write is
// scoped to exactly one tenant.
type TenantID string

// StatusCode is a lowercase token naming one state ("available", "draft").
type StatusCode string

// =============================================================================
// STATUS DEFINITION
// =============================================================================

// Color is the cosmetic tag attached to a status for UI rendering.
// Closed enumeration; anything else is rejected at table build time.
type Color string

const (
	ColorGray    Color = "gray"
	ColorBlue    Color = "blue"
	ColorYellow  Color = "yellow"
	ColorGreen   Color = "green"
	ColorPurple  Color = "purple"
	ColorEmerald Color = "emerald"
	ColorRed     Color = "red"
	ColorOrange  Color = "orange"
)

func validColor(c Color) bool {
	switch c {
	case ColorGray, ColorBlue, ColorYellow, ColorGreen, ColorPurple, ColorEmerald, ColorRed, ColorOrange:
		return true
	}
	return false
}

// StatusDefinition describes one state of an entity kind.
type StatusDefinition struct {
	Code         StatusCode
	DisplayName  string
	DisplayOrder int  // positive; stable UI ordering only
	IsTerminal   bool // no outgoing transitions
	Color        Color
	IsDefault    bool // at most one per (kind, tenant); the initial state
	IsSystem     bool // locked against tenant edits (rename/delete)
}

// TransitionRule is one permitted state change for an entity kind.
type TransitionRule struct {
	From StatusCode
	To   StatusCode

	// IsSystem marks rules the platform depends on; tenants may not
	// remove them from customizable kinds.
	IsSystem bool
}

// =============================================================================
// TABLE - Directed transition graph for one entity kind
// =============================================================================

// MaxDestinations bounds the out-degree of any source status.
// Keeps UI action lists and payloads small.
const MaxDestinations = 20

// Table is the immutable transition graph for one entity kind.
// Build one with NewTable; evaluation never mutates it.
type Table struct {
	Kind EntityKind

	statuses    map[StatusCode]StatusDefinition
	transitions map[StatusCode]map[StatusCode]struct{}
	ordered     []StatusDefinition // by DisplayOrder
}

// NewTable builds a validated transition table.
//
// Rejected configurations:
//   - duplicate or empty status codes, invalid colors, non-positive order
//   - more than one default status
//   - self-transition rules
//   - rules referencing undefined statuses
//   - rules out of a terminal status
//   - non-terminal statuses with no outgoing rule (dead ends)
//   - more than MaxDestinations rules out of one status
func NewTable(kind EntityKind, defs []StatusDefinition, rules []TransitionRule) (*Table, error) {
	if kind == "" {
		return nil, fmt.Errorf("table: entity kind is required")
	}
	if len(defs) == 0 {
		return nil, fmt.Errorf("table %s: at least one status is required", kind)
	}

	t := &Table{
		Kind:        kind,
		statuses:    make(map[StatusCode]StatusDefinition, len(defs)),
		transitions: make(map[StatusCode]map[StatusCode]struct{}, len(defs)),
	}

	defaults := 0
	for _, d := range defs {
		if d.Code == "" {
			return nil, fmt.Errorf("table %s: status code is required", kind)
		}
		if _, dup := t.statuses[d.Code]; dup {
			return nil, fmt.Errorf("table %s: duplicate status code %q", kind, d.Code)
		}
		if d.DisplayOrder <= 0 {
			return nil, fmt.Errorf("table %s: status %q: display order must be positive", kind, d.Code)
		}
		if !validColor(d.Color) {
			return nil, fmt.Errorf("table %s: status %q: unknown color %q", kind, d.Code, d.Color)
		}
		if d.IsDefault {
			defaults++
		}
		t.statuses[d.Code] = d
		t.ordered = append(t.ordered, d)
	}
	if defaults > 1 {
		return nil, fmt.Errorf("table %s: at most one status may be flagged default", kind)
	}
	sort.SliceStable(t.ordered, func(i, j int) bool {
		return t.ordered[i].DisplayOrder < t.ordered[j].DisplayOrder
	})

	for _, r := range rules {
		if r.From == r.To {
			return nil, fmt.Errorf("table %s: self-transition %q -> %q is not allowed", kind, r.From, r.To)
		}
		from, ok := t.statuses[r.From]
		if !ok {
			return nil, fmt.Errorf("table %s: rule references undefined status %q", kind, r.From)
		}
		if _, ok := t.statuses[r.To]; !ok {
			return nil, fmt.Errorf("table %s: rule references undefined status %q", kind, r.To)
		}
		if from.IsTerminal {
			return nil, fmt.Errorf("table %s: terminal status %q may not have outgoing rules", kind, r.From)
		}
		dests := t.transitions[r.From]
		if dests == nil {
			dests = make(map[StatusCode]struct{})
			t.transitions[r.From] = dests
		}
		dests[r.To] = struct{}{}
		if len(dests) > MaxDestinations {
			return nil, fmt.Errorf("table %s: status %q exceeds %d destinations", kind, r.From, MaxDestinations)
		}
	}

	// Every non-terminal status must lead somewhere.
	for code, d := range t.statuses {
		if d.IsTerminal {
			continue
		}
		if len(t.transitions[code]) == 0 {
			return nil, fmt.Errorf("table %s: non-terminal status %q has no outgoing rules", kind, code)
		}
	}

	return t, nil
}

// Status returns the definition for a code.
func (t *Table) Status(code StatusCode) (StatusDefinition, bool) {
	d, ok := t.statuses[code]
	return d, ok
}

// Statuses returns all definitions ordered by display order.
func (t *Table) Statuses() []StatusDefinition {
	out := make([]StatusDefinition, len(t.ordered))
	copy(out, t.ordered)
	return out
}

// DefaultStatus returns the status flagged default, or the first by
// display order when none is flagged.
func (t *Table) DefaultStatus() StatusDefinition {
	for _, d := range t.ordered {
		if d.IsDefault {
			return d
		}
	}
	return t.ordered[0]
}

// Destinations returns the permitted target statuses from a source,
// ordered by display order. Used to render which actions a client
// may offer; safe to call speculatively.
func (t *Table) Destinations(from StatusCode) []StatusCode {
	dests := t.transitions[from]
	if len(dests) == 0 {
		return nil
	}
	var out []StatusCode
	for _, d := range t.ordered {
		if _, ok := dests[d.Code]; ok {
			out = append(out, d.Code)
		}
	}
	return out
}

// CanTransition reports whether a rule (from, to) exists. Membership
// check only; Validate produces the typed error.
func (t *Table) CanTransition(from, to StatusCode) bool {
	_, ok := t.transitions[from][to]
	return ok
}
