package statemachine_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-engine/statemachine"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func simpleDefs() []statemachine.StatusDefinition {
	return []statemachine.StatusDefinition{
		{Code: "open", DisplayName: "Open", DisplayOrder: 1, Color: statemachine.ColorBlue, IsDefault: true},
		{Code: "active", DisplayName: "Active", DisplayOrder: 2, Color: statemachine.ColorGreen},
		{Code: "done", DisplayName: "Done", DisplayOrder: 3, Color: statemachine.ColorGray, IsTerminal: true},
	}
}

func simpleRules() []statemachine.TransitionRule {
	return []statemachine.TransitionRule{
		{From: "open", To: "active"},
		{From: "active", To: "done"},
		{From: "active", To: "open"},
	}
}

func simpleTable(t *testing.T) *statemachine.Table {
	tbl, err := statemachine.NewTable("ticket", simpleDefs(), simpleRules())
	require.NoError(t, err)
	return tbl
}

// =============================================================================
// TABLE CONSTRUCTION INVARIANTS
// =============================================================================

func TestNewTable_NoFlaggedDefaultFallsBackToFirst(t *testing.T) {
	defs := simpleDefs()
	defs[0].IsDefault = false

	tbl, err := statemachine.NewTable("ticket", defs, simpleRules())
	require.NoError(t, err)
	assert.Equal(t, statemachine.StatusCode("open"), tbl.DefaultStatus().Code)
}

func TestNewTable_RejectsTwoDefaults(t *testing.T) {
	defs := simpleDefs()
	defs[1].IsDefault = true

	_, err := statemachine.NewTable("ticket", defs, simpleRules())
	assert.Error(t, err)
}

func TestNewTable_RejectsDanglingRule(t *testing.T) {
	rules := append(simpleRules(), statemachine.TransitionRule{From: "open", To: "ghost"})

	_, err := statemachine.NewTable("ticket", simpleDefs(), rules)
	assert.Error(t, err)
}

func TestNewTable_RejectsSelfLoopRule(t *testing.T) {
	rules := append(simpleRules(), statemachine.TransitionRule{From: "open", To: "open"})

	_, err := statemachine.NewTable("ticket", simpleDefs(), rules)
	assert.Error(t, err)
}

func TestNewTable_RejectsRuleOutOfTerminal(t *testing.T) {
	// done is terminal; a rule out of it contradicts the definition
	rules := append(simpleRules(), statemachine.TransitionRule{From: "done", To: "open"})

	_, err := statemachine.NewTable("ticket", simpleDefs(), rules)
	assert.Error(t, err)
}

func TestNewTable_RejectsUnknownColor(t *testing.T) {
	defs := simpleDefs()
	defs[0].Color = "mauve"

	_, err := statemachine.NewTable("ticket", defs, simpleRules())
	assert.Error(t, err)
}

func TestNewTable_CapsDestinations(t *testing.T) {
	// GIVEN: one source status with more outgoing rules than the cap
	defs := []statemachine.StatusDefinition{
		{Code: "hub", DisplayName: "Hub", DisplayOrder: 1, Color: statemachine.ColorBlue, IsDefault: true},
	}
	var rules []statemachine.TransitionRule
	for i := 0; i <= statemachine.MaxDestinations; i++ {
		code := statemachine.StatusCode(string(rune('a'+i/26)) + string(rune('a'+i%26)))
		defs = append(defs, statemachine.StatusDefinition{
			Code: code, DisplayName: string(code), DisplayOrder: i + 2, Color: statemachine.ColorGray, IsTerminal: true,
		})
		rules = append(rules, statemachine.TransitionRule{From: "hub", To: code})
	}

	_, err := statemachine.NewTable("ticket", defs, rules)
	assert.Error(t, err)
}

// =============================================================================
// VALIDATION ORDER
// =============================================================================

func TestValidate_SameStatusWinsOverEverything(t *testing.T) {
	// GIVEN: done is terminal
	// WHEN: validating done -> done
	// THEN: the same-status error fires, not the terminal one
	tbl := simpleTable(t)

	err := tbl.Validate("done", "done")
	assert.ErrorIs(t, err, statemachine.ErrSameStatus)

	var same *statemachine.SameStatusError
	require.ErrorAs(t, err, &same)
	assert.Contains(t, same.Error(), "already")
}

func TestValidate_UnknownStatusBeforeTerminal(t *testing.T) {
	tbl := simpleTable(t)

	err := tbl.Validate("done", "ghost")
	assert.ErrorIs(t, err, statemachine.ErrUnknownStatus)
}

func TestValidate_UnknownSourceStatus(t *testing.T) {
	tbl := simpleTable(t)

	err := tbl.Validate("ghost", "open")
	assert.ErrorIs(t, err, statemachine.ErrUnknownStatus)
}

func TestValidate_TerminalBeforeNoRule(t *testing.T) {
	tbl := simpleTable(t)

	err := tbl.Validate("done", "open")
	assert.ErrorIs(t, err, statemachine.ErrTerminalState)
}

func TestValidate_NoSuchRule(t *testing.T) {
	tbl := simpleTable(t)

	err := tbl.Validate("open", "done")
	assert.ErrorIs(t, err, statemachine.ErrNoSuchRule)

	var noRule *statemachine.NoRuleError
	require.ErrorAs(t, err, &noRule)
	assert.Equal(t, "invalid transition: open -> done", noRule.Error())
}

func TestValidate_AllowedTransition(t *testing.T) {
	tbl := simpleTable(t)

	assert.NoError(t, tbl.Validate("open", "active"))
	assert.NoError(t, tbl.Validate("active", "done"))
}

// =============================================================================
// LOOKUPS
// =============================================================================

func TestDestinations_DisplayOrdered(t *testing.T) {
	tbl := simpleTable(t)

	dests := tbl.Destinations("active")
	assert.Equal(t, []statemachine.StatusCode{"open", "done"}, dests)
}

func TestDefaultStatus(t *testing.T) {
	tbl := simpleTable(t)
	assert.Equal(t, statemachine.StatusCode("open"), tbl.DefaultStatus().Code)
}

// =============================================================================
// BUILT-IN TABLES
// =============================================================================

func TestBuiltinRegistry_ServesFixedKinds(t *testing.T) {
	reg := statemachine.NewRegistry(nil)
	ctx := testContext()

	tbl, err := reg.Table(ctx, statemachine.KindInventoryUnit, "org-1")
	require.NoError(t, err)

	assert.True(t, tbl.CanTransition(statemachine.UnitAvailable, statemachine.UnitBlocked))
	assert.True(t, tbl.CanTransition(statemachine.UnitBlocked, statemachine.UnitAvailable))
	assert.True(t, tbl.CanTransition(statemachine.UnitReserved, statemachine.UnitConsumed))
	assert.False(t, tbl.CanTransition(statemachine.UnitConsumed, statemachine.UnitAvailable))
	assert.False(t, tbl.CanTransition(statemachine.UnitBlocked, statemachine.UnitReserved))
}

func TestBuiltinRegistry_QualityHoldTerminals(t *testing.T) {
	reg := statemachine.NewRegistry(nil)
	tbl, err := reg.Table(testContext(), statemachine.KindQualityHold, "org-1")
	require.NoError(t, err)

	assert.NoError(t, tbl.Validate(statemachine.HoldActive, statemachine.HoldReleased))
	assert.ErrorIs(t, tbl.Validate(statemachine.HoldReleased, statemachine.HoldDisposed), statemachine.ErrTerminalState)
	assert.ErrorIs(t, tbl.Validate(statemachine.HoldReleased, statemachine.HoldReleased), statemachine.ErrSameStatus)
}

func TestBuiltinRegistry_UnknownKindWithoutCustomSource(t *testing.T) {
	reg := statemachine.NewRegistry(nil)

	_, err := reg.Table(testContext(), statemachine.KindPurchaseOrder, "org-1")
	assert.ErrorIs(t, err, statemachine.ErrTableNotFound)
}
