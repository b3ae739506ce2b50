/*
handlers_test.go - HTTP-level tests for the consumption API

Tests for:
- Tenant header enforcement and cross-tenant isolation
- Consume / reverse flows including capability checks
- Generic transitions and their HTTP error mapping
- Status table reads for fixed and customizable kinds
*/
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/inventory-engine/inventory"
	"github.com/warp/inventory-engine/statemachine"
	"github.com/warp/inventory-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestServer(t *testing.T) (*httptest.Server, *Handler) {
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	h := NewHandler(store, log)
	srv := httptest.NewServer(NewRouter(h))
	t.Cleanup(srv.Close)
	return srv, h
}

type testClient struct {
	t      *testing.T
	base   string
	tenant string
	actor  string
	role   string
}

func (c *testClient) do(method, path string, body any) *http.Response {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, c.base+path, &buf)
	require.NoError(c.t, err)
	if c.tenant != "" {
		req.Header.Set("X-Tenant-ID", c.tenant)
	}
	if c.actor != "" {
		req.Header.Set("X-Actor-ID", c.actor)
	}
	if c.role != "" {
		req.Header.Set("X-Actor-Role", c.role)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, dst any) {
	t.Helper()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(dst))
}

func seedInventory(t *testing.T, c *testClient, unitQty, requiredQty string) (unitID, reqID string) {
	t.Helper()
	resp := c.do("POST", "/api/units", map[string]any{
		"product_id": "prod-flour",
		"qty":        unitQty,
		"uom":        "kg",
		"qa_status":  "passed",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var unit UnitDTO
	decodeBody(t, resp, &unit)

	resp = c.do("POST", "/api/requirements", map[string]any{
		"work_order_id": "wo-1",
		"product_id":    "prod-flour",
		"required_qty":  requiredQty,
		"uom":           "kg",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var mr inventory.MaterialRequirement
	decodeBody(t, resp, &mr)

	return unit.ID, mr.ID
}

// =============================================================================
// TENANT ENFORCEMENT
// =============================================================================

func TestAPI_MissingTenantHeaderRejected(t *testing.T) {
	srv, _ := newTestServer(t)
	c := &testClient{t: t, base: srv.URL} // no tenant

	resp := c.do("GET", "/api/units/whatever", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_HealthzNeedsNoTenant(t *testing.T) {
	srv, _ := newTestServer(t)
	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPI_CrossTenantUnitIs404(t *testing.T) {
	// GIVEN: a unit in org-1
	// WHEN: org-2 fetches it
	// THEN: 404, not 403 - existence must not leak

	srv, _ := newTestServer(t)
	org1 := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}
	org2 := &testClient{t: t, base: srv.URL, tenant: "org-2", actor: "op-2"}

	unitID, _ := seedInventory(t, org1, "10", "10")

	resp := org1.do("GET", "/api/units/"+unitID, nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	resp = org2.do("GET", "/api/units/"+unitID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

// =============================================================================
// CONSUME / REVERSE FLOW
// =============================================================================

func TestAPI_ConsumeAndReverseFlow(t *testing.T) {
	srv, _ := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}
	mgr := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "mgr-1", role: "manager"}

	unitID, reqID := seedInventory(t, op, "50", "50")

	// Consume everything.
	resp := op.do("POST", "/api/work-orders/wo-1/consume", map[string]any{
		"requirement_id": reqID,
		"unit_id":        unitID,
		"qty":            "50",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rec RecordDTO
	decodeBody(t, resp, &rec)
	assert.Equal(t, "consumed", rec.Status)
	assert.Equal(t, "op-1", rec.ConsumedBy)

	// The unit is consumed.
	resp = op.do("GET", "/api/units/"+unitID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var unit UnitDTO
	decodeBody(t, resp, &unit)
	assert.Equal(t, "consumed", unit.Status)
	assert.Equal(t, "0", unit.Qty)

	// Operators may not reverse.
	resp = op.do("POST", "/api/consumptions/"+rec.ID+"/reverse", map[string]any{
		"reason": "operator_error",
	})
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	// Managers may.
	resp = mgr.do("POST", "/api/consumptions/"+rec.ID+"/reverse", map[string]any{
		"reason": "operator_error",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rev ReverseResponseDTO
	decodeBody(t, resp, &rev)
	assert.Equal(t, "reversed", rev.Record.Status)
	assert.Equal(t, "50", rev.UnitQuantity)
	assert.Equal(t, "available", rev.UnitStatus)

	// A second reversal is a 400, not a double restore.
	resp = mgr.do("POST", "/api/consumptions/"+rec.ID+"/reverse", map[string]any{
		"reason": "operator_error",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ConsumeByScannedNumber(t *testing.T) {
	srv, _ := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}

	resp := op.do("POST", "/api/units", map[string]any{
		"number":     "LP-2026-00042",
		"product_id": "prod-flour",
		"qty":        "10",
		"uom":        "kg",
		"qa_status":  "passed",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = op.do("POST", "/api/requirements", map[string]any{
		"work_order_id": "wo-1",
		"product_id":    "prod-flour",
		"required_qty":  "10",
		"uom":           "kg",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var mr inventory.MaterialRequirement
	decodeBody(t, resp, &mr)

	resp = op.do("POST", "/api/work-orders/wo-1/consume", map[string]any{
		"requirement_id": mr.ID,
		"unit_number":    "LP-2026-00042",
		"qty":            "4",
	})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

func TestAPI_ReverseRequiresValidReason(t *testing.T) {
	srv, _ := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}
	mgr := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "mgr-1", role: "manager"}

	unitID, reqID := seedInventory(t, op, "10", "10")
	resp := op.do("POST", "/api/work-orders/wo-1/consume", map[string]any{
		"requirement_id": reqID,
		"unit_id":        unitID,
		"qty":            "5",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rec RecordDTO
	decodeBody(t, resp, &rec)

	// Unknown reason fails body validation.
	resp = mgr.do("POST", "/api/consumptions/"+rec.ID+"/reverse", map[string]any{
		"reason": "felt_like_it",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// "other" without notes fails in the ledger.
	resp = mgr.do("POST", "/api/consumptions/"+rec.ID+"/reverse", map[string]any{
		"reason": "other",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ListConsumptionsPagination(t *testing.T) {
	srv, _ := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}

	unitID, reqID := seedInventory(t, op, "100", "100")
	for i := 0; i < 3; i++ {
		resp := op.do("POST", "/api/work-orders/wo-1/consume", map[string]any{
			"requirement_id": reqID,
			"unit_id":        unitID,
			"qty":            "1",
		})
		require.Equal(t, http.StatusCreated, resp.StatusCode)
	}

	resp := op.do("GET", "/api/work-orders/wo-1/consumptions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var page PageDTO
	decodeBody(t, resp, &page)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, inventory.DefaultPageSize, page.PageSize)

	resp = op.do("GET", "/api/work-orders/wo-1/consumptions?page_size=2&page=2", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	decodeBody(t, resp, &page)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.Page)
	assert.Equal(t, 2, page.PageSize)
}

// =============================================================================
// STATUS ENGINE ENDPOINTS
// =============================================================================

func TestAPI_ManualTransitionAndConflict(t *testing.T) {
	srv, _ := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}

	unitID, _ := seedInventory(t, op, "10", "10")
	path := fmt.Sprintf("/api/kinds/inventory_unit/entities/%s/status", unitID)

	// available -> blocked
	resp := op.do("PUT", path, map[string]any{
		"expected_status": "available",
		"target_status":   "blocked",
		"reason":          "damaged",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr TransitionResponseDTO
	decodeBody(t, resp, &tr)
	assert.Equal(t, "blocked", tr.Status)

	// Stale expected status conflicts.
	resp = op.do("PUT", path, map[string]any{
		"expected_status": "available",
		"target_status":   "reserved",
	})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	// blocked -> reserved has no rule.
	resp = op.do("PUT", path, map[string]any{
		"expected_status": "blocked",
		"target_status":   "reserved",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ManualConsumeRefused(t *testing.T) {
	srv, _ := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}

	unitID, _ := seedInventory(t, op, "10", "10")

	resp := op.do("PUT", fmt.Sprintf("/api/kinds/inventory_unit/entities/%s/status", unitID), map[string]any{
		"expected_status": "available",
		"target_status":   "consumed",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPI_ManualRecordTransitionRefused(t *testing.T) {
	// GIVEN: a fully consumed unit and its consumption record
	// WHEN: the record is flipped to reversed through the generic endpoint
	// THEN: 400 - only reverse restores quantity and writes the metadata

	srv, _ := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}
	mgr := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "mgr-1", role: "manager"}

	unitID, reqID := seedInventory(t, op, "10", "10")
	resp := op.do("POST", "/api/work-orders/wo-1/consume", map[string]any{
		"requirement_id": reqID,
		"unit_id":        unitID,
		"qty":            "10",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	var rec RecordDTO
	decodeBody(t, resp, &rec)

	resp = op.do("PUT", fmt.Sprintf("/api/kinds/consumption_record/entities/%s/status", rec.ID), map[string]any{
		"expected_status": "consumed",
		"target_status":   "reversed",
	})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	// The record is untouched and the real reversal still goes through.
	resp = mgr.do("POST", "/api/consumptions/"+rec.ID+"/reverse", map[string]any{
		"reason": "operator_error",
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var rev ReverseResponseDTO
	decodeBody(t, resp, &rev)
	assert.Equal(t, "10", rev.UnitQuantity)
	assert.Equal(t, "available", rev.UnitStatus)
}

func TestAPI_QualityHoldReleaseNeedsManager(t *testing.T) {
	srv, h := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}
	mgr := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "mgr-1", role: "manager"}

	require.NoError(t, h.Store.SeedEntityStatus(context.Background(),
		statemachine.KindQualityHold, "org-1", "hold-1", statemachine.HoldActive))

	body := map[string]any{
		"expected_status": "active",
		"target_status":   "released",
		"reason":          "inspection passed",
	}

	resp := op.do("PUT", "/api/kinds/quality_hold/entities/hold-1/status", body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = mgr.do("PUT", "/api/kinds/quality_hold/entities/hold-1/status", body)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var tr TransitionResponseDTO
	decodeBody(t, resp, &tr)
	assert.Equal(t, "released", tr.Status)
}

func TestAPI_GetKindTable_FixedKind(t *testing.T) {
	srv, _ := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}

	resp := op.do("GET", "/api/kinds/inventory_unit/statuses", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var table KindTableDTO
	decodeBody(t, resp, &table)

	assert.True(t, table.Fixed)
	assert.Len(t, table.Statuses, 4)
	assert.Equal(t, "available", table.Statuses[0].Code)
}

func TestAPI_PurchaseOrderSeedsOnFirstTouch(t *testing.T) {
	srv, _ := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}

	resp := op.do("GET", "/api/kinds/purchase_order/statuses", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var table KindTableDTO
	decodeBody(t, resp, &table)

	assert.False(t, table.Fixed)
	assert.Len(t, table.Statuses, 7)
	assert.Equal(t, "draft", table.Statuses[0].Code)
}

func TestAPI_StatusAdminRequiresAdminRole(t *testing.T) {
	srv, _ := newTestServer(t)
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}
	admin := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "admin-1", role: "admin"}

	body := map[string]any{
		"code":         "on_hold",
		"display_name": "On Hold",
		"display_order": 8,
		"is_terminal":  true,
		"color":        "orange",
	}

	resp := op.do("POST", "/api/kinds/purchase_order/statuses", body)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = admin.do("POST", "/api/kinds/purchase_order/statuses", body)
	assert.Equal(t, http.StatusCreated, resp.StatusCode)
}

// =============================================================================
// AUDIT ENDPOINT
// =============================================================================

func TestAPI_AuditTrailNewestFirst(t *testing.T) {
	srv, h := newTestServer(t)
	h.Actors = StaticActorDirectory{"op-1": "Pat Operator"}
	op := &testClient{t: t, base: srv.URL, tenant: "org-1", actor: "op-1"}

	unitID, reqID := seedInventory(t, op, "10", "10")
	resp := op.do("POST", "/api/work-orders/wo-1/consume", map[string]any{
		"requirement_id": reqID,
		"unit_id":        unitID,
		"qty":            "10",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = op.do("GET", "/api/audit/"+string(statemachine.KindInventoryUnit)+"/"+unitID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var entries []AuditEntryDTO
	decodeBody(t, resp, &entries)

	require.Len(t, entries, 2)
	for _, e := range entries {
		assert.Equal(t, "op-1", e.ActorID)
		assert.Equal(t, "Pat Operator", e.ActorName)
	}
	// Another tenant's view of the same subject is empty.
	org2 := &testClient{t: t, base: srv.URL, tenant: "org-2", actor: "x"}
	resp = org2.do("GET", "/api/audit/"+string(statemachine.KindInventoryUnit)+"/"+unitID, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var other []AuditEntryDTO
	decodeBody(t, resp, &other)
	assert.Empty(t, other)
}
