/*
handlers.go - HTTP API handlers for the inventory consumption system

PURPOSE:
  Exposes the consumption ledger and the status engine via REST API.
  Handles HTTP request/response, JSON serialization, and delegates to
  domain logic.

ENDPOINTS:
  Consumption:
    POST   /api/work-orders/{woID}/consume        Record a consumption
    GET    /api/work-orders/{woID}/consumptions   Paginated history
    POST   /api/consumptions/{id}/reverse         Reverse a consumption

  Inventory units:
    POST   /api/units                             Register a unit
    GET    /api/units/{id}                        Get by ID or number

  Requirements:
    POST   /api/requirements                      Add a material requirement

  Status engine:
    PUT    /api/kinds/{kind}/entities/{id}/status Apply a transition
    GET    /api/kinds/{kind}/statuses             Table: statuses + rules
    POST   /api/kinds/{kind}/statuses             Add status (admin)
    PUT    /api/kinds/{kind}/statuses/{code}      Edit status (admin)
    DELETE /api/kinds/{kind}/statuses/{code}      Delete status (admin)
    POST   /api/kinds/{kind}/rules                Add rule (admin)
    DELETE /api/kinds/{kind}/rules                Delete rule (admin)

  Audit:
    GET    /api/audit/{subjectType}/{subjectID}   Trail, newest first

REQUEST FLOW:
  1. Tenant middleware (X-Tenant-ID, X-Actor-ID, X-Actor-Role)
  2. Decode and validate body (go-playground/validator)
  3. Capability check for privileged operations
  4. Call domain logic (ledger, applicator, stores)
  5. Serialize response / map error

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, disallowed transitions, bad input
  - 403: Missing capability, system-managed edits
  - 404: Not found - including rows owned by another tenant
  - 409: Optimistic-concurrency conflicts, duplicates, in-use deletes
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/warp/inventory-engine/inventory"
	"github.com/warp/inventory-engine/statemachine"
	"github.com/warp/inventory-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store        *sqlite.Store
	Ledger       *inventory.Ledger
	Applicator   *statemachine.Applicator
	Tables       *statemachine.Registry
	Capabilities CapabilityChecker
	Actors       ActorDirectory
	Log          *logrus.Logger

	validate *validator.Validate
}

// NewHandler wires a handler over the given store.
func NewHandler(store *sqlite.Store, log *logrus.Logger) *Handler {
	registry := statemachine.NewRegistry(store)
	return &Handler{
		Store:        store,
		Ledger:       inventory.NewLedger(store, registry),
		Applicator:   statemachine.NewApplicator(registry, store.Engine()),
		Tables:       registry,
		Capabilities: DefaultCapabilities(),
		Actors:       StaticActorDirectory{},
		Log:          log,
		validate:     validator.New(),
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.Struct(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

func (h *Handler) allowed(w http.ResponseWriter, r *http.Request, cap Capability) bool {
	ctx := r.Context()
	if !h.Capabilities.Allowed(roleFrom(ctx), actorFrom(ctx), cap) {
		writeError(w, http.StatusForbidden, "Operation requires capability "+string(cap), nil)
		return false
	}
	return true
}

// =============================================================================
// CONSUMPTION HANDLERS
// =============================================================================

// Consume records one consumption against a work order.
// POST /api/work-orders/{woID}/consume
func (h *Handler) Consume(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, CapConsume) {
		return
	}
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	woID := chi.URLParam(r, "woID")

	var req ConsumeRequest
	if !h.decode(w, r, &req) {
		return
	}

	unitID := req.UnitID
	if unitID == "" {
		if req.UnitNumber == "" {
			writeError(w, http.StatusBadRequest, "unit_id or unit_number required", nil)
			return
		}
		// Scanner flow: the terminal sends the printed number.
		unit, err := h.Store.View().Units().GetByNumber(ctx, tenant, req.UnitNumber)
		if err != nil {
			h.writeDomainError(w, r, err)
			return
		}
		unitID = unit.ID
	}

	rec, err := h.Ledger.Consume(ctx, inventory.ConsumeRequest{
		Tenant:        tenant,
		WorkOrderID:   woID,
		RequirementID: req.RequirementID,
		UnitID:        unitID,
		Qty:           req.Qty,
		ActorID:       actorFrom(ctx),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	consumptionsTotal.WithLabelValues(string(tenant)).Inc()
	h.Log.WithFields(logrus.Fields{
		"tenant":     tenant,
		"work_order": woID,
		"record":     rec.ID,
		"unit":       rec.UnitNumber,
		"qty":        rec.Qty.String(),
	}).Info("consumption recorded")

	writeJSON(w, http.StatusCreated, toRecordDTO(rec))
}

// ListConsumptions returns a page of a work order's consumption history.
// GET /api/work-orders/{woID}/consumptions
func (h *Handler) ListConsumptions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	woID := chi.URLParam(r, "woID")

	f := inventory.ListFilter{
		Status:        statemachine.StatusCode(r.URL.Query().Get("status")),
		RequirementID: r.URL.Query().Get("requirement_id"),
		SortAsc:       r.URL.Query().Get("sort") == "asc",
	}
	f.Page, _ = strconv.Atoi(r.URL.Query().Get("page"))
	f.PageSize, _ = strconv.Atoi(r.URL.Query().Get("page_size"))

	records, total, err := h.Ledger.ListConsumptions(ctx, tenant, woID, f)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	if f.Page <= 0 {
		f.Page = 1
	}
	if f.PageSize <= 0 {
		f.PageSize = inventory.DefaultPageSize
	}
	if f.PageSize > inventory.MaxPageSize {
		f.PageSize = inventory.MaxPageSize
	}

	dtos := make([]RecordDTO, len(records))
	for i := range records {
		dtos[i] = toRecordDTO(&records[i])
	}
	writeJSON(w, http.StatusOK, PageDTO{
		Items:    dtos,
		Total:    total,
		Page:     f.Page,
		PageSize: f.PageSize,
	})
}

// Reverse undoes a consumption record. Manager-class operation.
// POST /api/consumptions/{id}/reverse
func (h *Handler) Reverse(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, CapReverseConsumption) {
		return
	}
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	recordID := chi.URLParam(r, "id")

	var req ReverseRequest
	if !h.decode(w, r, &req) {
		return
	}

	res, err := h.Ledger.Reverse(ctx, inventory.ReverseRequest{
		Tenant:   tenant,
		RecordID: recordID,
		Reason:   inventory.ReversalReason(req.Reason),
		Notes:    req.Notes,
		ActorID:  actorFrom(ctx),
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	reversalsTotal.WithLabelValues(string(tenant), req.Reason).Inc()
	h.Log.WithFields(logrus.Fields{
		"tenant": tenant,
		"record": recordID,
		"reason": req.Reason,
	}).Info("consumption reversed")

	writeJSON(w, http.StatusOK, ReverseResponseDTO{
		Record:       toRecordDTO(res.Record),
		UnitQuantity: res.UnitQuantity.String(),
		UnitStatus:   string(res.UnitStatus),
	})
}

// =============================================================================
// INVENTORY UNIT HANDLERS
// =============================================================================

// CreateUnit registers a new inventory unit at the kind's default
// status.
// POST /api/units
func (h *Handler) CreateUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	var req CreateUnitRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.Qty.IsPositive() {
		writeError(w, http.StatusBadRequest, "qty must be positive", nil)
		return
	}

	table, err := h.Tables.Table(ctx, statemachine.KindInventoryUnit, tenant)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	number := req.Number
	if number == "" {
		number = generateUnitNumber()
	}
	qa := inventory.QualityStatus(req.QAStatus)
	if qa == "" {
		qa = inventory.QualityPending
	}

	unit := &inventory.Unit{
		ID:          uuid.NewString(),
		TenantID:    tenant,
		Number:      number,
		ProductID:   req.ProductID,
		Quantity:    req.Qty,
		UoM:         req.UoM,
		Status:      table.DefaultStatus().Code,
		QAStatus:    qa,
		LocationID:  req.LocationID,
		WarehouseID: req.WarehouseID,
		BatchNumber: req.BatchNumber,
	}
	if req.ExpiryDate != "" {
		t, err := time.Parse("2006-01-02", req.ExpiryDate)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid expiry_date format (use YYYY-MM-DD)", err)
			return
		}
		unit.ExpiryDate = &t
	}

	err = h.Store.InTx(ctx, func(st inventory.Stores) error {
		return st.Units().Put(ctx, unit)
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, toUnitDTO(unit))
}

// GetUnit returns a unit by ID, falling back to its printed number so
// scanners can look up what they just read.
// GET /api/units/{id}
func (h *Handler) GetUnit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	ref := chi.URLParam(r, "id")

	unit, err := h.Store.View().Units().Get(ctx, tenant, ref)
	if errors.Is(err, statemachine.ErrNotFound) {
		unit, err = h.Store.View().Units().GetByNumber(ctx, tenant, ref)
	}
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toUnitDTO(unit))
}

// CreateRequirement adds a material requirement to a work order.
// POST /api/requirements
func (h *Handler) CreateRequirement(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)

	var req CreateRequirementRequest
	if !h.decode(w, r, &req) {
		return
	}
	if !req.RequiredQty.IsPositive() {
		writeError(w, http.StatusBadRequest, "required_qty must be positive", nil)
		return
	}
	seq := req.Sequence
	if seq <= 0 {
		seq = 1
	}

	mr := &inventory.MaterialRequirement{
		ID:               uuid.NewString(),
		TenantID:         tenant,
		WorkOrderID:      req.WorkOrderID,
		ProductID:        req.ProductID,
		Name:             req.Name,
		RequiredQty:      req.RequiredQty,
		UoM:              req.UoM,
		Sequence:         seq,
		ConsumeWholeUnit: req.ConsumeWholeUnit,
	}
	err := h.Store.InTx(ctx, func(st inventory.Stores) error {
		return st.Requirements().Put(ctx, mr)
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, mr)
}

// =============================================================================
// STATUS ENGINE HANDLERS
// =============================================================================

// Transition applies one status change to an entity of any kind.
// PUT /api/kinds/{kind}/entities/{id}/status
func (h *Handler) Transition(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, CapTransitionStatus) {
		return
	}
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	kind := statemachine.EntityKind(chi.URLParam(r, "kind"))
	entityID := chi.URLParam(r, "id")

	var req TransitionRequest
	if !h.decode(w, r, &req) {
		return
	}

	// "consumed" is reachable only through the ledger driving quantity
	// to zero; a manual edit must not mimic a consumption.
	if kind == statemachine.KindInventoryUnit &&
		statemachine.StatusCode(req.TargetStatus) == statemachine.UnitConsumed {
		writeError(w, http.StatusBadRequest,
			"Units reach consumed only through consumption", nil)
		return
	}

	// Consumption records change state only through the ledger: a
	// manual flip to reversed would skip the quantity restore and the
	// reversal metadata.
	if kind == statemachine.KindConsumptionRecord {
		writeError(w, http.StatusBadRequest,
			"Consumption records change state only through reverse", nil)
		return
	}

	// Releasing a quality hold is a manager-class sign-off.
	if kind == statemachine.KindQualityHold &&
		statemachine.StatusCode(req.TargetStatus) == statemachine.HoldReleased &&
		!h.allowed(w, r, CapReleaseHold) {
		return
	}

	h.seedIfNeeded(r, kind, tenant)

	applied, err := h.Applicator.Apply(ctx, statemachine.ApplyRequest{
		Kind:     kind,
		Tenant:   tenant,
		EntityID: entityID,
		Current:  statemachine.StatusCode(req.ExpectedStatus),
		Target:   statemachine.StatusCode(req.TargetStatus),
		ActorID:  actorFrom(ctx),
		Reason:   req.Reason,
	})
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	transitionsTotal.WithLabelValues(string(kind)).Inc()
	writeJSON(w, http.StatusOK, TransitionResponseDTO{
		EntityID: entityID,
		Kind:     string(kind),
		Status:   string(applied),
	})
}

// GetKindTable returns a kind's statuses and transition rules.
// GET /api/kinds/{kind}/statuses
func (h *Handler) GetKindTable(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	kind := statemachine.EntityKind(chi.URLParam(r, "kind"))

	h.seedIfNeeded(r, kind, tenant)

	table, err := h.Tables.Table(ctx, kind, tenant)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}

	defs := table.Statuses()
	var rules []statemachine.TransitionRule
	for _, d := range defs {
		for _, to := range table.Destinations(d.Code) {
			rules = append(rules, statemachine.TransitionRule{From: d.Code, To: to})
		}
	}

	writeJSON(w, http.StatusOK, KindTableDTO{
		Kind:     string(kind),
		Fixed:    statemachine.IsFixedKind(kind),
		Statuses: toStatusDTOs(defs),
		Rules:    toRuleDTOs(rules),
	})
}

// seedIfNeeded installs factory defaults the first time a tenant
// touches a customizable kind that ships with them.
func (h *Handler) seedIfNeeded(r *http.Request, kind statemachine.EntityKind, tenant statemachine.TenantID) {
	if kind != statemachine.KindPurchaseOrder {
		return
	}
	err := h.Store.SeedDefaults(r.Context(), kind, tenant,
		statemachine.DefaultPurchaseOrderStatuses(),
		statemachine.DefaultPurchaseOrderRules())
	if err != nil {
		h.Log.WithError(err).WithField("kind", kind).Warn("failed to seed default statuses")
	}
}

// =============================================================================
// STATUS ADMINISTRATION HANDLERS
// =============================================================================

// CreateStatus adds a status to a customizable kind.
// POST /api/kinds/{kind}/statuses
func (h *Handler) CreateStatus(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, CapManageStatuses) {
		return
	}
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	kind := statemachine.EntityKind(chi.URLParam(r, "kind"))

	var req StatusDefinitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	h.seedIfNeeded(r, kind, tenant)

	def := statemachine.StatusDefinition{
		Code:         statemachine.StatusCode(req.Code),
		DisplayName:  req.DisplayName,
		DisplayOrder: req.DisplayOrder,
		IsTerminal:   req.IsTerminal,
		Color:        statemachine.Color(req.Color),
		IsDefault:    req.IsDefault,
	}
	if err := h.Store.CreateStatusDefinition(ctx, kind, tenant, def); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// UpdateStatus edits a status definition.
// PUT /api/kinds/{kind}/statuses/{code}
func (h *Handler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, CapManageStatuses) {
		return
	}
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	kind := statemachine.EntityKind(chi.URLParam(r, "kind"))
	code := chi.URLParam(r, "code")

	var req StatusDefinitionRequest
	if !h.decode(w, r, &req) {
		return
	}
	def := statemachine.StatusDefinition{
		Code:         statemachine.StatusCode(code),
		DisplayName:  req.DisplayName,
		DisplayOrder: req.DisplayOrder,
		IsTerminal:   req.IsTerminal,
		Color:        statemachine.Color(req.Color),
		IsDefault:    req.IsDefault,
	}
	if err := h.Store.UpdateStatusDefinition(ctx, kind, tenant, def); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, req)
}

// DeleteStatus removes a status definition.
// DELETE /api/kinds/{kind}/statuses/{code}
func (h *Handler) DeleteStatus(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, CapManageStatuses) {
		return
	}
	ctx := r.Context()
	kind := statemachine.EntityKind(chi.URLParam(r, "kind"))
	code := statemachine.StatusCode(chi.URLParam(r, "code"))

	if err := h.Store.DeleteStatusDefinition(ctx, kind, tenantFrom(ctx), code); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// CreateRule adds a transition rule to a customizable kind.
// POST /api/kinds/{kind}/rules
func (h *Handler) CreateRule(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, CapManageStatuses) {
		return
	}
	ctx := r.Context()
	kind := statemachine.EntityKind(chi.URLParam(r, "kind"))

	var req TransitionRuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	rule := statemachine.TransitionRule{
		From: statemachine.StatusCode(req.From),
		To:   statemachine.StatusCode(req.To),
	}
	if err := h.Store.CreateTransitionRule(ctx, kind, tenantFrom(ctx), rule); err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, req)
}

// DeleteRule removes a transition rule.
// DELETE /api/kinds/{kind}/rules
func (h *Handler) DeleteRule(w http.ResponseWriter, r *http.Request) {
	if !h.allowed(w, r, CapManageStatuses) {
		return
	}
	ctx := r.Context()
	kind := statemachine.EntityKind(chi.URLParam(r, "kind"))

	var req TransitionRuleRequest
	if !h.decode(w, r, &req) {
		return
	}
	err := h.Store.DeleteTransitionRule(ctx, kind, tenantFrom(ctx),
		statemachine.StatusCode(req.From), statemachine.StatusCode(req.To))
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// =============================================================================
// AUDIT HANDLERS
// =============================================================================

// GetAuditTrail returns a subject's audit entries, newest first.
// GET /api/audit/{subjectType}/{subjectID}
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	tenant := tenantFrom(ctx)
	subjectType := chi.URLParam(r, "subjectType")
	subjectID := chi.URLParam(r, "subjectID")

	entries, err := h.Store.View().Audit().List(ctx, tenant, subjectType, subjectID)
	if err != nil {
		h.writeDomainError(w, r, err)
		return
	}
	dtos := toAuditDTOs(entries)
	for i := range dtos {
		dtos[i].ActorName = h.Actors.DisplayName(dtos[i].ActorID)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// ERROR MAPPING AND RESPONSE HELPERS
// =============================================================================

// writeDomainError maps a domain error to its HTTP status.
func (h *Handler) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, statemachine.ErrNotFound),
		errors.Is(err, statemachine.ErrTableNotFound):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, statemachine.ErrConflict):
		conflictsTotal.Inc()
		writeError(w, http.StatusConflict, "Conflict - re-fetch and retry", err)
	case errors.Is(err, statemachine.ErrDuplicateStatus),
		errors.Is(err, statemachine.ErrStatusInUse):
		writeError(w, http.StatusConflict, "Conflict", err)
	case errors.Is(err, statemachine.ErrSystemManaged):
		writeError(w, http.StatusForbidden, "System managed", err)
	case statemachine.IsStateError(err), inventory.IsStateError(err):
		writeError(w, http.StatusBadRequest, "Invalid operation", err)
	default:
		h.Log.WithError(err).WithField("path", r.URL.Path).Error("internal error")
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// generateUnitNumber mints a printed license-plate number like
// LP-2026-08877. Collisions bounce off the unique index and the caller
// retries with an explicit number.
func generateUnitNumber() string {
	return fmt.Sprintf("LP-%d-%05d", time.Now().UTC().Year(), rand.Intn(100000))
}
