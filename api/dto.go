/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types
  decouple the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Request types carry go-playground/validator tags; handlers run the
  shared validator before touching domain logic, so a malformed body
  never reaches the ledger.

SEE ALSO:
  - handlers.go: Uses these types
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/warp/inventory-engine/inventory"
	"github.com/warp/inventory-engine/statemachine"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ConsumeRequest records one consumption against a work order.
type ConsumeRequest struct {
	RequirementID string          `json:"requirement_id" validate:"required"`
	UnitID        string          `json:"unit_id"`
	UnitNumber    string          `json:"unit_number"`
	Qty           decimal.Decimal `json:"qty" validate:"required"`
}

// ReverseRequest undoes a consumption record.
type ReverseRequest struct {
	Reason string `json:"reason" validate:"required,oneof=scanned_wrong_lp wrong_quantity operator_error quality_issue other"`
	Notes  string `json:"notes"`
}

// TransitionRequest moves an entity to a new status. ExpectedStatus is
// the status the client last saw; a mismatch returns 409.
type TransitionRequest struct {
	ExpectedStatus string `json:"expected_status" validate:"required"`
	TargetStatus   string `json:"target_status" validate:"required"`
	Reason         string `json:"reason"`
}

// CreateUnitRequest registers a new inventory unit. Number is optional;
// a blank one gets generated.
type CreateUnitRequest struct {
	Number      string          `json:"number"`
	ProductID   string          `json:"product_id" validate:"required"`
	Qty         decimal.Decimal `json:"qty" validate:"required"`
	UoM         string          `json:"uom" validate:"required"`
	QAStatus    string          `json:"qa_status" validate:"omitempty,oneof=pending passed failed quarantine"`
	LocationID  string          `json:"location_id"`
	WarehouseID string          `json:"warehouse_id"`
	BatchNumber string          `json:"batch_number"`
	ExpiryDate  string          `json:"expiry_date"` // YYYY-MM-DD
}

// CreateRequirementRequest adds a material requirement to a work order.
type CreateRequirementRequest struct {
	WorkOrderID      string          `json:"work_order_id" validate:"required"`
	ProductID        string          `json:"product_id" validate:"required"`
	Name             string          `json:"name"`
	RequiredQty      decimal.Decimal `json:"required_qty" validate:"required"`
	UoM              string          `json:"uom" validate:"required"`
	Sequence         int             `json:"sequence"`
	ConsumeWholeUnit bool            `json:"consume_whole_unit"`
}

// StatusDefinitionRequest creates or updates a status definition on a
// customizable kind.
type StatusDefinitionRequest struct {
	Code         string `json:"code" validate:"required,max=64"`
	DisplayName  string `json:"display_name" validate:"required,max=128"`
	DisplayOrder int    `json:"display_order"`
	IsTerminal   bool   `json:"is_terminal"`
	Color        string `json:"color" validate:"required,oneof=gray blue yellow green purple emerald red orange"`
	IsDefault    bool   `json:"is_default"`
}

// TransitionRuleRequest adds a rule between two statuses.
type TransitionRuleRequest struct {
	From string `json:"from" validate:"required"`
	To   string `json:"to" validate:"required"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ErrorResponse is the error envelope for all non-2xx responses.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// UnitDTO represents an inventory unit in API responses.
type UnitDTO struct {
	ID          string `json:"id"`
	Number      string `json:"number"`
	ProductID   string `json:"product_id"`
	Qty         string `json:"qty"`
	UoM         string `json:"uom"`
	Status      string `json:"status"`
	QAStatus    string `json:"qa_status"`
	LocationID  string `json:"location_id,omitempty"`
	WarehouseID string `json:"warehouse_id,omitempty"`
	BatchNumber string `json:"batch_number,omitempty"`
	ExpiryDate  string `json:"expiry_date,omitempty"`
	CreatedAt   string `json:"created_at"`
}

// RecordDTO represents a consumption record in API responses.
type RecordDTO struct {
	ID             string `json:"id"`
	WorkOrderID    string `json:"work_order_id"`
	RequirementID  string `json:"requirement_id"`
	UnitID         string `json:"unit_id"`
	UnitNumber     string `json:"unit_number"`
	Qty            string `json:"qty"`
	UoM            string `json:"uom"`
	Status         string `json:"status"`
	ConsumedAt     string `json:"consumed_at"`
	ConsumedBy     string `json:"consumed_by"`
	ReversalReason string `json:"reversal_reason,omitempty"`
	ReversalNotes  string `json:"reversal_notes,omitempty"`
	ReversedAt     string `json:"reversed_at,omitempty"`
	ReversedBy     string `json:"reversed_by,omitempty"`
}

// ReverseResponseDTO is the reversal result: the flipped record plus
// the unit's restored quantity and status for immediate display.
type ReverseResponseDTO struct {
	Record       RecordDTO `json:"record"`
	UnitQuantity string    `json:"unit_quantity"`
	UnitStatus   string    `json:"unit_status"`
}

// PageDTO wraps a paginated list.
type PageDTO struct {
	Items    any `json:"items"`
	Total    int `json:"total"`
	Page     int `json:"page"`
	PageSize int `json:"page_size"`
}

// TransitionResponseDTO reports an applied transition.
type TransitionResponseDTO struct {
	EntityID string `json:"entity_id"`
	Kind     string `json:"kind"`
	Status   string `json:"status"`
}

// StatusDefinitionDTO represents one status of a kind's table.
type StatusDefinitionDTO struct {
	Code         string `json:"code"`
	DisplayName  string `json:"display_name"`
	DisplayOrder int    `json:"display_order"`
	IsTerminal   bool   `json:"is_terminal"`
	Color        string `json:"color"`
	IsDefault    bool   `json:"is_default"`
	IsSystem     bool   `json:"is_system"`
}

// TransitionRuleDTO represents one allowed edge.
type TransitionRuleDTO struct {
	From     string `json:"from"`
	To       string `json:"to"`
	IsSystem bool   `json:"is_system"`
}

// KindTableDTO is a kind's full table: statuses plus rules.
type KindTableDTO struct {
	Kind     string                `json:"kind"`
	Fixed    bool                  `json:"fixed"`
	Statuses []StatusDefinitionDTO `json:"statuses"`
	Rules    []TransitionRuleDTO   `json:"rules"`
}

// AuditEntryDTO represents one audit trail entry.
type AuditEntryDTO struct {
	ID          string `json:"id"`
	SubjectType string `json:"subject_type"`
	SubjectID   string `json:"subject_id"`
	FieldName   string `json:"field_name"`
	OldValue    string `json:"old_value"`
	NewValue    string `json:"new_value"`
	Reason      string `json:"reason,omitempty"`
	ActorID     string `json:"actor_id"`
	ActorName   string `json:"actor_name,omitempty"`
	OccurredAt  string `json:"occurred_at"`
}

// =============================================================================
// CONVERTERS
// =============================================================================

func toUnitDTO(u *inventory.Unit) UnitDTO {
	dto := UnitDTO{
		ID:          u.ID,
		Number:      u.Number,
		ProductID:   u.ProductID,
		Qty:         u.Quantity.String(),
		UoM:         u.UoM,
		Status:      string(u.Status),
		QAStatus:    string(u.QAStatus),
		LocationID:  u.LocationID,
		WarehouseID: u.WarehouseID,
		BatchNumber: u.BatchNumber,
		CreatedAt:   u.CreatedAt.Format(time.RFC3339),
	}
	if u.ExpiryDate != nil {
		dto.ExpiryDate = u.ExpiryDate.Format("2006-01-02")
	}
	return dto
}

func toRecordDTO(rec *inventory.Record) RecordDTO {
	dto := RecordDTO{
		ID:             rec.ID,
		WorkOrderID:    rec.WorkOrderID,
		RequirementID:  rec.RequirementID,
		UnitID:         rec.UnitID,
		UnitNumber:     rec.UnitNumber,
		Qty:            rec.Qty.String(),
		UoM:            rec.UoM,
		Status:         string(rec.Status),
		ConsumedAt:     rec.ConsumedAt.Format(time.RFC3339),
		ConsumedBy:     rec.ConsumedBy,
		ReversalReason: string(rec.ReversalReason),
		ReversalNotes:  rec.ReversalNotes,
		ReversedBy:     rec.ReversedBy,
	}
	if rec.ReversedAt != nil {
		dto.ReversedAt = rec.ReversedAt.Format(time.RFC3339)
	}
	return dto
}

func toStatusDTOs(defs []statemachine.StatusDefinition) []StatusDefinitionDTO {
	dtos := make([]StatusDefinitionDTO, len(defs))
	for i, d := range defs {
		dtos[i] = StatusDefinitionDTO{
			Code:         string(d.Code),
			DisplayName:  d.DisplayName,
			DisplayOrder: d.DisplayOrder,
			IsTerminal:   d.IsTerminal,
			Color:        string(d.Color),
			IsDefault:    d.IsDefault,
			IsSystem:     d.IsSystem,
		}
	}
	return dtos
}

func toRuleDTOs(rules []statemachine.TransitionRule) []TransitionRuleDTO {
	dtos := make([]TransitionRuleDTO, len(rules))
	for i, r := range rules {
		dtos[i] = TransitionRuleDTO{
			From:     string(r.From),
			To:       string(r.To),
			IsSystem: r.IsSystem,
		}
	}
	return dtos
}

func toAuditDTOs(entries []statemachine.AuditEntry) []AuditEntryDTO {
	dtos := make([]AuditEntryDTO, len(entries))
	for i, e := range entries {
		dtos[i] = AuditEntryDTO{
			ID:          e.ID,
			SubjectType: e.SubjectType,
			SubjectID:   e.SubjectID,
			FieldName:   e.FieldName,
			OldValue:    e.OldValue,
			NewValue:    e.NewValue,
			Reason:      e.Reason,
			ActorID:     e.ActorID,
			OccurredAt:  e.OccurredAt.Format(time.RFC3339Nano),
		}
	}
	return dtos
}
