package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// ─── Request DTOs ────────────────────────────────────────────────────────────

type CreateLotRequest struct {
	LotNumber       string          `json:"lot_number"       validate:"required,max=100"`
	MaterialID      string          `json:"material_id"      validate:"required,uuid"`
	InitialQuantity decimal.Decimal `json:"initial_quantity" validate:"required"`
	UnitOfMeasure   string          `json:"unit_of_measure"  validate:"required,max=20"`
	SourceType      string          `json:"source_type"      validate:"required,oneof=PURCHASED MANUFACTURED RETURNED ADJUSTED TRANSFERRED"`
	SupplierID      *string         `json:"supplier_id"      validate:"omitempty,uuid"`
	ProductionDate  *time.Time      `json:"production_date"`
	ReceivedDate    *time.Time      `json:"received_date"`
	ExpiryDate      *time.Time      `json:"expiry_date"`
	RetestDate      *time.Time      `json:"retest_date"`
	Location        string          `json:"location"         validate:"max=100"`
	// ProductionOrderID is recorded on the creation record of manufactured lots.
	ProductionOrderID *string `json:"production_order_id" validate:"omitempty,uuid"`
}

type ReserveLotRequest struct {
	Quantity  decimal.Decimal `json:"quantity"  validate:"required"`
	Reference *string         `json:"reference" validate:"omitempty,max=100"`
}

type ConsumeLotRequest struct {
	Quantity          decimal.Decimal `json:"quantity"            validate:"required"`
	ProductionOrderID *string         `json:"production_order_id" validate:"omitempty,uuid"`
	OperationSequence *int            `json:"operation_sequence"  validate:"omitempty,min=0"`
}

type ReleaseLotRequest struct {
	Quantity decimal.Decimal `json:"quantity" validate:"required"`
}

type QualityStatusRequest struct {
	Status   string `json:"status"   validate:"required,oneof=PENDING RELEASED QUARANTINE REJECTED EXPIRED"`
	Override bool   `json:"override"`
	Reason   string `json:"reason"   validate:"max=500"`
}

// AdjustLotRequest corrects on-hand quantity after a cycle count. Delta may be negative.
type AdjustLotRequest struct {
	Delta  decimal.Decimal `json:"delta"  validate:"required"`
	Reason string          `json:"reason" validate:"required,max=500"`
}

type RelocateRequest struct {
	Location string `json:"location" validate:"required,max=100"`
}

type DeactivateRequest struct {
	Reason string `json:"reason" validate:"max=500"`
}

// ─── Filter / List ──────────────────────────────────────────────────────────

type LotFilter struct {
	MaterialID    string `form:"material_id"    validate:"omitempty,uuid"`
	QualityStatus string `form:"quality_status" validate:"omitempty,oneof=PENDING RELEASED QUARANTINE REJECTED EXPIRED"`
	Location      string `form:"location"`
	Active        string `form:"active"         validate:"omitempty,oneof=true false all"`
	Page          int    `form:"page,default=1"   validate:"min=1"`
	Limit         int    `form:"limit,default=50" validate:"min=1,max=500"`
}

// ─── Response DTOs ───────────────────────────────────────────────────────────

type LotResponse struct {
	ID                string          `json:"id"`
	OrganizationID    string          `json:"organization_id"`
	PlantID           *string         `json:"plant_id"`
	LotNumber         string          `json:"lot_number"`
	MaterialID        string          `json:"material_id"`
	InitialQuantity   decimal.Decimal `json:"initial_quantity"`
	CurrentQuantity   decimal.Decimal `json:"current_quantity"`
	ReservedQuantity  decimal.Decimal `json:"reserved_quantity"`
	AvailableQuantity decimal.Decimal `json:"available_quantity"`
	UnitOfMeasure     string          `json:"unit_of_measure"`
	SourceType        string          `json:"source_type"`
	SupplierID        *string         `json:"supplier_id"`
	ProductionDate    *string         `json:"production_date"`
	ReceivedDate      *string         `json:"received_date"`
	ExpiryDate        *string         `json:"expiry_date"`
	RetestDate        *string         `json:"retest_date"`
	QualityStatus     string          `json:"quality_status"`
	Location          string          `json:"location"`
	Active            bool            `json:"active"`
	IsDepleted        bool            `json:"is_depleted"`
	DepletedAt        *string         `json:"depleted_at"`
	Version           int             `json:"version"`
	CreatedAt         string          `json:"created_at"`
	UpdatedAt         string          `json:"updated_at"`
}

type LotListResponse struct {
	Data  []LotResponse `json:"data"`
	Total int64         `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}
