package dto

import (
	"time"

	"github.com/shopspring/decimal"
)

// EntityRefRequest is the tagged "LOT or SERIAL" reference used in request bodies.
type EntityRefRequest struct {
	Type string `json:"type" validate:"required,oneof=LOT SERIAL"`
	ID   string `json:"id"   validate:"required,uuid"`
}

type CreateLinkRequest struct {
	Parent            EntityRefRequest `json:"parent"             validate:"required"`
	Child             EntityRefRequest `json:"child"              validate:"required"`
	RelationshipType  string           `json:"relationship_type"  validate:"required"`
	QuantityUsed      *decimal.Decimal `json:"quantity_used"`
	UnitOfMeasure     string           `json:"unit_of_measure"    validate:"max=20"`
	ProductionOrderID *string          `json:"production_order_id" validate:"omitempty,uuid"`
	OperationSequence *int             `json:"operation_sequence" validate:"omitempty,min=0"`
	LinkedAt          *time.Time       `json:"linked_at"`
	Metadata          map[string]any   `json:"metadata"`
	// CorrectsLinkID marks this link as a compensating correction of an earlier one.
	CorrectsLinkID *string `json:"corrects_link_id" validate:"omitempty,uuid"`
}

type LinkFilter struct {
	EntityType string `form:"entity_type" validate:"required,oneof=LOT SERIAL"`
	EntityID   string `form:"entity_id"   validate:"required,uuid"`
	Direction  string `form:"direction,default=both" validate:"oneof=downstream upstream both"`
}

type EntityRefResponse struct {
	Type string `json:"type"`
	ID   string `json:"id"`
}

type LinkResponse struct {
	ID                string            `json:"id"`
	OrganizationID    string            `json:"organization_id"`
	Parent            EntityRefResponse `json:"parent"`
	Child             EntityRefResponse `json:"child"`
	RelationshipType  string            `json:"relationship_type"`
	QuantityUsed      *decimal.Decimal  `json:"quantity_used"`
	UnitOfMeasure     string            `json:"unit_of_measure"`
	ProductionOrderID *string           `json:"production_order_id"`
	OperationSequence *int              `json:"operation_sequence"`
	LinkedAt          string            `json:"linked_at"`
	Metadata          map[string]any    `json:"metadata"`
	CorrectsLinkID    *string           `json:"corrects_link_id"`
	CreatedBy         *string           `json:"created_by"`
}
