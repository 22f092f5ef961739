package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// OperationType names the state change a GenealogyRecord captures.
type OperationType string

const (
	OpCreated     OperationType = "created"
	OpReceived    OperationType = "received"
	OpInspected   OperationType = "inspected"
	OpConsumed    OperationType = "consumed"
	OpProduced    OperationType = "produced"
	OpShipped     OperationType = "shipped"
	OpInstalled   OperationType = "installed"
	OpInService   OperationType = "in_service"
	OpReturned    OperationType = "returned"
	OpScrapped    OperationType = "scrapped"
	OpAdjusted    OperationType = "adjusted"
	OpRelocated   OperationType = "relocated"
	OpLinked      OperationType = "linked"
	OpDeactivated OperationType = "deactivated"
	OpReserved    OperationType = "reserved"
	OpRestocked   OperationType = "restocked"
)

var operationTypes = map[OperationType]bool{
	OpCreated: true, OpReceived: true, OpInspected: true, OpConsumed: true,
	OpProduced: true, OpShipped: true, OpInstalled: true, OpInService: true,
	OpReturned: true, OpScrapped: true, OpAdjusted: true, OpRelocated: true,
	OpLinked: true, OpDeactivated: true, OpReserved: true, OpRestocked: true,
}

func (o OperationType) Valid() bool { return operationTypes[o] }

// Sub-types recorded in metadata["sub_type"] for adjusted records.
const (
	SubTypeReservation = "reservation"
	SubTypeRelease     = "release"
	SubTypeQuantity    = "quantity"
)

// GenealogyRecord is one append-only audit entry. Before/after pairs are
// populated only for the dimensions the operation changed.
// Ordering within an entity is (OperationTimestamp, Sequence).
type GenealogyRecord struct {
	ID                 uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	Sequence           int64         `gorm:"autoIncrement;not null;->"`
	OrganizationID     uuid.UUID     `gorm:"type:uuid;not null"`
	EntityType         EntityType    `gorm:"not null"`
	EntityID           uuid.UUID     `gorm:"type:uuid;not null"`
	EntityIdentifier   string        `gorm:"not null"`
	OperationType      OperationType `gorm:"not null"`
	OperationTimestamp time.Time     `gorm:"not null"`
	ProductionOrderID  *uuid.UUID    `gorm:"type:uuid"`
	ReferenceID        *string
	QuantityBefore     *decimal.Decimal `gorm:"type:numeric(18,6)"`
	QuantityAfter      *decimal.Decimal `gorm:"type:numeric(18,6)"`
	ReservedBefore     *decimal.Decimal `gorm:"type:numeric(18,6)"`
	ReservedAfter      *decimal.Decimal `gorm:"type:numeric(18,6)"`
	StatusBefore       *string
	StatusAfter        *string
	LocationBefore     *string
	LocationAfter      *string
	Metadata           datatypes.JSONMap `gorm:"type:jsonb"`
	PerformedBy        *uuid.UUID        `gorm:"type:uuid"`
	CreatedAt          time.Time
}

func (GenealogyRecord) TableName() string { return "genealogy_records" }

func (r *GenealogyRecord) Ref() EntityRef {
	return EntityRef{Type: r.EntityType, ID: r.EntityID}
}

// SubType returns metadata["sub_type"] or "".
func (r *GenealogyRecord) SubType() string {
	if r.Metadata == nil {
		return ""
	}
	s, _ := r.Metadata["sub_type"].(string)
	return s
}

// EntityState is the folded view of an entity at a point in time.
type EntityState struct {
	Ref              EntityRef        `json:"-"`
	EntityType       EntityType       `json:"entity_type"`
	EntityID         uuid.UUID        `json:"entity_id"`
	Identifier       string           `json:"identifier"`
	At               time.Time        `json:"at"`
	Quantity         *decimal.Decimal `json:"quantity,omitempty"`
	ReservedQuantity *decimal.Decimal `json:"reserved_quantity,omitempty"`
	Status           *string          `json:"status,omitempty"`
	Location         *string          `json:"location,omitempty"`
	RecordsApplied   int              `json:"records_applied"`
	LastOperation    OperationType    `json:"last_operation,omitempty"`
}

// Apply folds one record into the state. Only populated after-values move it.
func (s *EntityState) Apply(r GenealogyRecord) {
	if r.QuantityAfter != nil {
		q := *r.QuantityAfter
		s.Quantity = &q
	}
	if r.ReservedAfter != nil {
		q := *r.ReservedAfter
		s.ReservedQuantity = &q
	}
	if r.StatusAfter != nil {
		v := *r.StatusAfter
		s.Status = &v
	}
	if r.LocationAfter != nil {
		v := *r.LocationAfter
		s.Location = &v
	}
	if s.Identifier == "" {
		s.Identifier = r.EntityIdentifier
	}
	s.LastOperation = r.OperationType
	s.RecordsApplied++
}
