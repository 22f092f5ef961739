package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// SourceType classifies how a lot entered the plant.
type SourceType string

const (
	SourcePurchased    SourceType = "PURCHASED"
	SourceManufactured SourceType = "MANUFACTURED"
	SourceReturned     SourceType = "RETURNED"
	SourceAdjusted     SourceType = "ADJUSTED"
	SourceTransferred  SourceType = "TRANSFERRED"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourcePurchased, SourceManufactured, SourceReturned, SourceAdjusted, SourceTransferred:
		return true
	}
	return false
}

// QualityStatus is shared by lots and serials.
type QualityStatus string

const (
	QualityPending    QualityStatus = "PENDING"
	QualityReleased   QualityStatus = "RELEASED"
	QualityQuarantine QualityStatus = "QUARANTINE"
	QualityRejected   QualityStatus = "REJECTED"
	QualityExpired    QualityStatus = "EXPIRED"
)

func (s QualityStatus) Valid() bool {
	switch s {
	case QualityPending, QualityReleased, QualityQuarantine, QualityRejected, QualityExpired:
		return true
	}
	return false
}

// qualityTransitions lists the forward moves allowed without override.
// REJECTED and EXPIRED are terminal.
var qualityTransitions = map[QualityStatus][]QualityStatus{
	QualityPending:    {QualityReleased, QualityQuarantine, QualityRejected, QualityExpired},
	QualityQuarantine: {QualityReleased, QualityRejected, QualityExpired},
	QualityReleased:   {QualityQuarantine, QualityRejected, QualityExpired},
}

// CanTransitionTo reports whether s → next is allowed by the quality table.
func (s QualityStatus) CanTransitionTo(next QualityStatus) bool {
	for _, allowed := range qualityTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// BlocksConsumption reports whether the status forbids new reservations.
func (s QualityStatus) BlocksConsumption() bool {
	return s == QualityRejected || s == QualityExpired
}

// LotBatch is a quantity of fungible material sharing one lot number.
// Invariant: 0 <= ReservedQuantity <= CurrentQuantity <= InitialQuantity.
type LotBatch struct {
	ID               uuid.UUID       `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_lots_org_number"`
	PlantID          *uuid.UUID      `gorm:"type:uuid"`
	LotNumber        string          `gorm:"not null;uniqueIndex:idx_lots_org_number"`
	MaterialID       uuid.UUID       `gorm:"type:uuid;not null;index"`
	InitialQuantity  decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	CurrentQuantity  decimal.Decimal `gorm:"type:numeric(18,6);not null"`
	ReservedQuantity decimal.Decimal `gorm:"type:numeric(18,6);not null;default:0"`
	UnitOfMeasure    string          `gorm:"not null"`
	SourceType       SourceType      `gorm:"not null"`
	SupplierID       *uuid.UUID      `gorm:"type:uuid"`
	ProductionDate   *time.Time
	ReceivedDate     *time.Time
	ExpiryDate       *time.Time
	RetestDate       *time.Time
	QualityStatus    QualityStatus `gorm:"not null;default:'PENDING'"`
	Location         string
	Active           bool `gorm:"not null;default:true"`
	Version          int  `gorm:"not null;default:1"`
	DepletedAt       *time.Time
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// TableName overrides GORM's default pluralization (lot_batches → lots).
func (LotBatch) TableName() string { return "lots" }

// IsDepleted is computed, never stored.
func (l *LotBatch) IsDepleted() bool {
	return l.CurrentQuantity.Sign() <= 0
}

// Available is the quantity that can still be reserved.
func (l *LotBatch) Available() decimal.Decimal {
	return l.CurrentQuantity.Sub(l.ReservedQuantity)
}

// CheckInvariant reports whether the quantity ordering holds.
func (l *LotBatch) CheckInvariant() bool {
	return l.ReservedQuantity.Sign() >= 0 &&
		l.ReservedQuantity.LessThanOrEqual(l.CurrentQuantity) &&
		l.CurrentQuantity.LessThanOrEqual(l.InitialQuantity)
}

func (l *LotBatch) Ref() EntityRef { return LotRef(l.ID) }
