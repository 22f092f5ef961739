package model

import (
	"time"

	"github.com/google/uuid"
)

// SerialStatus is the lifecycle state of a serialized unit.
type SerialStatus string

const (
	SerialInStock   SerialStatus = "IN_STOCK"
	SerialReserved  SerialStatus = "RESERVED"
	SerialShipped   SerialStatus = "SHIPPED"
	SerialInstalled SerialStatus = "INSTALLED"
	SerialInService SerialStatus = "IN_SERVICE"
	SerialScrapped  SerialStatus = "SCRAPPED"
	SerialReturned  SerialStatus = "RETURNED"
)

// serialTransitions is the complete state machine. Anything not listed fails
// with InvalidTransition. SCRAPPED has no outgoing edges.
var serialTransitions = map[SerialStatus][]SerialStatus{
	SerialInStock:   {SerialReserved, SerialScrapped},
	SerialReserved:  {SerialShipped, SerialScrapped},
	SerialShipped:   {SerialInstalled, SerialReturned, SerialScrapped},
	SerialInstalled: {SerialInService, SerialReturned, SerialScrapped},
	SerialInService: {SerialScrapped},
	SerialReturned:  {SerialInStock, SerialScrapped},
}

func (s SerialStatus) Valid() bool {
	_, ok := serialTransitions[s]
	return ok || s == SerialScrapped
}

func (s SerialStatus) IsTerminal() bool { return s == SerialScrapped }

// CanTransitionTo reports whether s → next is an edge of the state machine.
func (s SerialStatus) CanTransitionTo(next SerialStatus) bool {
	for _, allowed := range serialTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// AllSerialStatuses is used by tests to enumerate the state space.
var AllSerialStatuses = []SerialStatus{
	SerialInStock, SerialReserved, SerialShipped, SerialInstalled,
	SerialInService, SerialScrapped, SerialReturned,
}

// SerialUnit represents exactly one physical unit.
type SerialUnit struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID    uuid.UUID     `gorm:"type:uuid;not null;uniqueIndex:idx_serials_org_number"`
	PlantID           *uuid.UUID    `gorm:"type:uuid"`
	SerialNumber      string        `gorm:"not null;uniqueIndex:idx_serials_org_number"`
	MaterialID        uuid.UUID     `gorm:"type:uuid;not null;index"`
	LotID             *uuid.UUID    `gorm:"type:uuid;index"`
	ProductionOrderID *uuid.UUID    `gorm:"type:uuid"`
	Status            SerialStatus  `gorm:"not null;default:'IN_STOCK'"`
	QualityStatus     QualityStatus `gorm:"not null;default:'PENDING'"`
	Location          string
	CustomerID        *uuid.UUID `gorm:"type:uuid;index"`
	ShipmentID        *uuid.UUID `gorm:"type:uuid"`
	ShippedDate       *time.Time
	InstalledDate     *time.Time
	WarrantyExpiry    *time.Time
	Active            bool `gorm:"not null;default:true"`
	Version           int  `gorm:"not null;default:1"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

func (SerialUnit) TableName() string { return "serials" }

func (s *SerialUnit) Ref() EntityRef { return SerialRef(s.ID) }
