package model

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// RelationshipType is the semantic of a parent → child edge.
type RelationshipType string

const (
	RelConsumedIn    RelationshipType = "CONSUMED_IN"
	RelAssembledInto RelationshipType = "ASSEMBLED_INTO"
	RelPackagedWith  RelationshipType = "PACKAGED_WITH"
	RelDerivedFrom   RelationshipType = "DERIVED_FROM"
	RelSplitFrom     RelationshipType = "SPLIT_FROM"
	RelMergedInto    RelationshipType = "MERGED_INTO"
)

func (r RelationshipType) Valid() bool {
	switch r {
	case RelConsumedIn, RelAssembledInto, RelPackagedWith, RelDerivedFrom, RelSplitFrom, RelMergedInto:
		return true
	}
	return false
}

// CarriesQuantity reports whether the edge moves material, which is what
// recall quantity aggregation sums over.
func (r RelationshipType) CarriesQuantity() bool {
	return r == RelConsumedIn || r == RelAssembledInto
}

// TraceabilityLink is an immutable directed edge between two entities.
// Exactly one of ParentLotID/ParentSerialID is set, matching ParentType;
// likewise for the child. The table has no UPDATE or DELETE path.
type TraceabilityLink struct {
	ID                uuid.UUID        `gorm:"type:uuid;primaryKey;default:gen_random_uuid()"`
	OrganizationID    uuid.UUID        `gorm:"type:uuid;not null;index"`
	ParentType        EntityType       `gorm:"not null"`
	ParentLotID       *uuid.UUID       `gorm:"type:uuid;index"`
	ParentSerialID    *uuid.UUID       `gorm:"type:uuid;index"`
	ChildType         EntityType       `gorm:"not null"`
	ChildLotID        *uuid.UUID       `gorm:"type:uuid;index"`
	ChildSerialID     *uuid.UUID       `gorm:"type:uuid;index"`
	RelationshipType  RelationshipType `gorm:"not null"`
	QuantityUsed      *decimal.Decimal `gorm:"type:numeric(18,6)"`
	UnitOfMeasure     string
	ProductionOrderID *uuid.UUID `gorm:"type:uuid;index"`
	OperationSequence *int
	LinkedAt          time.Time         `gorm:"not null"`
	Metadata          datatypes.JSONMap `gorm:"type:jsonb"`
	CorrectsLinkID    *uuid.UUID        `gorm:"type:uuid"`
	CreatedBy         *uuid.UUID        `gorm:"type:uuid"`
	CreatedAt         time.Time
}

func (TraceabilityLink) TableName() string { return "traceability_links" }

// Parent returns the tagged parent reference.
func (l *TraceabilityLink) Parent() EntityRef {
	return pickRef(l.ParentType, l.ParentLotID, l.ParentSerialID)
}

// Child returns the tagged child reference.
func (l *TraceabilityLink) Child() EntityRef {
	return pickRef(l.ChildType, l.ChildLotID, l.ChildSerialID)
}

// SetParent writes ref into the parent discriminator and id columns.
func (l *TraceabilityLink) SetParent(ref EntityRef) {
	l.ParentType = ref.Type
	l.ParentLotID, l.ParentSerialID = splitRef(ref)
}

// SetChild writes ref into the child discriminator and id columns.
func (l *TraceabilityLink) SetChild(ref EntityRef) {
	l.ChildType = ref.Type
	l.ChildLotID, l.ChildSerialID = splitRef(ref)
}

func pickRef(t EntityType, lotID, serialID *uuid.UUID) EntityRef {
	switch {
	case t == EntityLot && lotID != nil:
		return LotRef(*lotID)
	case t == EntitySerial && serialID != nil:
		return SerialRef(*serialID)
	}
	return EntityRef{Type: t}
}

func splitRef(ref EntityRef) (lotID, serialID *uuid.UUID) {
	id := ref.ID
	if ref.Type == EntityLot {
		return &id, nil
	}
	return nil, &id
}
