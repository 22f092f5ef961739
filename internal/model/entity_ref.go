package model

import (
	"fmt"

	"github.com/google/uuid"
)

// EntityType discriminates the two kinds of traceable entity.
type EntityType string

const (
	EntityLot    EntityType = "LOT"
	EntitySerial EntityType = "SERIAL"
)

func (t EntityType) Valid() bool {
	return t == EntityLot || t == EntitySerial
}

// EntityRef identifies a lot or a serial by type and id.
// It is comparable and used as the visited-set key during traversal.
type EntityRef struct {
	Type EntityType
	ID   uuid.UUID
}

func LotRef(id uuid.UUID) EntityRef    { return EntityRef{Type: EntityLot, ID: id} }
func SerialRef(id uuid.UUID) EntityRef { return EntityRef{Type: EntitySerial, ID: id} }

func (r EntityRef) String() string {
	return fmt.Sprintf("%s:%s", r.Type, r.ID)
}

// EntityInfo is the descriptive projection of a lot or serial used by the
// link graph and traversal output.
type EntityInfo struct {
	Ref        EntityRef
	Identifier string // lot number or serial number
	MaterialID uuid.UUID
	Active     bool

	// Serial-only descriptive fields used by recall classification.
	CustomerID *uuid.UUID
	ShipmentID *uuid.UUID
	Status     string
}

// Direction selects which end of a link a traversal follows.
type Direction string

const (
	// Downstream follows parent → child (where-used).
	Downstream Direction = "downstream"
	// Upstream follows child → parent (where-from).
	Upstream Direction = "upstream"
	// Both is only meaningful for link listing.
	Both Direction = "both"
)

func (d Direction) Valid() bool {
	return d == Downstream || d == Upstream || d == Both
}
