package repository

import (
	"context"
	"database/sql"

	"traceability/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GraphSnapshot is a consistent, tenant-bound, read-only view of the link
// graph and the entities it references.
type GraphSnapshot interface {
	// Entities resolves refs to descriptive info. Unknown refs are absent from the map.
	Entities(refs []model.EntityRef) (map[model.EntityRef]model.EntityInfo, error)
	// Edges returns every link touching refs on the side selected by dir:
	// Downstream → refs are parents, Upstream → refs are children.
	// Results are ordered by linked_at, id.
	Edges(refs []model.EntityRef, dir model.Direction) ([]model.TraceabilityLink, error)
	// ShippedRecords returns the "shipped" genealogy records of refs.
	ShippedRecords(refs []model.EntityRef) ([]model.GenealogyRecord, error)
}

// GraphReader opens snapshots for the traversal engine.
type GraphReader interface {
	ReadSnapshot(ctx context.Context, orgID uuid.UUID, fn func(GraphSnapshot) error) error
}

type graphReader struct{ db *gorm.DB }

// NewGraphReader may be given a replica connection; it never writes.
func NewGraphReader(db *gorm.DB) GraphReader { return &graphReader{db: db} }

// ReadSnapshot runs fn inside a read-only REPEATABLE READ transaction so every
// query of one traversal sees the same point in time without taking locks.
func (g *graphReader) ReadSnapshot(ctx context.Context, orgID uuid.UUID, fn func(GraphSnapshot) error) error {
	return g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormSnapshot{tx: tx, orgID: orgID})
	}, &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true})
}

type gormSnapshot struct {
	tx    *gorm.DB
	orgID uuid.UUID
}

func splitRefs(refs []model.EntityRef) (lotIDs, serialIDs []uuid.UUID) {
	for _, ref := range refs {
		switch ref.Type {
		case model.EntityLot:
			lotIDs = append(lotIDs, ref.ID)
		case model.EntitySerial:
			serialIDs = append(serialIDs, ref.ID)
		}
	}
	return lotIDs, serialIDs
}

func (s *gormSnapshot) Entities(refs []model.EntityRef) (map[model.EntityRef]model.EntityInfo, error) {
	out := make(map[model.EntityRef]model.EntityInfo, len(refs))
	lotIDs, serialIDs := splitRefs(refs)

	if len(lotIDs) > 0 {
		var lots []model.LotBatch
		if err := s.tx.Where("organization_id = ? AND id IN ?", s.orgID, lotIDs).Find(&lots).Error; err != nil {
			return nil, err
		}
		for _, l := range lots {
			out[l.Ref()] = model.EntityInfo{
				Ref:        l.Ref(),
				Identifier: l.LotNumber,
				MaterialID: l.MaterialID,
				Active:     l.Active,
				Status:     string(l.QualityStatus),
			}
		}
	}

	if len(serialIDs) > 0 {
		var serials []model.SerialUnit
		if err := s.tx.Where("organization_id = ? AND id IN ?", s.orgID, serialIDs).Find(&serials).Error; err != nil {
			return nil, err
		}
		for _, su := range serials {
			out[su.Ref()] = model.EntityInfo{
				Ref:        su.Ref(),
				Identifier: su.SerialNumber,
				MaterialID: su.MaterialID,
				Active:     su.Active,
				CustomerID: su.CustomerID,
				ShipmentID: su.ShipmentID,
				Status:     string(su.Status),
			}
		}
	}
	return out, nil
}

func (s *gormSnapshot) Edges(refs []model.EntityRef, dir model.Direction) ([]model.TraceabilityLink, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	side := "parent"
	if dir == model.Upstream {
		side = "child"
	}
	var links []model.TraceabilityLink
	err := s.tx.Where("organization_id = ?", s.orgID).
		Where(endpointCondition(s.tx, side, refs)).
		Order("linked_at ASC, id ASC").
		Find(&links).Error
	return links, err
}

func (s *gormSnapshot) ShippedRecords(refs []model.EntityRef) ([]model.GenealogyRecord, error) {
	if len(refs) == 0 {
		return nil, nil
	}
	ids := make([]uuid.UUID, 0, len(refs))
	for _, ref := range refs {
		ids = append(ids, ref.ID)
	}
	var recs []model.GenealogyRecord
	err := s.tx.Where("organization_id = ? AND operation_type = ? AND entity_id IN ?", s.orgID, model.OpShipped, ids).
		Order("operation_timestamp ASC, sequence ASC").
		Find(&recs).Error
	return recs, err
}
