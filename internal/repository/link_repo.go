package repository

import (
	"context"

	"traceability/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LinkRepository is insert-and-read only. Links are immutable; there is no
// Update or Delete.
type LinkRepository interface {
	CreateTx(tx *gorm.DB, link *model.TraceabilityLink) error
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.TraceabilityLink, error)
	FindByIDTx(tx *gorm.DB, orgID, id uuid.UUID) (*model.TraceabilityLink, error)
	ListByEntity(ctx context.Context, orgID uuid.UUID, ref model.EntityRef, dir model.Direction) ([]model.TraceabilityLink, error)
	DB() *gorm.DB
}

type linkRepo struct{ db *gorm.DB }

func NewLinkRepository(db *gorm.DB) LinkRepository { return &linkRepo{db: db} }

func (r *linkRepo) DB() *gorm.DB { return r.db }

func (r *linkRepo) CreateTx(tx *gorm.DB, link *model.TraceabilityLink) error {
	return tx.Create(link).Error
}

func (r *linkRepo) FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.TraceabilityLink, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), orgID, id)
}

func (r *linkRepo) FindByIDTx(tx *gorm.DB, orgID, id uuid.UUID) (*model.TraceabilityLink, error) {
	var l model.TraceabilityLink
	if err := tx.Where("organization_id = ? AND id = ?", orgID, id).First(&l).Error; err != nil {
		return nil, notFound(err, "link "+id.String())
	}
	return &l, nil
}

func (r *linkRepo) ListByEntity(ctx context.Context, orgID uuid.UUID, ref model.EntityRef, dir model.Direction) ([]model.TraceabilityLink, error) {
	refs := []model.EntityRef{ref}
	q := r.db.WithContext(ctx).Where("organization_id = ?", orgID)
	switch dir {
	case model.Downstream:
		q = q.Where(endpointCondition(r.db, "parent", refs))
	case model.Upstream:
		q = q.Where(endpointCondition(r.db, "child", refs))
	default:
		q = q.Where(endpointCondition(r.db, "parent", refs).Or(endpointCondition(r.db, "child", refs)))
	}
	var links []model.TraceabilityLink
	err := q.Order("linked_at ASC, id ASC").Find(&links).Error
	return links, err
}

// endpointCondition builds "(<side>_lot_id IN lots OR <side>_serial_id IN serials)"
// as a grouped gorm condition. side is "parent" or "child".
func endpointCondition(db *gorm.DB, side string, refs []model.EntityRef) *gorm.DB {
	var lotIDs, serialIDs []uuid.UUID
	for _, ref := range refs {
		if ref.Type == model.EntityLot {
			lotIDs = append(lotIDs, ref.ID)
		} else {
			serialIDs = append(serialIDs, ref.ID)
		}
	}

	cond := db.Session(&gorm.Session{NewDB: true})
	switch {
	case len(lotIDs) > 0 && len(serialIDs) > 0:
		cond = cond.Where(side+"_lot_id IN ?", lotIDs).Or(side+"_serial_id IN ?", serialIDs)
	case len(lotIDs) > 0:
		cond = cond.Where(side+"_lot_id IN ?", lotIDs)
	case len(serialIDs) > 0:
		cond = cond.Where(side+"_serial_id IN ?", serialIDs)
	default:
		cond = cond.Where("1 = 0")
	}
	return cond
}
