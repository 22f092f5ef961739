package repository

import (
	"context"
	"time"

	"traceability/internal/apperr"
	"traceability/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// LotFilter narrows List. Active: "" = active only, "false" = inactive, "all".
type LotFilter struct {
	MaterialID    *uuid.UUID
	QualityStatus string
	Location      string
	Active        string
	Page          int
	Limit         int
}

// LotRepository is the data access contract of the lot ledger. Every method
// takes the organization id and filters on it.
type LotRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.LotBatch, error)
	FindByLotNumber(ctx context.Context, orgID uuid.UUID, lotNumber string) (*model.LotBatch, error)
	FindByLotNumbers(ctx context.Context, orgID uuid.UUID, lotNumbers []string) ([]model.LotBatch, error)
	List(ctx context.Context, orgID uuid.UUID, filter LotFilter) ([]model.LotBatch, int64, error)

	// Used inside transactions; callers must pass the tx instance
	CreateTx(tx *gorm.DB, lot *model.LotBatch) error
	FindByIDTx(tx *gorm.DB, orgID, id uuid.UUID) (*model.LotBatch, error)

	// UpdateVersionedTx writes every mutable column of lot guarded by its
	// current Version and bumps Version on success. Zero affected rows means
	// another writer got there first: apperr.ErrConcurrencyConflict.
	UpdateVersionedTx(tx *gorm.DB, lot *model.LotBatch) error

	// DB exposes the underlying *gorm.DB so services can open transactions.
	DB() *gorm.DB
}

type lotRepo struct{ db *gorm.DB }

func NewLotRepository(db *gorm.DB) LotRepository { return &lotRepo{db: db} }

func (r *lotRepo) DB() *gorm.DB { return r.db }

func (r *lotRepo) FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.LotBatch, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), orgID, id)
}

func (r *lotRepo) FindByIDTx(tx *gorm.DB, orgID, id uuid.UUID) (*model.LotBatch, error) {
	var lot model.LotBatch
	err := tx.Where("organization_id = ? AND id = ?", orgID, id).First(&lot).Error
	if err != nil {
		return nil, notFound(err, "lot "+id.String())
	}
	return &lot, nil
}

func (r *lotRepo) FindByLotNumber(ctx context.Context, orgID uuid.UUID, lotNumber string) (*model.LotBatch, error) {
	var lot model.LotBatch
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND lot_number = ?", orgID, lotNumber).
		First(&lot).Error
	if err != nil {
		return nil, notFound(err, "lot "+lotNumber)
	}
	return &lot, nil
}

func (r *lotRepo) FindByLotNumbers(ctx context.Context, orgID uuid.UUID, lotNumbers []string) ([]model.LotBatch, error) {
	if len(lotNumbers) == 0 {
		return nil, nil
	}
	var lots []model.LotBatch
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND lot_number IN ?", orgID, lotNumbers).
		Order("lot_number ASC").
		Find(&lots).Error
	return lots, err
}

func (r *lotRepo) List(ctx context.Context, orgID uuid.UUID, filter LotFilter) ([]model.LotBatch, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.LotBatch{}).Where("organization_id = ?", orgID)

	switch filter.Active {
	case "false":
		q = q.Where("active = false")
	case "all":
	default:
		q = q.Where("active = true")
	}
	if filter.MaterialID != nil {
		q = q.Where("material_id = ?", *filter.MaterialID)
	}
	if filter.QualityStatus != "" {
		q = q.Where("quality_status = ?", filter.QualityStatus)
	}
	if filter.Location != "" {
		q = q.Where("location = ?", filter.Location)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := clampPage(filter.Page, filter.Limit)
	var lots []model.LotBatch
	err := q.Order("created_at DESC, id ASC").Offset(offset).Limit(limit).Find(&lots).Error
	return lots, total, err
}

func (r *lotRepo) CreateTx(tx *gorm.DB, lot *model.LotBatch) error {
	if err := tx.Create(lot).Error; err != nil {
		if isDuplicate(err) {
			return apperr.DuplicateLotNumber(lot.LotNumber)
		}
		return err
	}
	return nil
}

func (r *lotRepo) UpdateVersionedTx(tx *gorm.DB, lot *model.LotBatch) error {
	now := time.Now().UTC()
	res := tx.Model(&model.LotBatch{}).
		Where("id = ? AND organization_id = ? AND version = ?", lot.ID, lot.OrganizationID, lot.Version).
		Updates(map[string]any{
			"current_quantity":  lot.CurrentQuantity,
			"reserved_quantity": lot.ReservedQuantity,
			"quality_status":    lot.QualityStatus,
			"location":          lot.Location,
			"active":            lot.Active,
			"depleted_at":       lot.DepletedAt,
			"version":           gorm.Expr("version + 1"),
			"updated_at":        now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrConcurrencyConflict
	}
	lot.Version++
	lot.UpdatedAt = now
	return nil
}
