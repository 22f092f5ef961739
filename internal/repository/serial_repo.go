package repository

import (
	"context"
	"time"

	"traceability/internal/apperr"
	"traceability/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type SerialFilter struct {
	MaterialID *uuid.UUID
	LotID      *uuid.UUID
	CustomerID *uuid.UUID
	Status     string
	Page       int
	Limit      int
}

type SerialRepository interface {
	FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.SerialUnit, error)
	FindBySerialNumber(ctx context.Context, orgID uuid.UUID, serialNumber string) (*model.SerialUnit, error)
	List(ctx context.Context, orgID uuid.UUID, filter SerialFilter) ([]model.SerialUnit, int64, error)

	CreateTx(tx *gorm.DB, s *model.SerialUnit) error
	FindByIDTx(tx *gorm.DB, orgID, id uuid.UUID) (*model.SerialUnit, error)
	// UpdateVersionedTx has the same contract as LotRepository.UpdateVersionedTx.
	UpdateVersionedTx(tx *gorm.DB, s *model.SerialUnit) error

	DB() *gorm.DB
}

type serialRepo struct{ db *gorm.DB }

func NewSerialRepository(db *gorm.DB) SerialRepository { return &serialRepo{db: db} }

func (r *serialRepo) DB() *gorm.DB { return r.db }

func (r *serialRepo) FindByID(ctx context.Context, orgID, id uuid.UUID) (*model.SerialUnit, error) {
	return r.FindByIDTx(r.db.WithContext(ctx), orgID, id)
}

func (r *serialRepo) FindByIDTx(tx *gorm.DB, orgID, id uuid.UUID) (*model.SerialUnit, error) {
	var s model.SerialUnit
	err := tx.Where("organization_id = ? AND id = ?", orgID, id).First(&s).Error
	if err != nil {
		return nil, notFound(err, "serial "+id.String())
	}
	return &s, nil
}

func (r *serialRepo) FindBySerialNumber(ctx context.Context, orgID uuid.UUID, serialNumber string) (*model.SerialUnit, error) {
	var s model.SerialUnit
	err := r.db.WithContext(ctx).
		Where("organization_id = ? AND serial_number = ?", orgID, serialNumber).
		First(&s).Error
	if err != nil {
		return nil, notFound(err, "serial "+serialNumber)
	}
	return &s, nil
}

func (r *serialRepo) List(ctx context.Context, orgID uuid.UUID, filter SerialFilter) ([]model.SerialUnit, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.SerialUnit{}).
		Where("organization_id = ? AND active = true", orgID)
	if filter.MaterialID != nil {
		q = q.Where("material_id = ?", *filter.MaterialID)
	}
	if filter.LotID != nil {
		q = q.Where("lot_id = ?", *filter.LotID)
	}
	if filter.CustomerID != nil {
		q = q.Where("customer_id = ?", *filter.CustomerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	offset, limit := clampPage(filter.Page, filter.Limit)
	var serials []model.SerialUnit
	err := q.Order("serial_number ASC").Offset(offset).Limit(limit).Find(&serials).Error
	return serials, total, err
}

func (r *serialRepo) CreateTx(tx *gorm.DB, s *model.SerialUnit) error {
	if err := tx.Create(s).Error; err != nil {
		if isDuplicate(err) {
			return apperr.DuplicateSerialNumber(s.SerialNumber)
		}
		return err
	}
	return nil
}

func (r *serialRepo) UpdateVersionedTx(tx *gorm.DB, s *model.SerialUnit) error {
	now := time.Now().UTC()
	res := tx.Model(&model.SerialUnit{}).
		Where("id = ? AND organization_id = ? AND version = ?", s.ID, s.OrganizationID, s.Version).
		Updates(map[string]any{
			"status":          s.Status,
			"quality_status":  s.QualityStatus,
			"location":        s.Location,
			"customer_id":     s.CustomerID,
			"shipment_id":     s.ShipmentID,
			"shipped_date":    s.ShippedDate,
			"installed_date":  s.InstalledDate,
			"warranty_expiry": s.WarrantyExpiry,
			"active":          s.Active,
			"version":         gorm.Expr("version + 1"),
			"updated_at":      now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrConcurrencyConflict
	}
	s.Version++
	s.UpdatedAt = now
	return nil
}
