package repository

import (
	"context"
	"time"

	"traceability/internal/model"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// HistoryQuery selects the audit trail of one entity.
type HistoryQuery struct {
	OrganizationID uuid.UUID
	Ref            model.EntityRef
	From           *time.Time // inclusive
	To             *time.Time // inclusive
	Operations     []model.OperationType
	Descending     bool
}

// HistoryCursor is the keyset position of the last row of a page.
type HistoryCursor struct {
	Timestamp time.Time
	Sequence  int64
}

type GenealogyRepository interface {
	AppendTx(tx *gorm.DB, rec *model.GenealogyRecord) error
	// Page returns up to limit records strictly after cursor (nil = from the start)
	// in the order requested by q.
	Page(ctx context.Context, q HistoryQuery, after *HistoryCursor, limit int) ([]model.GenealogyRecord, error)
}

type genealogyRepo struct{ db *gorm.DB }

func NewGenealogyRepository(db *gorm.DB) GenealogyRepository { return &genealogyRepo{db: db} }

func (r *genealogyRepo) AppendTx(tx *gorm.DB, rec *model.GenealogyRecord) error {
	return tx.Create(rec).Error
}

func (r *genealogyRepo) Page(ctx context.Context, q HistoryQuery, after *HistoryCursor, limit int) ([]model.GenealogyRecord, error) {
	db := r.db.WithContext(ctx).
		Where("organization_id = ? AND entity_type = ? AND entity_id = ?", q.OrganizationID, q.Ref.Type, q.Ref.ID)

	if q.From != nil {
		db = db.Where("operation_timestamp >= ?", *q.From)
	}
	if q.To != nil {
		db = db.Where("operation_timestamp <= ?", *q.To)
	}
	if len(q.Operations) > 0 {
		db = db.Where("operation_type IN ?", q.Operations)
	}

	order := "operation_timestamp ASC, sequence ASC"
	if after != nil {
		if q.Descending {
			db = db.Where("(operation_timestamp, sequence) < (?, ?)", after.Timestamp, after.Sequence)
		} else {
			db = db.Where("(operation_timestamp, sequence) > (?, ?)", after.Timestamp, after.Sequence)
		}
	}
	if q.Descending {
		order = "operation_timestamp DESC, sequence DESC"
	}

	var recs []model.GenealogyRecord
	err := db.Order(order).Limit(limit).Find(&recs).Error
	return recs, err
}
