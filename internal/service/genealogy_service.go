package service

import (
	"context"
	"iter"
	"time"

	"traceability/internal/apperr"
	"traceability/internal/dto"
	"traceability/internal/model"
	"traceability/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const historyPageSize = 200

// GenealogyService is the append-only audit log. The lot ledger, serial
// registry and link graph are its only writers.
type GenealogyService interface {
	// AppendTx inserts rec inside the caller's transaction.
	AppendTx(tx *gorm.DB, rec *model.GenealogyRecord) error
	// History returns a lazy, restartable sequence: every range over it
	// re-runs the query from the first page.
	History(ctx context.Context, q repository.HistoryQuery) iter.Seq2[model.GenealogyRecord, error]
	// StateAt folds the history of an entity up to and including at.
	StateAt(ctx context.Context, orgID uuid.UUID, ref model.EntityRef, at time.Time) (*model.EntityState, error)
}

type genealogyService struct {
	repo repository.GenealogyRepository
}

func NewGenealogyService(repo repository.GenealogyRepository) GenealogyService {
	return &genealogyService{repo: repo}
}

func (s *genealogyService) AppendTx(tx *gorm.DB, rec *model.GenealogyRecord) error {
	if err := validateRecord(rec); err != nil {
		return err
	}
	if rec.ID == uuid.Nil {
		rec.ID = uuid.New()
	}
	if rec.OperationTimestamp.IsZero() {
		rec.OperationTimestamp = now()
	}
	return s.repo.AppendTx(tx, rec)
}

func validateRecord(rec *model.GenealogyRecord) error {
	switch {
	case rec.OrganizationID == uuid.Nil:
		return apperr.Validation("genealogy record: organization_id is required")
	case !rec.EntityType.Valid():
		return apperr.Validation("genealogy record: invalid entity_type %q", rec.EntityType)
	case rec.EntityID == uuid.Nil:
		return apperr.Validation("genealogy record: entity_id is required")
	case rec.EntityIdentifier == "":
		return apperr.Validation("genealogy record: entity_identifier is required")
	case rec.OperationType == "":
		return apperr.Validation("genealogy record: operation_type is required")
	}
	return nil
}

func (s *genealogyService) History(ctx context.Context, q repository.HistoryQuery) iter.Seq2[model.GenealogyRecord, error] {
	return func(yield func(model.GenealogyRecord, error) bool) {
		var cursor *repository.HistoryCursor
		for {
			page, err := s.repo.Page(ctx, q, cursor, historyPageSize)
			if err != nil {
				yield(model.GenealogyRecord{}, err)
				return
			}
			for _, rec := range page {
				if !yield(rec, nil) {
					return
				}
			}
			if len(page) < historyPageSize {
				return
			}
			last := page[len(page)-1]
			cursor = &repository.HistoryCursor{Timestamp: last.OperationTimestamp, Sequence: last.Sequence}
		}
	}
}

func (s *genealogyService) StateAt(ctx context.Context, orgID uuid.UUID, ref model.EntityRef, at time.Time) (*model.EntityState, error) {
	if !ref.Type.Valid() {
		return nil, apperr.Validation("invalid entity_type %q", ref.Type)
	}
	state := &model.EntityState{Ref: ref, EntityType: ref.Type, EntityID: ref.ID, At: at}
	q := repository.HistoryQuery{OrganizationID: orgID, Ref: ref, To: &at}
	for rec, err := range s.History(ctx, q) {
		if err != nil {
			return nil, err
		}
		state.Apply(rec)
	}
	if state.RecordsApplied == 0 {
		return nil, apperr.NotFound("no history for %s at %s", ref, at.Format(time.RFC3339))
	}
	return state, nil
}

// ── Mapping ───────────────────────────────────────────────────────────────────

func toRecordResponse(r model.GenealogyRecord) dto.GenealogyRecordResponse {
	return dto.GenealogyRecordResponse{
		ID:                 r.ID.String(),
		Sequence:           r.Sequence,
		EntityType:         string(r.EntityType),
		EntityID:           r.EntityID.String(),
		EntityIdentifier:   r.EntityIdentifier,
		OperationType:      string(r.OperationType),
		OperationTimestamp: formatTime(r.OperationTimestamp),
		ProductionOrderID:  uuidPtrString(r.ProductionOrderID),
		ReferenceID:        r.ReferenceID,
		QuantityBefore:     r.QuantityBefore,
		QuantityAfter:      r.QuantityAfter,
		ReservedBefore:     r.ReservedBefore,
		ReservedAfter:      r.ReservedAfter,
		StatusBefore:       r.StatusBefore,
		StatusAfter:        r.StatusAfter,
		LocationBefore:     r.LocationBefore,
		LocationAfter:      r.LocationAfter,
		Metadata:           r.Metadata,
		PerformedBy:        uuidPtrString(r.PerformedBy),
	}
}

// CollectHistory drains at most limit records of seq into a response. Truncated
// is set when more records were available.
func CollectHistory(seq iter.Seq2[model.GenealogyRecord, error], limit int) (*dto.HistoryResponse, error) {
	resp := &dto.HistoryResponse{Data: []dto.GenealogyRecordResponse{}}
	for rec, err := range seq {
		if err != nil {
			return nil, err
		}
		if len(resp.Data) == limit {
			resp.Truncated = true
			break
		}
		resp.Data = append(resp.Data, toRecordResponse(rec))
	}
	return resp, nil
}
