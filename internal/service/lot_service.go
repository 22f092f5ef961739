package service

import (
	"context"
	"strings"

	"traceability/internal/apperr"
	"traceability/internal/dto"
	"traceability/internal/model"
	"traceability/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// LotService is the lot ledger. Every mutation is one optimistic
// read-modify-write of the lot row plus exactly one genealogy record, both in
// the same transaction. A ConcurrencyConflictError leaves nothing applied and
// may be retried with RetryOnConflict.
//
// Consumption policy: reserve first. Consume draws only from reserved quantity.
type LotService interface {
	Create(ctx context.Context, scope Scope, req dto.CreateLotRequest) (*dto.LotResponse, error)
	Get(ctx context.Context, scope Scope, id uuid.UUID) (*dto.LotResponse, error)
	GetByLotNumber(ctx context.Context, scope Scope, lotNumber string) (*dto.LotResponse, error)
	List(ctx context.Context, scope Scope, filter dto.LotFilter) (*dto.LotListResponse, error)

	Reserve(ctx context.Context, scope Scope, id uuid.UUID, req dto.ReserveLotRequest) (*dto.LotResponse, error)
	Consume(ctx context.Context, scope Scope, id uuid.UUID, req dto.ConsumeLotRequest) (*dto.LotResponse, error)
	Release(ctx context.Context, scope Scope, id uuid.UUID, req dto.ReleaseLotRequest) (*dto.LotResponse, error)
	AdjustQualityStatus(ctx context.Context, scope Scope, id uuid.UUID, req dto.QualityStatusRequest) (*dto.LotResponse, error)
	Adjust(ctx context.Context, scope Scope, id uuid.UUID, req dto.AdjustLotRequest) (*dto.LotResponse, error)
	Relocate(ctx context.Context, scope Scope, id uuid.UUID, req dto.RelocateRequest) (*dto.LotResponse, error)
	Deactivate(ctx context.Context, scope Scope, id uuid.UUID, req dto.DeactivateRequest) (*dto.LotResponse, error)
}

type lotService struct {
	repo      repository.LotRepository
	genealogy GenealogyService
}

func NewLotService(repo repository.LotRepository, genealogy GenealogyService) LotService {
	return &lotService{repo: repo, genealogy: genealogy}
}

// ── Create ────────────────────────────────────────────────────────────────────

func (s *lotService) Create(ctx context.Context, scope Scope, req dto.CreateLotRequest) (*dto.LotResponse, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	lotNumber := strings.TrimSpace(req.LotNumber)
	if lotNumber == "" {
		return nil, apperr.Validation("lot_number is required")
	}
	materialID, err := parseUUID("material_id", req.MaterialID)
	if err != nil {
		return nil, err
	}
	if !req.InitialQuantity.IsPositive() {
		return nil, apperr.Validation("initial_quantity must be greater than zero")
	}
	if strings.TrimSpace(req.UnitOfMeasure) == "" {
		return nil, apperr.Validation("unit_of_measure is required")
	}
	source := model.SourceType(req.SourceType)
	if !source.Valid() {
		return nil, apperr.Validation("invalid source_type %q", req.SourceType)
	}
	supplierID, err := parseOptionalUUID("supplier_id", req.SupplierID)
	if err != nil {
		return nil, err
	}
	productionOrderID, err := parseOptionalUUID("production_order_id", req.ProductionOrderID)
	if err != nil {
		return nil, err
	}

	ts := now()
	lot := &model.LotBatch{
		ID:               uuid.New(),
		OrganizationID:   scope.OrganizationID,
		PlantID:          scope.PlantID,
		LotNumber:        lotNumber,
		MaterialID:       materialID,
		InitialQuantity:  req.InitialQuantity,
		CurrentQuantity:  req.InitialQuantity,
		ReservedQuantity: decimal.Zero,
		UnitOfMeasure:    req.UnitOfMeasure,
		SourceType:       source,
		SupplierID:       supplierID,
		ProductionDate:   req.ProductionDate,
		ReceivedDate:     req.ReceivedDate,
		ExpiryDate:       req.ExpiryDate,
		RetestDate:       req.RetestDate,
		QualityStatus:    model.QualityPending,
		Location:         req.Location,
		Active:           true,
		Version:          1,
		CreatedAt:        ts,
		UpdatedAt:        ts,
	}

	op := model.OpCreated
	if source == model.SourcePurchased || source == model.SourceReturned {
		op = model.OpReceived
	}
	rec := &model.GenealogyRecord{
		OperationType:      op,
		OperationTimestamp: ts,
		ProductionOrderID:  productionOrderID,
		QuantityAfter:      ptr(lot.InitialQuantity),
		ReservedAfter:      ptr(decimal.Zero),
		StatusAfter:        ptr(string(lot.QualityStatus)),
		Metadata:           datatypes.JSONMap{"source_type": string(source), "unit_of_measure": lot.UnitOfMeasure},
	}
	if lot.Location != "" {
		rec.LocationAfter = ptr(lot.Location)
	}

	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, lot); err != nil {
			return err
		}
		return s.appendFor(tx, scope, lot, rec)
	})
	if err != nil {
		return nil, err
	}

	log.Info().Str("lot_number", lot.LotNumber).Str("lot_id", lot.ID.String()).Msg("lot created")
	return toLotResponse(lot), nil
}

// ── Reads ─────────────────────────────────────────────────────────────────────

func (s *lotService) Get(ctx context.Context, scope Scope, id uuid.UUID) (*dto.LotResponse, error) {
	lot, err := s.repo.FindByID(ctx, scope.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	return toLotResponse(lot), nil
}

func (s *lotService) GetByLotNumber(ctx context.Context, scope Scope, lotNumber string) (*dto.LotResponse, error) {
	lot, err := s.repo.FindByLotNumber(ctx, scope.OrganizationID, lotNumber)
	if err != nil {
		return nil, err
	}
	return toLotResponse(lot), nil
}

func (s *lotService) List(ctx context.Context, scope Scope, filter dto.LotFilter) (*dto.LotListResponse, error) {
	materialID, err := parseOptionalUUID("material_id", &filter.MaterialID)
	if err != nil {
		return nil, err
	}
	lots, total, err := s.repo.List(ctx, scope.OrganizationID, repository.LotFilter{
		MaterialID:    materialID,
		QualityStatus: filter.QualityStatus,
		Location:      filter.Location,
		Active:        filter.Active,
		Page:          filter.Page,
		Limit:         filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	resp := &dto.LotListResponse{Data: make([]dto.LotResponse, 0, len(lots)), Total: total, Page: filter.Page, Limit: filter.Limit}
	for i := range lots {
		resp.Data = append(resp.Data, *toLotResponse(&lots[i]))
	}
	return resp, nil
}

// ── Quantity mutations ────────────────────────────────────────────────────────

func (s *lotService) Reserve(ctx context.Context, scope Scope, id uuid.UUID, req dto.ReserveLotRequest) (*dto.LotResponse, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperr.Validation("quantity must be greater than zero")
	}
	return s.mutate(ctx, scope, id, func(lot *model.LotBatch) (*model.GenealogyRecord, error) {
		if err := checkAvailable(lot); err != nil {
			return nil, err
		}
		if req.Quantity.GreaterThan(lot.Available()) {
			return nil, apperr.InsufficientQuantity("lot %s: requested %s, available %s",
				lot.LotNumber, req.Quantity, lot.Available())
		}
		before := lot.ReservedQuantity
		lot.ReservedQuantity = lot.ReservedQuantity.Add(req.Quantity)
		return &model.GenealogyRecord{
			OperationType:  model.OpAdjusted,
			ReferenceID:    req.Reference,
			ReservedBefore: ptr(before),
			ReservedAfter:  ptr(lot.ReservedQuantity),
			Metadata:       datatypes.JSONMap{"sub_type": model.SubTypeReservation, "quantity": req.Quantity.String()},
		}, nil
	})
}

func (s *lotService) Consume(ctx context.Context, scope Scope, id uuid.UUID, req dto.ConsumeLotRequest) (*dto.LotResponse, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperr.Validation("quantity must be greater than zero")
	}
	productionOrderID, err := parseOptionalUUID("production_order_id", req.ProductionOrderID)
	if err != nil {
		return nil, err
	}
	return s.mutate(ctx, scope, id, func(lot *model.LotBatch) (*model.GenealogyRecord, error) {
		if lot.IsDepleted() {
			return nil, apperr.LotDepleted("lot %s is depleted", lot.LotNumber)
		}
		if lot.QualityStatus.BlocksConsumption() {
			return nil, apperr.LotNotAvailable("lot %s is %s", lot.LotNumber, lot.QualityStatus)
		}
		if req.Quantity.GreaterThan(lot.ReservedQuantity) {
			return nil, apperr.InsufficientQuantity("lot %s: consume %s exceeds reserved %s",
				lot.LotNumber, req.Quantity, lot.ReservedQuantity)
		}
		qtyBefore, resBefore := lot.CurrentQuantity, lot.ReservedQuantity
		lot.CurrentQuantity = lot.CurrentQuantity.Sub(req.Quantity)
		lot.ReservedQuantity = lot.ReservedQuantity.Sub(req.Quantity)
		meta := datatypes.JSONMap{"quantity": req.Quantity.String()}
		if req.OperationSequence != nil {
			meta["operation_sequence"] = *req.OperationSequence
		}
		return &model.GenealogyRecord{
			OperationType:     model.OpConsumed,
			ProductionOrderID: productionOrderID,
			QuantityBefore:    ptr(qtyBefore),
			QuantityAfter:     ptr(lot.CurrentQuantity),
			ReservedBefore:    ptr(resBefore),
			ReservedAfter:     ptr(lot.ReservedQuantity),
			Metadata:          meta,
		}, nil
	})
}

func (s *lotService) Release(ctx context.Context, scope Scope, id uuid.UUID, req dto.ReleaseLotRequest) (*dto.LotResponse, error) {
	if !req.Quantity.IsPositive() {
		return nil, apperr.Validation("quantity must be greater than zero")
	}
	return s.mutate(ctx, scope, id, func(lot *model.LotBatch) (*model.GenealogyRecord, error) {
		if lot.IsDepleted() {
			return nil, apperr.LotDepleted("lot %s is depleted", lot.LotNumber)
		}
		if req.Quantity.GreaterThan(lot.ReservedQuantity) {
			return nil, apperr.InvalidState("lot %s: release %s exceeds reserved %s",
				lot.LotNumber, req.Quantity, lot.ReservedQuantity)
		}
		before := lot.ReservedQuantity
		lot.ReservedQuantity = lot.ReservedQuantity.Sub(req.Quantity)
		return &model.GenealogyRecord{
			OperationType:  model.OpAdjusted,
			ReservedBefore: ptr(before),
			ReservedAfter:  ptr(lot.ReservedQuantity),
			Metadata:       datatypes.JSONMap{"sub_type": model.SubTypeRelease, "quantity": req.Quantity.String()},
		}, nil
	})
}

func (s *lotService) Adjust(ctx context.Context, scope Scope, id uuid.UUID, req dto.AdjustLotRequest) (*dto.LotResponse, error) {
	if req.Delta.IsZero() {
		return nil, apperr.Validation("delta must not be zero")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperr.Validation("reason is required")
	}
	return s.mutate(ctx, scope, id, func(lot *model.LotBatch) (*model.GenealogyRecord, error) {
		if lot.IsDepleted() {
			return nil, apperr.LotDepleted("lot %s is depleted", lot.LotNumber)
		}
		next := lot.CurrentQuantity.Add(req.Delta)
		switch {
		case next.LessThan(lot.ReservedQuantity):
			return nil, apperr.InsufficientQuantity("lot %s: adjusted quantity %s would fall below reserved %s",
				lot.LotNumber, next, lot.ReservedQuantity)
		case next.GreaterThan(lot.InitialQuantity):
			return nil, apperr.InvalidState("lot %s: adjusted quantity %s would exceed initial %s",
				lot.LotNumber, next, lot.InitialQuantity)
		}
		before := lot.CurrentQuantity
		lot.CurrentQuantity = next
		return &model.GenealogyRecord{
			OperationType:  model.OpAdjusted,
			QuantityBefore: ptr(before),
			QuantityAfter:  ptr(next),
			Metadata:       datatypes.JSONMap{"sub_type": model.SubTypeQuantity, "delta": req.Delta.String(), "reason": req.Reason},
		}, nil
	})
}

// ── Status / location ─────────────────────────────────────────────────────────

func (s *lotService) AdjustQualityStatus(ctx context.Context, scope Scope, id uuid.UUID, req dto.QualityStatusRequest) (*dto.LotResponse, error) {
	next := model.QualityStatus(req.Status)
	if !next.Valid() {
		return nil, apperr.Validation("invalid quality status %q", req.Status)
	}
	if req.Override && strings.TrimSpace(req.Reason) == "" {
		return nil, apperr.Validation("reason is required when overriding a quality status")
	}
	return s.mutate(ctx, scope, id, func(lot *model.LotBatch) (*model.GenealogyRecord, error) {
		prev := lot.QualityStatus
		if prev == next {
			return nil, apperr.InvalidTransition("lot %s is already %s", lot.LotNumber, next)
		}
		if !req.Override && !prev.CanTransitionTo(next) {
			return nil, apperr.InvalidTransition("lot %s: quality status %s -> %s is not allowed", lot.LotNumber, prev, next)
		}
		lot.QualityStatus = next
		meta := datatypes.JSONMap{}
		if req.Override {
			meta["override"] = true
		}
		if req.Reason != "" {
			meta["reason"] = req.Reason
		}
		return &model.GenealogyRecord{
			OperationType: model.OpInspected,
			StatusBefore:  ptr(string(prev)),
			StatusAfter:   ptr(string(next)),
			Metadata:      meta,
		}, nil
	})
}

func (s *lotService) Relocate(ctx context.Context, scope Scope, id uuid.UUID, req dto.RelocateRequest) (*dto.LotResponse, error) {
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, apperr.Validation("location is required")
	}
	return s.mutate(ctx, scope, id, func(lot *model.LotBatch) (*model.GenealogyRecord, error) {
		if lot.IsDepleted() {
			return nil, apperr.LotDepleted("lot %s is depleted", lot.LotNumber)
		}
		if !lot.Active {
			return nil, apperr.LotNotAvailable("lot %s is inactive", lot.LotNumber)
		}
		if lot.Location == location {
			return nil, apperr.InvalidState("lot %s is already at %s", lot.LotNumber, location)
		}
		before := lot.Location
		lot.Location = location
		return &model.GenealogyRecord{
			OperationType:  model.OpRelocated,
			LocationBefore: ptr(before),
			LocationAfter:  ptr(location),
		}, nil
	})
}

func (s *lotService) Deactivate(ctx context.Context, scope Scope, id uuid.UUID, req dto.DeactivateRequest) (*dto.LotResponse, error) {
	return s.mutate(ctx, scope, id, func(lot *model.LotBatch) (*model.GenealogyRecord, error) {
		if !lot.Active {
			return nil, apperr.InvalidState("lot %s is already inactive", lot.LotNumber)
		}
		if lot.ReservedQuantity.IsPositive() {
			return nil, apperr.InvalidState("lot %s still has %s reserved", lot.LotNumber, lot.ReservedQuantity)
		}
		lot.Active = false
		meta := datatypes.JSONMap{"active": false}
		if req.Reason != "" {
			meta["reason"] = req.Reason
		}
		return &model.GenealogyRecord{OperationType: model.OpDeactivated, Metadata: meta}, nil
	})
}

// ── Internals ─────────────────────────────────────────────────────────────────

// mutate loads the lot inside a transaction, lets fn change it and describe the
// change, then writes the lot guarded by its version and appends the record.
// fn must not touch the lot when it returns an error.
func (s *lotService) mutate(ctx context.Context, scope Scope, id uuid.UUID, fn func(lot *model.LotBatch) (*model.GenealogyRecord, error)) (*dto.LotResponse, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	var out *model.LotBatch
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		lot, err := s.repo.FindByIDTx(tx, scope.OrganizationID, id)
		if err != nil {
			return err
		}
		rec, err := fn(lot)
		if err != nil {
			return err
		}
		if lot.IsDepleted() && lot.DepletedAt == nil {
			lot.DepletedAt = ptr(now())
			rec.Metadata = withKey(rec.Metadata, "depleted", true)
		}
		if !lot.CheckInvariant() {
			return apperr.InvalidState("lot %s: quantity invariant violated", lot.LotNumber)
		}
		if err := s.repo.UpdateVersionedTx(tx, lot); err != nil {
			return err
		}
		if err := s.appendFor(tx, scope, lot, rec); err != nil {
			return err
		}
		out = lot
		return nil
	})
	if err != nil {
		if apperr.IsRetryable(err) {
			log.Warn().Str("lot_id", id.String()).Msg("lot update lost an optimistic lock race")
		}
		return nil, err
	}
	return toLotResponse(out), nil
}

func (s *lotService) appendFor(tx *gorm.DB, scope Scope, lot *model.LotBatch, rec *model.GenealogyRecord) error {
	rec.OrganizationID = lot.OrganizationID
	rec.EntityType = model.EntityLot
	rec.EntityID = lot.ID
	rec.EntityIdentifier = lot.LotNumber
	rec.PerformedBy = scope.UserID
	return s.genealogy.AppendTx(tx, rec)
}

func checkAvailable(lot *model.LotBatch) error {
	switch {
	case !lot.Active:
		return apperr.LotNotAvailable("lot %s is inactive", lot.LotNumber)
	case lot.QualityStatus.BlocksConsumption():
		return apperr.LotNotAvailable("lot %s is %s", lot.LotNumber, lot.QualityStatus)
	case lot.IsDepleted():
		return apperr.LotNotAvailable("lot %s is depleted", lot.LotNumber)
	}
	return nil
}

func withKey(m datatypes.JSONMap, k string, v any) datatypes.JSONMap {
	if m == nil {
		m = datatypes.JSONMap{}
	}
	m[k] = v
	return m
}

func toLotResponse(l *model.LotBatch) *dto.LotResponse {
	return &dto.LotResponse{
		ID:                l.ID.String(),
		OrganizationID:    l.OrganizationID.String(),
		PlantID:           uuidPtrString(l.PlantID),
		LotNumber:         l.LotNumber,
		MaterialID:        l.MaterialID.String(),
		InitialQuantity:   l.InitialQuantity,
		CurrentQuantity:   l.CurrentQuantity,
		ReservedQuantity:  l.ReservedQuantity,
		AvailableQuantity: l.Available(),
		UnitOfMeasure:     l.UnitOfMeasure,
		SourceType:        string(l.SourceType),
		SupplierID:        uuidPtrString(l.SupplierID),
		ProductionDate:    formatTimePtr(l.ProductionDate),
		ReceivedDate:      formatTimePtr(l.ReceivedDate),
		ExpiryDate:        formatTimePtr(l.ExpiryDate),
		RetestDate:        formatTimePtr(l.RetestDate),
		QualityStatus:     string(l.QualityStatus),
		Location:          l.Location,
		Active:            l.Active,
		IsDepleted:        l.IsDepleted(),
		DepletedAt:        formatTimePtr(l.DepletedAt),
		Version:           l.Version,
		CreatedAt:         formatTime(l.CreatedAt),
		UpdatedAt:         formatTime(l.UpdatedAt),
	}
}
