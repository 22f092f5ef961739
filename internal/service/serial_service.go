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
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SerialService is the serial registry. Each transition validates the current
// status against the state machine in model.SerialStatus, updates the row
// under its version and appends one genealogy record.
type SerialService interface {
	Register(ctx context.Context, scope Scope, req dto.RegisterSerialRequest) (*dto.SerialResponse, error)
	Get(ctx context.Context, scope Scope, id uuid.UUID) (*dto.SerialResponse, error)
	List(ctx context.Context, scope Scope, filter dto.SerialFilter) (*dto.SerialListResponse, error)

	Reserve(ctx context.Context, scope Scope, id uuid.UUID, req dto.SerialReserveRequest) (*dto.SerialResponse, error)
	Ship(ctx context.Context, scope Scope, id uuid.UUID, req dto.ShipSerialRequest) (*dto.SerialResponse, error)
	Install(ctx context.Context, scope Scope, id uuid.UUID, req dto.InstallSerialRequest) (*dto.SerialResponse, error)
	PutInService(ctx context.Context, scope Scope, id uuid.UUID, req dto.SerialTransitionRequest) (*dto.SerialResponse, error)
	Scrap(ctx context.Context, scope Scope, id uuid.UUID, req dto.SerialTransitionRequest) (*dto.SerialResponse, error)
	Return(ctx context.Context, scope Scope, id uuid.UUID, req dto.SerialTransitionRequest) (*dto.SerialResponse, error)
	ReturnToStock(ctx context.Context, scope Scope, id uuid.UUID, req dto.ReturnToStockRequest) (*dto.SerialResponse, error)
}

type serialService struct {
	repo      repository.SerialRepository
	lots      repository.LotRepository
	genealogy GenealogyService
}

func NewSerialService(repo repository.SerialRepository, lots repository.LotRepository, genealogy GenealogyService) SerialService {
	return &serialService{repo: repo, lots: lots, genealogy: genealogy}
}

func (s *serialService) Register(ctx context.Context, scope Scope, req dto.RegisterSerialRequest) (*dto.SerialResponse, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	serialNumber := strings.TrimSpace(req.SerialNumber)
	if serialNumber == "" {
		return nil, apperr.Validation("serial_number is required")
	}
	materialID, err := parseUUID("material_id", req.MaterialID)
	if err != nil {
		return nil, err
	}
	lotID, err := parseOptionalUUID("lot_id", req.LotID)
	if err != nil {
		return nil, err
	}
	productionOrderID, err := parseOptionalUUID("production_order_id", req.ProductionOrderID)
	if err != nil {
		return nil, err
	}
	if lotID != nil {
		if _, err := s.lots.FindByID(ctx, scope.OrganizationID, *lotID); err != nil {
			return nil, err
		}
	}

	ts := now()
	unit := &model.SerialUnit{
		ID:                uuid.New(),
		OrganizationID:    scope.OrganizationID,
		PlantID:           scope.PlantID,
		SerialNumber:      serialNumber,
		MaterialID:        materialID,
		LotID:             lotID,
		ProductionOrderID: productionOrderID,
		Status:            model.SerialInStock,
		QualityStatus:     model.QualityPending,
		Location:          req.Location,
		WarrantyExpiry:    req.WarrantyExpiry,
		Active:            true,
		Version:           1,
		CreatedAt:         ts,
		UpdatedAt:         ts,
	}
	rec := &model.GenealogyRecord{
		OperationType:      model.OpCreated,
		OperationTimestamp: ts,
		ProductionOrderID:  productionOrderID,
		StatusAfter:        ptr(string(unit.Status)),
	}
	if unit.Location != "" {
		rec.LocationAfter = ptr(unit.Location)
	}
	if lotID != nil {
		rec.Metadata = datatypes.JSONMap{"lot_id": lotID.String()}
	}

	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		if err := s.repo.CreateTx(tx, unit); err != nil {
			return err
		}
		return s.appendFor(tx, scope, unit, rec)
	})
	if err != nil {
		return nil, err
	}
	log.Info().Str("serial_number", unit.SerialNumber).Msg("serial registered")
	return toSerialResponse(unit), nil
}

func (s *serialService) Get(ctx context.Context, scope Scope, id uuid.UUID) (*dto.SerialResponse, error) {
	unit, err := s.repo.FindByID(ctx, scope.OrganizationID, id)
	if err != nil {
		return nil, err
	}
	return toSerialResponse(unit), nil
}

func (s *serialService) List(ctx context.Context, scope Scope, filter dto.SerialFilter) (*dto.SerialListResponse, error) {
	materialID, err := parseOptionalUUID("material_id", &filter.MaterialID)
	if err != nil {
		return nil, err
	}
	lotID, err := parseOptionalUUID("lot_id", &filter.LotID)
	if err != nil {
		return nil, err
	}
	customerID, err := parseOptionalUUID("customer_id", &filter.CustomerID)
	if err != nil {
		return nil, err
	}
	units, total, err := s.repo.List(ctx, scope.OrganizationID, repository.SerialFilter{
		MaterialID: materialID,
		LotID:      lotID,
		CustomerID: customerID,
		Status:     filter.Status,
		Page:       filter.Page,
		Limit:      filter.Limit,
	})
	if err != nil {
		return nil, err
	}
	resp := &dto.SerialListResponse{Data: make([]dto.SerialResponse, 0, len(units)), Total: total, Page: filter.Page, Limit: filter.Limit}
	for i := range units {
		resp.Data = append(resp.Data, *toSerialResponse(&units[i]))
	}
	return resp, nil
}

// ── Transitions ───────────────────────────────────────────────────────────────

func (s *serialService) Reserve(ctx context.Context, scope Scope, id uuid.UUID, req dto.SerialReserveRequest) (*dto.SerialResponse, error) {
	return s.transition(ctx, scope, id, model.SerialReserved, model.OpReserved, func(u *model.SerialUnit, rec *model.GenealogyRecord) {
		rec.ReferenceID = req.Reference
	})
}

func (s *serialService) Ship(ctx context.Context, scope Scope, id uuid.UUID, req dto.ShipSerialRequest) (*dto.SerialResponse, error) {
	if strings.TrimSpace(req.CustomerID) == "" {
		return nil, apperr.Validation("a serial cannot be shipped without a customer")
	}
	customerID, err := parseUUID("customer_id", req.CustomerID)
	if err != nil {
		return nil, err
	}
	shipmentID, err := parseOptionalUUID("shipment_id", req.ShipmentID)
	if err != nil {
		return nil, err
	}
	shipped := now()
	if req.ShippedDate != nil {
		shipped = req.ShippedDate.UTC()
	}
	return s.transition(ctx, scope, id, model.SerialShipped, model.OpShipped, func(u *model.SerialUnit, rec *model.GenealogyRecord) {
		u.CustomerID = &customerID
		u.ShipmentID = shipmentID
		u.ShippedDate = &shipped
		meta := datatypes.JSONMap{"customer_id": customerID.String()}
		if shipmentID != nil {
			meta["shipment_id"] = shipmentID.String()
			rec.ReferenceID = ptr(shipmentID.String())
		}
		rec.Metadata = meta
	})
}

func (s *serialService) Install(ctx context.Context, scope Scope, id uuid.UUID, req dto.InstallSerialRequest) (*dto.SerialResponse, error) {
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, apperr.Validation("location is required")
	}
	installed := now()
	if req.InstalledDate != nil {
		installed = req.InstalledDate.UTC()
	}
	return s.transition(ctx, scope, id, model.SerialInstalled, model.OpInstalled, func(u *model.SerialUnit, rec *model.GenealogyRecord) {
		u.InstalledDate = &installed
		u.Location = location
		if req.WarrantyExpiry != nil {
			u.WarrantyExpiry = req.WarrantyExpiry
		}
	})
}

func (s *serialService) PutInService(ctx context.Context, scope Scope, id uuid.UUID, req dto.SerialTransitionRequest) (*dto.SerialResponse, error) {
	return s.transition(ctx, scope, id, model.SerialInService, model.OpInService, reasonOnly(req.Reason))
}

func (s *serialService) Scrap(ctx context.Context, scope Scope, id uuid.UUID, req dto.SerialTransitionRequest) (*dto.SerialResponse, error) {
	return s.transition(ctx, scope, id, model.SerialScrapped, model.OpScrapped, func(u *model.SerialUnit, rec *model.GenealogyRecord) {
		u.Active = false
		reasonOnly(req.Reason)(u, rec)
	})
}

func (s *serialService) Return(ctx context.Context, scope Scope, id uuid.UUID, req dto.SerialTransitionRequest) (*dto.SerialResponse, error) {
	return s.transition(ctx, scope, id, model.SerialReturned, model.OpReturned, reasonOnly(req.Reason))
}

func (s *serialService) ReturnToStock(ctx context.Context, scope Scope, id uuid.UUID, req dto.ReturnToStockRequest) (*dto.SerialResponse, error) {
	location := strings.TrimSpace(req.Location)
	if location == "" {
		return nil, apperr.Validation("location is required")
	}
	return s.transition(ctx, scope, id, model.SerialInStock, model.OpRestocked, func(u *model.SerialUnit, rec *model.GenealogyRecord) {
		u.Location = location
		u.CustomerID = nil
		u.ShipmentID = nil
	})
}

func reasonOnly(reason string) func(*model.SerialUnit, *model.GenealogyRecord) {
	return func(_ *model.SerialUnit, rec *model.GenealogyRecord) {
		if reason != "" {
			rec.Metadata = withKey(rec.Metadata, "reason", reason)
		}
	}
}

// transition moves the unit to next if the state machine allows it. apply
// fills the fields specific to the transition.
func (s *serialService) transition(ctx context.Context, scope Scope, id uuid.UUID, next model.SerialStatus, op model.OperationType, apply func(*model.SerialUnit, *model.GenealogyRecord)) (*dto.SerialResponse, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	var out *model.SerialUnit
	err := runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		unit, err := s.repo.FindByIDTx(tx, scope.OrganizationID, id)
		if err != nil {
			return err
		}
		prev := unit.Status
		if !prev.CanTransitionTo(next) {
			return apperr.InvalidTransition("serial %s: %s -> %s is not allowed", unit.SerialNumber, prev, next)
		}
		prevLocation := unit.Location

		rec := &model.GenealogyRecord{OperationType: op}
		unit.Status = next
		apply(unit, rec)
		if next == model.SerialShipped && unit.CustomerID == nil {
			return apperr.Validation("a serial cannot be shipped without a customer")
		}

		rec.StatusBefore = ptr(string(prev))
		rec.StatusAfter = ptr(string(next))
		if unit.Location != prevLocation {
			rec.LocationBefore = ptr(prevLocation)
			rec.LocationAfter = ptr(unit.Location)
		}

		if err := s.repo.UpdateVersionedTx(tx, unit); err != nil {
			return err
		}
		if err := s.appendFor(tx, scope, unit, rec); err != nil {
			return err
		}
		out = unit
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toSerialResponse(out), nil
}

func (s *serialService) appendFor(tx *gorm.DB, scope Scope, unit *model.SerialUnit, rec *model.GenealogyRecord) error {
	rec.OrganizationID = unit.OrganizationID
	rec.EntityType = model.EntitySerial
	rec.EntityID = unit.ID
	rec.EntityIdentifier = unit.SerialNumber
	rec.PerformedBy = scope.UserID
	if rec.ProductionOrderID == nil {
		rec.ProductionOrderID = unit.ProductionOrderID
	}
	return s.genealogy.AppendTx(tx, rec)
}

func toSerialResponse(u *model.SerialUnit) *dto.SerialResponse {
	return &dto.SerialResponse{
		ID:                u.ID.String(),
		OrganizationID:    u.OrganizationID.String(),
		PlantID:           uuidPtrString(u.PlantID),
		SerialNumber:      u.SerialNumber,
		MaterialID:        u.MaterialID.String(),
		LotID:             uuidPtrString(u.LotID),
		ProductionOrderID: uuidPtrString(u.ProductionOrderID),
		Status:            string(u.Status),
		QualityStatus:     string(u.QualityStatus),
		Location:          u.Location,
		CustomerID:        uuidPtrString(u.CustomerID),
		ShipmentID:        uuidPtrString(u.ShipmentID),
		ShippedDate:       formatTimePtr(u.ShippedDate),
		InstalledDate:     formatTimePtr(u.InstalledDate),
		WarrantyExpiry:    formatTimePtr(u.WarrantyExpiry),
		Version:           u.Version,
		CreatedAt:         formatTime(u.CreatedAt),
		UpdatedAt:         formatTime(u.UpdatedAt),
	}
}
