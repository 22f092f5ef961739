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

// LinkService records edges of the traceability graph. Only direct self-loops
// are rejected at write time; longer cycles are tolerated and handled by the
// traversal engine. Links are never updated or deleted. A correction is a new
// link carrying corrects_link_id and a "note" metadata entry.
type LinkService interface {
	CreateLink(ctx context.Context, scope Scope, req dto.CreateLinkRequest) (*dto.LinkResponse, error)
	ListLinks(ctx context.Context, scope Scope, filter dto.LinkFilter) ([]dto.LinkResponse, error)
}

type linkService struct {
	repo      repository.LinkRepository
	lots      repository.LotRepository
	serials   repository.SerialRepository
	genealogy GenealogyService
}

func NewLinkService(repo repository.LinkRepository, lots repository.LotRepository, serials repository.SerialRepository, genealogy GenealogyService) LinkService {
	return &linkService{repo: repo, lots: lots, serials: serials, genealogy: genealogy}
}

func parseRef(field string, r dto.EntityRefRequest) (model.EntityRef, error) {
	t := model.EntityType(strings.ToUpper(r.Type))
	if !t.Valid() {
		return model.EntityRef{}, apperr.Validation("%s.type must be LOT or SERIAL", field)
	}
	id, err := parseUUID(field+".id", r.ID)
	if err != nil {
		return model.EntityRef{}, err
	}
	return model.EntityRef{Type: t, ID: id}, nil
}

func (s *linkService) CreateLink(ctx context.Context, scope Scope, req dto.CreateLinkRequest) (*dto.LinkResponse, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	parent, err := parseRef("parent", req.Parent)
	if err != nil {
		return nil, err
	}
	child, err := parseRef("child", req.Child)
	if err != nil {
		return nil, err
	}
	rel := model.RelationshipType(req.RelationshipType)
	if !rel.Valid() {
		return nil, apperr.InvalidRelationship("unknown relationship type %q", req.RelationshipType)
	}
	if parent == child {
		return nil, apperr.SelfLoop("%s cannot be linked to itself", parent)
	}
	if req.QuantityUsed != nil && !req.QuantityUsed.IsPositive() {
		return nil, apperr.Validation("quantity_used must be greater than zero")
	}
	if parent.Type == model.EntityLot && rel.CarriesQuantity() && req.QuantityUsed == nil {
		return nil, apperr.Validation("quantity_used is required when a lot is %s", rel)
	}
	productionOrderID, err := parseOptionalUUID("production_order_id", req.ProductionOrderID)
	if err != nil {
		return nil, err
	}
	correctsID, err := parseOptionalUUID("corrects_link_id", req.CorrectsLinkID)
	if err != nil {
		return nil, err
	}
	if correctsID != nil {
		if note, _ := req.Metadata["note"].(string); strings.TrimSpace(note) == "" {
			return nil, apperr.Validation("a correcting link requires a metadata note")
		}
	}

	linkedAt := now()
	if req.LinkedAt != nil {
		linkedAt = req.LinkedAt.UTC()
	}
	link := &model.TraceabilityLink{
		ID:                uuid.New(),
		OrganizationID:    scope.OrganizationID,
		RelationshipType:  rel,
		QuantityUsed:      req.QuantityUsed,
		UnitOfMeasure:     req.UnitOfMeasure,
		ProductionOrderID: productionOrderID,
		OperationSequence: req.OperationSequence,
		LinkedAt:          linkedAt,
		Metadata:          datatypes.JSONMap(req.Metadata),
		CorrectsLinkID:    correctsID,
		CreatedBy:         scope.UserID,
		CreatedAt:         now(),
	}
	link.SetParent(parent)
	link.SetChild(child)

	err = runTx(ctx, s.repo.DB(), func(tx *gorm.DB) error {
		parentInfo, err := s.resolveTx(tx, scope.OrganizationID, parent)
		if err != nil {
			return err
		}
		childInfo, err := s.resolveTx(tx, scope.OrganizationID, child)
		if err != nil {
			return err
		}
		if correctsID != nil {
			if _, err := s.repo.FindByIDTx(tx, scope.OrganizationID, *correctsID); err != nil {
				return err
			}
		}
		if link.UnitOfMeasure == "" && parentInfo.UnitOfMeasure != "" {
			link.UnitOfMeasure = parentInfo.UnitOfMeasure
		}
		if err := s.repo.CreateTx(tx, link); err != nil {
			return err
		}

		meta := datatypes.JSONMap{
			"link_id":           link.ID.String(),
			"relationship_type": string(rel),
			"parent_type":       string(parent.Type),
			"parent_id":         parent.ID.String(),
			"parent_identifier": parentInfo.Identifier,
		}
		if link.QuantityUsed != nil {
			meta["quantity_used"] = link.QuantityUsed.String()
		}
		if correctsID != nil {
			meta["corrects_link_id"] = correctsID.String()
		}
		return s.genealogy.AppendTx(tx, &model.GenealogyRecord{
			OrganizationID:     scope.OrganizationID,
			EntityType:         child.Type,
			EntityID:           child.ID,
			EntityIdentifier:   childInfo.Identifier,
			OperationType:      model.OpLinked,
			OperationTimestamp: linkedAt,
			ProductionOrderID:  productionOrderID,
			Metadata:           meta,
			PerformedBy:        scope.UserID,
		})
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("link_id", link.ID.String()).
		Str("parent", parent.String()).
		Str("child", child.String()).
		Str("relationship", string(rel)).
		Msg("traceability link created")
	return toLinkResponse(link), nil
}

type linkEndpoint struct {
	Identifier    string
	UnitOfMeasure string
}

// resolveTx checks that ref exists in the tenant and is active.
func (s *linkService) resolveTx(tx *gorm.DB, orgID uuid.UUID, ref model.EntityRef) (linkEndpoint, error) {
	switch ref.Type {
	case model.EntityLot:
		lot, err := s.lots.FindByIDTx(tx, orgID, ref.ID)
		if err != nil {
			return linkEndpoint{}, err
		}
		if !lot.Active {
			return linkEndpoint{}, apperr.NotFound("lot %s is inactive", lot.LotNumber)
		}
		return linkEndpoint{Identifier: lot.LotNumber, UnitOfMeasure: lot.UnitOfMeasure}, nil
	default:
		unit, err := s.serials.FindByIDTx(tx, orgID, ref.ID)
		if err != nil {
			return linkEndpoint{}, err
		}
		if !unit.Active {
			return linkEndpoint{}, apperr.NotFound("serial %s is inactive", unit.SerialNumber)
		}
		return linkEndpoint{Identifier: unit.SerialNumber}, nil
	}
}

func (s *linkService) ListLinks(ctx context.Context, scope Scope, filter dto.LinkFilter) ([]dto.LinkResponse, error) {
	ref, err := parseRef("entity", dto.EntityRefRequest{Type: filter.EntityType, ID: filter.EntityID})
	if err != nil {
		return nil, err
	}
	dir := model.Direction(filter.Direction)
	if dir == "" {
		dir = model.Both
	}
	if !dir.Valid() {
		return nil, apperr.Validation("direction must be downstream, upstream or both")
	}
	links, err := s.repo.ListByEntity(ctx, scope.OrganizationID, ref, dir)
	if err != nil {
		return nil, err
	}
	out := make([]dto.LinkResponse, 0, len(links))
	for i := range links {
		out = append(out, *toLinkResponse(&links[i]))
	}
	return out, nil
}

func toLinkResponse(l *model.TraceabilityLink) *dto.LinkResponse {
	p, c := l.Parent(), l.Child()
	return &dto.LinkResponse{
		ID:                l.ID.String(),
		OrganizationID:    l.OrganizationID.String(),
		Parent:            dto.EntityRefResponse{Type: string(p.Type), ID: p.ID.String()},
		Child:             dto.EntityRefResponse{Type: string(c.Type), ID: c.ID.String()},
		RelationshipType:  string(l.RelationshipType),
		QuantityUsed:      l.QuantityUsed,
		UnitOfMeasure:     l.UnitOfMeasure,
		ProductionOrderID: uuidPtrString(l.ProductionOrderID),
		OperationSequence: l.OperationSequence,
		LinkedAt:          formatTime(l.LinkedAt),
		Metadata:          l.Metadata,
		CorrectsLinkID:    uuidPtrString(l.CorrectsLinkID),
		CreatedBy:         uuidPtrString(l.CreatedBy),
	}
}
