package service

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"traceability/internal/apperr"
	"traceability/internal/dto"
	"traceability/internal/model"
	"traceability/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// RecallNotifier hands a finished report to asynchronous delivery.
type RecallNotifier interface {
	EnqueueRecallReport(ctx context.Context, report *dto.RecallReportResponse) error
}

// RecallService composes a where-used walk from every recalled lot into an
// impact report.
type RecallService interface {
	Generate(ctx context.Context, scope Scope, req dto.RecallReportRequest) (*dto.RecallReportResponse, error)
}

type recallService struct {
	lookup   LotLookup
	graph    repository.GraphReader
	cfg      TraversalConfig
	notifier RecallNotifier
}

// NewRecallService accepts a nil notifier; reports asking for notification
// then carry a warning instead.
func NewRecallService(lookup LotLookup, graph repository.GraphReader, cfg TraversalConfig, notifier RecallNotifier) RecallService {
	return &recallService{lookup: lookup, graph: graph, cfg: cfg, notifier: notifier}
}

var severities = map[string]bool{"LOW": true, "MEDIUM": true, "HIGH": true, "CRITICAL": true}

func (s *recallService) Generate(ctx context.Context, scope Scope, req dto.RecallReportRequest) (*dto.RecallReportResponse, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	numbers := uniqueTrimmed(req.LotNumbers)
	if len(numbers) == 0 {
		return nil, apperr.Validation("at least one lot number is required")
	}
	if strings.TrimSpace(req.Reason) == "" {
		return nil, apperr.Validation("reason is required")
	}
	severity := strings.ToUpper(req.Severity)
	if !severities[severity] {
		return nil, apperr.Validation("severity must be one of LOW, MEDIUM, HIGH, CRITICAL")
	}
	materialID, err := parseOptionalUUID("material_id", req.MaterialID)
	if err != nil {
		return nil, err
	}

	// 1. Resolve business lot numbers
	resolved, err := s.lookup.Resolve(ctx, scope.OrganizationID, numbers)
	if err != nil {
		return nil, err
	}
	report := &dto.RecallReportResponse{
		ReportID:           uuid.New().String(),
		MaterialID:         uuidPtrString(materialID),
		Reason:             req.Reason,
		Severity:           severity,
		GeneratedAt:        formatTime(now()),
		AffectedLots:       []dto.AffectedLot{},
		AffectedWorkOrders: []dto.AffectedWorkOrder{},
		AffectedShipments:  []dto.AffectedShipment{},
		CustomerImpact:     []dto.CustomerImpact{},
		QuantityByUnit:     []dto.QuantityByUnit{},
		Warnings:           []string{},
	}
	var roots []model.EntityRef
	for _, n := range numbers {
		lot, ok := resolved[n]
		switch {
		case !ok:
			report.Warnings = append(report.Warnings, fmt.Sprintf("lot number %q was not found", n))
		case materialID != nil && lot.MaterialID != *materialID:
			report.Warnings = append(report.Warnings, fmt.Sprintf("lot number %q belongs to material %s", n, lot.MaterialID))
		default:
			roots = append(roots, model.LotRef(lot.ID))
			report.AffectedLots = append(report.AffectedLots, dto.AffectedLot{
				LotID: lot.ID.String(), LotNumber: lot.LotNumber, MaterialID: lot.MaterialID.String(),
			})
		}
	}
	if len(roots) == 0 {
		return nil, apperr.MaterialOrLotNotFound("none of the lot numbers %v could be resolved", numbers)
	}

	// 2. Walk downstream from every root on one snapshot, sharing the visited set
	err = s.graph.ReadSnapshot(ctx, scope.OrganizationID, func(snap repository.GraphSnapshot) error {
		w, err := walkGraph(snap, roots, model.Downstream, s.cfg.RecallDepth, s.cfg.NodeLimit)
		if err != nil {
			if w == nil || apperr.KindOf(err) != apperr.KindTraversalLimit {
				return err
			}
			report.Partial = true
			report.Warnings = append(report.Warnings, err.Error()+"; the report covers only the nodes visited")
		}
		shipped, err := snap.ShippedRecords(w.uniqueRefs())
		if err != nil {
			return err
		}
		classify(report, w, shipped)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(report.Warnings) > 0 {
		report.Partial = true
	}

	// 3. Optional asynchronous delivery
	if req.Notify {
		s.notify(ctx, report)
	}

	log.Info().
		Str("report_id", report.ReportID).
		Int("lots", len(report.AffectedLots)).
		Int("entities", report.TotalEntitiesAffected).
		Int("customers", len(report.CustomerImpact)).
		Str("total_quantity", report.TotalQuantityAffected.String()).
		Bool("partial", report.Partial).
		Msg("recall report generated")
	return report, nil
}

func (s *recallService) notify(ctx context.Context, report *dto.RecallReportResponse) {
	if s.notifier == nil {
		report.Warnings = append(report.Warnings, "notification requested but no notifier is configured")
		return
	}
	if err := s.notifier.EnqueueRecallReport(ctx, report); err != nil {
		log.Error().Err(err).Str("report_id", report.ReportID).Msg("failed to enqueue recall notification")
		report.Warnings = append(report.Warnings, "notification could not be queued")
		return
	}
	report.NotificationQueued = true
}

func (w *walk) uniqueRefs() []model.EntityRef {
	refs := make([]model.EntityRef, 0, len(w.scheduled))
	for _, n := range w.nodes {
		if !n.node.Cycle && !n.node.Repeated {
			refs = append(refs, n.ref)
		}
	}
	return refs
}

// ── Classification ────────────────────────────────────────────────────────────

type workOrderAgg struct {
	qty      decimal.Decimal
	entities []string
	seen     map[string]bool
}

type shipmentAgg struct {
	customerID *uuid.UUID
	serials    []string
	seen       map[string]bool
}

type customerAgg struct {
	serials   []string
	shipments []string
	seenSer   map[string]bool
	seenShip  map[string]bool
}

// classify fills the aggregate sections of report from a finished walk.
// Quantities are taken from CONSUMED_IN / ASSEMBLED_INTO edges and counted
// once per entity, at the first edge that reaches it; cycle markers never count.
func classify(report *dto.RecallReportResponse, w *walk, shipped []model.GenealogyRecord) {
	counted := make(map[model.EntityRef]bool)
	byUnit := make(map[string]decimal.Decimal)
	total := decimal.Zero
	workOrders := make(map[uuid.UUID]*workOrderAgg)
	shipments := make(map[string]*shipmentAgg)
	customers := make(map[uuid.UUID]*customerAgg)
	entities := make(map[model.EntityRef]model.EntityInfo)

	for _, n := range w.nodes {
		if n.found {
			if _, ok := entities[n.ref]; !ok {
				entities[n.ref] = n.info
			}
		}
		link := n.link
		if link == nil || n.node.Cycle {
			continue
		}
		first := !counted[n.ref]
		countable := first && link.RelationshipType.CarriesQuantity() && link.QuantityUsed != nil
		if first {
			counted[n.ref] = true
		}
		if countable {
			total = total.Add(*link.QuantityUsed)
			byUnit[link.UnitOfMeasure] = byUnit[link.UnitOfMeasure].Add(*link.QuantityUsed)
		}
		if link.ProductionOrderID != nil {
			agg := workOrders[*link.ProductionOrderID]
			if agg == nil {
				agg = &workOrderAgg{seen: map[string]bool{}}
				workOrders[*link.ProductionOrderID] = agg
			}
			if countable {
				agg.qty = agg.qty.Add(*link.QuantityUsed)
			}
			if id := n.info.Identifier; id != "" && !agg.seen[id] {
				agg.seen[id] = true
				agg.entities = append(agg.entities, id)
			}
		}
	}

	addShipment := func(identifier string, shipmentID string, customerID *uuid.UUID) {
		if shipmentID != "" {
			agg := shipments[shipmentID]
			if agg == nil {
				agg = &shipmentAgg{seen: map[string]bool{}}
				shipments[shipmentID] = agg
			}
			if agg.customerID == nil {
				agg.customerID = customerID
			}
			if !agg.seen[identifier] {
				agg.seen[identifier] = true
				agg.serials = append(agg.serials, identifier)
			}
		}
		if customerID != nil {
			agg := customers[*customerID]
			if agg == nil {
				agg = &customerAgg{seenSer: map[string]bool{}, seenShip: map[string]bool{}}
				customers[*customerID] = agg
			}
			if !agg.seenSer[identifier] {
				agg.seenSer[identifier] = true
				agg.serials = append(agg.serials, identifier)
			}
			if shipmentID != "" && !agg.seenShip[shipmentID] {
				agg.seenShip[shipmentID] = true
				agg.shipments = append(agg.shipments, shipmentID)
			}
		}
	}

	// Current serial state first, then shipped records for units that have
	// since come back or for lots shipped in bulk.
	for ref, info := range entities {
		if ref.Type != model.EntitySerial || info.CustomerID == nil {
			continue
		}
		shipmentID := ""
		if info.ShipmentID != nil {
			shipmentID = info.ShipmentID.String()
		}
		addShipment(info.Identifier, shipmentID, info.CustomerID)
	}
	for _, rec := range shipped {
		customerID := metaUUID(rec.Metadata, "customer_id")
		shipmentID := ""
		if id := metaUUID(rec.Metadata, "shipment_id"); id != nil {
			shipmentID = id.String()
		} else if rec.ReferenceID != nil {
			shipmentID = *rec.ReferenceID
		}
		addShipment(rec.EntityIdentifier, shipmentID, customerID)
	}

	// Deterministic output
	for id, agg := range workOrders {
		sort.Strings(agg.entities)
		report.AffectedWorkOrders = append(report.AffectedWorkOrders, dto.AffectedWorkOrder{
			ProductionOrderID: id.String(), QuantityConsumed: agg.qty, Entities: agg.entities,
		})
	}
	sort.Slice(report.AffectedWorkOrders, func(i, j int) bool {
		return report.AffectedWorkOrders[i].ProductionOrderID < report.AffectedWorkOrders[j].ProductionOrderID
	})
	for id, agg := range shipments {
		sort.Strings(agg.serials)
		report.AffectedShipments = append(report.AffectedShipments, dto.AffectedShipment{
			ShipmentID: id, CustomerID: uuidPtrString(agg.customerID), SerialNumber: agg.serials,
		})
	}
	sort.Slice(report.AffectedShipments, func(i, j int) bool {
		return report.AffectedShipments[i].ShipmentID < report.AffectedShipments[j].ShipmentID
	})
	for id, agg := range customers {
		sort.Strings(agg.serials)
		sort.Strings(agg.shipments)
		report.CustomerImpact = append(report.CustomerImpact, dto.CustomerImpact{
			CustomerID: id.String(), SerialCount: len(agg.serials), Serials: agg.serials, ShipmentIDs: agg.shipments,
		})
	}
	sort.Slice(report.CustomerImpact, func(i, j int) bool {
		return report.CustomerImpact[i].CustomerID < report.CustomerImpact[j].CustomerID
	})
	for unit, qty := range byUnit {
		report.QuantityByUnit = append(report.QuantityByUnit, dto.QuantityByUnit{UnitOfMeasure: unit, Quantity: qty})
	}
	sort.Slice(report.QuantityByUnit, func(i, j int) bool {
		return report.QuantityByUnit[i].UnitOfMeasure < report.QuantityByUnit[j].UnitOfMeasure
	})

	report.TotalQuantityAffected = total
	report.TotalEntitiesAffected = len(w.scheduled)
	report.MaxDepthReached = w.maxDepthReached
}

func metaUUID(m map[string]any, key string) *uuid.UUID {
	s, _ := m[key].(string)
	if s == "" {
		return nil
	}
	id, err := uuid.Parse(s)
	if err != nil {
		return nil
	}
	return &id
}

func uniqueTrimmed(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
