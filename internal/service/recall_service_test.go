package service

import (
	"context"
	"errors"
	"testing"

	"traceability/internal/apperr"
	"traceability/internal/dto"
	"traceability/internal/model"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubNotifier struct {
	reports []*dto.RecallReportResponse
	err     error
}

func (n *stubNotifier) EnqueueRecallReport(_ context.Context, r *dto.RecallReportResponse) error {
	if n.err != nil {
		return n.err
	}
	n.reports = append(n.reports, r)
	return nil
}

func (f *fixture) recall(notifier RecallNotifier) RecallService {
	return f.recallWith(testTraversalConfig, notifier)
}

func (f *fixture) recallWith(cfg TraversalConfig, notifier RecallNotifier) RecallService {
	return NewRecallService(NewLotLookup(f.lotRepo, nil, 0), f.graph, cfg, notifier)
}

func recallReq(numbers ...string) dto.RecallReportRequest {
	return dto.RecallReportRequest{LotNumbers: numbers, Reason: "supplier contamination", Severity: "HIGH"}
}

func TestRecall_CountsEachEntityOnceAcrossPaths(t *testing.T) {
	f := newFixture()
	defer f.tick()()
	l1 := lotRef(f.createLot(t, "L1", "100"))
	l2 := lotRef(f.createLot(t, "L2", "100"))
	l3 := lotRef(f.createLot(t, "L3", "100"))
	l4 := lotRef(f.createLot(t, "L4", "100"))
	f.link(t, l1, l2, model.RelConsumedIn, "10")
	f.link(t, l1, l3, model.RelConsumedIn, "20")
	f.link(t, l2, l4, model.RelConsumedIn, "5")
	f.link(t, l3, l4, model.RelConsumedIn, "7")

	report, err := f.recall(nil).Generate(context.Background(), f.scope, recallReq("L1"))
	require.NoError(t, err)

	assert.True(t, dec("35").Equal(report.TotalQuantityAffected), report.TotalQuantityAffected.String())
	require.Len(t, report.QuantityByUnit, 1)
	assert.Equal(t, "kg", report.QuantityByUnit[0].UnitOfMeasure)
	assert.True(t, dec("35").Equal(report.QuantityByUnit[0].Quantity))
	assert.Equal(t, 4, report.TotalEntitiesAffected)
	assert.Equal(t, 2, report.MaxDepthReached)
	assert.False(t, report.Partial)
	assert.Empty(t, report.Warnings)
	require.Len(t, report.AffectedLots, 1)
	assert.Equal(t, "L1", report.AffectedLots[0].LotNumber)
}

func TestRecall_SharedDescendantOfTwoRootsCountedOnce(t *testing.T) {
	f := newFixture()
	defer f.tick()()
	l1 := lotRef(f.createLot(t, "L1", "100"))
	l5 := lotRef(f.createLot(t, "L5", "100"))
	l2 := lotRef(f.createLot(t, "L2", "100"))
	f.link(t, l1, l2, model.RelConsumedIn, "10")
	f.link(t, l5, l2, model.RelConsumedIn, "3")

	report, err := f.recall(nil).Generate(context.Background(), f.scope, recallReq("L1", "L5"))
	require.NoError(t, err)
	assert.True(t, dec("10").Equal(report.TotalQuantityAffected))
	assert.Equal(t, 3, report.TotalEntitiesAffected)
	assert.Len(t, report.AffectedLots, 2)
}

func TestRecall_CycleDoesNotDoubleCount(t *testing.T) {
	f := newFixture()
	defer f.tick()()
	l1 := lotRef(f.createLot(t, "L1", "100"))
	l2 := lotRef(f.createLot(t, "L2", "100"))
	f.link(t, l1, l2, model.RelConsumedIn, "5")
	f.link(t, l2, l1, model.RelConsumedIn, "3")

	report, err := f.recall(nil).Generate(context.Background(), f.scope, recallReq("L1"))
	require.NoError(t, err)
	assert.True(t, dec("5").Equal(report.TotalQuantityAffected))
	assert.Equal(t, 2, report.TotalEntitiesAffected)
}

// Quantity is attributed to an entity by the edge of its first visit. A lot
// first reached through an edge that carries no quantity adds nothing, even
// when a quantity-bearing edge reaches it later.
func TestRecall_QuantityComesFromFirstVisitEdge(t *testing.T) {
	cases := []struct {
		name  string
		first model.RelationshipType
		want  string
	}{
		{"packaged first", model.RelPackagedWith, "0"},
		{"consumed first", model.RelConsumedIn, "6"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFixture()
			defer f.tick()()
			l1 := lotRef(f.createLot(t, "L1", "100"))
			l2 := lotRef(f.createLot(t, "L2", "100"))
			if tc.first == model.RelPackagedWith {
				f.link(t, l1, l2, model.RelPackagedWith, "")
				f.link(t, l1, l2, model.RelConsumedIn, "6")
			} else {
				f.link(t, l1, l2, model.RelConsumedIn, "6")
				f.link(t, l1, l2, model.RelPackagedWith, "")
			}

			report, err := f.recall(nil).Generate(context.Background(), f.scope, recallReq("L1"))
			require.NoError(t, err)
			assert.True(t, dec(tc.want).Equal(report.TotalQuantityAffected), report.TotalQuantityAffected.String())
			assert.Equal(t, 2, report.TotalEntitiesAffected)
		})
	}
}

func TestRecall_GroupsShipmentsByCustomer(t *testing.T) {
	f := newFixture()
	defer f.tick()()
	ctx := context.Background()
	l1 := lotRef(f.createLot(t, "L1", "100"))
	s1 := f.registerSerial(t, "SN-1")
	s2 := f.registerSerial(t, "SN-2")
	f.link(t, l1, serialRef(s1), model.RelAssembledInto, "1")
	f.link(t, l1, serialRef(s2), model.RelAssembledInto, "1")

	customer := uuid.NewString()
	shipment := uuid.NewString()
	for _, s := range []*dto.SerialResponse{s1, s2} {
		id := uuid.MustParse(s.ID)
		_, err := f.serials.Reserve(ctx, f.scope, id, dto.SerialReserveRequest{})
		require.NoError(t, err)
		_, err = f.serials.Ship(ctx, f.scope, id, dto.ShipSerialRequest{CustomerID: customer, ShipmentID: &shipment})
		require.NoError(t, err)
	}
	// SN-2 came back; the shipped record still ties it to the customer
	id2 := uuid.MustParse(s2.ID)
	_, err := f.serials.Return(ctx, f.scope, id2, dto.SerialTransitionRequest{})
	require.NoError(t, err)
	_, err = f.serials.ReturnToStock(ctx, f.scope, id2, dto.ReturnToStockRequest{Location: "RMA"})
	require.NoError(t, err)

	report, err := f.recall(nil).Generate(ctx, f.scope, recallReq("L1"))
	require.NoError(t, err)

	require.Len(t, report.CustomerImpact, 1)
	impact := report.CustomerImpact[0]
	assert.Equal(t, customer, impact.CustomerID)
	assert.Equal(t, 2, impact.SerialCount)
	assert.Equal(t, []string{"SN-1", "SN-2"}, impact.Serials)
	assert.Equal(t, []string{shipment}, impact.ShipmentIDs)

	require.Len(t, report.AffectedShipments, 1)
	assert.Equal(t, shipment, report.AffectedShipments[0].ShipmentID)
	assert.Equal(t, customer, *report.AffectedShipments[0].CustomerID)
	assert.Equal(t, []string{"SN-1", "SN-2"}, report.AffectedShipments[0].SerialNumber)
	assert.True(t, dec("2").Equal(report.TotalQuantityAffected))
}

func TestRecall_AggregatesWorkOrders(t *testing.T) {
	f := newFixture()
	defer f.tick()()
	ctx := context.Background()
	l1 := lotRef(f.createLot(t, "L1", "100"))
	l2 := lotRef(f.createLot(t, "L2", "100"))
	l3 := lotRef(f.createLot(t, "L3", "100"))
	order := uuid.NewString()
	for _, child := range []model.EntityRef{l2, l3} {
		q := dec("4")
		_, err := f.links.CreateLink(ctx, f.scope, dto.CreateLinkRequest{
			Parent: refReq(l1), Child: refReq(child), RelationshipType: "CONSUMED_IN",
			QuantityUsed: &q, ProductionOrderID: &order,
		})
		require.NoError(t, err)
	}

	report, err := f.recall(nil).Generate(ctx, f.scope, recallReq("L1"))
	require.NoError(t, err)
	require.Len(t, report.AffectedWorkOrders, 1)
	wo := report.AffectedWorkOrders[0]
	assert.Equal(t, order, wo.ProductionOrderID)
	assert.True(t, dec("8").Equal(wo.QuantityConsumed))
	assert.Equal(t, []string{"L2", "L3"}, wo.Entities)
}

func TestRecall_UnresolvedLotsMakeReportPartial(t *testing.T) {
	f := newFixture()
	f.createLot(t, "L1", "100")

	report, err := f.recall(nil).Generate(context.Background(), f.scope, recallReq("L1", "NOPE", " L1 "))
	require.NoError(t, err)
	assert.True(t, report.Partial)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], "NOPE")
	assert.Len(t, report.AffectedLots, 1)
}

func TestRecall_NothingResolved(t *testing.T) {
	f := newFixture()
	f.createLot(t, "L1", "100")

	_, err := f.recall(nil).Generate(context.Background(), f.scope, recallReq("NOPE"))
	assert.Equal(t, apperr.CodeMaterialOrLotNotFound, apperr.CodeOf(err))

	wrong := uuid.NewString()
	req := recallReq("L1")
	req.MaterialID = &wrong
	_, err = f.recall(nil).Generate(context.Background(), f.scope, req)
	assert.Equal(t, apperr.CodeMaterialOrLotNotFound, apperr.CodeOf(err))
}

func TestRecall_MaterialFilterKeepsMatchingLots(t *testing.T) {
	f := newFixture()
	material := uuid.NewString()
	f.createLotOf(t, "L1", "100", material)
	f.createLot(t, "L2", "100")

	req := recallReq("L1", "L2")
	req.MaterialID = &material
	report, err := f.recall(nil).Generate(context.Background(), f.scope, req)
	require.NoError(t, err)
	require.Len(t, report.AffectedLots, 1)
	assert.Equal(t, "L1", report.AffectedLots[0].LotNumber)
	assert.True(t, report.Partial)
	assert.Len(t, report.Warnings, 1)
}

func TestRecall_NodeLimitDegradesToPartialReport(t *testing.T) {
	f := newFixture()
	defer f.tick()()
	root := lotRef(f.createLot(t, "ROOT", "100"))
	for _, n := range []string{"C1", "C2", "C3", "C4"} {
		f.link(t, root, lotRef(f.createLot(t, n, "10")), model.RelConsumedIn, "1")
	}
	cfg := testTraversalConfig
	cfg.NodeLimit = 3

	report, err := f.recallWith(cfg, nil).Generate(context.Background(), f.scope, recallReq("ROOT"))
	require.NoError(t, err)
	assert.True(t, report.Partial)
	require.Len(t, report.Warnings, 1)
	assert.Contains(t, report.Warnings[0], string(apperr.CodeTraversalLimit))
	assert.Equal(t, 3, report.TotalEntitiesAffected)
	assert.True(t, dec("2").Equal(report.TotalQuantityAffected))
}

func TestRecall_Validation(t *testing.T) {
	f := newFixture()
	svc := f.recall(nil)
	ctx := context.Background()

	_, err := svc.Generate(ctx, f.scope, dto.RecallReportRequest{Reason: "x", Severity: "HIGH"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.Generate(ctx, f.scope, dto.RecallReportRequest{LotNumbers: []string{"L1"}, Severity: "HIGH"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
	_, err = svc.Generate(ctx, f.scope, dto.RecallReportRequest{LotNumbers: []string{"L1"}, Reason: "x", Severity: "URGENT"})
	assert.Equal(t, apperr.KindValidation, apperr.KindOf(err))
}

func TestRecall_Notification(t *testing.T) {
	f := newFixture()
	f.createLot(t, "L1", "100")
	ctx := context.Background()
	req := recallReq("L1")
	req.Notify = true

	notifier := &stubNotifier{}
	report, err := f.recall(notifier).Generate(ctx, f.scope, req)
	require.NoError(t, err)
	assert.True(t, report.NotificationQueued)
	require.Len(t, notifier.reports, 1)
	assert.Equal(t, report.ReportID, notifier.reports[0].ReportID)

	failing := &stubNotifier{err: errors.New("redis down")}
	report, err = f.recall(failing).Generate(ctx, f.scope, req)
	require.NoError(t, err)
	assert.False(t, report.NotificationQueued)
	assert.Len(t, report.Warnings, 1)

	report, err = f.recall(nil).Generate(ctx, f.scope, req)
	require.NoError(t, err)
	assert.False(t, report.NotificationQueued)
	assert.Len(t, report.Warnings, 1)
}
