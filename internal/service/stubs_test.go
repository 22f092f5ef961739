package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"traceability/internal/apperr"
	"traceability/internal/model"
	"traceability/internal/repository"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ── In-memory store shared by every stub repository ─────────────────────────

type memStore struct {
	mu      sync.Mutex
	lots    map[uuid.UUID]model.LotBatch
	serials map[uuid.UUID]model.SerialUnit
	links   []model.TraceabilityLink
	records []model.GenealogyRecord
	seq     int64
}

func newMemStore() *memStore {
	return &memStore{
		lots:    make(map[uuid.UUID]model.LotBatch),
		serials: make(map[uuid.UUID]model.SerialUnit),
	}
}

func (m *memStore) recordsFor(ref model.EntityRef) []model.GenealogyRecord {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.GenealogyRecord
	for _, r := range m.records {
		if r.Ref() == ref {
			out = append(out, r)
		}
	}
	return out
}

// ── LotRepository stub ───────────────────────────────────────────────────────

type stubLotRepo struct{ m *memStore }

var _ repository.LotRepository = (*stubLotRepo)(nil)

func (r *stubLotRepo) DB() *gorm.DB { return nil }

func (r *stubLotRepo) FindByID(_ context.Context, orgID, id uuid.UUID) (*model.LotBatch, error) {
	return r.FindByIDTx(nil, orgID, id)
}

func (r *stubLotRepo) FindByIDTx(_ *gorm.DB, orgID, id uuid.UUID) (*model.LotBatch, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	lot, ok := r.m.lots[id]
	if !ok || lot.OrganizationID != orgID {
		return nil, apperr.NotFound("lot %s not found", id)
	}
	return &lot, nil
}

func (r *stubLotRepo) FindByLotNumber(_ context.Context, orgID uuid.UUID, lotNumber string) (*model.LotBatch, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, lot := range r.m.lots {
		if lot.OrganizationID == orgID && lot.LotNumber == lotNumber {
			l := lot
			return &l, nil
		}
	}
	return nil, apperr.NotFound("lot %s not found", lotNumber)
}

func (r *stubLotRepo) FindByLotNumbers(_ context.Context, orgID uuid.UUID, lotNumbers []string) ([]model.LotBatch, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	want := make(map[string]bool, len(lotNumbers))
	for _, n := range lotNumbers {
		want[n] = true
	}
	var out []model.LotBatch
	for _, lot := range r.m.lots {
		if lot.OrganizationID == orgID && want[lot.LotNumber] {
			out = append(out, lot)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LotNumber < out[j].LotNumber })
	return out, nil
}

func (r *stubLotRepo) List(_ context.Context, orgID uuid.UUID, filter repository.LotFilter) ([]model.LotBatch, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []model.LotBatch
	for _, lot := range r.m.lots {
		if lot.OrganizationID != orgID || !lot.Active {
			continue
		}
		if filter.MaterialID != nil && lot.MaterialID != *filter.MaterialID {
			continue
		}
		out = append(out, lot)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LotNumber < out[j].LotNumber })
	return out, int64(len(out)), nil
}

func (r *stubLotRepo) CreateTx(_ *gorm.DB, lot *model.LotBatch) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, l := range r.m.lots {
		if l.OrganizationID == lot.OrganizationID && l.LotNumber == lot.LotNumber {
			return apperr.DuplicateLotNumber(lot.LotNumber)
		}
	}
	if lot.ID == uuid.Nil {
		lot.ID = uuid.New()
	}
	r.m.lots[lot.ID] = *lot
	return nil
}

func (r *stubLotRepo) UpdateVersionedTx(_ *gorm.DB, lot *model.LotBatch) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.lots[lot.ID]
	if !ok || stored.OrganizationID != lot.OrganizationID || stored.Version != lot.Version {
		return apperr.ErrConcurrencyConflict
	}
	lot.Version++
	r.m.lots[lot.ID] = *lot
	return nil
}

// flakyLotRepo fails the first n versioned updates with a conflict.
type flakyLotRepo struct {
	*stubLotRepo
	failures int
}

func (r *flakyLotRepo) UpdateVersionedTx(tx *gorm.DB, lot *model.LotBatch) error {
	if r.failures > 0 {
		r.failures--
		return apperr.ErrConcurrencyConflict
	}
	return r.stubLotRepo.UpdateVersionedTx(tx, lot)
}

// ── SerialRepository stub ────────────────────────────────────────────────────

type stubSerialRepo struct{ m *memStore }

var _ repository.SerialRepository = (*stubSerialRepo)(nil)

func (r *stubSerialRepo) DB() *gorm.DB { return nil }

func (r *stubSerialRepo) FindByID(_ context.Context, orgID, id uuid.UUID) (*model.SerialUnit, error) {
	return r.FindByIDTx(nil, orgID, id)
}

func (r *stubSerialRepo) FindByIDTx(_ *gorm.DB, orgID, id uuid.UUID) (*model.SerialUnit, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	s, ok := r.m.serials[id]
	if !ok || s.OrganizationID != orgID {
		return nil, apperr.NotFound("serial %s not found", id)
	}
	return &s, nil
}

func (r *stubSerialRepo) FindBySerialNumber(_ context.Context, orgID uuid.UUID, serialNumber string) (*model.SerialUnit, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, s := range r.m.serials {
		if s.OrganizationID == orgID && s.SerialNumber == serialNumber {
			u := s
			return &u, nil
		}
	}
	return nil, apperr.NotFound("serial %s not found", serialNumber)
}

func (r *stubSerialRepo) List(_ context.Context, orgID uuid.UUID, _ repository.SerialFilter) ([]model.SerialUnit, int64, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []model.SerialUnit
	for _, s := range r.m.serials {
		if s.OrganizationID == orgID {
			out = append(out, s)
		}
	}
	return out, int64(len(out)), nil
}

func (r *stubSerialRepo) CreateTx(_ *gorm.DB, s *model.SerialUnit) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, u := range r.m.serials {
		if u.OrganizationID == s.OrganizationID && u.SerialNumber == s.SerialNumber {
			return apperr.DuplicateSerialNumber(s.SerialNumber)
		}
	}
	r.m.serials[s.ID] = *s
	return nil
}

func (r *stubSerialRepo) UpdateVersionedTx(_ *gorm.DB, s *model.SerialUnit) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	stored, ok := r.m.serials[s.ID]
	if !ok || stored.OrganizationID != s.OrganizationID || stored.Version != s.Version {
		return apperr.ErrConcurrencyConflict
	}
	s.Version++
	r.m.serials[s.ID] = *s
	return nil
}

// ── LinkRepository stub ──────────────────────────────────────────────────────

type stubLinkRepo struct{ m *memStore }

var _ repository.LinkRepository = (*stubLinkRepo)(nil)

func (r *stubLinkRepo) DB() *gorm.DB { return nil }

func (r *stubLinkRepo) CreateTx(_ *gorm.DB, link *model.TraceabilityLink) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.links = append(r.m.links, *link)
	return nil
}

func (r *stubLinkRepo) FindByID(_ context.Context, orgID, id uuid.UUID) (*model.TraceabilityLink, error) {
	return r.FindByIDTx(nil, orgID, id)
}

func (r *stubLinkRepo) FindByIDTx(_ *gorm.DB, orgID, id uuid.UUID) (*model.TraceabilityLink, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, l := range r.m.links {
		if l.ID == id && l.OrganizationID == orgID {
			link := l
			return &link, nil
		}
	}
	return nil, apperr.NotFound("link %s not found", id)
}

func (r *stubLinkRepo) ListByEntity(_ context.Context, orgID uuid.UUID, ref model.EntityRef, dir model.Direction) ([]model.TraceabilityLink, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []model.TraceabilityLink
	for _, l := range r.m.links {
		if l.OrganizationID != orgID {
			continue
		}
		down := l.Parent() == ref
		up := l.Child() == ref
		if (dir == model.Downstream && down) || (dir == model.Upstream && up) || (dir == model.Both && (down || up)) {
			out = append(out, l)
		}
	}
	return out, nil
}

// ── GenealogyRepository stub ─────────────────────────────────────────────────

type stubGenealogyRepo struct {
	m     *memStore
	pages int // number of Page calls, used to observe laziness
}

var _ repository.GenealogyRepository = (*stubGenealogyRepo)(nil)

func (r *stubGenealogyRepo) AppendTx(_ *gorm.DB, rec *model.GenealogyRecord) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.m.seq++
	rec.Sequence = r.m.seq
	r.m.records = append(r.m.records, *rec)
	return nil
}

func (r *stubGenealogyRepo) Page(_ context.Context, q repository.HistoryQuery, after *repository.HistoryCursor, limit int) ([]model.GenealogyRecord, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.pages++

	less := func(a, b model.GenealogyRecord) bool {
		if !a.OperationTimestamp.Equal(b.OperationTimestamp) {
			return a.OperationTimestamp.Before(b.OperationTimestamp)
		}
		return a.Sequence < b.Sequence
	}
	ops := make(map[model.OperationType]bool, len(q.Operations))
	for _, op := range q.Operations {
		ops[op] = true
	}

	var matched []model.GenealogyRecord
	for _, rec := range r.m.records {
		if rec.OrganizationID != q.OrganizationID || rec.Ref() != q.Ref {
			continue
		}
		if q.From != nil && rec.OperationTimestamp.Before(*q.From) {
			continue
		}
		if q.To != nil && rec.OperationTimestamp.After(*q.To) {
			continue
		}
		if len(ops) > 0 && !ops[rec.OperationType] {
			continue
		}
		if after != nil {
			pos := model.GenealogyRecord{OperationTimestamp: after.Timestamp, Sequence: after.Sequence}
			if q.Descending && !less(rec, pos) {
				continue
			}
			if !q.Descending && !less(pos, rec) {
				continue
			}
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		if q.Descending {
			return less(matched[j], matched[i])
		}
		return less(matched[i], matched[j])
	})
	if len(matched) > limit {
		matched = matched[:limit]
	}
	return matched, nil
}

// ── GraphReader stub ─────────────────────────────────────────────────────────

type stubGraphReader struct {
	m    *memStore
	last *stubSnapshot
}

var _ repository.GraphReader = (*stubGraphReader)(nil)

func (g *stubGraphReader) ReadSnapshot(_ context.Context, orgID uuid.UUID, fn func(repository.GraphSnapshot) error) error {
	g.last = &stubSnapshot{m: g.m, orgID: orgID}
	return fn(g.last)
}

type stubSnapshot struct {
	m           *memStore
	orgID       uuid.UUID
	edgeQueries int
}

func (s *stubSnapshot) Entities(refs []model.EntityRef) (map[model.EntityRef]model.EntityInfo, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	out := make(map[model.EntityRef]model.EntityInfo)
	for _, ref := range refs {
		switch ref.Type {
		case model.EntityLot:
			if l, ok := s.m.lots[ref.ID]; ok && l.OrganizationID == s.orgID {
				out[ref] = model.EntityInfo{Ref: ref, Identifier: l.LotNumber, MaterialID: l.MaterialID, Active: l.Active}
			}
		case model.EntitySerial:
			if u, ok := s.m.serials[ref.ID]; ok && u.OrganizationID == s.orgID {
				out[ref] = model.EntityInfo{
					Ref: ref, Identifier: u.SerialNumber, MaterialID: u.MaterialID, Active: u.Active,
					CustomerID: u.CustomerID, ShipmentID: u.ShipmentID, Status: string(u.Status),
				}
			}
		}
	}
	return out, nil
}

func (s *stubSnapshot) Edges(refs []model.EntityRef, dir model.Direction) ([]model.TraceabilityLink, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	s.edgeQueries++
	want := make(map[model.EntityRef]bool, len(refs))
	for _, r := range refs {
		want[r] = true
	}
	var out []model.TraceabilityLink
	for _, l := range s.m.links {
		if l.OrganizationID != s.orgID {
			continue
		}
		end := l.Parent()
		if dir == model.Upstream {
			end = l.Child()
		}
		if want[end] {
			out = append(out, l)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].LinkedAt.Before(out[j].LinkedAt) })
	return out, nil
}

func (s *stubSnapshot) ShippedRecords(refs []model.EntityRef) ([]model.GenealogyRecord, error) {
	s.m.mu.Lock()
	defer s.m.mu.Unlock()
	want := make(map[model.EntityRef]bool, len(refs))
	for _, r := range refs {
		want[r] = true
	}
	var out []model.GenealogyRecord
	for _, rec := range s.m.records {
		if rec.OrganizationID == s.orgID && rec.OperationType == model.OpShipped && want[rec.Ref()] {
			out = append(out, rec)
		}
	}
	return out, nil
}

// ── Fixture ──────────────────────────────────────────────────────────────────

type fixture struct {
	store     *memStore
	lotRepo   *stubLotRepo
	genRepo   *stubGenealogyRepo
	genealogy GenealogyService
	lots      LotService
	serials   SerialService
	links     LinkService
	traversal TraversalService
	graph     *stubGraphReader
	scope     Scope
	clock     time.Time
}

var testTraversalConfig = TraversalConfig{DefaultDepth: 5, MaxDepth: 10, RecallDepth: 10, NodeLimit: 5000}

func newFixture() *fixture {
	m := newMemStore()
	lotRepo := &stubLotRepo{m: m}
	serialRepo := &stubSerialRepo{m: m}
	linkRepo := &stubLinkRepo{m: m}
	genRepo := &stubGenealogyRepo{m: m}
	graph := &stubGraphReader{m: m}
	gen := NewGenealogyService(genRepo)
	user := uuid.New()
	return &fixture{
		store:     m,
		lotRepo:   lotRepo,
		genRepo:   genRepo,
		genealogy: gen,
		lots:      NewLotService(lotRepo, gen),
		serials:   NewSerialService(serialRepo, lotRepo, gen),
		links:     NewLinkService(linkRepo, lotRepo, serialRepo, gen),
		traversal: NewTraversalService(graph, testTraversalConfig),
		graph:     graph,
		scope:     Scope{OrganizationID: uuid.New(), UserID: &user},
	}
}

// tick installs a clock that advances one second per call so that records
// and links get strictly increasing timestamps.
func (f *fixture) tick() func() {
	f.clock = time.Date(2025, 1, 1, 8, 0, 0, 0, time.UTC)
	prev := now
	now = func() time.Time {
		f.clock = f.clock.Add(time.Second)
		return f.clock
	}
	return func() { now = prev }
}
