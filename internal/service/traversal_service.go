package service

import (
	"context"

	"traceability/internal/apperr"
	"traceability/internal/dto"
	"traceability/internal/model"
	"traceability/internal/repository"

	"github.com/rs/zerolog/log"
)

// TraversalConfig bounds every walk of the link graph.
type TraversalConfig struct {
	DefaultDepth int // used when the caller passes 0
	MaxDepth     int // upper bound of the public contract
	RecallDepth  int // depth used by recall reports
	NodeLimit    int // total emitted nodes per walk
}

// TraversalService answers where-used (parent → child) and where-from
// (child → parent) queries. Both run on a read-only snapshot and never block
// ledger writers.
type TraversalService interface {
	WhereUsed(ctx context.Context, scope Scope, ref model.EntityRef, maxDepth int) (*dto.TraversalResponse, error)
	WhereFrom(ctx context.Context, scope Scope, ref model.EntityRef, maxDepth int) (*dto.TraversalResponse, error)
}

type traversalService struct {
	graph repository.GraphReader
	cfg   TraversalConfig
}

func NewTraversalService(graph repository.GraphReader, cfg TraversalConfig) TraversalService {
	return &traversalService{graph: graph, cfg: cfg}
}

func (s *traversalService) WhereUsed(ctx context.Context, scope Scope, ref model.EntityRef, maxDepth int) (*dto.TraversalResponse, error) {
	return s.trace(ctx, scope, ref, maxDepth, model.Downstream)
}

func (s *traversalService) WhereFrom(ctx context.Context, scope Scope, ref model.EntityRef, maxDepth int) (*dto.TraversalResponse, error) {
	return s.trace(ctx, scope, ref, maxDepth, model.Upstream)
}

func (s *traversalService) resolveDepth(requested int) (int, error) {
	if requested == 0 {
		return s.cfg.DefaultDepth, nil
	}
	if requested < 1 || requested > s.cfg.MaxDepth {
		return 0, apperr.Validation("max_depth must be between 1 and %d", s.cfg.MaxDepth)
	}
	return requested, nil
}

func (s *traversalService) trace(ctx context.Context, scope Scope, ref model.EntityRef, maxDepth int, dir model.Direction) (*dto.TraversalResponse, error) {
	if err := scope.validate(); err != nil {
		return nil, err
	}
	if !ref.Type.Valid() {
		return nil, apperr.Validation("invalid entity_type %q", ref.Type)
	}
	depth, err := s.resolveDepth(maxDepth)
	if err != nil {
		return nil, err
	}

	var resp *dto.TraversalResponse
	err = s.graph.ReadSnapshot(ctx, scope.OrganizationID, func(snap repository.GraphSnapshot) error {
		root, err := snap.Entities([]model.EntityRef{ref})
		if err != nil {
			return err
		}
		if _, ok := root[ref]; !ok {
			return apperr.NotFound("%s not found", ref)
		}
		w, err := walkGraph(snap, []model.EntityRef{ref}, dir, depth, s.cfg.NodeLimit)
		if err != nil {
			if w == nil || apperr.KindOf(err) != apperr.KindTraversalLimit {
				return err
			}
			// the tree built so far is still returned, flagged as truncated
			resp = w.response(dir)
			resp.Truncated = true
			resp.Warnings = append(resp.Warnings, err.Error())
			log.Warn().Str("root", ref.String()).Int("node_limit", s.cfg.NodeLimit).Msg("traversal truncated at node limit")
			return nil
		}
		resp = w.response(dir)
		return nil
	})
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("root", ref.String()).
		Str("direction", string(dir)).
		Int("total_nodes", resp.TotalNodes).
		Int("max_depth_reached", resp.MaxDepthReached).
		Msg("traversal complete")
	return resp, nil
}

// ── Walk ──────────────────────────────────────────────────────────────────────

type walkNode struct {
	ref    model.EntityRef
	node   *dto.TraceNode
	parent *walkNode
	link   *model.TraceabilityLink
	info   model.EntityInfo
	found  bool
	expand bool
}

// walk is one breadth-first expansion from one or more roots. scheduled is
// the visited set shared by every root: an entity is expanded at most once.
type walk struct {
	dir             model.Direction
	maxDepth        int
	nodeLimit       int
	roots           []*walkNode
	nodes           []*walkNode // emission order, which is BFS order
	scheduled       map[model.EntityRef]bool
	maxDepthReached int
	cycles          int
	limitHit        bool
}

// walkGraph expands roots level by level, fetching the edges of a whole level
// in one query. A node already on its own root path is emitted with Cycle set;
// a node already expanded elsewhere is emitted with Repeated set; neither is
// expanded again. Nodes at maxDepth are not expanded.
//
// When the node ceiling is hit the partial walk is returned together with a
// TraversalLimitExceeded error.
func walkGraph(snap repository.GraphSnapshot, roots []model.EntityRef, dir model.Direction, maxDepth, nodeLimit int) (*walk, error) {
	w := &walk{
		dir:       dir,
		maxDepth:  maxDepth,
		nodeLimit: nodeLimit,
		scheduled: make(map[model.EntityRef]bool),
	}

	frontier := make([]*walkNode, 0, len(roots))
	for _, ref := range roots {
		n, ok := w.emit(nil, ref, nil, 0)
		if !ok {
			break
		}
		w.roots = append(w.roots, n)
		frontier = append(frontier, n)
	}
	if err := w.describe(snap, frontier); err != nil {
		return nil, err
	}

	for depth := 0; depth < maxDepth && len(frontier) > 0 && !w.limitHit; depth++ {
		var refs []model.EntityRef
		for _, n := range frontier {
			if n.expand {
				refs = append(refs, n.ref)
			}
		}
		if len(refs) == 0 {
			break
		}
		edges, err := snap.Edges(refs, dir)
		if err != nil {
			return nil, err
		}
		byFrom := make(map[model.EntityRef][]*model.TraceabilityLink, len(refs))
		for i := range edges {
			e := &edges[i]
			from := w.from(e)
			byFrom[from] = append(byFrom[from], e)
		}

		var next []*walkNode
	level:
		for _, n := range frontier {
			if !n.expand {
				continue
			}
			for _, e := range byFrom[n.ref] {
				child, ok := w.emit(n, w.to(e), e, depth+1)
				if !ok {
					break level
				}
				next = append(next, child)
			}
		}
		if err := w.describe(snap, next); err != nil {
			return nil, err
		}
		frontier = next
	}

	if w.limitHit {
		return w, apperr.TraversalLimit("traversal exceeded the limit of %d nodes", nodeLimit)
	}
	return w, nil
}

func (w *walk) from(e *model.TraceabilityLink) model.EntityRef {
	if w.dir == model.Upstream {
		return e.Child()
	}
	return e.Parent()
}

func (w *walk) to(e *model.TraceabilityLink) model.EntityRef {
	if w.dir == model.Upstream {
		return e.Parent()
	}
	return e.Child()
}

func onPath(n *walkNode, ref model.EntityRef) bool {
	for p := n; p != nil; p = p.parent {
		if p.ref == ref {
			return true
		}
	}
	return false
}

func (w *walk) emit(parent *walkNode, ref model.EntityRef, link *model.TraceabilityLink, depth int) (*walkNode, bool) {
	if len(w.nodes) >= w.nodeLimit {
		w.limitHit = true
		return nil, false
	}
	n := &walkNode{
		ref:    ref,
		parent: parent,
		link:   link,
		node: &dto.TraceNode{
			EntityType: string(ref.Type),
			EntityID:   ref.ID.String(),
			Depth:      depth,
			Children:   []*dto.TraceNode{},
		},
	}
	switch {
	case parent != nil && onPath(parent, ref):
		n.node.Cycle = true
		w.cycles++
	case w.scheduled[ref]:
		n.node.Repeated = true
	default:
		w.scheduled[ref] = true
		n.expand = depth < w.maxDepth
	}
	if link != nil {
		n.node.LinkID = ptr(link.ID.String())
		n.node.Relationship = string(link.RelationshipType)
		n.node.Quantity = link.QuantityUsed
		n.node.UnitOfMeasure = link.UnitOfMeasure
		n.node.ProductionOrderID = uuidPtrString(link.ProductionOrderID)
	}
	if parent != nil {
		parent.node.Children = append(parent.node.Children, n.node)
	}
	if depth > w.maxDepthReached {
		w.maxDepthReached = depth
	}
	w.nodes = append(w.nodes, n)
	return n, true
}

// describe resolves identifier and material of a whole level in one query.
func (w *walk) describe(snap repository.GraphSnapshot, level []*walkNode) error {
	if len(level) == 0 {
		return nil
	}
	seen := make(map[model.EntityRef]bool, len(level))
	refs := make([]model.EntityRef, 0, len(level))
	for _, n := range level {
		if !seen[n.ref] {
			seen[n.ref] = true
			refs = append(refs, n.ref)
		}
	}
	infos, err := snap.Entities(refs)
	if err != nil {
		return err
	}
	for _, n := range level {
		info, ok := infos[n.ref]
		n.found = ok
		if !ok {
			continue
		}
		n.info = info
		n.node.Identifier = info.Identifier
		n.node.MaterialID = info.MaterialID.String()
	}
	return nil
}

func (w *walk) response(dir model.Direction) *dto.TraversalResponse {
	resp := &dto.TraversalResponse{
		Direction:       string(dir),
		TotalNodes:      len(w.nodes),
		MaxDepthReached: w.maxDepthReached,
		MaxDepth:        w.maxDepth,
		CycleCount:      w.cycles,
	}
	if len(w.roots) > 0 {
		resp.Root = w.roots[0].node
	}
	return resp
}
