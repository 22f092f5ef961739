package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"traceability/internal/apierror"
	"traceability/internal/dto"
	"traceability/internal/model"
	"traceability/internal/repository"
	"traceability/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// GenealogyHandler serves the audit trail and the graph traversals.
type GenealogyHandler struct {
	genealogy service.GenealogyService
	traversal service.TraversalService
}

func NewGenealogyHandler(genealogy service.GenealogyService, traversal service.TraversalService) *GenealogyHandler {
	return &GenealogyHandler{genealogy: genealogy, traversal: traversal}
}

// pathRef reads :entity_type and :entity_id. The type is case-insensitive.
func pathRef(c *gin.Context) (model.EntityRef, bool) {
	t := model.EntityType(strings.ToUpper(c.Param("entity_type")))
	if !t.Valid() {
		c.JSON(http.StatusBadRequest, apierror.New("entity_type must be LOT or SERIAL"))
		return model.EntityRef{}, false
	}
	id, ok := pathID(c, "entity_id")
	if !ok {
		return model.EntityRef{}, false
	}
	return model.EntityRef{Type: t, ID: id}, true
}

func parseTimeParam(c *gin.Context, name, value string) (*time.Time, bool) {
	if value == "" {
		return nil, true
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(name+" must be an RFC 3339 timestamp"))
		return nil, false
	}
	return &t, true
}

// History godoc
// @Summary      Audit trail of a lot or serial
// @Description  Records ordered by (operation_timestamp, sequence). At most limit records are returned; truncated tells whether more exist.
// @Tags         genealogy
// @Produce      json
// @Security     BearerAuth
// @Param        entity_type path  string true  "LOT|SERIAL"
// @Param        entity_id   path  string true  "Entity UUID"
// @Param        from        query string false "RFC 3339, inclusive"
// @Param        to          query string false "RFC 3339, inclusive"
// @Param        operations  query string false "Comma-separated operation types"
// @Param        order       query string false "asc|desc"
// @Param        limit       query int    false "Max records (default 500)"
// @Success      200 {object} dto.HistoryResponse
// @Router       /v1/genealogy/{entity_type}/{entity_id}/history [get]
func (h *GenealogyHandler) History(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	ref, ok := pathRef(c)
	if !ok {
		return
	}
	var filter dto.HistoryFilter
	if !bindQuery(c, &filter) {
		return
	}

	q := repository.HistoryQuery{
		OrganizationID: scope.OrganizationID,
		Ref:            ref,
		Descending:     filter.Order == "desc",
	}
	if q.From, ok = parseTimeParam(c, "from", filter.From); !ok {
		return
	}
	if q.To, ok = parseTimeParam(c, "to", filter.To); !ok {
		return
	}
	for _, op := range strings.Split(filter.Operations, ",") {
		op = strings.TrimSpace(op)
		if op == "" {
			continue
		}
		if !model.OperationType(op).Valid() {
			c.JSON(http.StatusBadRequest, apierror.New("unknown operation type "+op))
			return
		}
		q.Operations = append(q.Operations, model.OperationType(op))
	}

	resp, err := service.CollectHistory(h.genealogy.History(c.Request.Context(), q), filter.Limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// StateAt godoc
// @Summary      Reconstruct an entity's state at a past instant
// @Tags         genealogy
// @Produce      json
// @Security     BearerAuth
// @Param        entity_type path  string true "LOT|SERIAL"
// @Param        entity_id   path  string true "Entity UUID"
// @Param        at          query string true "RFC 3339"
// @Success      200 {object} model.EntityState
// @Failure      404 {object} apierror.APIError
// @Router       /v1/genealogy/{entity_type}/{entity_id}/state-at [get]
func (h *GenealogyHandler) StateAt(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	ref, ok := pathRef(c)
	if !ok {
		return
	}
	if c.Query("at") == "" {
		c.JSON(http.StatusBadRequest, apierror.New("at is required"))
		return
	}
	at, ok := parseTimeParam(c, "at", c.Query("at"))
	if !ok {
		return
	}
	state, err := h.genealogy.StateAt(c.Request.Context(), scope.OrganizationID, ref, *at)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, state)
}

// WhereUsed godoc
// @Summary      Forward trace (parent → child)
// @Description  Nodes already on the path are flagged cycle, nodes expanded elsewhere are flagged repeated; neither is expanded. Hitting the node ceiling returns the tree built so far with truncated=true.
// @Tags         genealogy
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body     dto.TraversalRequest true "Start entity and depth"
// @Success      200  {object} dto.TraversalResponse
// @Failure      422  {object} apierror.APIError
// @Router       /v1/genealogy/where-used [post]
func (h *GenealogyHandler) WhereUsed(c *gin.Context) {
	h.trace(c, h.traversal.WhereUsed)
}

// WhereFrom godoc
// @Summary      Backward trace (child → parent)
// @Tags         genealogy
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body     dto.TraversalRequest true "Start entity and depth"
// @Success      200  {object} dto.TraversalResponse
// @Router       /v1/genealogy/where-from [post]
func (h *GenealogyHandler) WhereFrom(c *gin.Context) {
	h.trace(c, h.traversal.WhereFrom)
}

type traceFunc func(ctx context.Context, scope service.Scope, ref model.EntityRef, maxDepth int) (*dto.TraversalResponse, error)

func (h *GenealogyHandler) trace(c *gin.Context, fn traceFunc) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	var req dto.TraversalRequest
	if !bindAndValidate(c, &req) {
		return
	}
	id, err := uuid.Parse(req.Entity.ID)
	if err != nil {
		c.JSON(http.StatusBadRequest, apierror.New("invalid entity.id"))
		return
	}
	ref := model.EntityRef{Type: model.EntityType(req.Entity.Type), ID: id}
	depth := 0
	if req.MaxDepth != nil {
		depth = *req.MaxDepth
	}
	resp, err := fn(c.Request.Context(), scope, ref, depth)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
