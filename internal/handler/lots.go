package handler

import (
	"net/http"

	"traceability/internal/dto"
	"traceability/internal/service"

	"github.com/gin-gonic/gin"
)

type LotsHandler struct {
	svc     service.LotService
	retries int
}

// NewLotsHandler builds the lot endpoints. Mutations are retried up to
// retries times on a concurrency conflict.
func NewLotsHandler(svc service.LotService, retries int) *LotsHandler {
	return &LotsHandler{svc: svc, retries: retries}
}

// Create godoc
// @Summary      Create a lot
// @Description  Registers a lot with its initial quantity and appends a "created" genealogy record.
// @Tags         lots
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body     dto.CreateLotRequest true "Lot"
// @Success      201  {object} dto.LotResponse
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.ValidationError
// @Router       /v1/lots [post]
func (h *LotsHandler) Create(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	var req dto.CreateLotRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Create(c.Request.Context(), scope, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary      List lots
// @Tags         lots
// @Produce      json
// @Security     BearerAuth
// @Param        material_id    query string false "Material UUID"
// @Param        quality_status query string false "PENDING|RELEASED|QUARANTINE|REJECTED|EXPIRED"
// @Param        location       query string false "Location"
// @Param        active         query string false "true|false|all"
// @Param        page           query int    false "Page"
// @Param        limit          query int    false "Page size"
// @Success      200  {object} dto.LotListResponse
// @Router       /v1/lots [get]
func (h *LotsHandler) List(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	var filter dto.LotFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.List(c.Request.Context(), scope, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Get godoc
// @Summary      Get a lot
// @Tags         lots
// @Produce      json
// @Security     BearerAuth
// @Param        id  path     string true "Lot UUID"
// @Success      200 {object} dto.LotResponse
// @Failure      404 {object} apierror.APIError
// @Router       /v1/lots/{id} [get]
func (h *LotsHandler) Get(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Get(c.Request.Context(), scope, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// GetByNumber godoc
// @Summary      Get a lot by lot number
// @Tags         lots
// @Produce      json
// @Security     BearerAuth
// @Param        lot_number path     string true "Lot number"
// @Success      200        {object} dto.LotResponse
// @Failure      404        {object} apierror.APIError
// @Router       /v1/lots/by-number/{lot_number} [get]
func (h *LotsHandler) GetByNumber(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	resp, err := h.svc.GetByLotNumber(c.Request.Context(), scope, c.Param("lot_number"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Reserve godoc
// @Summary      Reserve lot quantity
// @Description  Moves quantity from available to reserved. Fails with InsufficientQuantity when available is short.
// @Tags         lots
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                true "Lot UUID"
// @Param        body body     dto.ReserveLotRequest true "Quantity"
// @Success      200  {object} dto.LotResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/lots/{id}/reserve [post]
func (h *LotsHandler) Reserve() gin.HandlerFunc { return mutation(h.retries, h.svc.Reserve) }

// Consume godoc
// @Summary      Consume reserved lot quantity
// @Tags         lots
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                true "Lot UUID"
// @Param        body body     dto.ConsumeLotRequest true "Quantity"
// @Success      200  {object} dto.LotResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/lots/{id}/consume [post]
func (h *LotsHandler) Consume() gin.HandlerFunc { return mutation(h.retries, h.svc.Consume) }

// @Router /v1/lots/{id}/release [post]
func (h *LotsHandler) Release() gin.HandlerFunc { return mutation(h.retries, h.svc.Release) }

// @Router /v1/lots/{id}/quality-status [post]
func (h *LotsHandler) QualityStatus() gin.HandlerFunc {
	return mutation(h.retries, h.svc.AdjustQualityStatus)
}

// @Router /v1/lots/{id}/adjust [post]
func (h *LotsHandler) Adjust() gin.HandlerFunc { return mutation(h.retries, h.svc.Adjust) }

// @Router /v1/lots/{id}/relocate [post]
func (h *LotsHandler) Relocate() gin.HandlerFunc { return mutation(h.retries, h.svc.Relocate) }

// Deactivate godoc
// @Summary      Deactivate a lot
// @Description  Soft delete. The lot keeps its history and links.
// @Tags         lots
// @Security     BearerAuth
// @Param        id  path     string true "Lot UUID"
// @Success      200 {object} dto.LotResponse
// @Router       /v1/lots/{id} [delete]
func (h *LotsHandler) Deactivate(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.DeactivateRequest
	if !bindOptional(c, &req) {
		return
	}
	ctx := c.Request.Context()
	resp, err := withRetry(ctx, h.retries, func() (*dto.LotResponse, error) {
		return h.svc.Deactivate(ctx, scope, id, req)
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
