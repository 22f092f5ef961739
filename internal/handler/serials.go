package handler

import (
	"net/http"

	"traceability/internal/dto"
	"traceability/internal/service"

	"github.com/gin-gonic/gin"
)

type SerialsHandler struct {
	svc     service.SerialService
	retries int
}

func NewSerialsHandler(svc service.SerialService, retries int) *SerialsHandler {
	return &SerialsHandler{svc: svc, retries: retries}
}

// Register godoc
// @Summary      Register a serialized unit
// @Tags         serials
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body     dto.RegisterSerialRequest true "Serial"
// @Success      201  {object} dto.SerialResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/serials [post]
func (h *SerialsHandler) Register(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	var req dto.RegisterSerialRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Register(c.Request.Context(), scope, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// @Router /v1/serials [get]
func (h *SerialsHandler) List(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	var filter dto.SerialFilter
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

// @Router /v1/serials/{id} [get]
func (h *SerialsHandler) Get(c *gin.Context) {
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

// Transitions. Illegal moves answer 409 InvalidTransition.

// @Router /v1/serials/{id}/reserve [post]
func (h *SerialsHandler) Reserve() gin.HandlerFunc { return mutation(h.retries, h.svc.Reserve) }

// Ship godoc
// @Summary      Ship a reserved unit
// @Description  RESERVED → SHIPPED. customer_id is required; the shipped record keeps the customer for recall reports.
// @Tags         serials
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path     string                true "Serial UUID"
// @Param        body body     dto.ShipSerialRequest true "Shipment"
// @Success      200  {object} dto.SerialResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/serials/{id}/ship [post]
func (h *SerialsHandler) Ship() gin.HandlerFunc { return mutation(h.retries, h.svc.Ship) }

// @Router /v1/serials/{id}/install [post]
func (h *SerialsHandler) Install() gin.HandlerFunc { return mutation(h.retries, h.svc.Install) }

// @Router /v1/serials/{id}/in-service [post]
func (h *SerialsHandler) PutInService() gin.HandlerFunc {
	return mutation(h.retries, h.svc.PutInService)
}

// @Router /v1/serials/{id}/scrap [post]
func (h *SerialsHandler) Scrap() gin.HandlerFunc { return mutation(h.retries, h.svc.Scrap) }

// @Router /v1/serials/{id}/return [post]
func (h *SerialsHandler) Return() gin.HandlerFunc { return mutation(h.retries, h.svc.Return) }

// @Router /v1/serials/{id}/return-to-stock [post]
func (h *SerialsHandler) ReturnToStock() gin.HandlerFunc {
	return mutation(h.retries, h.svc.ReturnToStock)
}
