package handler

import (
	"net/http"

	"traceability/internal/dto"
	"traceability/internal/service"

	"github.com/gin-gonic/gin"
)

type LinksHandler struct{ svc service.LinkService }

func NewLinksHandler(svc service.LinkService) *LinksHandler { return &LinksHandler{svc: svc} }

// Create godoc
// @Summary      Record a traceability link
// @Description  Links are immutable. A correction is a new link with corrects_link_id and a metadata "note".
// @Tags         links
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body     dto.CreateLinkRequest true "Link"
// @Success      201  {object} dto.LinkResponse
// @Failure      404  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/links [post]
func (h *LinksHandler) Create(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	var req dto.CreateLinkRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.CreateLink(c.Request.Context(), scope, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// List godoc
// @Summary      List the links of an entity
// @Tags         links
// @Produce      json
// @Security     BearerAuth
// @Param        entity_type query string true  "LOT|SERIAL"
// @Param        entity_id   query string true  "Entity UUID"
// @Param        direction   query string false "downstream|upstream|both"
// @Success      200 {array} dto.LinkResponse
// @Router       /v1/links [get]
func (h *LinksHandler) List(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	var filter dto.LinkFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.ListLinks(c.Request.Context(), scope, filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
