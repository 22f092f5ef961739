package handler

import (
	"net/http"

	"traceability/internal/dto"
	"traceability/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

type RecallHandler struct{ svc service.RecallService }

func NewRecallHandler(svc service.RecallService) *RecallHandler { return &RecallHandler{svc: svc} }

// Generate godoc
// @Summary      Generate a recall impact report
// @Description  Walks where-used from every named lot and aggregates work orders, shipments, customers and quantity.
// @Description  Lots that do not resolve, or a traversal that hits the node limit, produce a partial report with warnings.
// @Tags         recall
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body     dto.RecallReportRequest true "Recall scope"
// @Success      200  {object} dto.RecallReportResponse
// @Failure      404  {object} apierror.APIError "no lot resolved"
// @Failure      422  {object} apierror.ValidationError
// @Router       /v1/recall-reports [post]
func (h *RecallHandler) Generate(c *gin.Context) {
	scope, ok := scopeOf(c)
	if !ok {
		return
	}
	var req dto.RecallReportRequest
	if !bindAndValidate(c, &req) {
		return
	}
	report, err := h.svc.Generate(c.Request.Context(), scope, req)
	if err != nil {
		respondError(c, err)
		return
	}
	log.Info().
		Str("report_id", report.ReportID).
		Str("organization_id", scope.OrganizationID.String()).
		Str("severity", report.Severity).
		Int("entities", report.TotalEntitiesAffected).
		Bool("partial", report.Partial).
		Msg("recall report generated")
	c.JSON(http.StatusOK, report)
}
