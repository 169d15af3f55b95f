package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"reportdesk/internal/service"
)

type ExportHandler struct {
	service service.ExportService
}

func NewExportHandler(svc service.ExportService) *ExportHandler {
	return &ExportHandler{service: svc}
}

// ExportPicksHistory handles GET /api/v1/admin/exports/picks-history and
// streams the generated file.
func (h *ExportHandler) ExportPicksHistory(c *gin.Context) {
	format := c.DefaultQuery("format", "csv")
	switch format {
	case "csv", "excel", "xlsx":
	default:
		badRequest(c, "unsupported format, use 'csv' or 'excel'")
		return
	}

	path, err := h.service.ExportPicksHistory(c.Request.Context(), format)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    service.CodeServerError,
			"message": "failed to export picks history",
		})
		return
	}

	c.File(path)
}
