package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"reportdesk/internal/repository"
	"reportdesk/internal/service"
)

type ReportHandler struct {
	service service.ReportService
}

func NewReportHandler(svc service.ReportService) *ReportHandler {
	return &ReportHandler{service: svc}
}

// ListReports handles GET /api/v1/reports.
func (h *ReportHandler) ListReports(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))

	result, err := h.service.ListReports(c.Request.Context(), page, pageSize)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    service.CodeServerError,
			"message": "failed to list reports",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

// GetReport handles GET /api/v1/reports/:slug.
func (h *ReportHandler) GetReport(c *gin.Context) {
	slug := c.Param("slug")

	report, err := h.service.GetReportBySlug(c.Request.Context(), slug)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "not_found",
				"message": "no report with slug " + slug,
			})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    service.CodeServerError,
			"message": "failed to load report",
		})
		return
	}
	c.JSON(http.StatusOK, report)
}

// ListPicks handles GET /api/v1/picks against the picks-history
// projection, filterable by ticker and side.
func (h *ReportHandler) ListPicks(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "50"))

	result, err := h.service.ListPicksHistory(c.Request.Context(), repository.HistoryFilter{
		Ticker:   c.Query("ticker"),
		Side:     c.Query("side"),
		Page:     page,
		PageSize: pageSize,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    service.CodeServerError,
			"message": "failed to list picks history",
		})
		return
	}
	c.JSON(http.StatusOK, result)
}
