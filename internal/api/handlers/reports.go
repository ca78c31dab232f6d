package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/laserpanama/legal-practice-stack/internal/reports"
	"go.uber.org/zap"
)

type ReportHandler struct {
	aggregator *reports.Aggregator
	logger     *zap.Logger
}

func NewReportHandler(aggregator *reports.Aggregator, logger *zap.Logger) *ReportHandler {
	return &ReportHandler{aggregator: aggregator, logger: logger}
}

// window parses the start/end query parameters (RFC 3339), defaulting to the
// last 30 days.
func (h *ReportHandler) window(c *gin.Context) (time.Time, time.Time, bool) {
	end := time.Now().UTC()
	start := end.AddDate(0, 0, -30)

	if raw := c.Query("start"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start must be RFC 3339"})
			return start, end, false
		}
		start = parsed
	}
	if raw := c.Query("end"); raw != "" {
		parsed, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end must be RFC 3339"})
			return start, end, false
		}
		end = parsed
	}
	return start, end, true
}

func (h *ReportHandler) Summary(c *gin.Context) {
	start, end, ok := h.window(c)
	if !ok {
		return
	}

	summary, err := h.aggregator.GenerateReport(c.Request.Context(), start, end)
	if err != nil {
		h.logger.Error("report generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, summary)
}

func (h *ReportHandler) Statistics(c *gin.Context) {
	start, end, ok := h.window(c)
	if !ok {
		return
	}

	stats, err := h.aggregator.Statistics(c.Request.Context(), start, end)
	if err != nil {
		h.logger.Error("statistics generation failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *ReportHandler) ExportCSV(c *gin.Context) {
	start, end, ok := h.window(c)
	if !ok {
		return
	}

	csv, err := h.aggregator.ExportCSV(c.Request.Context(), start, end)
	if err != nil {
		h.logger.Error("csv export failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	c.Header("Content-Disposition", `attachment; filename="signature-audit-export.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=utf-8", []byte(csv))
}
