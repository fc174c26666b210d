package handler

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pillbox/adherence-backend/internal/service"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// ProgressHandler implements the adherence progress report endpoint.
type ProgressHandler struct {
	progress *service.ProgressService
	logger   *zap.Logger
}

// NewProgressHandler creates a new ProgressHandler
func NewProgressHandler(progress *service.ProgressService, logger *zap.Logger) *ProgressHandler {
	return &ProgressHandler{
		progress: progress,
		logger:   logger,
	}
}

// GetProgress builds a stacked percentage report. Query parameters: period
// (week|month, default month), count (trailing periods), medications
// (comma-separated subset, default all).
func (h *ProgressHandler) GetProgress(c *gin.Context) {
	period := model.PeriodType(c.DefaultQuery("period", string(model.PeriodMonth)))

	count := 0
	if raw := c.Query("count"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Invalid count",
				Details: stringPtr(err.Error()),
			})
			return
		}
		count = parsed
	}

	var medications []string
	if raw := c.Query("medications"); raw != "" {
		medications = strings.Split(raw, ",")
	}

	report, err := h.progress.Report(period, count, medications)
	if err != nil {
		h.logger.Error("failed to build progress report",
			zap.Error(err),
			zap.String("period", string(period)),
		)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Failed to build progress report",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, report)
}
