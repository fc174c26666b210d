package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pillbox/adherence-backend/internal/service"
	"go.uber.org/zap"
)

// ReminderHandler implements the reminder trigger and offset endpoints.
type ReminderHandler struct {
	scheduler *service.ReminderScheduler
	logger    *zap.Logger
}

// NewReminderHandler creates a new ReminderHandler
func NewReminderHandler(scheduler *service.ReminderScheduler, logger *zap.Logger) *ReminderHandler {
	return &ReminderHandler{
		scheduler: scheduler,
		logger:    logger,
	}
}

// UpdateOffsetsRequest replaces the reminder offsets, in minutes before the
// scheduled dose time.
type UpdateOffsetsRequest struct {
	OffsetsMinutes []int `json:"offsets_minutes" binding:"required"`
}

// GetReminders returns the currently derived trigger set
func (h *ReminderHandler) GetReminders(c *gin.Context) {
	c.JSON(http.StatusOK, h.scheduler.Triggers())
}

// GetReminderOffsets returns the active reminder offsets
func (h *ReminderHandler) GetReminderOffsets(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"offsets_minutes": h.scheduler.Offsets()})
}

// PutReminderOffsets replaces the reminder offsets and re-arms all triggers
func (h *ReminderHandler) PutReminderOffsets(c *gin.Context) {
	var req UpdateOffsetsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.scheduler.SetOffsets(req.OffsetsMinutes); err != nil {
		h.logger.Error("failed to update reminder offsets", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Failed to update reminder offsets",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{"offsets_minutes": h.scheduler.Offsets()})
}
