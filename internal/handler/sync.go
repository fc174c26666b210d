package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pillbox/adherence-backend/internal/service"
	"go.uber.org/zap"
)

// SyncHandler implements the bulk state upload endpoint.
type SyncHandler struct {
	sync   *service.SyncService
	logger *zap.Logger
}

// NewSyncHandler creates a new SyncHandler
func NewSyncHandler(sync *service.SyncService, logger *zap.Logger) *SyncHandler {
	return &SyncHandler{
		sync:   sync,
		logger: logger,
	}
}

// PostSync applies a bulk upload atomically; an invalid payload leaves all
// state untouched
func (h *SyncHandler) PostSync(c *gin.Context) {
	var payload service.SyncPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.sync.Apply(payload); err != nil {
		h.logger.Error("failed to apply bulk sync", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Failed to apply bulk sync",
			Details: stringPtr(err.Error()),
		})
		return
	}

	h.logger.Info("bulk sync applied",
		zap.Int("medications", len(payload.Medications)),
		zap.Int("days", len(payload.AdherenceData)),
	)

	c.JSON(http.StatusOK, gin.H{
		"message":      "Sync applied successfully",
		"synced_count": len(payload.Medications),
	})
}
