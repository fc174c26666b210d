package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pillbox/adherence-backend/internal/service"
	"go.uber.org/zap"
)

// IntakeHandler implements the intake detection and confirmation endpoints.
type IntakeHandler struct {
	intake        *service.IntakeService
	confirmations *service.ConfirmationManager
	logger        *zap.Logger
}

// NewIntakeHandler creates a new IntakeHandler
func NewIntakeHandler(intake *service.IntakeService, confirmations *service.ConfirmationManager, logger *zap.Logger) *IntakeHandler {
	return &IntakeHandler{
		intake:        intake,
		confirmations: confirmations,
		logger:        logger,
	}
}

// ReportIntakeRequest carries a detected intake. Source is a medication name
// or a bottle hardware address; a zero TimeTaken means now.
type ReportIntakeRequest struct {
	Source    string    `json:"source" binding:"required"`
	TimeTaken time.Time `json:"time_taken"`
}

// ConfirmIntakeRequest resolves the pending confirmation.
type ConfirmIntakeRequest struct {
	Confirmed *bool `json:"confirmed" binding:"required"`
}

// PostIntake reports a detected intake and starts the confirmation countdown
func (h *IntakeHandler) PostIntake(c *gin.Context) {
	var req ReportIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	timeTaken := req.TimeTaken
	if timeTaken.IsZero() {
		timeTaken = time.Now()
	}

	medication, ok, err := h.intake.Report(req.Source, timeTaken)
	if err != nil {
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "CONFLICT",
			Message: "Another intake confirmation is already pending",
			Details: stringPtr(err.Error()),
		})
		return
	}
	if !ok {
		c.JSON(http.StatusOK, gin.H{"status": "ignored"})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":     "pending_confirmation",
		"medication": medication,
	})
}

// GetIntakePending returns the outstanding confirmation, if any
func (h *IntakeHandler) GetIntakePending(c *gin.Context) {
	event, ok := h.confirmations.Pending()
	if !ok {
		c.JSON(http.StatusOK, gin.H{"pending": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"pending":    true,
		"medication": event.Medication,
		"time_taken": event.TimeTaken,
	})
}

// PostIntakeConfirm confirms or denies the pending intake
func (h *IntakeHandler) PostIntakeConfirm(c *gin.Context) {
	var req ConfirmIntakeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	var err error
	if *req.Confirmed {
		err = h.confirmations.Confirm()
	} else {
		err = h.confirmations.Deny()
	}
	if err != nil {
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "No intake confirmation pending",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.Status(http.StatusNoContent)
}
