package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pillbox/adherence-backend/internal/service"
	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/pillbox/adherence-backend/pkg/dates"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// AdherenceHandler implements the adherence history and edit endpoints.
type AdherenceHandler struct {
	store      *store.AdherenceStore
	classifier *service.Classifier
	logger     *zap.Logger
}

// NewAdherenceHandler creates a new AdherenceHandler
func NewAdherenceHandler(adherence *store.AdherenceStore, classifier *service.Classifier, logger *zap.Logger) *AdherenceHandler {
	return &AdherenceHandler{
		store:      adherence,
		classifier: classifier,
		logger:     logger,
	}
}

// AdherenceDayResponse is one day of per-medication, per-slot records.
type AdherenceDayResponse struct {
	Date    string                                      `json:"date"`
	Records map[string][model.SlotCount]model.Adherence `json:"records"`
}

// OverrideAdherenceRequest sets a record to an explicit status.
type OverrideAdherenceRequest struct {
	Medication string `json:"medication" binding:"required"`
	Date       string `json:"date" binding:"required"`
	Slot       *int   `json:"slot" binding:"required"`
	Status     string `json:"status" binding:"required"`
}

// ClarifyTimeRequest resolves a TAKEN_CLARIFY_TIME record with the actual
// intake time of day.
type ClarifyTimeRequest struct {
	Medication string `json:"medication" binding:"required"`
	Date       string `json:"date" binding:"required"`
	Slot       *int   `json:"slot" binding:"required"`
	Time       string `json:"time" binding:"required"`
}

// GetAdherence returns the records for all materialized days in [from, to]
func (h *AdherenceHandler) GetAdherence(c *gin.Context) {
	from, err := dates.ParseDay(c.Query("from"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid from date",
			Details: stringPtr(err.Error()),
		})
		return
	}
	to, err := dates.ParseDay(c.Query("to"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid to date",
			Details: stringPtr(err.Error()),
		})
		return
	}
	if to.Before(from) {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "to must not be before from",
		})
		return
	}

	entries := h.store.Range(from, to.Next())
	response := make([]AdherenceDayResponse, 0, len(entries))
	for _, entry := range entries {
		response = append(response, AdherenceDayResponse{
			Date:    entry.Day.String(),
			Records: entry.Records,
		})
	}

	c.JSON(http.StatusOK, response)
}

// PutAdherence overrides one record with a user-chosen status
func (h *AdherenceHandler) PutAdherence(c *gin.Context) {
	var req OverrideAdherenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	day, err := dates.ParseDay(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid date",
			Details: stringPtr(err.Error()),
		})
		return
	}
	status, err := model.ParseAdherenceStatus(req.Status)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid adherence status",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.classifier.Override(req.Medication, day, *req.Slot, status); err != nil {
		h.logger.Error("failed to override adherence record",
			zap.Error(err),
			zap.String("medication", req.Medication),
		)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Failed to override adherence record",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// PutAdherenceTime clarifies the intake time of a TAKEN_CLARIFY_TIME record
func (h *AdherenceHandler) PutAdherenceTime(c *gin.Context) {
	var req ClarifyTimeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	day, err := dates.ParseDay(req.Date)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid date",
			Details: stringPtr(err.Error()),
		})
		return
	}
	at, err := dates.ParseClock(req.Time)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid time of day",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.classifier.ClarifyTime(req.Medication, day, *req.Slot, at); err != nil {
		h.logger.Error("failed to clarify intake time",
			zap.Error(err),
			zap.String("medication", req.Medication),
		)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Failed to clarify intake time",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.Status(http.StatusNoContent)
}
