package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/pillbox/adherence-backend/internal/service"
	"github.com/pillbox/adherence-backend/pkg/model"
	"go.uber.org/zap"
)

// MedicationHandler implements the medication registry endpoints.
type MedicationHandler struct {
	registry *service.Registry
	logger   *zap.Logger
}

// NewMedicationHandler creates a new MedicationHandler
func NewMedicationHandler(registry *service.Registry, logger *zap.Logger) *MedicationHandler {
	return &MedicationHandler{
		registry: registry,
		logger:   logger,
	}
}

// CreateMedicationRequest registers a medication, optionally with its
// schedule, dosage and bottle address in one call.
type CreateMedicationRequest struct {
	Name     string    `json:"name" binding:"required"`
	DosageMg int       `json:"dosage_mg"`
	Image    string    `json:"image"`
	Schedule []*string `json:"schedule"`
	Address  string    `json:"address"`
}

// MedicationResponse is the wire form of a registered medication.
type MedicationResponse struct {
	Name      string    `json:"name"`
	DosageMg  int       `json:"dosage_mg"`
	Image     string    `json:"image,omitempty"`
	Schedule  []*string `json:"schedule"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UpdateScheduleRequest replaces a medication's two-slot schedule.
type UpdateScheduleRequest struct {
	Schedule []*string `json:"schedule" binding:"required"`
}

// UpdateDosageRequest sets a medication's dosage in milligrams.
type UpdateDosageRequest struct {
	DosageMg int `json:"dosage_mg"`
}

// UpdateAddressRequest binds a bottle hardware address to the medication.
type UpdateAddressRequest struct {
	Address string `json:"address" binding:"required"`
}

func (h *MedicationHandler) toResponse(med model.Medication) MedicationResponse {
	schedule, _ := h.registry.ScheduleFor(med.Name)
	return MedicationResponse{
		Name:      med.Name,
		DosageMg:  med.Dosage,
		Image:     med.Image,
		Schedule:  scheduleToStrings(schedule),
		CreatedAt: med.CreatedAt,
		UpdatedAt: med.UpdatedAt,
	}
}

// PostMedications registers a new medication
func (h *MedicationHandler) PostMedications(c *gin.Context) {
	var req CreateMedicationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	// The schedule is validated before the medication is registered so a
	// rejected request leaves no half-created entry behind.
	var schedule *model.Schedule
	if req.Schedule != nil {
		parsed, err := parseScheduleStrings(req.Schedule)
		if err != nil {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    "VALIDATION_ERROR",
				Message: "Invalid schedule",
				Details: stringPtr(err.Error()),
			})
			return
		}
		schedule = &parsed
	}

	med := model.Medication{
		Name:   req.Name,
		Dosage: req.DosageMg,
		Image:  req.Image,
	}
	if err := h.registry.AddMedication(med); err != nil {
		h.logger.Error("failed to add medication",
			zap.Error(err),
			zap.String("medication", req.Name),
		)
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "CONFLICT",
			Message: "Failed to add medication",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if schedule != nil {
		if err := h.registry.SetSchedule(req.Name, *schedule); err != nil {
			c.JSON(http.StatusInternalServerError, ErrorResponse{
				Code:    "INTERNAL_ERROR",
				Message: "Failed to set schedule",
				Details: stringPtr(err.Error()),
			})
			return
		}
	}

	if req.Address != "" {
		if err := h.registry.SetAddress(req.Address, req.Name); err != nil {
			c.JSON(http.StatusConflict, ErrorResponse{
				Code:    "CONFLICT",
				Message: "Failed to bind bottle address",
				Details: stringPtr(err.Error()),
			})
			return
		}
	}

	created, _ := h.registry.Medication(req.Name)

	h.logger.Info("medication added", zap.String("medication", req.Name))
	c.JSON(http.StatusCreated, h.toResponse(created))
}

// GetMedications lists all registered medications in registration order
func (h *MedicationHandler) GetMedications(c *gin.Context) {
	medications := h.registry.ListMedications()

	response := make([]MedicationResponse, 0, len(medications))
	for _, med := range medications {
		response = append(response, h.toResponse(med))
	}

	c.JSON(http.StatusOK, response)
}

// PutMedicationSchedule replaces a medication's schedule
func (h *MedicationHandler) PutMedicationSchedule(c *gin.Context) {
	name := c.Param("name")

	var req UpdateScheduleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	schedule, err := parseScheduleStrings(req.Schedule)
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid schedule",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.registry.SetSchedule(name, schedule); err != nil {
		h.logger.Error("failed to update schedule",
			zap.Error(err),
			zap.String("medication", name),
		)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Failed to update schedule",
			Details: stringPtr(err.Error()),
		})
		return
	}

	updated, _ := h.registry.Medication(name)
	c.JSON(http.StatusOK, h.toResponse(updated))
}

// PutMedicationDosage sets a medication's dosage
func (h *MedicationHandler) PutMedicationDosage(c *gin.Context) {
	name := c.Param("name")

	var req UpdateDosageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.registry.SetDosage(name, req.DosageMg); err != nil {
		h.logger.Error("failed to update dosage",
			zap.Error(err),
			zap.String("medication", name),
		)
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Failed to update dosage",
			Details: stringPtr(err.Error()),
		})
		return
	}

	updated, _ := h.registry.Medication(name)
	c.JSON(http.StatusOK, h.toResponse(updated))
}

// PutMedicationAddress binds a bottle address to the medication
func (h *MedicationHandler) PutMedicationAddress(c *gin.Context) {
	name := c.Param("name")

	var req UpdateAddressRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("invalid request body", zap.Error(err))
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Code:    "VALIDATION_ERROR",
			Message: "Invalid request body",
			Details: stringPtr(err.Error()),
		})
		return
	}

	if err := h.registry.SetAddress(req.Address, name); err != nil {
		h.logger.Error("failed to bind bottle address",
			zap.Error(err),
			zap.String("medication", name),
		)
		c.JSON(http.StatusConflict, ErrorResponse{
			Code:    "CONFLICT",
			Message: "Failed to bind bottle address",
			Details: stringPtr(err.Error()),
		})
		return
	}

	c.Status(http.StatusNoContent)
}

// DeleteMedication removes a medication from the registry
func (h *MedicationHandler) DeleteMedication(c *gin.Context) {
	name := c.Param("name")

	if err := h.registry.RemoveMedication(name); err != nil {
		h.logger.Error("failed to delete medication",
			zap.Error(err),
			zap.String("medication", name),
		)
		c.JSON(http.StatusNotFound, ErrorResponse{
			Code:    "NOT_FOUND",
			Message: "Failed to delete medication",
			Details: stringPtr(err.Error()),
		})
		return
	}

	h.logger.Info("medication deleted", zap.String("medication", name))
	c.Status(http.StatusNoContent)
}
