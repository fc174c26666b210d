package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pillbox/adherence-backend/internal/service"
	"github.com/pillbox/adherence-backend/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newMedicationRouter(t *testing.T) (*gin.Engine, *service.Registry) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	registry := service.NewRegistry(store.NewPersister(nil, zap.NewNop()), zap.NewNop())
	h := NewMedicationHandler(registry, zap.NewNop())

	r := gin.New()
	r.GET("/api/v1/medications", h.GetMedications)
	r.POST("/api/v1/medications", h.PostMedications)
	r.PUT("/api/v1/medications/:name/schedule", h.PutMedicationSchedule)
	r.PUT("/api/v1/medications/:name/dosage", h.PutMedicationDosage)
	r.DELETE("/api/v1/medications/:name", h.DeleteMedication)
	return r, registry
}

func doJSON(t *testing.T, r *gin.Engine, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestPostMedications(t *testing.T) {
	r, registry := newMedicationRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/medications", gin.H{
		"name":      "Ritonavir",
		"dosage_mg": 100,
		"schedule":  []*string{stringPtr("7:00"), stringPtr("17:00")},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	var resp MedicationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "Ritonavir", resp.Name)
	assert.Equal(t, 100, resp.DosageMg)
	require.Len(t, resp.Schedule, 2)
	assert.Equal(t, "07:00", *resp.Schedule[0])
	assert.Equal(t, "17:00", *resp.Schedule[1])

	med, ok := registry.Medication("Ritonavir")
	require.True(t, ok)
	assert.Equal(t, 100, med.Dosage)
}

func TestPostMedications_Validation(t *testing.T) {
	r, _ := newMedicationRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/medications", gin.H{"dosage_mg": 100})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &errResp))
	assert.Equal(t, "VALIDATION_ERROR", errResp.Code)

	// Duplicate registration conflicts
	w = doJSON(t, r, http.MethodPost, "/api/v1/medications", gin.H{"name": "Ritonavir"})
	require.Equal(t, http.StatusCreated, w.Code)
	w = doJSON(t, r, http.MethodPost, "/api/v1/medications", gin.H{"name": "Ritonavir"})
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestPostMedications_BadScheduleLeavesNothingBehind(t *testing.T) {
	r, registry := newMedicationRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/medications", gin.H{
		"name":      "Ritonavir",
		"dosage_mg": 100,
		"schedule":  []*string{stringPtr("25:99"), nil},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	_, ok := registry.Medication("Ritonavir")
	assert.False(t, ok, "a rejected schedule must not register the medication")
}

func TestGetMedications_RegistrationOrder(t *testing.T) {
	r, _ := newMedicationRouter(t)

	for _, name := range []string{"Zidovudine", "Abacavir"} {
		w := doJSON(t, r, http.MethodPost, "/api/v1/medications", gin.H{"name": name})
		require.Equal(t, http.StatusCreated, w.Code)
	}

	w := doJSON(t, r, http.MethodGet, "/api/v1/medications", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp []MedicationResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.Len(t, resp, 2)
	assert.Equal(t, "Zidovudine", resp[0].Name)
	assert.Equal(t, "Abacavir", resp[1].Name)
}

func TestPutMedicationSchedule(t *testing.T) {
	r, registry := newMedicationRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/medications", gin.H{"name": "Ritonavir"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodPut, "/api/v1/medications/Ritonavir/schedule", gin.H{
		"schedule": []*string{stringPtr("8:30"), nil},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	schedule, ok := registry.ScheduleFor("Ritonavir")
	require.True(t, ok)
	assert.Equal(t, "08:30", schedule[0].String())
	assert.Nil(t, schedule[1])

	// Unknown medication
	w = doJSON(t, r, http.MethodPut, "/api/v1/medications/Nope/schedule", gin.H{
		"schedule": []*string{stringPtr("8:30"), nil},
	})
	assert.Equal(t, http.StatusNotFound, w.Code)

	// Malformed time
	w = doJSON(t, r, http.MethodPut, "/api/v1/medications/Ritonavir/schedule", gin.H{
		"schedule": []*string{stringPtr("25:00"), nil},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteMedication(t *testing.T) {
	r, registry := newMedicationRouter(t)

	w := doJSON(t, r, http.MethodPost, "/api/v1/medications", gin.H{"name": "Ritonavir"})
	require.Equal(t, http.StatusCreated, w.Code)

	w = doJSON(t, r, http.MethodDelete, "/api/v1/medications/Ritonavir", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	_, ok := registry.Medication("Ritonavir")
	assert.False(t, ok)

	w = doJSON(t, r, http.MethodDelete, "/api/v1/medications/Ritonavir", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
