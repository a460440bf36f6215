package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/carecircle/carecircle/internal/middleware"
	"github.com/carecircle/carecircle/internal/services"
	"github.com/carecircle/carecircle/pkg/errors"
	"github.com/carecircle/carecircle/pkg/response"
)

// MedicationHandler exposes HTTP endpoints for medications and dose logs.
type MedicationHandler struct {
	service *services.MedicationService
}

// NewMedicationHandler constructs a medication handler.
func NewMedicationHandler(service *services.MedicationService) *MedicationHandler {
	return &MedicationHandler{service: service}
}

// List returns medications for a care recipient.
func (h *MedicationHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	medications, err := h.service.List(c.Request.Context(), userID,
		strings.TrimSpace(c.Param("id")), parseBoolQuery(c, "active_only"))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, medications)
}

// Create adds a medication to a care recipient.
func (h *MedicationHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Name      string     `json:"name"`
		Dosage    string     `json:"dosage"`
		Frequency string     `json:"frequency"`
		Times     []string   `json:"times"`
		StartDate time.Time  `json:"start_date"`
		EndDate   *time.Time `json:"end_date"`
		Notes     string     `json:"notes"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	medication, err := h.service.Create(c.Request.Context(), services.CreateMedicationInput{
		ActorID:     userID,
		RecipientID: strings.TrimSpace(c.Param("id")),
		Name:        payload.Name,
		Dosage:      payload.Dosage,
		Frequency:   payload.Frequency,
		Times:       payload.Times,
		StartDate:   payload.StartDate,
		EndDate:     payload.EndDate,
		Notes:       payload.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, medication)
}

// Update modifies a medication.
func (h *MedicationHandler) Update(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Name      *string    `json:"name"`
		Dosage    *string    `json:"dosage"`
		Frequency *string    `json:"frequency"`
		Times     []string   `json:"times"`
		EndDate   *time.Time `json:"end_date"`
		Notes     *string    `json:"notes"`
		IsActive  *bool      `json:"is_active"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	medication, err := h.service.Update(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")), services.UpdateMedicationInput{
		Name:      payload.Name,
		Dosage:    payload.Dosage,
		Frequency: payload.Frequency,
		Times:     payload.Times,
		EndDate:   payload.EndDate,
		Notes:     payload.Notes,
		IsActive:  payload.IsActive,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, medication)
}

// Delete removes a medication and its dose logs.
func (h *MedicationHandler) Delete(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.service.Delete(c.Request.Context(), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"deleted": true})
}

// LogDose records a taken or skipped dose.
func (h *MedicationHandler) LogDose(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Status  string     `json:"status"`
		TakenAt *time.Time `json:"taken_at"`
		Notes   string     `json:"notes"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	log, err := h.service.LogDose(c.Request.Context(), services.LogDoseInput{
		ActorID:      userID,
		MedicationID: strings.TrimSpace(c.Param("id")),
		Status:       payload.Status,
		TakenAt:      payload.TakenAt,
		Notes:        payload.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, log)
}

// ListLogs returns dose logs for a medication, newest first.
func (h *MedicationHandler) ListLogs(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	logs, err := h.service.ListLogs(c.Request.Context(), userID,
		strings.TrimSpace(c.Param("id")), parseIntQuery(c, "limit", 50))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, logs)
}
