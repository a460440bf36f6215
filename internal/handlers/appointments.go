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

// AppointmentHandler exposes HTTP endpoints for appointments.
type AppointmentHandler struct {
	service *services.AppointmentService
}

// NewAppointmentHandler constructs an appointment handler.
func NewAppointmentHandler(service *services.AppointmentService) *AppointmentHandler {
	return &AppointmentHandler{service: service}
}

// List returns appointments for a care recipient.
func (h *AppointmentHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	appointments, err := h.service.List(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, appointments)
}

// Create adds an appointment for a care recipient.
func (h *AppointmentHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Title       string    `json:"title"`
		Location    string    `json:"location"`
		Provider    string    `json:"provider"`
		ScheduledAt time.Time `json:"scheduled_at"`
		Notes       string    `json:"notes"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	appointment, err := h.service.Create(c.Request.Context(), services.CreateAppointmentInput{
		ActorID:     userID,
		RecipientID: strings.TrimSpace(c.Param("id")),
		Title:       payload.Title,
		Location:    payload.Location,
		Provider:    payload.Provider,
		ScheduledAt: payload.ScheduledAt,
		Notes:       payload.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, appointment)
}

// Update modifies appointment metadata.
func (h *AppointmentHandler) Update(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Title       *string    `json:"title"`
		Location    *string    `json:"location"`
		Provider    *string    `json:"provider"`
		ScheduledAt *time.Time `json:"scheduled_at"`
		Notes       *string    `json:"notes"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	appointment, err := h.service.Update(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")), services.UpdateAppointmentInput{
		Title:       payload.Title,
		Location:    payload.Location,
		Provider:    payload.Provider,
		ScheduledAt: payload.ScheduledAt,
		Notes:       payload.Notes,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, appointment)
}

// UpdateStatus transitions the appointment status.
func (h *AppointmentHandler) UpdateStatus(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Status string `json:"status"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	appointment, err := h.service.UpdateStatus(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")), payload.Status)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, appointment)
}

// Delete removes an appointment.
func (h *AppointmentHandler) Delete(c *gin.Context) {
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
