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

// CareRecipientHandler exposes HTTP endpoints for care recipients.
type CareRecipientHandler struct {
	service *services.CareRecipientService
}

// NewCareRecipientHandler constructs a care recipient handler.
func NewCareRecipientHandler(service *services.CareRecipientService) *CareRecipientHandler {
	return &CareRecipientHandler{service: service}
}

// List returns the recipients visible to the current user.
func (h *CareRecipientHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	recipients, err := h.service.List(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, recipients)
}

// Create registers a new care recipient with the caller as admin.
func (h *CareRecipientHandler) Create(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Name              string           `json:"name"`
		BirthDate         *time.Time       `json:"birth_date"`
		Allergies         string           `json:"allergies"`
		Conditions        string           `json:"conditions"`
		EmergencyContacts []map[string]any `json:"emergency_contacts"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	recipient, err := h.service.Create(c.Request.Context(), services.CreateCareRecipientInput{
		CreatorID:         userID,
		Name:              payload.Name,
		BirthDate:         payload.BirthDate,
		Allergies:         payload.Allergies,
		Conditions:        payload.Conditions,
		EmergencyContacts: payload.EmergencyContacts,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, recipient)
}

// Get returns a single care recipient.
func (h *CareRecipientHandler) Get(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	recipient, err := h.service.Get(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, recipient)
}

// Update modifies care recipient metadata.
func (h *CareRecipientHandler) Update(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Name              *string          `json:"name"`
		BirthDate         *time.Time       `json:"birth_date"`
		Allergies         *string          `json:"allergies"`
		Conditions        *string          `json:"conditions"`
		EmergencyContacts []map[string]any `json:"emergency_contacts"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	recipient, err := h.service.Update(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")), services.UpdateCareRecipientInput{
		Name:              payload.Name,
		BirthDate:         payload.BirthDate,
		Allergies:         payload.Allergies,
		Conditions:        payload.Conditions,
		EmergencyContacts: payload.EmergencyContacts,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, recipient)
}

// Delete removes a care recipient and every dependent resource.
func (h *CareRecipientHandler) Delete(c *gin.Context) {
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
