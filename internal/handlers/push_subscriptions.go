package handlers

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/carecircle/carecircle/internal/middleware"
	"github.com/carecircle/carecircle/internal/services"
	"github.com/carecircle/carecircle/pkg/errors"
	"github.com/carecircle/carecircle/pkg/response"
)

// PushSubscriptionHandler exposes HTTP endpoints for Web Push subscriptions.
type PushSubscriptionHandler struct {
	service *services.PushSubscriptionService
}

// NewPushSubscriptionHandler constructs a push subscription handler.
func NewPushSubscriptionHandler(service *services.PushSubscriptionService) *PushSubscriptionHandler {
	return &PushSubscriptionHandler{service: service}
}

// Register stores the caller's browser push subscription.
func (h *PushSubscriptionHandler) Register(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Endpoint string `json:"endpoint"`
		Keys     struct {
			P256dh string `json:"p256dh"`
			Auth   string `json:"auth"`
		} `json:"keys"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	subscription, err := h.service.Register(c.Request.Context(), services.RegisterPushSubscriptionInput{
		UserID:   userID,
		Endpoint: payload.Endpoint,
		P256dh:   payload.Keys.P256dh,
		Auth:     payload.Keys.Auth,
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, subscription)
}

// List returns the caller's active subscriptions.
func (h *PushSubscriptionHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	subs, err := h.service.ListActiveForUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, subs)
}

// Remove deletes one of the caller's subscriptions.
func (h *PushSubscriptionHandler) Remove(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.service.Remove(c.Request.Context(), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"removed": true})
}
