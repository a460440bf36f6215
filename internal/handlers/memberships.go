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

// MembershipHandler exposes HTTP endpoints for family memberships and invites.
type MembershipHandler struct {
	service *services.MembershipService
}

// NewMembershipHandler constructs a membership handler.
func NewMembershipHandler(service *services.MembershipService) *MembershipHandler {
	return &MembershipHandler{service: service}
}

type permissionFlagsPayload struct {
	CanView   bool `json:"can_view"`
	CanEdit   bool `json:"can_edit"`
	CanDelete bool `json:"can_delete"`
}

func (p *permissionFlagsPayload) toInput() *services.PermissionFlags {
	if p == nil {
		return nil
	}
	return &services.PermissionFlags{
		CanView:   p.CanView,
		CanEdit:   p.CanEdit,
		CanDelete: p.CanDelete,
	}
}

// Invite creates a pending membership for a registered user.
func (h *MembershipHandler) Invite(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Email string                  `json:"email"`
		Role  string                  `json:"role"`
		Flags *permissionFlagsPayload `json:"flags"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	membership, err := h.service.Invite(c.Request.Context(), services.InviteMemberInput{
		ActorID:     userID,
		RecipientID: strings.TrimSpace(c.Param("id")),
		Email:       payload.Email,
		Role:        payload.Role,
		Flags:       payload.Flags.toInput(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusCreated, membership)
}

// List returns the members of a care recipient.
func (h *MembershipHandler) List(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	members, err := h.service.ListForRecipient(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, members)
}

// ListInvites returns the caller's pending invitations.
func (h *MembershipHandler) ListInvites(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	invites, err := h.service.ListPendingForUser(c.Request.Context(), userID)
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, invites)
}

// Accept activates a pending invitation addressed to the caller.
func (h *MembershipHandler) Accept(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	membership, err := h.service.Accept(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, membership)
}

// Decline removes a pending invitation addressed to the caller.
func (h *MembershipHandler) Decline(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	if err := h.service.Decline(c.Request.Context(), userID, strings.TrimSpace(c.Param("id"))); err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, gin.H{"declined": true})
}

// UpdatePermissions changes a member's role or permission flags.
func (h *MembershipHandler) UpdatePermissions(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	var payload struct {
		Role  *string                 `json:"role"`
		Flags *permissionFlagsPayload `json:"flags"`
	}
	if !bindJSON(c, &payload) {
		return
	}

	membership, err := h.service.UpdatePermissions(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")), services.UpdatePermissionsInput{
		Role:  payload.Role,
		Flags: payload.Flags.toInput(),
	})
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, membership)
}

// Remove deletes a membership. Members may remove themselves; otherwise the
// caller must be an admin.
func (h *MembershipHandler) Remove(c *gin.Context) {
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

// TransferAdmin promotes the target member to admin and demotes the caller.
func (h *MembershipHandler) TransferAdmin(c *gin.Context) {
	userID := c.GetString(middleware.CtxUserIDKey)
	if userID == "" {
		response.Error(c, errors.ErrUnauthorized)
		return
	}

	membership, err := h.service.TransferAdmin(c.Request.Context(), userID, strings.TrimSpace(c.Param("id")))
	if err != nil {
		response.Error(c, err)
		return
	}

	response.Success(c, http.StatusOK, membership)
}
