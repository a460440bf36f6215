package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/permissions"
	apperrors "github.com/carecircle/carecircle/pkg/errors"
	"github.com/carecircle/carecircle/pkg/logger"
)

// PermissionFlags are explicit per-member capability overrides supplied at
// invite or re-permission time.
type PermissionFlags struct {
	CanView   bool
	CanEdit   bool
	CanDelete bool
}

// InviteMemberInput captures a new membership invitation.
type InviteMemberInput struct {
	ActorID     string
	RecipientID string
	Email       string
	Role        string
	Flags       *PermissionFlags
}

// UpdatePermissionsInput describes mutable membership fields.
type UpdatePermissionsInput struct {
	Role  *string
	Flags *PermissionFlags
}

// MembershipOption customises MembershipService behaviour.
type MembershipOption func(*MembershipService)

// WithMembershipClock injects a custom clock primarily for testing.
func WithMembershipClock(clock func() time.Time) MembershipOption {
	return func(s *MembershipService) {
		if clock != nil {
			s.now = clock
		}
	}
}

// MembershipService governs the lifecycle of family memberships: invitation,
// acceptance, role changes, removal, and admin transfer.
type MembershipService struct {
	db       *gorm.DB
	resolver *permissions.Resolver
	notifier *NotificationService
	now      func() time.Time
	log      *zap.Logger
}

// NewMembershipService constructs a MembershipService.
func NewMembershipService(db *gorm.DB, resolver *permissions.Resolver, notifier *NotificationService, opts ...MembershipOption) (*MembershipService, error) {
	if db == nil {
		return nil, errors.New("membership service: db is required")
	}
	if resolver == nil {
		return nil, errors.New("membership service: permission resolver is required")
	}

	service := &MembershipService{
		db:       db,
		resolver: resolver,
		notifier: notifier,
		now:      time.Now,
		log:      logger.WithModule("memberships"),
	}

	for _, opt := range opts {
		opt(service)
	}

	return service, nil
}

// Invite creates a pending membership for the user registered under the
// supplied email. Only an active admin of the recipient may invite. Flags
// default from the requested role unless explicit overrides are supplied.
func (s *MembershipService) Invite(ctx context.Context, input InviteMemberInput) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	role := strings.TrimSpace(input.Role)
	if !models.ValidRole(role) {
		return nil, apperrors.NewBadRequest("role must be admin, editor, or viewer")
	}

	if err := s.requireAdmin(ctx, input.ActorID, input.RecipientID); err != nil {
		return nil, err
	}

	email := strings.ToLower(strings.TrimSpace(input.Email))
	if email == "" {
		return nil, apperrors.NewBadRequest("email is required")
	}

	var target models.User
	if err := s.db.WithContext(ctx).Where("email = ?", email).First(&target).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("membership service: find user: %w", err)
	}

	var existing int64
	if err := s.db.WithContext(ctx).
		Model(&models.Membership{}).
		Where("user_id = ? AND care_recipient_id = ?", target.ID, input.RecipientID).
		Count(&existing).Error; err != nil {
		return nil, fmt.Errorf("membership service: check membership: %w", err)
	}
	if existing > 0 {
		return nil, ErrAlreadyMember
	}

	canView, canEdit, canDelete := models.DefaultFlagsForRole(role)
	if input.Flags != nil {
		canView = input.Flags.CanView
		canEdit = input.Flags.CanEdit
		canDelete = input.Flags.CanDelete
	}
	if role == models.RoleAdmin {
		canView, canEdit, canDelete = true, true, true
	}

	membership := models.Membership{
		UserID:          target.ID,
		CareRecipientID: input.RecipientID,
		Role:            role,
		Status:          models.MembershipPending,
		CanView:         canView,
		CanEdit:         canEdit,
		CanDelete:       canDelete,
		InvitedBy:       input.ActorID,
		InvitedAt:       s.now().UTC(),
	}

	if err := s.db.WithContext(ctx).Create(&membership).Error; err != nil {
		if isUniqueConstraintError(err) {
			return nil, ErrAlreadyMember
		}
		return nil, fmt.Errorf("membership service: create membership: %w", err)
	}

	s.notify(ctx, CreateNotificationInput{
		UserID:  target.ID,
		Type:    models.NotificationFamily,
		Title:   "Care circle invitation",
		Message: fmt.Sprintf("You have been invited to join the care circle for %s.", s.recipientName(ctx, input.RecipientID)),
		Context: map[string]any{
			"membership_id":     membership.ID,
			"care_recipient_id": input.RecipientID,
			"role":              role,
		},
	})

	return &membership, nil
}

// Accept transitions a pending membership to active. Only the invited user
// may accept; anything else is reported as not found so invite existence is
// never leaked.
func (s *MembershipService) Accept(ctx context.Context, actorID, membershipID string) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	membership, err := s.loadPendingFor(ctx, actorID, membershipID)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	if err := s.db.WithContext(ctx).Model(membership).
		Updates(map[string]any{
			"status":      models.MembershipActive,
			"accepted_at": now,
		}).Error; err != nil {
		return nil, fmt.Errorf("membership service: accept: %w", err)
	}
	membership.Status = models.MembershipActive
	membership.AcceptedAt = &now

	if membership.InvitedBy != "" {
		s.notify(ctx, CreateNotificationInput{
			UserID:  membership.InvitedBy,
			Type:    models.NotificationFamily,
			Title:   "Invitation accepted",
			Message: fmt.Sprintf("Your invitation to the care circle for %s was accepted.", s.recipientName(ctx, membership.CareRecipientID)),
			Context: map[string]any{
				"membership_id":     membership.ID,
				"care_recipient_id": membership.CareRecipientID,
			},
		})
	}

	return membership, nil
}

// Decline deletes a pending membership. Only the invited user may decline.
func (s *MembershipService) Decline(ctx context.Context, actorID, membershipID string) error {
	ctx = ensureContext(ctx)

	membership, err := s.loadPendingFor(ctx, actorID, membershipID)
	if err != nil {
		return err
	}

	if err := s.db.WithContext(ctx).Delete(membership).Error; err != nil {
		return fmt.Errorf("membership service: decline: %w", err)
	}

	if membership.InvitedBy != "" {
		s.notify(ctx, CreateNotificationInput{
			UserID:  membership.InvitedBy,
			Type:    models.NotificationFamily,
			Title:   "Invitation declined",
			Message: fmt.Sprintf("Your invitation to the care circle for %s was declined.", s.recipientName(ctx, membership.CareRecipientID)),
			Context: map[string]any{
				"care_recipient_id": membership.CareRecipientID,
			},
		})
	}

	return nil
}

// UpdatePermissions changes a member's role and/or flags. Admin-only, and an
// admin can never modify their own membership this way.
func (s *MembershipService) UpdatePermissions(ctx context.Context, actorID, membershipID string, input UpdatePermissionsInput) (*models.Membership, error) {
	ctx = ensureContext(ctx)

	var membership models.Membership
	if err := s.db.WithContext(ctx).First(&membership, "id = ?", membershipID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperrors.ErrNotFound
		}
		return nil, fmt.Errorf("membership service: load membership: %w", err)
	}

	if err := s.requireAdmin(ctx, actorID, membership.CareRecipientID); err != nil {
		return nil, err
	}
	if membership.UserID == strings.TrimSpace(actorID) {
		return nil, ErrCannotModifySelf
	}

	updates := map[string]any{}
	role := membership.Role
	if input.Role != nil {
		role = strings.TrimSpace(*input.Role)
		if !models.ValidRole(role) {
			return nil, apperrors.NewBadRequest("role must be admin, editor, or viewer")
		}
		updates["role"] = role
	}
	if input.Flags != nil {
		updates["can_view"] = input.Flags.CanView
		updates["can_edit"] = input.Flags.CanEdit
		updates["can_delete"] = input.Flags.CanDelete
	}
	if role == models.RoleAdmin {
		updates["can_view"] = true
		updates["can_edit"] = true
		updates["can_delete"] = true
	}

	if len(updates) == 0 {
		return &membership, nil
	}

	if err := s.db.WithContext(ctx).Model(&membership).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("membership service: update permissions: %w", err)
	}

	if err := s.db.WithContext(ctx).First(&membership, "id = ?", membershipID).Error; err != nil {
		return nil, fmt.Errorf("membership service: reload membership: %w", err)
	}

	s.notify(ctx, CreateNotificationInput{
		UserID:  membership.UserID,
		Type:    models.NotificationFamily,
		Title:   "Permissions updated",
		Message: fmt.Sprintf("Your access to the care circle for %s was updated.", s.recipientName(ctx, membership.CareRecipientID)),
		Context: map[string]any{
			"membership_id":     membership.ID,
			"care_recipient_id": membership.CareRecipientID,
			"role":              membership.Role,
		},
	})

	return &membership, nil
}

// Remove deletes a membership. The actor must be the member themselves or an
// active admin. Removing the last active admin of a recipient is rejected;
// the admin count is re-read inside the delete transaction so two concurrent
// removals cannot both observe a safe count.
func (s *MembershipService) Remove(ctx context.Context, actorID, membershipID string) error {
	ctx = ensureContext(ctx)
	actorID = strings.TrimSpace(actorID)

	var membership models.Membership
	if err := s.db.WithContext(ctx).First(&membership, "id = ?", membershipID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperrors.ErrNotFound
		}
		return fmt.Errorf("membership service: load membership: %w", err)
	}

	selfRemoval := membership.UserID == actorID
	if !selfRemoval {
		if err := s.requireAdmin(ctx, actorID, membership.CareRecipientID); err != nil {
			return err
		}
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current models.Membership
		if err := tx.First(&current, "id = ?", membershipID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("membership service: reload membership: %w", err)
		}

		// The last-admin guard applies to everyone, including self-removal.
		if current.Role == models.RoleAdmin && current.Status == models.MembershipActive {
			var admins int64
			if err := tx.Model(&models.Membership{}).
				Where("care_recipient_id = ? AND role = ? AND status = ?",
					current.CareRecipientID, models.RoleAdmin, models.MembershipActive).
				Count(&admins).Error; err != nil {
				return fmt.Errorf("membership service: count admins: %w", err)
			}
			if admins <= 1 {
				return ErrLastAdminProtected
			}
		}

		if err := tx.Delete(&models.Membership{}, "id = ?", membershipID).Error; err != nil {
			return fmt.Errorf("membership service: delete membership: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	if !selfRemoval {
		s.notify(ctx, CreateNotificationInput{
			UserID:  membership.UserID,
			Type:    models.NotificationFamily,
			Title:   "Removed from care circle",
			Message: fmt.Sprintf("You were removed from the care circle for %s.", s.recipientName(ctx, membership.CareRecipientID)),
			Context: map[string]any{
				"care_recipient_id": membership.CareRecipientID,
			},
		})
	}

	return nil
}

// TransferAdmin promotes the target member to admin and demotes the acting
// admin to editor in a single transaction, so the circle is never observable
// with zero admins or an unintended pair of admins.
func (s *MembershipService) TransferAdmin(ctx context.Context, actorID, membershipID string) (*models.Membership, error) {
	ctx = ensureContext(ctx)
	actorID = strings.TrimSpace(actorID)

	var promoted models.Membership
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var target models.Membership
		if err := tx.First(&target, "id = ? AND status = ?", membershipID, models.MembershipActive).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperrors.ErrNotFound
			}
			return fmt.Errorf("membership service: load target: %w", err)
		}

		var actor models.Membership
		if err := tx.First(&actor,
			"user_id = ? AND care_recipient_id = ? AND status = ?",
			actorID, target.CareRecipientID, models.MembershipActive).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrNotAuthorized
			}
			return fmt.Errorf("membership service: load actor: %w", err)
		}
		if actor.Role != models.RoleAdmin {
			return ErrNotAuthorized
		}
		if actor.ID == target.ID {
			return ErrCannotModifySelf
		}

		if err := tx.Model(&target).Updates(map[string]any{
			"role":       models.RoleAdmin,
			"can_view":   true,
			"can_edit":   true,
			"can_delete": true,
		}).Error; err != nil {
			return fmt.Errorf("membership service: promote target: %w", err)
		}

		if err := tx.Model(&actor).Updates(map[string]any{
			"role":       models.RoleEditor,
			"can_view":   true,
			"can_edit":   true,
			"can_delete": false,
		}).Error; err != nil {
			return fmt.Errorf("membership service: demote actor: %w", err)
		}

		if err := tx.First(&promoted, "id = ?", target.ID).Error; err != nil {
			return fmt.Errorf("membership service: reload target: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notify(ctx, CreateNotificationInput{
		UserID:  promoted.UserID,
		Type:    models.NotificationFamily,
		Title:   "You are now an admin",
		Message: fmt.Sprintf("Admin rights for the care circle of %s were transferred to you.", s.recipientName(ctx, promoted.CareRecipientID)),
		Context: map[string]any{
			"membership_id":     promoted.ID,
			"care_recipient_id": promoted.CareRecipientID,
		},
	})

	return &promoted, nil
}

// ListForRecipient returns all memberships of a recipient, visible to any
// active member.
func (s *MembershipService) ListForRecipient(ctx context.Context, actorID, recipientID string) ([]models.Membership, error) {
	ctx = ensureContext(ctx)

	if _, err := s.resolver.Resolve(ctx, actorID, recipientID); err != nil {
		return nil, err
	}

	var memberships []models.Membership
	if err := s.db.WithContext(ctx).
		Preload("User").
		Where("care_recipient_id = ?", recipientID).
		Order("created_at ASC").
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("membership service: list memberships: %w", err)
	}

	return memberships, nil
}

// ListPendingForUser returns the user's open invitations.
func (s *MembershipService) ListPendingForUser(ctx context.Context, userID string) ([]models.Membership, error) {
	ctx = ensureContext(ctx)

	var memberships []models.Membership
	if err := s.db.WithContext(ctx).
		Preload("CareRecipient").
		Where("user_id = ? AND status = ?", strings.TrimSpace(userID), models.MembershipPending).
		Order("invited_at DESC").
		Find(&memberships).Error; err != nil {
		return nil, fmt.Errorf("membership service: list invites: %w", err)
	}

	return memberships, nil
}

// loadPendingFor loads a pending membership addressed to the actor. Missing,
// already-processed, and foreign invites are indistinguishable to the caller.
func (s *MembershipService) loadPendingFor(ctx context.Context, actorID, membershipID string) (*models.Membership, error) {
	var membership models.Membership
	err := s.db.WithContext(ctx).First(&membership,
		"id = ? AND user_id = ? AND status = ?",
		membershipID, strings.TrimSpace(actorID), models.MembershipPending).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperrors.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("membership service: load invite: %w", err)
	}
	return &membership, nil
}

func (s *MembershipService) requireAdmin(ctx context.Context, actorID, recipientID string) error {
	if err := s.resolver.RequireAdmin(ctx, actorID, recipientID); err != nil {
		if errors.Is(err, permissions.ErrNotAMember) || errors.Is(err, permissions.ErrAccessDenied) {
			return ErrNotAuthorized
		}
		return err
	}
	return nil
}

// notify creates a notification without letting delivery or persistence
// problems affect the membership operation that triggered it.
func (s *MembershipService) notify(ctx context.Context, input CreateNotificationInput) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Create(ctx, input); err != nil {
		s.log.Warn("membership notification failed",
			zap.String("user_id", input.UserID), zap.Error(err))
	}
}

func (s *MembershipService) recipientName(ctx context.Context, recipientID string) string {
	var recipient models.CareRecipient
	if err := s.db.WithContext(ctx).
		Select("name").
		First(&recipient, "id = ?", recipientID).Error; err != nil {
		return "this care recipient"
	}
	return recipient.Name
}
