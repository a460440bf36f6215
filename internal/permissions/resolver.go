package permissions

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/models"
	apperrors "github.com/carecircle/carecircle/pkg/errors"
	"github.com/carecircle/carecircle/pkg/metrics"
)

// Actions that can be checked against a membership's capability flags.
const (
	ActionView   = "view"
	ActionEdit   = "edit"
	ActionDelete = "delete"
)

var (
	// ErrNotAMember indicates the user holds no active membership for the recipient.
	ErrNotAMember = apperrors.New("NOT_A_MEMBER", "You are not a member of this care circle", http.StatusForbidden)
	// ErrAccessDenied indicates the membership exists but does not grant the action.
	ErrAccessDenied = apperrors.New("ACCESS_DENIED", "You do not have permission to perform this action", http.StatusForbidden)
)

// Access is the effective capability set for a user on a care recipient.
type Access struct {
	Role      string
	CanView   bool
	CanEdit   bool
	CanDelete bool
}

// Resolver computes effective capabilities from stored memberships. Pure
// reads, no side effects.
type Resolver struct {
	db *gorm.DB
}

// NewResolver constructs a Resolver.
func NewResolver(db *gorm.DB) (*Resolver, error) {
	if db == nil {
		return nil, errors.New("permission resolver: db is required")
	}
	return &Resolver{db: db}, nil
}

// Resolve returns the effective capability set for the (user, recipient)
// pair. Absence of an active membership yields ErrNotAMember. An admin role
// always grants all three flags regardless of stored flag values.
func (r *Resolver) Resolve(ctx context.Context, userID, recipientID string) (Access, error) {
	ctx = ensureContext(ctx)
	userID = strings.TrimSpace(userID)
	recipientID = strings.TrimSpace(recipientID)
	if userID == "" || recipientID == "" {
		return Access{}, ErrNotAMember
	}

	var membership models.Membership
	err := r.db.WithContext(ctx).
		Where("user_id = ? AND care_recipient_id = ? AND status = ?", userID, recipientID, models.MembershipActive).
		First(&membership).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return Access{}, ErrNotAMember
	}
	if err != nil {
		return Access{}, fmt.Errorf("permission resolver: load membership: %w", err)
	}

	access := Access{
		Role:      membership.Role,
		CanView:   membership.CanView,
		CanEdit:   membership.CanEdit,
		CanDelete: membership.CanDelete,
	}

	// Admin is a superset; stale flag data never restricts it.
	if membership.Role == models.RoleAdmin {
		access.CanView = true
		access.CanEdit = true
		access.CanDelete = true
	}

	return access, nil
}

// Check fails with ErrAccessDenied unless the resolved access grants the
// action. Runs before every mutation of recipient-scoped resources.
func (r *Resolver) Check(ctx context.Context, userID, recipientID, action string) error {
	access, err := r.Resolve(ctx, userID, recipientID)
	if err != nil {
		if errors.Is(err, ErrNotAMember) {
			metrics.PermissionChecks.WithLabelValues(action, "deny").Inc()
			return err
		}
		metrics.PermissionChecks.WithLabelValues(action, "error").Inc()
		return err
	}

	allowed := false
	switch action {
	case ActionView:
		allowed = access.CanView
	case ActionEdit:
		allowed = access.CanEdit
	case ActionDelete:
		allowed = access.CanDelete
	default:
		metrics.PermissionChecks.WithLabelValues(action, "error").Inc()
		return fmt.Errorf("permission resolver: unknown action %q", action)
	}

	if !allowed {
		metrics.PermissionChecks.WithLabelValues(action, "deny").Inc()
		return ErrAccessDenied
	}

	metrics.PermissionChecks.WithLabelValues(action, "allow").Inc()
	return nil
}

// RequireAdmin verifies the user holds an active admin membership. Used by
// membership mutations, where even an admin with narrowed flags may act.
func (r *Resolver) RequireAdmin(ctx context.Context, userID, recipientID string) error {
	access, err := r.Resolve(ctx, userID, recipientID)
	if err != nil {
		return err
	}
	if access.Role != models.RoleAdmin {
		return ErrAccessDenied
	}
	return nil
}

func ensureContext(ctx context.Context) context.Context {
	if ctx != nil {
		return ctx
	}
	return context.Background()
}
