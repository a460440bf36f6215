package permissions

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/database/testutil"
	"github.com/carecircle/carecircle/internal/models"
)

func seedMembership(t *testing.T, db *gorm.DB, role, status string, canView, canEdit, canDelete bool) (userID, recipientID string) {
	t.Helper()

	user := models.User{Email: uuid.NewString() + "@example.com", Name: "Member"}
	require.NoError(t, db.Create(&user).Error)

	recipient := models.CareRecipient{Name: "Recipient", CreatedBy: user.ID}
	require.NoError(t, db.Create(&recipient).Error)

	membership := models.Membership{
		UserID:          user.ID,
		CareRecipientID: recipient.ID,
		Role:            role,
		Status:          status,
		CanView:         canView,
		CanEdit:         canEdit,
		CanDelete:       canDelete,
	}
	require.NoError(t, db.Create(&membership).Error)

	return user.ID, recipient.ID
}

func TestResolveRequiresActiveMembership(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	resolver, err := NewResolver(db)
	require.NoError(t, err)

	ctx := context.Background()

	_, err = resolver.Resolve(ctx, uuid.NewString(), uuid.NewString())
	require.ErrorIs(t, err, ErrNotAMember)

	userID, recipientID := seedMembership(t, db, models.RoleViewer, models.MembershipPending, true, false, false)
	_, err = resolver.Resolve(ctx, userID, recipientID)
	require.ErrorIs(t, err, ErrNotAMember)
}

func TestResolveAdminOverridesStaleFlags(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	resolver, err := NewResolver(db)
	require.NoError(t, err)

	// Admin row with narrowed flags must still resolve to full access.
	userID, recipientID := seedMembership(t, db, models.RoleAdmin, models.MembershipActive, true, false, false)

	access, err := resolver.Resolve(context.Background(), userID, recipientID)
	require.NoError(t, err)
	require.Equal(t, models.RoleAdmin, access.Role)
	require.True(t, access.CanView)
	require.True(t, access.CanEdit)
	require.True(t, access.CanDelete)
}

func TestCheckHonoursExplicitFlags(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	resolver, err := NewResolver(db)
	require.NoError(t, err)

	ctx := context.Background()
	userID, recipientID := seedMembership(t, db, models.RoleEditor, models.MembershipActive, true, true, false)

	require.NoError(t, resolver.Check(ctx, userID, recipientID, ActionView))
	require.NoError(t, resolver.Check(ctx, userID, recipientID, ActionEdit))
	require.ErrorIs(t, resolver.Check(ctx, userID, recipientID, ActionDelete), ErrAccessDenied)
}

func TestCheckViewerCannotEdit(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	resolver, err := NewResolver(db)
	require.NoError(t, err)

	ctx := context.Background()
	userID, recipientID := seedMembership(t, db, models.RoleViewer, models.MembershipActive, true, false, false)

	require.NoError(t, resolver.Check(ctx, userID, recipientID, ActionView))
	require.ErrorIs(t, resolver.Check(ctx, userID, recipientID, ActionEdit), ErrAccessDenied)
	require.ErrorIs(t, resolver.Check(ctx, userID, recipientID, ActionDelete), ErrAccessDenied)
}

func TestRequireAdmin(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	resolver, err := NewResolver(db)
	require.NoError(t, err)

	ctx := context.Background()

	adminID, adminRecipient := seedMembership(t, db, models.RoleAdmin, models.MembershipActive, true, true, true)
	require.NoError(t, resolver.RequireAdmin(ctx, adminID, adminRecipient))

	editorID, editorRecipient := seedMembership(t, db, models.RoleEditor, models.MembershipActive, true, true, false)
	require.ErrorIs(t, resolver.RequireAdmin(ctx, editorID, editorRecipient), ErrAccessDenied)
}
