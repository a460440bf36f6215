package services

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/database/testutil"
	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/permissions"
)

func newTestUser(t *testing.T, db *gorm.DB, name string) models.User {
	t.Helper()

	user := models.User{Email: uuid.NewString() + "@example.com", Name: name}
	require.NoError(t, db.Create(&user).Error)
	return user
}

func newTestMembership(t *testing.T, db *gorm.DB, userID, recipientID, role, status string) models.Membership {
	t.Helper()

	canView, canEdit, canDelete := models.DefaultFlagsForRole(role)
	membership := models.Membership{
		UserID:          userID,
		CareRecipientID: recipientID,
		Role:            role,
		Status:          status,
		CanView:         canView,
		CanEdit:         canEdit,
		CanDelete:       canDelete,
	}
	require.NoError(t, db.Create(&membership).Error)
	return membership
}

// newTestCircle seeds a care recipient with one active admin and returns both.
func newTestCircle(t *testing.T, db *gorm.DB) (models.User, models.CareRecipient) {
	t.Helper()

	admin := newTestUser(t, db, "Admin")
	recipient := models.CareRecipient{Name: "Recipient " + uuid.NewString()[:8], CreatedBy: admin.ID}
	require.NoError(t, db.Create(&recipient).Error)
	newTestMembership(t, db, admin.ID, recipient.ID, models.RoleAdmin, models.MembershipActive)

	return admin, recipient
}

func newTestResolver(t *testing.T, db *gorm.DB) *permissions.Resolver {
	t.Helper()

	resolver, err := permissions.NewResolver(db)
	require.NoError(t, err)
	return resolver
}

func openServicesTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	return testutil.MustOpenTestDB(t)
}
