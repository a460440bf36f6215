package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/permissions"
)

func TestCreateCareRecipientGrantsCreatorAdmin(t *testing.T) {
	db := openServicesTestDB(t)
	service, err := NewCareRecipientService(db, newTestResolver(t, db), nil)
	require.NoError(t, err)

	ctx := context.Background()
	creator := newTestUser(t, db, "Creator")

	recipient, err := service.Create(ctx, CreateCareRecipientInput{
		CreatorID: creator.ID,
		Name:      "Grandma",
		Allergies: "penicillin",
	})
	require.NoError(t, err)
	require.NotEmpty(t, recipient.ID)

	var membership models.Membership
	require.NoError(t, db.First(&membership,
		"user_id = ? AND care_recipient_id = ?", creator.ID, recipient.ID).Error)
	require.Equal(t, models.RoleAdmin, membership.Role)
	require.Equal(t, models.MembershipActive, membership.Status)
	require.NotNil(t, membership.AcceptedAt)
	require.True(t, membership.CanDelete)
}

func TestListReturnsOnlyActiveCircles(t *testing.T) {
	db := openServicesTestDB(t)
	service, err := NewCareRecipientService(db, newTestResolver(t, db), nil)
	require.NoError(t, err)

	ctx := context.Background()
	user := newTestUser(t, db, "User")

	visible, err := service.Create(ctx, CreateCareRecipientInput{CreatorID: user.ID, Name: "Visible"})
	require.NoError(t, err)

	// A pending membership does not surface the recipient.
	_, hidden := newTestCircle(t, db)
	newTestMembership(t, db, user.ID, hidden.ID, models.RoleViewer, models.MembershipPending)

	recipients, err := service.List(ctx, user.ID)
	require.NoError(t, err)
	require.Len(t, recipients, 1)
	require.Equal(t, visible.ID, recipients[0].ID)
}

func TestGetRequiresMembership(t *testing.T) {
	db := openServicesTestDB(t)
	service, err := NewCareRecipientService(db, newTestResolver(t, db), nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, recipient := newTestCircle(t, db)
	outsider := newTestUser(t, db, "Outsider")

	_, err = service.Get(ctx, outsider.ID, recipient.ID)
	require.ErrorIs(t, err, permissions.ErrNotAMember)
}

func TestDeleteCascadesDependents(t *testing.T) {
	db := openServicesTestDB(t)
	service, err := NewCareRecipientService(db, newTestResolver(t, db), nil)
	require.NoError(t, err)

	ctx := context.Background()
	admin, recipient := newTestCircle(t, db)

	medication := models.Medication{CareRecipientID: recipient.ID, Name: "Aspirin", IsActive: true}
	require.NoError(t, db.Create(&medication).Error)
	log := models.MedicationLog{
		MedicationID: medication.ID, CareRecipientID: recipient.ID,
		Status: models.DoseTaken, LoggedBy: admin.ID,
	}
	require.NoError(t, db.Create(&log).Error)
	appointment := models.Appointment{
		CareRecipientID: recipient.ID, Title: "Checkup", Status: models.AppointmentScheduled,
	}
	require.NoError(t, db.Create(&appointment).Error)

	// Viewer members cannot delete the circle.
	viewer := newTestUser(t, db, "Viewer")
	newTestMembership(t, db, viewer.ID, recipient.ID, models.RoleViewer, models.MembershipActive)
	require.ErrorIs(t, service.Delete(ctx, viewer.ID, recipient.ID), permissions.ErrAccessDenied)

	require.NoError(t, service.Delete(ctx, admin.ID, recipient.ID))

	var count int64
	require.NoError(t, db.Model(&models.CareRecipient{}).
		Where("id = ?", recipient.ID).Count(&count).Error)
	require.Zero(t, count)

	for _, model := range []any{
		&models.Membership{}, &models.Medication{},
		&models.MedicationLog{}, &models.Appointment{},
	} {
		require.NoError(t, db.Model(model).
			Where("care_recipient_id = ?", recipient.ID).
			Count(&count).Error)
		require.Zero(t, count)
	}
}

func TestUpdateCareRecipientRequiresEditFlag(t *testing.T) {
	db := openServicesTestDB(t)
	service, err := NewCareRecipientService(db, newTestResolver(t, db), nil)
	require.NoError(t, err)

	ctx := context.Background()
	_, recipient := newTestCircle(t, db)
	viewer := newTestUser(t, db, "Viewer")
	newTestMembership(t, db, viewer.ID, recipient.ID, models.RoleViewer, models.MembershipActive)

	name := "Updated"
	_, err = service.Update(ctx, viewer.ID, recipient.ID, UpdateCareRecipientInput{Name: &name})
	require.ErrorIs(t, err, permissions.ErrAccessDenied)
}
