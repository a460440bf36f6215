package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/permissions"
	apperrors "github.com/carecircle/carecircle/pkg/errors"
)

func newMedicationService(t *testing.T, db *gorm.DB, opts ...MedicationOption) *MedicationService {
	t.Helper()

	service, err := NewMedicationService(db, newTestResolver(t, db), opts...)
	require.NoError(t, err)
	return service
}

func TestCreateMedicationValidatesSchedule(t *testing.T) {
	db := openServicesTestDB(t)
	service := newMedicationService(t, db)
	ctx := context.Background()

	admin, recipient := newTestCircle(t, db)

	_, err := service.Create(ctx, CreateMedicationInput{
		ActorID:     admin.ID,
		RecipientID: recipient.ID,
		Name:        "Aspirin",
		Times:       []string{"8am"},
	})
	require.Error(t, err)
	var appErr *apperrors.AppError
	require.ErrorAs(t, err, &appErr)
	require.Equal(t, "BAD_REQUEST", appErr.Code)

	medication, err := service.Create(ctx, CreateMedicationInput{
		ActorID:     admin.ID,
		RecipientID: recipient.ID,
		Name:        "Aspirin",
		Dosage:      "100mg",
		Times:       []string{"08:00", "20:00", "08:00"},
	})
	require.NoError(t, err)
	require.True(t, medication.IsActive)
	require.Equal(t, models.FrequencyDaily, medication.Frequency)
	// Duplicate slots are collapsed.
	require.JSONEq(t, `["08:00","20:00"]`, string(medication.Times))
}

func TestCreateMedicationRequiresEdit(t *testing.T) {
	db := openServicesTestDB(t)
	service := newMedicationService(t, db)
	ctx := context.Background()

	_, recipient := newTestCircle(t, db)
	viewer := newTestUser(t, db, "Viewer")
	newTestMembership(t, db, viewer.ID, recipient.ID, models.RoleViewer, models.MembershipActive)

	_, err := service.Create(ctx, CreateMedicationInput{
		ActorID:     viewer.ID,
		RecipientID: recipient.ID,
		Name:        "Aspirin",
	})
	require.ErrorIs(t, err, permissions.ErrAccessDenied)
}

func TestLogDoseAllowedForViewers(t *testing.T) {
	db := openServicesTestDB(t)

	fixed := time.Date(2026, 4, 2, 9, 0, 0, 0, time.UTC)
	service := newMedicationService(t, db, WithMedicationClock(func() time.Time { return fixed }))
	ctx := context.Background()

	admin, recipient := newTestCircle(t, db)
	viewer := newTestUser(t, db, "Viewer")
	newTestMembership(t, db, viewer.ID, recipient.ID, models.RoleViewer, models.MembershipActive)

	medication, err := service.Create(ctx, CreateMedicationInput{
		ActorID:     admin.ID,
		RecipientID: recipient.ID,
		Name:        "Aspirin",
		Times:       []string{"08:00"},
	})
	require.NoError(t, err)

	// Dose logging is a view-level capability so every member can confirm care.
	log, err := service.LogDose(ctx, LogDoseInput{
		ActorID:      viewer.ID,
		MedicationID: medication.ID,
		Status:       models.DoseTaken,
	})
	require.NoError(t, err)
	require.Equal(t, fixed, log.TakenAt)
	require.Equal(t, viewer.ID, log.LoggedBy)

	_, err = service.LogDose(ctx, LogDoseInput{
		ActorID:      viewer.ID,
		MedicationID: medication.ID,
		Status:       "maybe",
	})
	require.Error(t, err)

	logs, err := service.ListLogs(ctx, admin.ID, medication.ID, 0)
	require.NoError(t, err)
	require.Len(t, logs, 1)
}

func TestDeleteMedicationRemovesLogs(t *testing.T) {
	db := openServicesTestDB(t)
	service := newMedicationService(t, db)
	ctx := context.Background()

	admin, recipient := newTestCircle(t, db)

	medication, err := service.Create(ctx, CreateMedicationInput{
		ActorID:     admin.ID,
		RecipientID: recipient.ID,
		Name:        "Aspirin",
	})
	require.NoError(t, err)

	_, err = service.LogDose(ctx, LogDoseInput{
		ActorID:      admin.ID,
		MedicationID: medication.ID,
		Status:       models.DoseSkipped,
	})
	require.NoError(t, err)

	require.NoError(t, service.Delete(ctx, admin.ID, medication.ID))

	var count int64
	require.NoError(t, db.Model(&models.MedicationLog{}).
		Where("medication_id = ?", medication.ID).Count(&count).Error)
	require.Zero(t, count)

	_, err = service.LogDose(ctx, LogDoseInput{
		ActorID:      admin.ID,
		MedicationID: medication.ID,
		Status:       models.DoseTaken,
	})
	require.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestListMedicationsActiveOnly(t *testing.T) {
	db := openServicesTestDB(t)
	service := newMedicationService(t, db)
	ctx := context.Background()

	admin, recipient := newTestCircle(t, db)

	_, err := service.Create(ctx, CreateMedicationInput{
		ActorID: admin.ID, RecipientID: recipient.ID, Name: "Active",
	})
	require.NoError(t, err)

	inactive, err := service.Create(ctx, CreateMedicationInput{
		ActorID: admin.ID, RecipientID: recipient.ID, Name: "Retired",
	})
	require.NoError(t, err)
	off := false
	_, err = service.Update(ctx, admin.ID, inactive.ID, UpdateMedicationInput{IsActive: &off})
	require.NoError(t, err)

	all, err := service.List(ctx, admin.ID, recipient.ID, false)
	require.NoError(t, err)
	require.Len(t, all, 2)

	active, err := service.List(ctx, admin.ID, recipient.ID, true)
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.Equal(t, "Active", active[0].Name)
}
