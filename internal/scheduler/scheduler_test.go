package scheduler

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/database/testutil"
	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/services"
)

func newTestScheduler(t *testing.T, db *gorm.DB, now time.Time, opts ...Option) *Scheduler {
	t.Helper()

	notifier, err := services.NewNotificationService(db, nil, nil)
	require.NoError(t, err)

	opts = append([]Option{WithNow(func() time.Time { return now })}, opts...)
	s, err := New(db, notifier, opts...)
	require.NoError(t, err)
	return s
}

func seedCircle(t *testing.T, db *gorm.DB, memberRoles ...string) (models.CareRecipient, []models.User) {
	t.Helper()

	recipient := models.CareRecipient{Name: "Recipient " + uuid.NewString()[:8]}
	require.NoError(t, db.Create(&recipient).Error)

	users := make([]models.User, 0, len(memberRoles))
	for _, role := range memberRoles {
		user := models.User{Email: uuid.NewString() + "@example.com", Name: "Member"}
		require.NoError(t, db.Create(&user).Error)

		canView, canEdit, canDelete := models.DefaultFlagsForRole(role)
		require.NoError(t, db.Create(&models.Membership{
			UserID:          user.ID,
			CareRecipientID: recipient.ID,
			Role:            role,
			Status:          models.MembershipActive,
			CanView:         canView,
			CanEdit:         canEdit,
			CanDelete:       canDelete,
		}).Error)
		users = append(users, user)
	}

	return recipient, users
}

func seedMedication(t *testing.T, db *gorm.DB, recipientID string, times ...string) models.Medication {
	t.Helper()

	encoded, err := json.Marshal(times)
	require.NoError(t, err)

	medication := models.Medication{
		CareRecipientID: recipientID,
		Name:            "Aspirin",
		Dosage:          "100mg",
		Times:           datatypes.JSON(encoded),
		IsActive:        true,
	}
	require.NoError(t, db.Create(&medication).Error)
	return medication
}

func countNotifications(t *testing.T, db *gorm.DB, userIDs []string, notificationType string) int64 {
	t.Helper()

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("user_id IN ? AND type = ?", userIDs, notificationType).
		Count(&count).Error)
	return count
}

func memberIDs(users []models.User) []string {
	ids := make([]string, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids
}

func TestMedicationScanFiresFiveMinutesAhead(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	recipient, users := seedCircle(t, db, models.RoleAdmin, models.RoleViewer)
	seedMedication(t, db, recipient.ID, "08:00")

	now := time.Date(2026, 5, 4, 7, 55, 0, 0, time.UTC)
	s := newTestScheduler(t, db, now)

	require.NoError(t, s.RunMedicationScan(context.Background()))
	require.EqualValues(t, 2, countNotifications(t, db, memberIDs(users), models.NotificationMedication))

	// A second run within the same window is deduplicated by the ledger.
	require.NoError(t, s.RunMedicationScan(context.Background()))
	require.EqualValues(t, 2, countNotifications(t, db, memberIDs(users), models.NotificationMedication))
}

func TestMedicationScanOffWindowMinutes(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	recipient, users := seedCircle(t, db, models.RoleAdmin)
	seedMedication(t, db, recipient.ID, "08:00")

	for _, minute := range []int{54, 56, 0} {
		now := time.Date(2026, 5, 4, 7, minute, 0, 0, time.UTC)
		s := newTestScheduler(t, db, now)
		require.NoError(t, s.RunMedicationScan(context.Background()))
	}

	require.Zero(t, countNotifications(t, db, memberIDs(users), models.NotificationMedication))
}

func TestMedicationScanMatchesAcrossHourBoundary(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	recipient, users := seedCircle(t, db, models.RoleAdmin)
	seedMedication(t, db, recipient.ID, "09:02")

	now := time.Date(2026, 5, 4, 8, 57, 0, 0, time.UTC)
	s := newTestScheduler(t, db, now)

	require.NoError(t, s.RunMedicationScan(context.Background()))
	require.EqualValues(t, 1, countNotifications(t, db, memberIDs(users), models.NotificationMedication))
}

func TestMedicationScanDoesNotCrossMidnight(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	recipient, users := seedCircle(t, db, models.RoleAdmin)
	seedMedication(t, db, recipient.ID, "00:02")

	// 23:57 is five minutes before 00:02 on the clock, but minute-of-day
	// comparison does not wrap past midnight, so no reminder fires.
	now := time.Date(2026, 5, 4, 23, 57, 0, 0, time.UTC)
	s := newTestScheduler(t, db, now)

	require.NoError(t, s.RunMedicationScan(context.Background()))
	require.Zero(t, countNotifications(t, db, memberIDs(users), models.NotificationMedication))
}

func TestMedicationScanSkipsInactiveMedications(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	recipient, users := seedCircle(t, db, models.RoleAdmin)
	medication := seedMedication(t, db, recipient.ID, "08:00")
	require.NoError(t, db.Model(&medication).Update("is_active", false).Error)

	now := time.Date(2026, 5, 4, 7, 55, 0, 0, time.UTC)
	s := newTestScheduler(t, db, now)

	require.NoError(t, s.RunMedicationScan(context.Background()))
	require.Zero(t, countNotifications(t, db, memberIDs(users), models.NotificationMedication))
}

func TestAppointmentRemindersTargetTomorrowOnly(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	recipient, users := seedCircle(t, db, models.RoleAdmin, models.RoleEditor)

	now := time.Date(2026, 5, 4, 18, 0, 0, 0, time.UTC)

	tomorrow := models.Appointment{
		CareRecipientID: recipient.ID,
		Title:           "Cardiology",
		ScheduledAt:     time.Date(2026, 5, 5, 10, 0, 0, 0, time.UTC),
		Status:          models.AppointmentScheduled,
	}
	today := models.Appointment{
		CareRecipientID: recipient.ID,
		Title:           "Today",
		ScheduledAt:     time.Date(2026, 5, 4, 20, 0, 0, 0, time.UTC),
		Status:          models.AppointmentScheduled,
	}
	later := models.Appointment{
		CareRecipientID: recipient.ID,
		Title:           "Later",
		ScheduledAt:     time.Date(2026, 5, 6, 9, 0, 0, 0, time.UTC),
		Status:          models.AppointmentScheduled,
	}
	cancelled := models.Appointment{
		CareRecipientID: recipient.ID,
		Title:           "Cancelled",
		ScheduledAt:     time.Date(2026, 5, 5, 11, 0, 0, 0, time.UTC),
		Status:          models.AppointmentCancelled,
	}
	for _, a := range []*models.Appointment{&tomorrow, &today, &later, &cancelled} {
		require.NoError(t, db.Create(a).Error)
	}

	s := newTestScheduler(t, db, now)
	require.NoError(t, s.RunAppointmentReminders(context.Background()))
	require.EqualValues(t, 2, countNotifications(t, db, memberIDs(users), models.NotificationAppointment))

	// Repeat runs on the same day are deduplicated.
	require.NoError(t, s.RunAppointmentReminders(context.Background()))
	require.EqualValues(t, 2, countNotifications(t, db, memberIDs(users), models.NotificationAppointment))
}

func TestMedicationExpirySweep(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	recipient, _ := seedCircle(t, db, models.RoleAdmin)

	now := time.Date(2026, 5, 4, 0, 30, 0, 0, time.UTC)
	yesterday := time.Date(2026, 5, 3, 8, 0, 0, 0, time.UTC)
	todayNoon := time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

	expired := seedMedication(t, db, recipient.ID, "08:00")
	require.NoError(t, db.Model(&expired).Update("end_date", yesterday).Error)

	current := seedMedication(t, db, recipient.ID, "08:00")
	require.NoError(t, db.Model(&current).Update("end_date", todayNoon).Error)

	openEnded := seedMedication(t, db, recipient.ID, "08:00")

	s := newTestScheduler(t, db, now)
	require.NoError(t, s.RunMedicationExpirySweep(context.Background()))

	var gotExpired, gotCurrent, gotOpenEnded models.Medication
	require.NoError(t, db.First(&gotExpired, "id = ?", expired.ID).Error)
	require.False(t, gotExpired.IsActive)

	require.NoError(t, db.First(&gotCurrent, "id = ?", current.ID).Error)
	require.True(t, gotCurrent.IsActive)

	require.NoError(t, db.First(&gotOpenEnded, "id = ?", openEnded.ID).Error)
	require.True(t, gotOpenEnded.IsActive)
}

func TestAppointmentStatusSweepMarksMissed(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	recipient, _ := seedCircle(t, db, models.RoleAdmin)

	now := time.Date(2026, 5, 4, 0, 30, 0, 0, time.UTC)

	past := models.Appointment{
		CareRecipientID: recipient.ID, Title: "Past",
		ScheduledAt: now.Add(-2 * time.Hour), Status: models.AppointmentScheduled,
	}
	future := models.Appointment{
		CareRecipientID: recipient.ID, Title: "Future",
		ScheduledAt: now.Add(2 * time.Hour), Status: models.AppointmentScheduled,
	}
	done := models.Appointment{
		CareRecipientID: recipient.ID, Title: "Done",
		ScheduledAt: now.Add(-24 * time.Hour), Status: models.AppointmentCompleted,
	}
	for _, a := range []*models.Appointment{&past, &future, &done} {
		require.NoError(t, db.Create(a).Error)
	}

	s := newTestScheduler(t, db, now)
	require.NoError(t, s.RunAppointmentStatusSweep(context.Background()))

	var gotPast, gotFuture, gotDone models.Appointment
	require.NoError(t, db.First(&gotPast, "id = ?", past.ID).Error)
	require.Equal(t, models.AppointmentMissed, gotPast.Status)

	require.NoError(t, db.First(&gotFuture, "id = ?", future.ID).Error)
	require.Equal(t, models.AppointmentScheduled, gotFuture.Status)

	require.NoError(t, db.First(&gotDone, "id = ?", done.ID).Error)
	require.Equal(t, models.AppointmentCompleted, gotDone.Status)
}

func TestWeeklyAdherenceReport(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	recipient, users := seedCircle(t, db, models.RoleAdmin, models.RoleViewer)
	admin, viewer := users[0], users[1]
	medication := seedMedication(t, db, recipient.ID, "08:00")

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	logDose := func(status string, takenAt time.Time) {
		require.NoError(t, db.Create(&models.MedicationLog{
			MedicationID:    medication.ID,
			CareRecipientID: recipient.ID,
			TakenAt:         takenAt,
			Status:          status,
			LoggedBy:        viewer.ID,
		}).Error)
	}

	logDose(models.DoseTaken, now.Add(-24*time.Hour))
	logDose(models.DoseTaken, now.Add(-48*time.Hour))
	logDose(models.DoseTaken, now.Add(-72*time.Hour))
	logDose(models.DoseSkipped, now.Add(-96*time.Hour))
	// Outside the trailing week, must not count.
	logDose(models.DoseTaken, now.Add(-8*24*time.Hour))

	s := newTestScheduler(t, db, now)
	require.NoError(t, s.RunWeeklyAdherenceReport(context.Background()))

	var reports []models.Notification
	require.NoError(t, db.
		Where("user_id = ? AND type = ?", admin.ID, models.NotificationSystem).
		Find(&reports).Error)
	require.Len(t, reports, 1)
	require.Contains(t, reports[0].Message, "3 of 4 logged doses")
	require.Contains(t, reports[0].Message, "75% adherence")

	// Non-admin members receive no report.
	require.Zero(t, countNotifications(t, db, []string{viewer.ID}, models.NotificationSystem))
}

func TestWeeklyAdherenceReportFullAdherence(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	recipient, users := seedCircle(t, db, models.RoleAdmin, models.RoleViewer)
	admin, viewer := users[0], users[1]
	medication := seedMedication(t, db, recipient.ID, "08:00")

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)

	require.NoError(t, db.Create(&models.MedicationLog{
		MedicationID:    medication.ID,
		CareRecipientID: recipient.ID,
		TakenAt:         now.Add(-24 * time.Hour),
		Status:          models.DoseTaken,
		LoggedBy:        viewer.ID,
	}).Error)

	s := newTestScheduler(t, db, now)
	require.NoError(t, s.RunWeeklyAdherenceReport(context.Background()))

	var reports []models.Notification
	require.NoError(t, db.
		Where("user_id = ? AND type = ?", admin.ID, models.NotificationSystem).
		Find(&reports).Error)
	require.Len(t, reports, 1)
	require.Contains(t, reports[0].Message, "1 of 1 logged doses")
	require.Contains(t, reports[0].Message, "100% adherence")
}

func TestWeeklyAdherenceReportNoLogs(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	_, users := seedCircle(t, db, models.RoleAdmin)

	now := time.Date(2026, 5, 4, 9, 0, 0, 0, time.UTC)
	s := newTestScheduler(t, db, now)
	require.NoError(t, s.RunWeeklyAdherenceReport(context.Background()))

	var reports []models.Notification
	require.NoError(t, db.
		Where("user_id = ? AND type = ?", users[0].ID, models.NotificationSystem).
		Find(&reports).Error)
	require.Len(t, reports, 1)
	require.Contains(t, reports[0].Message, "No doses were logged")
}

func TestRetentionSweep(t *testing.T) {
	db := testutil.MustOpenTestDB(t)
	_, users := seedCircle(t, db, models.RoleAdmin)
	user := users[0]

	old := models.Notification{UserID: user.ID, Type: models.NotificationSystem, Title: "Old"}
	recent := models.Notification{UserID: user.ID, Type: models.NotificationSystem, Title: "Recent"}
	require.NoError(t, db.Create(&old).Error)
	require.NoError(t, db.Create(&recent).Error)

	require.NoError(t, db.Model(&old).
		Update("created_at", time.Now().UTC().AddDate(0, 0, -31)).Error)
	require.NoError(t, db.Model(&recent).
		Update("created_at", time.Now().UTC().AddDate(0, 0, -29)).Error)

	staleLedger := models.ReminderLedger{DedupKey: "retention-test:" + uuid.NewString()}
	require.NoError(t, db.Create(&staleLedger).Error)
	require.NoError(t, db.Model(&staleLedger).
		Update("created_at", time.Now().UTC().AddDate(0, 0, -8)).Error)

	s := newTestScheduler(t, db, time.Now().UTC())
	require.NoError(t, s.RunRetentionSweep(context.Background()))

	var count int64
	require.NoError(t, db.Model(&models.Notification{}).
		Where("id = ?", old.ID).Count(&count).Error)
	require.Zero(t, count)

	require.NoError(t, db.Model(&models.Notification{}).
		Where("id = ?", recent.ID).Count(&count).Error)
	require.EqualValues(t, 1, count)

	require.NoError(t, db.Model(&models.ReminderLedger{}).
		Where("id = ?", staleLedger.ID).Count(&count).Error)
	require.Zero(t, count)
}
