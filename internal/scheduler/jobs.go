package scheduler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/models"
	"github.com/carecircle/carecircle/internal/services"
)

// RunMedicationScan fires reminders for medication doses scheduled five
// minutes from now. Slots are compared as minutes since midnight without
// wrapping, so a scan late in the day never reaches across midnight into the
// next day's early slots. Each slot is claimed in the reminder ledger before
// any notification goes out.
func (s *Scheduler) RunMedicationScan(ctx context.Context) error {
	now := s.now()

	var medications []models.Medication
	if err := s.db.WithContext(ctx).
		Preload("CareRecipient").
		Where("is_active = ?", true).
		Find(&medications).Error; err != nil {
		return fmt.Errorf("scheduler: load medications: %w", err)
	}

	var errs error
	for _, medication := range medications {
		times, err := decodeScheduleTimes(medication.Times)
		if err != nil {
			s.log.Warn("skipping medication with malformed schedule",
				zap.String("medication_id", medication.ID), zap.Error(err))
			continue
		}

		for _, slot := range times {
			hour, minute, ok := splitSlot(slot)
			if !ok {
				continue
			}
			if (hour*60+minute)-(now.Hour()*60+now.Minute()) != 5 {
				continue
			}

			key := fmt.Sprintf("%s:medication:%s:%s:%s",
				medication.CareRecipientID, medication.ID, slot, now.Format("2006-01-02"))
			claimed, err := s.claimReminder(ctx, key)
			if err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
			if !claimed {
				continue
			}

			recipientName := "the care recipient"
			if medication.CareRecipient != nil {
				recipientName = medication.CareRecipient.Name
			}
			message := fmt.Sprintf("%s is due for %s at %s", recipientName, medication.Name, slot)
			if medication.Dosage != "" {
				message = fmt.Sprintf("%s is due for %s (%s) at %s",
					recipientName, medication.Name, medication.Dosage, slot)
			}

			notified, err := s.notifier.NotifyMembers(ctx, medication.CareRecipientID, "", services.CreateNotificationInput{
				Type:    models.NotificationMedication,
				Title:   "Medication reminder",
				Message: message,
				Context: map[string]any{
					"care_recipient_id": medication.CareRecipientID,
					"medication_id":     medication.ID,
					"time":              slot,
				},
			})
			if err != nil {
				errs = multierr.Append(errs, err)
			}
			s.log.Info("medication reminder sent",
				zap.String("medication_id", medication.ID),
				zap.String("slot", slot),
				zap.Int("notified", notified))
		}
	}

	return errs
}

// RunAppointmentReminders notifies members about appointments scheduled for
// the following calendar day.
func (s *Scheduler) RunAppointmentReminders(ctx context.Context) error {
	now := s.now()
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	end := start.AddDate(0, 0, 1)

	var appointments []models.Appointment
	if err := s.db.WithContext(ctx).
		Preload("CareRecipient").
		Where("status = ? AND scheduled_at >= ? AND scheduled_at < ?",
			models.AppointmentScheduled, start, end).
		Find(&appointments).Error; err != nil {
		return fmt.Errorf("scheduler: load appointments: %w", err)
	}

	var errs error
	for _, appointment := range appointments {
		key := fmt.Sprintf("%s:appointment:%s:%s",
			appointment.CareRecipientID, appointment.ID, start.Format("2006-01-02"))
		claimed, err := s.claimReminder(ctx, key)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		if !claimed {
			continue
		}

		recipientName := "the care recipient"
		if appointment.CareRecipient != nil {
			recipientName = appointment.CareRecipient.Name
		}
		message := fmt.Sprintf("%s has %q tomorrow at %s",
			recipientName, appointment.Title, appointment.ScheduledAt.Format("15:04"))
		if appointment.Location != "" {
			message += " at " + appointment.Location
		}

		notified, err := s.notifier.NotifyMembers(ctx, appointment.CareRecipientID, "", services.CreateNotificationInput{
			Type:    models.NotificationAppointment,
			Title:   "Appointment tomorrow",
			Message: message,
			Context: map[string]any{
				"care_recipient_id": appointment.CareRecipientID,
				"appointment_id":    appointment.ID,
				"scheduled_at":      appointment.ScheduledAt.Format(time.RFC3339),
			},
		})
		if err != nil {
			errs = multierr.Append(errs, err)
		}
		s.log.Info("appointment reminder sent",
			zap.String("appointment_id", appointment.ID),
			zap.Int("notified", notified))
	}

	return errs
}

// RunMedicationExpirySweep deactivates medications whose end date has passed.
func (s *Scheduler) RunMedicationExpirySweep(ctx context.Context) error {
	now := s.now()
	startOfToday := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())

	result := s.db.WithContext(ctx).
		Model(&models.Medication{}).
		Where("is_active = ? AND end_date IS NOT NULL AND end_date < ?", true, startOfToday).
		Update("is_active", false)
	if result.Error != nil {
		return fmt.Errorf("scheduler: expire medications: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.log.Info("expired medications deactivated", zap.Int64("count", result.RowsAffected))
	}
	return nil
}

// RunAppointmentStatusSweep marks scheduled appointments in the past as
// missed. An appointment completed or cancelled concurrently keeps the most
// recent write.
func (s *Scheduler) RunAppointmentStatusSweep(ctx context.Context) error {
	result := s.db.WithContext(ctx).
		Model(&models.Appointment{}).
		Where("status = ? AND scheduled_at < ?", models.AppointmentScheduled, s.now()).
		Update("status", models.AppointmentMissed)
	if result.Error != nil {
		return fmt.Errorf("scheduler: mark missed appointments: %w", result.Error)
	}
	if result.RowsAffected > 0 {
		s.log.Info("stale appointments marked missed", zap.Int64("count", result.RowsAffected))
	}
	return nil
}

// RunWeeklyAdherenceReport sends each care recipient's admins a summary of
// dose logs over the trailing seven days.
func (s *Scheduler) RunWeeklyAdherenceReport(ctx context.Context) error {
	now := s.now()
	since := now.AddDate(0, 0, -7)

	var admins []models.Membership
	if err := s.db.WithContext(ctx).
		Preload("CareRecipient").
		Where("role = ? AND status = ?", models.RoleAdmin, models.MembershipActive).
		Find(&admins).Error; err != nil {
		return fmt.Errorf("scheduler: load admin memberships: %w", err)
	}

	var errs error
	for _, admin := range admins {
		var total, taken int64
		base := s.db.WithContext(ctx).
			Model(&models.MedicationLog{}).
			Where("care_recipient_id = ? AND taken_at >= ?", admin.CareRecipientID, since)
		if err := base.Count(&total).Error; err != nil {
			errs = multierr.Append(errs, fmt.Errorf("scheduler: count dose logs: %w", err))
			continue
		}
		if err := base.Where("status = ?", models.DoseTaken).Count(&taken).Error; err != nil {
			errs = multierr.Append(errs, fmt.Errorf("scheduler: count taken doses: %w", err))
			continue
		}

		recipientName := "the care recipient"
		if admin.CareRecipient != nil {
			recipientName = admin.CareRecipient.Name
		}

		message := fmt.Sprintf("No doses were logged for %s this week.", recipientName)
		adherence := int64(0)
		if total > 0 {
			adherence = taken * 100 / total
			message = fmt.Sprintf("%s took %d of %d logged doses this week (%d%% adherence).",
				recipientName, taken, total, adherence)
		}

		if _, err := s.notifier.Create(ctx, services.CreateNotificationInput{
			UserID:  admin.UserID,
			Type:    models.NotificationSystem,
			Title:   "Weekly medication summary",
			Message: message,
			Context: map[string]any{
				"care_recipient_id": admin.CareRecipientID,
				"doses_taken":       taken,
				"doses_logged":      total,
				"adherence_pct":     adherence,
			},
		}); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	return errs
}

// RunRetentionSweep prunes aged notifications and spent ledger rows.
func (s *Scheduler) RunRetentionSweep(ctx context.Context) error {
	removed, err := s.notifier.CleanupOlderThan(ctx, s.retentionDays)
	if err != nil {
		return err
	}

	cutoff := s.now().UTC().AddDate(0, 0, -s.ledgerRetentionDays)
	result := s.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.ReminderLedger{})
	if result.Error != nil {
		return fmt.Errorf("scheduler: prune reminder ledger: %w", result.Error)
	}

	if removed > 0 || result.RowsAffected > 0 {
		s.log.Info("retention sweep complete",
			zap.Int64("notifications_removed", removed),
			zap.Int64("ledger_rows_pruned", result.RowsAffected))
	}
	return nil
}

// claimReminder inserts the dedup key, returning false when another run has
// already claimed it.
func (s *Scheduler) claimReminder(ctx context.Context, key string) (bool, error) {
	err := s.db.WithContext(ctx).Create(&models.ReminderLedger{DedupKey: key}).Error
	if err == nil {
		return true, nil
	}
	if isDuplicateKeyError(err) {
		return false, nil
	}
	return false, fmt.Errorf("scheduler: claim reminder %s: %w", key, err)
}

func isDuplicateKeyError(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "unique") || strings.Contains(msg, "duplicate")
}

func decodeScheduleTimes(raw []byte) ([]string, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var times []string
	if err := json.Unmarshal(raw, &times); err != nil {
		return nil, err
	}
	return times, nil
}

// splitSlot parses "HH:MM" into its components.
func splitSlot(slot string) (hour, minute int, ok bool) {
	parsed, err := time.Parse("15:04", slot)
	if err != nil {
		return 0, 0, false
	}
	return parsed.Hour(), parsed.Minute(), true
}
