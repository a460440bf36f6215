package database

import (
	"gorm.io/gorm"

	"github.com/carecircle/carecircle/internal/models"
)

// AutoMigrate creates or updates the database schema for all models.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.User{},
		&models.CareRecipient{},
		&models.Membership{},
		&models.Medication{},
		&models.MedicationLog{},
		&models.Appointment{},
		&models.Document{},
		&models.Notification{},
		&models.PushSubscription{},
		&models.ReminderLedger{},
	)
}
