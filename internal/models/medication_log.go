package models

import "time"

// Medication log statuses.
const (
	DoseTaken   = "taken"
	DoseSkipped = "skipped"
)

// MedicationLog records a confirmed or skipped dose for a medication.
type MedicationLog struct {
	BaseModel

	MedicationID    string `gorm:"type:uuid;not null;index" json:"medication_id"`
	CareRecipientID string `gorm:"type:uuid;not null;index" json:"care_recipient_id"`

	TakenAt time.Time `gorm:"index" json:"taken_at"`
	Status  string    `gorm:"type:varchar(16);not null" json:"status"`
	Notes   string    `gorm:"type:text" json:"notes"`

	LoggedBy string `gorm:"type:uuid" json:"logged_by"`

	Medication *Medication `json:"medication,omitempty"`
}
