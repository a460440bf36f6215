package models

import (
	"time"

	"gorm.io/datatypes"
)

// Medication frequency categories consumed by the reminder scan.
const (
	FrequencyDaily    = "daily"
	FrequencyWeekly   = "weekly"
	FrequencyMonthly  = "monthly"
	FrequencyAsNeeded = "as_needed"
)

// Medication is a recipient-scoped prescription with a reminder schedule.
type Medication struct {
	BaseModel

	CareRecipientID string `gorm:"type:uuid;not null;index" json:"care_recipient_id"`

	Name      string `gorm:"not null" json:"name"`
	Dosage    string `json:"dosage"`
	Frequency string `gorm:"type:varchar(32);default:'daily'" json:"frequency"`

	// Times holds the scheduled times of day as a JSON array of "HH:MM" strings.
	Times datatypes.JSON `json:"times"`

	StartDate time.Time  `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Notes     string     `gorm:"type:text" json:"notes"`
	IsActive  bool       `gorm:"default:true;index" json:"is_active"`

	CreatedBy string `gorm:"type:uuid" json:"created_by"`

	CareRecipient *CareRecipient `json:"care_recipient,omitempty"`
}
