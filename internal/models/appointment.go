package models

import "time"

// Appointment statuses.
const (
	AppointmentScheduled = "scheduled"
	AppointmentCompleted = "completed"
	AppointmentCancelled = "cancelled"
	AppointmentMissed    = "missed"
)

// Appointment is a recipient-scoped visit with a single scheduled timestamp.
type Appointment struct {
	BaseModel

	CareRecipientID string `gorm:"type:uuid;not null;index" json:"care_recipient_id"`

	Title    string `gorm:"not null" json:"title"`
	Location string `json:"location"`
	Provider string `json:"provider"`

	ScheduledAt time.Time `gorm:"index;not null" json:"scheduled_at"`
	Status      string    `gorm:"type:varchar(16);not null;default:'scheduled';index" json:"status"`
	Notes       string    `gorm:"type:text" json:"notes"`

	CreatedBy string `gorm:"type:uuid" json:"created_by"`

	CareRecipient *CareRecipient `json:"care_recipient,omitempty"`
}

// ValidAppointmentStatus reports whether the supplied status is one of the closed set.
func ValidAppointmentStatus(status string) bool {
	switch status {
	case AppointmentScheduled, AppointmentCompleted, AppointmentCancelled, AppointmentMissed:
		return true
	}
	return false
}
