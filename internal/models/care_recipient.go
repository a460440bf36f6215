package models

import (
	"time"

	"gorm.io/datatypes"
)

// CareRecipient is a person being cared for, owned collectively by the
// members of their care circle.
type CareRecipient struct {
	BaseModel

	Name      string     `gorm:"not null" json:"name"`
	BirthDate *time.Time `json:"birth_date"`

	Allergies         string         `gorm:"type:text" json:"allergies"`
	Conditions        string         `gorm:"type:text" json:"conditions"`
	EmergencyContacts datatypes.JSON `json:"emergency_contacts"`

	CreatedBy string `gorm:"type:uuid;index" json:"created_by"`

	Memberships  []Membership  `gorm:"foreignKey:CareRecipientID" json:"-"`
	Medications  []Medication  `gorm:"foreignKey:CareRecipientID" json:"-"`
	Appointments []Appointment `gorm:"foreignKey:CareRecipientID" json:"-"`
	Documents    []Document    `gorm:"foreignKey:CareRecipientID" json:"-"`
}
