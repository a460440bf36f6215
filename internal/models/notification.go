package models

import (
	"time"

	"gorm.io/datatypes"
)

// Notification types.
const (
	NotificationMedication  = "medication"
	NotificationAppointment = "appointment"
	NotificationDocument    = "document"
	NotificationFamily      = "family"
	NotificationSystem      = "system"
)

// Notification represents a durable in-app notification for a user.
type Notification struct {
	BaseModel

	UserID  string         `gorm:"type:uuid;not null;index" json:"user_id"`
	Type    string         `gorm:"type:varchar(32);not null" json:"type"`
	Title   string         `gorm:"type:varchar(255);not null" json:"title"`
	Message string         `gorm:"type:text" json:"message"`
	Context datatypes.JSON `json:"context"`

	IsRead bool       `gorm:"default:false;index" json:"is_read"`
	ReadAt *time.Time `json:"read_at"`
}
