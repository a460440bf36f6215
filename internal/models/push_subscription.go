package models

// PushSubscription is a user-scoped Web Push delivery endpoint. Endpoints
// reported gone by the push service are deactivated, never deleted.
type PushSubscription struct {
	BaseModel

	UserID   string `gorm:"type:uuid;not null;index" json:"user_id"`
	Endpoint string `gorm:"uniqueIndex;not null" json:"endpoint"`
	P256dh   string `gorm:"not null" json:"-"`
	Auth     string `gorm:"not null" json:"-"`

	IsActive bool `gorm:"default:true;index" json:"is_active"`
}
