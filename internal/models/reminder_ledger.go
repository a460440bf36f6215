package models

// ReminderLedger records reminders that have already fired so off-cadence
// scans cannot double-notify the same slot on the same day. Rows are pruned
// by the retention sweep after a few days.
type ReminderLedger struct {
	BaseModel

	// DedupKey is "<recipient>:<source>:<slot>:<date>", unique per reminder.
	DedupKey string `gorm:"uniqueIndex;not null" json:"dedup_key"`
}
