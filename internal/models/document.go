package models

// Document is metadata for an uploaded file held in the blob store.
type Document struct {
	BaseModel

	CareRecipientID string `gorm:"type:uuid;not null;index" json:"care_recipient_id"`

	Name        string `gorm:"not null" json:"name"`
	ContentType string `json:"content_type"`
	SizeBytes   int64  `json:"size_bytes"`
	StoragePath string `gorm:"not null" json:"-"`

	UploadedBy string `gorm:"type:uuid" json:"uploaded_by"`
}
