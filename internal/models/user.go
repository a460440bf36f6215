package models

// User mirrors a profile from the external identity provider. The core trusts
// the identity provider's user ID and email as given.
type User struct {
	BaseModel

	Email     string `gorm:"uniqueIndex;not null" json:"email"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`

	Memberships []Membership `gorm:"foreignKey:UserID" json:"-"`
}
