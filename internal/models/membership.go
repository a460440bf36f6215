package models

import "time"

// Membership roles, ordered from most to least capable.
const (
	RoleAdmin  = "admin"
	RoleEditor = "editor"
	RoleViewer = "viewer"
)

// Membership statuses. Removal deletes the row outright, so inactive is
// modelled but never produced by the state machine.
const (
	MembershipPending  = "pending"
	MembershipActive   = "active"
	MembershipInactive = "inactive"
)

// Membership binds one user to one care recipient with a role and explicit
// permission flags. At most one membership exists per (user, recipient) pair.
type Membership struct {
	BaseModel

	UserID          string `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_recipient" json:"user_id"`
	CareRecipientID string `gorm:"type:uuid;not null;uniqueIndex:idx_memberships_user_recipient;index" json:"care_recipient_id"`

	Role   string `gorm:"type:varchar(16);not null;default:'viewer'" json:"role"`
	Status string `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`

	CanView   bool `gorm:"default:true" json:"can_view"`
	CanEdit   bool `gorm:"default:false" json:"can_edit"`
	CanDelete bool `gorm:"default:false" json:"can_delete"`

	InvitedBy  string     `gorm:"type:uuid" json:"invited_by"`
	InvitedAt  time.Time  `json:"invited_at"`
	AcceptedAt *time.Time `json:"accepted_at"`

	User          *User          `json:"user,omitempty"`
	CareRecipient *CareRecipient `json:"care_recipient,omitempty"`
}

// DefaultFlagsForRole returns the permission flags implied by a role when no
// explicit overrides are supplied at invite time.
func DefaultFlagsForRole(role string) (canView, canEdit, canDelete bool) {
	switch role {
	case RoleAdmin:
		return true, true, true
	case RoleEditor:
		return true, true, false
	default:
		return true, false, false
	}
}

// ValidRole reports whether the supplied role is one of the closed set.
func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleEditor, RoleViewer:
		return true
	}
	return false
}
