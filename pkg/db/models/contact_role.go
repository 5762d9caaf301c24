package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/memberdesk/backend/pkg/enums"
)

// ContactRole grants a contact a role for a bounded period. DateExpires is
// authoritative for access control; a nil DateExpires never expires.
type ContactRole struct {
	ID          uuid.UUID      `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ContactID   uuid.UUID      `gorm:"column:contact_id;type:uuid;not null;index;uniqueIndex:idx_contact_role" json:"contactId"`
	Type        enums.RoleType `gorm:"column:type;not null;uniqueIndex:idx_contact_role" json:"type"`
	DateAdded   time.Time      `gorm:"column:date_added;not null;autoCreateTime" json:"dateAdded"`
	DateExpires *time.Time     `gorm:"column:date_expires" json:"dateExpires,omitempty"`
	CreatedAt   time.Time      `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt   time.Time      `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// IsActive reports whether the role currently grants access.
func (r *ContactRole) IsActive() bool {
	return r.IsActiveAt(time.Now().UTC())
}

// IsActiveAt reports whether the role grants access at the given instant.
func (r *ContactRole) IsActiveAt(now time.Time) bool {
	if r == nil {
		return false
	}
	if now.Before(r.DateAdded) {
		return false
	}
	return r.DateExpires == nil || now.Before(*r.DateExpires)
}
