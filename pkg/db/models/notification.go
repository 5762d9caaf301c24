package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/memberdesk/backend/pkg/enums"
)

// Notification records a templated message dispatched to a contact or to the
// admin feed. Delivery is fire-and-forget; the row is the audit trail.
type Notification struct {
	ID        uuid.UUID                  `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	Audience  enums.NotificationAudience `gorm:"column:audience;not null" json:"audience"`
	Template  string                     `gorm:"column:template;not null" json:"template"`
	ContactID *uuid.UUID                 `gorm:"column:contact_id;type:uuid;index" json:"contactId,omitempty"`
	Vars      json.RawMessage            `gorm:"column:vars;type:jsonb" json:"vars,omitempty"`
	ReadAt    *time.Time                 `gorm:"column:read_at" json:"readAt,omitempty"`
	CreatedAt time.Time                  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
