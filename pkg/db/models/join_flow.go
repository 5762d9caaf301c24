package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// JoinFlow is a time-boxed token carrying a pending join form and the
// provider redirect-flow handshake. Rows are consumed exactly once and swept
// by the cleanup job after their TTL. A non-nil ContactID marks a
// payment-method update for an existing contact instead of a signup.
type JoinFlow struct {
	ID             uuid.UUID       `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	JoinForm       json.RawMessage `gorm:"column:join_form;type:jsonb" json:"joinForm,omitempty"`
	RedirectFlowID string          `gorm:"column:redirect_flow_id;not null;default:''" json:"redirectFlowId"`
	SessionToken   string          `gorm:"column:session_token;not null;default:''" json:"-"`
	ContactID      *uuid.UUID      `gorm:"column:contact_id;type:uuid" json:"contactId,omitempty"`
	CreatedAt      time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}
