package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/memberdesk/backend/pkg/enums"
)

// Contribution persists a contact's recurring-payment configuration, one row
// per contact. Provider identifiers belong to exactly one provider at a time:
// changing payment method clears every identifier before the new provider
// writes its own.
type Contribution struct {
	ContactID      uuid.UUID            `gorm:"column:contact_id;type:uuid;primaryKey" json:"contactId"`
	Method         *enums.PaymentMethod `gorm:"column:method" json:"method,omitempty"`
	CustomerID     *string              `gorm:"column:customer_id" json:"customerId,omitempty"`
	MandateID      *string              `gorm:"column:mandate_id" json:"mandateId,omitempty"`
	SubscriptionID *string              `gorm:"column:subscription_id" json:"subscriptionId,omitempty"`
	PayFee         bool                 `gorm:"column:pay_fee;not null;default:false" json:"payFee"`
	CancelledAt    *time.Time           `gorm:"column:cancelled_at" json:"cancelledAt,omitempty"`
	CreatedAt      time.Time            `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt      time.Time            `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

// HasIdentifiers reports whether any provider identifier is still set.
func (c *Contribution) HasIdentifiers() bool {
	return c.CustomerID != nil || c.MandateID != nil || c.SubscriptionID != nil
}

// ClearIdentifiers resets every provider identifier.
func (c *Contribution) ClearIdentifiers() {
	c.CustomerID = nil
	c.MandateID = nil
	c.SubscriptionID = nil
}
