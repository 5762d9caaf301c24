package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/memberdesk/backend/pkg/enums"
)

// Payment records one realized charge reported by a provider. Rows are
// created and updated only by the webhook reconcilers. ContactID stays nil
// until the charge can be linked to a contribution by mandate or customer id.
type Payment struct {
	ID                 uuid.UUID                 `gorm:"type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	ProviderPaymentID  string                    `gorm:"column:provider_payment_id;not null;unique" json:"providerPaymentId"`
	ContactID          *uuid.UUID                `gorm:"column:contact_id;type:uuid;index" json:"contactId,omitempty"`
	SubscriptionID     *string                   `gorm:"column:subscription_id" json:"subscriptionId,omitempty"`
	SubscriptionPeriod *enums.ContributionPeriod `gorm:"column:subscription_period" json:"subscriptionPeriod,omitempty"`
	Status             enums.PaymentStatus       `gorm:"column:status;not null;default:'pending'" json:"status"`
	Description        string                    `gorm:"column:description;not null;default:''" json:"description"`
	Amount             float64                   `gorm:"column:amount;type:numeric(10,2);not null;default:0" json:"amount"`
	AmountRefunded     float64                   `gorm:"column:amount_refunded;type:numeric(10,2);not null;default:0" json:"amountRefunded"`
	ChargeDate         *time.Time                `gorm:"column:charge_date" json:"chargeDate,omitempty"`
	CreatedAt          time.Time                 `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt          time.Time                 `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}
