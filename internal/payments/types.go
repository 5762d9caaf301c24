package payments

import (
	"time"

	"github.com/memberdesk/backend/pkg/enums"
)

// Form captures a requested contribution change. MonthlyAmount is always the
// monthly-equivalent regardless of period.
type Form struct {
	MonthlyAmount float64
	Period        enums.ContributionPeriod
	PayFee        bool
	Prorate       bool
}

// UpdateResult reports how a contribution change took effect. StartNow is
// false when the new amount is staged until the next renewal.
type UpdateResult struct {
	StartNow   bool
	ExpiryDate time.Time
}

// CompletedFlow carries the provider identifiers produced by a finished
// payment-authorization handshake.
type CompletedFlow struct {
	Method     enums.PaymentMethod
	CustomerID string
	MandateID  string
}

// PaymentSource is provider display data for the active payment source.
type PaymentSource struct {
	Method        enums.PaymentMethod `json:"method"`
	Reference     string              `json:"reference,omitempty"`
	CardLast4     string              `json:"cardLast4,omitempty"`
	BankReference string              `json:"bankReference,omitempty"`
}

// ContributionInfo is the merged local + provider view of a contact's
// contribution. Pointer fields are omitted when the underlying value is
// unknown rather than defaulted.
type ContributionInfo struct {
	Type                 enums.ContributionType    `json:"type"`
	Amount               *float64                  `json:"amount,omitempty"`
	NextAmount           *float64                  `json:"nextAmount,omitempty"`
	Period               *enums.ContributionPeriod `json:"period,omitempty"`
	MembershipStatus     enums.MembershipStatus    `json:"membershipStatus"`
	MembershipExpiryDate *time.Time                `json:"membershipExpiryDate,omitempty"`
	CancellationDate     *time.Time                `json:"cancellationDate,omitempty"`
	RenewalDate          *time.Time                `json:"renewalDate,omitempty"`
	PaymentSource        *PaymentSource            `json:"paymentSource,omitempty"`
	HasPendingPayment    bool                      `json:"hasPendingPayment"`
}

// ProviderInfo is the provider-owned slice of ContributionInfo.
type ProviderInfo struct {
	PaymentSource     *PaymentSource
	HasPendingPayment bool
}
