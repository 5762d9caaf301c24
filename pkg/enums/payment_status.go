package enums

import "fmt"

// PaymentStatus tracks the lifecycle of a realized charge.
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusSubmitted PaymentStatus = "submitted"
	PaymentStatusConfirmed PaymentStatus = "confirmed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusPaidOut   PaymentStatus = "paid_out"
)

var validPaymentStatuses = []PaymentStatus{
	PaymentStatusPending,
	PaymentStatusSubmitted,
	PaymentStatusConfirmed,
	PaymentStatusFailed,
	PaymentStatusCancelled,
	PaymentStatusPaidOut,
}

// String implements fmt.Stringer.
func (p PaymentStatus) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentStatus.
func (p PaymentStatus) IsValid() bool {
	for _, candidate := range validPaymentStatuses {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsTerminal reports whether a payment can still move to another status.
// paid_out is terminal; failed and cancelled only ever gain refund data.
func (p PaymentStatus) IsTerminal() bool {
	switch p {
	case PaymentStatusPaidOut, PaymentStatusFailed, PaymentStatusCancelled:
		return true
	}
	return false
}

// ParsePaymentStatus converts raw input into a PaymentStatus.
func ParsePaymentStatus(value string) (PaymentStatus, error) {
	for _, candidate := range validPaymentStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment status %q", value)
}
