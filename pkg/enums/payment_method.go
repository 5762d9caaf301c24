package enums

import "fmt"

// PaymentMethod identifies the provider backing a contribution.
type PaymentMethod string

const (
	PaymentMethodGoCardlessDirectDebit PaymentMethod = "gc_direct_debit"
	PaymentMethodStripeCard            PaymentMethod = "s_card"
	PaymentMethodStripeSEPA            PaymentMethod = "s_sepa"
	PaymentMethodStripeBACS            PaymentMethod = "s_bacs"
)

var validPaymentMethods = []PaymentMethod{
	PaymentMethodGoCardlessDirectDebit,
	PaymentMethodStripeCard,
	PaymentMethodStripeSEPA,
	PaymentMethodStripeBACS,
}

// String implements fmt.Stringer.
func (p PaymentMethod) String() string {
	return string(p)
}

// IsValid reports whether the value is a known PaymentMethod.
func (p PaymentMethod) IsValid() bool {
	for _, candidate := range validPaymentMethods {
		if candidate == p {
			return true
		}
	}
	return false
}

// IsStripe reports whether the method is handled by the Stripe provider.
func (p PaymentMethod) IsStripe() bool {
	switch p {
	case PaymentMethodStripeCard, PaymentMethodStripeSEPA, PaymentMethodStripeBACS:
		return true
	}
	return false
}

// ParsePaymentMethod converts raw input into a PaymentMethod.
func ParsePaymentMethod(value string) (PaymentMethod, error) {
	for _, candidate := range validPaymentMethods {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid payment method %q", value)
}
