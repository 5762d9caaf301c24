package gocardless

// DateFormat is the calendar-date layout used by the GoCardless API.
const DateFormat = "2006-01-02"

// Interval units accepted on subscriptions.
const (
	IntervalMonthly = "monthly"
	IntervalYearly  = "yearly"
)

// Customer is the GoCardless customer resource.
type Customer struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	GivenName string `json:"given_name"`
	FamilyName string `json:"family_name"`
	CreatedAt string `json:"created_at"`
}

// Mandate is the GoCardless mandate resource.
type Mandate struct {
	ID        string       `json:"id"`
	Status    string       `json:"status"`
	Reference string       `json:"reference"`
	Links     MandateLinks `json:"links"`
}

// MandateLinks holds the related resource ids on a mandate.
type MandateLinks struct {
	Customer    string `json:"customer"`
	CustomerBankAccount string `json:"customer_bank_account"`
}

// Subscription is the GoCardless subscription resource.
type Subscription struct {
	ID               string            `json:"id"`
	Amount           int               `json:"amount"`
	Currency         string            `json:"currency"`
	Name             string            `json:"name"`
	Status           string            `json:"status"`
	Interval         int               `json:"interval"`
	IntervalUnit     string            `json:"interval_unit"`
	DayOfMonth       *int              `json:"day_of_month,omitempty"`
	UpcomingPayments []UpcomingPayment `json:"upcoming_payments"`
	Links            SubscriptionLinks `json:"links"`
}

// SubscriptionLinks holds the related resource ids on a subscription.
type SubscriptionLinks struct {
	Mandate string `json:"mandate"`
}

// UpcomingPayment is one scheduled charge on a subscription.
type UpcomingPayment struct {
	ChargeDate string `json:"charge_date"`
	Amount     int    `json:"amount"`
}

// SubscriptionParams creates a new subscription.
type SubscriptionParams struct {
	Amount       int               `json:"amount"`
	Currency     string            `json:"currency"`
	IntervalUnit string            `json:"interval_unit"`
	Name         string            `json:"name,omitempty"`
	StartDate    string            `json:"start_date,omitempty"`
	Links        SubscriptionLinks `json:"links"`
}

// SubscriptionUpdateParams amends an existing subscription. Name is a pointer
// so the retry-without-name path can omit the field entirely.
type SubscriptionUpdateParams struct {
	Amount int     `json:"amount"`
	Name   *string `json:"name,omitempty"`
}

// Payment is the GoCardless payment resource.
type Payment struct {
	ID             string       `json:"id"`
	Amount         int          `json:"amount"`
	AmountRefunded int          `json:"amount_refunded"`
	Currency       string       `json:"currency"`
	Status         string       `json:"status"`
	ChargeDate     string       `json:"charge_date"`
	Description    string       `json:"description"`
	Links          PaymentLinks `json:"links"`
}

// PaymentLinks holds the related resource ids on a payment.
type PaymentLinks struct {
	Mandate      string `json:"mandate"`
	Subscription string `json:"subscription"`
}

// PaymentParams collects a one-off charge.
type PaymentParams struct {
	Amount      int          `json:"amount"`
	Currency    string       `json:"currency"`
	Description string       `json:"description,omitempty"`
	Links       PaymentLinks `json:"links"`
}

// Refund is a refund issued against a collected payment.
type Refund struct {
	ID       string      `json:"id"`
	Amount   int         `json:"amount"`
	Currency string      `json:"currency"`
	Links    RefundLinks `json:"links"`
}

// RefundLinks points at the payment the refund was taken from.
type RefundLinks struct {
	Payment string `json:"payment"`
}

// RedirectFlow is the GoCardless hosted-authorization resource.
type RedirectFlow struct {
	ID          string            `json:"id"`
	RedirectURL string            `json:"redirect_url"`
	Links       RedirectFlowLinks `json:"links"`
}

// RedirectFlowLinks holds the resources produced by a completed flow.
type RedirectFlowLinks struct {
	Customer string `json:"customer"`
	Mandate  string `json:"mandate"`
}

// RedirectFlowParams starts a hosted-authorization flow.
type RedirectFlowParams struct {
	Description        string `json:"description,omitempty"`
	SessionToken       string `json:"session_token"`
	SuccessRedirectURL string `json:"success_redirect_url"`
}
