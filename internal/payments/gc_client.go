package payments

import (
	"context"

	"github.com/memberdesk/backend/pkg/gocardless"
)

// GoCardlessClient exposes the subset of GoCardless operations required by
// the direct-debit provider. *gocardless.Client satisfies it.
type GoCardlessClient interface {
	GetCustomer(ctx context.Context, id string) (*gocardless.Customer, error)
	DeleteCustomer(ctx context.Context, id string) error
	GetMandate(ctx context.Context, id string) (*gocardless.Mandate, error)
	CancelMandate(ctx context.Context, id string) error
	GetSubscription(ctx context.Context, id string) (*gocardless.Subscription, error)
	CreateSubscription(ctx context.Context, params gocardless.SubscriptionParams) (*gocardless.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params gocardless.SubscriptionUpdateParams) (*gocardless.Subscription, error)
	CancelSubscription(ctx context.Context, id string) error
	GetPayment(ctx context.Context, id string) (*gocardless.Payment, error)
	CreatePayment(ctx context.Context, params gocardless.PaymentParams) (*gocardless.Payment, error)
	GetRefund(ctx context.Context, id string) (*gocardless.Refund, error)
}
