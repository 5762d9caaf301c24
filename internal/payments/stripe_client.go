package payments

import (
	"context"
	"errors"
	"net/http"

	"github.com/stripe/stripe-go/v84"
	"github.com/stripe/stripe-go/v84/customer"
	"github.com/stripe/stripe-go/v84/paymentintent"
	"github.com/stripe/stripe-go/v84/paymentmethod"
	"github.com/stripe/stripe-go/v84/subscription"

	pkgstripe "github.com/memberdesk/backend/pkg/stripe"
)

// StripeClient exposes the subset of Stripe operations required by the card
// provider, so the provider can be tested against a stub.
type StripeClient interface {
	CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error)
	DeleteCustomer(ctx context.Context, id string) (*stripe.Customer, error)
	UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error)
	AttachPaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error)
	DetachPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error)
	GetPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error)
	CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error)
}

type stripeClientWrapper struct{}

// NewStripeClient wraps the initialized Stripe client behind the provider's
// client interface.
func NewStripeClient(api *pkgstripe.Client) StripeClient {
	if api == nil {
		return nil
	}
	return &stripeClientWrapper{}
}

func (w *stripeClientWrapper) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscription.New(params)
}

func (w *stripeClientWrapper) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionParams{}
	params.Context = ctx
	return subscription.Get(id, params)
}

func (w *stripeClientWrapper) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	if params != nil {
		params.Context = ctx
	}
	return subscription.Update(id, params)
}

func (w *stripeClientWrapper) CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	params := &stripe.SubscriptionCancelParams{}
	params.Context = ctx
	return subscription.Cancel(id, params)
}

func (w *stripeClientWrapper) DeleteCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	params := &stripe.CustomerParams{}
	params.Context = ctx
	return customer.Del(id, params)
}

func (w *stripeClientWrapper) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	if params != nil {
		params.Context = ctx
	}
	return customer.Update(id, params)
}

func (w *stripeClientWrapper) AttachPaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentmethod.Attach(id, params)
}

func (w *stripeClientWrapper) DetachPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error) {
	params := &stripe.PaymentMethodDetachParams{}
	params.Context = ctx
	return paymentmethod.Detach(id, params)
}

func (w *stripeClientWrapper) GetPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error) {
	params := &stripe.PaymentMethodParams{}
	params.Context = ctx
	return paymentmethod.Get(id, params)
}

func (w *stripeClientWrapper) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	if params != nil {
		params.Context = ctx
	}
	return paymentintent.New(params)
}

// isStripeNotFound applies the uniform "404 on tear-down is success" policy.
func isStripeNotFound(err error) bool {
	var stripeErr *stripe.Error
	if !errors.As(err, &stripeErr) {
		return false
	}
	return stripeErr.HTTPStatusCode == http.StatusNotFound ||
		stripeErr.Code == stripe.ErrorCodeResourceMissing
}
