package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/logger"
)

// StripeProviderParams configure the Stripe card/SEPA/BACS provider.
type StripeProviderParams struct {
	Client      StripeClient
	Logger      *logger.Logger
	Currency    string
	ProductID   string
	GracePeriod time.Duration
}

type stripeProvider struct {
	client      StripeClient
	logg        *logger.Logger
	currency    string
	productID   string
	gracePeriod time.Duration
}

// NewStripeProvider builds the Stripe provider adapter.
func NewStripeProvider(params StripeProviderParams) (Provider, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("stripe client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if strings.TrimSpace(params.ProductID) == "" {
		return nil, fmt.Errorf("stripe product id required")
	}
	currency := strings.ToLower(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "gbp"
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = 7 * 24 * time.Hour
	}
	return &stripeProvider{
		client:      params.Client,
		logg:        params.Logger,
		currency:    currency,
		productID:   params.ProductID,
		gracePeriod: grace,
	}, nil
}

func (p *stripeProvider) ContributionInfo(ctx context.Context, contrib *models.Contribution) (*ProviderInfo, error) {
	info := &ProviderInfo{}
	if contrib.MandateID == nil {
		return info, nil
	}
	method, err := p.client.GetPaymentMethod(ctx, *contrib.MandateID)
	if err != nil {
		if isStripeNotFound(err) {
			return info, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch payment method")
	}
	source := &PaymentSource{Method: paymentSourceMethod(contrib)}
	if method.Card != nil {
		source.CardLast4 = method.Card.Last4
	}
	if method.SEPADebit != nil {
		source.BankReference = method.SEPADebit.Last4
	}
	if method.BACSDebit != nil {
		source.BankReference = method.BACSDebit.Last4
	}
	info.PaymentSource = source
	return info, nil
}

func paymentSourceMethod(contrib *models.Contribution) enums.PaymentMethod {
	if contrib.Method != nil {
		return *contrib.Method
	}
	return enums.PaymentMethodStripeCard
}

func (p *stripeProvider) CanChangeContribution(ctx context.Context, contrib *models.Contribution, useExistingSource bool, form Form) (bool, error) {
	if !useExistingSource {
		return true, nil
	}
	return contrib.CustomerID != nil && contrib.MandateID != nil, nil
}

func (p *stripeProvider) UpdateContribution(ctx context.Context, contact *models.Contact, contrib *models.Contribution, form Form) (*UpdateResult, error) {
	if contrib.SubscriptionID == nil {
		return p.createSubscription(ctx, contrib, form)
	}
	return p.amendSubscription(ctx, contact, contrib, form)
}

func (p *stripeProvider) priceData(form Form) *stripe.SubscriptionItemPriceDataParams {
	interval := string(stripe.PriceRecurringIntervalMonth)
	if form.Period == enums.ContributionPeriodAnnually {
		interval = string(stripe.PriceRecurringIntervalYear)
	}
	return &stripe.SubscriptionItemPriceDataParams{
		Currency:   stripe.String(p.currency),
		Product:    stripe.String(p.productID),
		UnitAmount: stripe.Int64(int64(ChargeableAmount(form.MonthlyAmount, form.Period, form.PayFee))),
		Recurring: &stripe.SubscriptionItemPriceDataRecurringParams{
			Interval: stripe.String(interval),
		},
	}
}

func (p *stripeProvider) createSubscription(ctx context.Context, contrib *models.Contribution, form Form) (*UpdateResult, error) {
	if contrib.CustomerID == nil || contrib.MandateID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no payment source available for new subscription")
	}

	sub, err := p.client.CreateSubscription(ctx, &stripe.SubscriptionParams{
		Customer:             stripe.String(*contrib.CustomerID),
		DefaultPaymentMethod: stripe.String(*contrib.MandateID),
		Items:                []*stripe.SubscriptionItemsParams{{PriceData: p.priceData(form)}},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	contrib.SubscriptionID = &sub.ID

	expiry := time.Now().UTC().Add(p.gracePeriod)
	if end, ok := subscriptionPeriodEnd(sub); ok {
		expiry = end.Add(p.gracePeriod)
	}
	return &UpdateResult{StartNow: true, ExpiryDate: expiry}, nil
}

func (p *stripeProvider) amendSubscription(ctx context.Context, contact *models.Contact, contrib *models.Contribution, form Form) (*UpdateResult, error) {
	sub, err := p.client.GetSubscription(ctx, *contrib.SubscriptionID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch subscription")
	}
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeDependency, "subscription has no items")
	}

	_, err = p.client.UpdateSubscription(ctx, sub.ID, &stripe.SubscriptionParams{
		ProrationBehavior: stripe.String("none"),
		Items: []*stripe.SubscriptionItemsParams{{
			ID:        stripe.String(sub.Items.Data[0].ID),
			PriceData: p.priceData(form),
		}},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update subscription")
	}

	now := time.Now().UTC()
	expiry := now.Add(p.gracePeriod)
	monthsLeft := 0
	if membership := contact.Membership(); membership != nil && membership.DateExpires != nil {
		expiry = *membership.DateExpires
		monthsLeft = monthsUntil(now, *membership.DateExpires)
	}

	oldMonthly := 0.0
	if contact.ContributionMonthlyAmount != nil {
		oldMonthly = *contact.ContributionMonthlyAmount
	}
	increase := form.MonthlyAmount > oldMonthly

	if form.Prorate && increase && monthsLeft > 0 {
		_, err := p.client.CreatePaymentIntent(ctx, &stripe.PaymentIntentParams{
			Amount:        stripe.Int64(int64(ProrationAmount(oldMonthly, form.MonthlyAmount, monthsLeft))),
			Currency:      stripe.String(p.currency),
			Customer:      contrib.CustomerID,
			PaymentMethod: contrib.MandateID,
			Confirm:       stripe.Bool(true),
			OffSession:    stripe.Bool(true),
			Description:   stripe.String("One-off payment to start new contribution"),
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create proration charge")
		}
	}

	// Decreases and unprorated increases are staged until the current
	// period runs out; only a prorated increase (already charged above)
	// or a no-op amount takes effect immediately mid-period.
	startNow := monthsLeft == 0 || form.MonthlyAmount == oldMonthly || (increase && form.Prorate)
	return &UpdateResult{StartNow: startNow, ExpiryDate: expiry}, nil
}

func (p *stripeProvider) CancelContribution(ctx context.Context, contrib *models.Contribution, keepMandate bool) error {
	if contrib.SubscriptionID != nil {
		if _, err := p.client.CancelSubscription(ctx, *contrib.SubscriptionID); err != nil && !isStripeNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
		}
		contrib.SubscriptionID = nil
	}
	if !keepMandate && contrib.MandateID != nil {
		if _, err := p.client.DetachPaymentMethod(ctx, *contrib.MandateID); err != nil && !isStripeNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "detach payment method")
		}
		contrib.MandateID = nil
	}
	return nil
}

func (p *stripeProvider) UpdatePaymentMethod(ctx context.Context, contact *models.Contact, contrib *models.Contribution, flow CompletedFlow) error {
	if flow.CustomerID == "" || flow.MandateID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "completed flow missing customer or payment method")
	}

	// Retire the previous payment method and its subscription before
	// attaching the new one; leaving both live keeps the old subscription
	// collecting.
	if contrib.MandateID != nil && *contrib.MandateID != flow.MandateID {
		if err := p.CancelContribution(ctx, contrib, false); err != nil {
			return err
		}
	}

	if _, err := p.client.AttachPaymentMethod(ctx, flow.MandateID, &stripe.PaymentMethodAttachParams{
		Customer: stripe.String(flow.CustomerID),
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "attach payment method")
	}
	if _, err := p.client.UpdateCustomer(ctx, flow.CustomerID, &stripe.CustomerParams{
		InvoiceSettings: &stripe.CustomerInvoiceSettingsParams{
			DefaultPaymentMethod: stripe.String(flow.MandateID),
		},
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set default payment method")
	}

	customerID := flow.CustomerID
	mandateID := flow.MandateID
	contrib.CustomerID = &customerID
	contrib.MandateID = &mandateID

	if contrib.SubscriptionID == nil &&
		contact.ContributionType == enums.ContributionTypeAutomatic &&
		contact.ContributionPeriod != nil && contact.ContributionMonthlyAmount != nil {
		if _, err := p.createSubscription(ctx, contrib, Form{
			MonthlyAmount: *contact.ContributionMonthlyAmount,
			Period:        *contact.ContributionPeriod,
			PayFee:        contrib.PayFee,
		}); err != nil {
			return err
		}
	}
	return nil
}

func (p *stripeProvider) PermanentlyDeleteContact(ctx context.Context, contrib *models.Contribution) error {
	if contrib.CustomerID == nil {
		return nil
	}
	if _, err := p.client.DeleteCustomer(ctx, *contrib.CustomerID); err != nil && !isStripeNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete customer")
	}
	return nil
}

func subscriptionPeriodEnd(sub *stripe.Subscription) (time.Time, bool) {
	if sub == nil || sub.Items == nil {
		return time.Time{}, false
	}
	for _, item := range sub.Items.Data {
		if item.CurrentPeriodEnd > 0 {
			return time.Unix(item.CurrentPeriodEnd, 0).UTC(), true
		}
	}
	return time.Time{}, false
}
