package payments

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/gocardless"
	"github.com/memberdesk/backend/pkg/logger"
)

// GCProviderParams configure the GoCardless direct-debit provider.
type GCProviderParams struct {
	Client           GoCardlessClient
	Logger           *logger.Logger
	Currency         string
	SubscriptionName string
	GracePeriod      time.Duration
}

type gcProvider struct {
	client           GoCardlessClient
	logg             *logger.Logger
	currency         string
	subscriptionName string
	gracePeriod      time.Duration
}

// NewGCProvider builds the GoCardless provider adapter.
func NewGCProvider(params GCProviderParams) (Provider, error) {
	if params.Client == nil {
		return nil, fmt.Errorf("gocardless client required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	currency := strings.ToUpper(strings.TrimSpace(params.Currency))
	if currency == "" {
		currency = "GBP"
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = 7 * 24 * time.Hour
	}
	name := params.SubscriptionName
	if name == "" {
		name = "Membership"
	}
	return &gcProvider{
		client:           params.Client,
		logg:             params.Logger,
		currency:         currency,
		subscriptionName: name,
		gracePeriod:      grace,
	}, nil
}

func (p *gcProvider) ContributionInfo(ctx context.Context, contrib *models.Contribution) (*ProviderInfo, error) {
	info := &ProviderInfo{}
	if contrib.MandateID != nil {
		mandate, err := p.client.GetMandate(ctx, *contrib.MandateID)
		if err != nil {
			if !gocardless.IsNotFound(err) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch mandate")
			}
		} else {
			info.PaymentSource = &PaymentSource{
				Method:        enums.PaymentMethodGoCardlessDirectDebit,
				BankReference: mandate.Reference,
			}
		}
	}
	if contrib.SubscriptionID != nil {
		sub, err := p.client.GetSubscription(ctx, *contrib.SubscriptionID)
		if err != nil {
			if !gocardless.IsNotFound(err) {
				return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "fetch subscription")
			}
		} else {
			info.HasPendingPayment = len(sub.UpcomingPayments) > 0
		}
	}
	return info, nil
}

func (p *gcProvider) CanChangeContribution(ctx context.Context, contrib *models.Contribution, useExistingSource bool, form Form) (bool, error) {
	if !useExistingSource {
		return true, nil
	}
	return contrib.MandateID != nil, nil
}

func (p *gcProvider) UpdateContribution(ctx context.Context, contact *models.Contact, contrib *models.Contribution, form Form) (*UpdateResult, error) {
	if contrib.SubscriptionID == nil {
		return p.createSubscription(ctx, contrib, form)
	}
	return p.amendSubscription(ctx, contact, contrib, form)
}

func (p *gcProvider) createSubscription(ctx context.Context, contrib *models.Contribution, form Form) (*UpdateResult, error) {
	if contrib.MandateID == nil {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no mandate available for new subscription")
	}

	sub, err := p.client.CreateSubscription(ctx, gocardless.SubscriptionParams{
		Amount:       ChargeableAmount(form.MonthlyAmount, form.Period, form.PayFee),
		Currency:     p.currency,
		IntervalUnit: intervalUnit(form.Period),
		Name:         p.subscriptionName,
		Links:        gocardless.SubscriptionLinks{Mandate: *contrib.MandateID},
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create subscription")
	}
	contrib.SubscriptionID = &sub.ID

	expiry := time.Now().UTC().Add(p.gracePeriod)
	if len(sub.UpcomingPayments) > 0 {
		if charge, err := time.Parse(gocardless.DateFormat, sub.UpcomingPayments[0].ChargeDate); err == nil {
			expiry = charge.Add(p.gracePeriod)
		}
	}
	return &UpdateResult{StartNow: true, ExpiryDate: expiry}, nil
}

func (p *gcProvider) amendSubscription(ctx context.Context, contact *models.Contact, contrib *models.Contribution, form Form) (*UpdateResult, error) {
	chargeable := ChargeableAmount(form.MonthlyAmount, form.Period, form.PayFee)

	// Plan-linked subscriptions reject name updates with a 422; retry once
	// with an amount-only payload before surfacing the error.
	name := p.subscriptionName
	_, err := p.client.UpdateSubscription(ctx, *contrib.SubscriptionID, gocardless.SubscriptionUpdateParams{
		Amount: chargeable,
		Name:   &name,
	})
	if gocardless.IsValidationFailed(err) {
		p.logg.Warn(ctx, "subscription name update rejected, retrying without name")
		_, err = p.client.UpdateSubscription(ctx, *contrib.SubscriptionID, gocardless.SubscriptionUpdateParams{
			Amount: chargeable,
		})
	}
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
		if contrib.MandateID == nil {
			return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "no mandate available for proration charge")
		}
		_, err := p.client.CreatePayment(ctx, gocardless.PaymentParams{
			Amount:      ProrationAmount(oldMonthly, form.MonthlyAmount, monthsLeft),
			Currency:    p.currency,
			Description: "One-off payment to start new contribution",
			Links:       gocardless.PaymentLinks{Mandate: *contrib.MandateID},
		})
		if err != nil {
			return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create proration payment")
		}
	}

	// Decreases and unprorated increases are staged until the current
	// period runs out; only a prorated increase (already charged above)
	// or a no-op amount takes effect immediately mid-period.
	startNow := monthsLeft == 0 || form.MonthlyAmount == oldMonthly || (increase && form.Prorate)
	return &UpdateResult{StartNow: startNow, ExpiryDate: expiry}, nil
}

func (p *gcProvider) CancelContribution(ctx context.Context, contrib *models.Contribution, keepMandate bool) error {
	if contrib.SubscriptionID != nil {
		if err := p.client.CancelSubscription(ctx, *contrib.SubscriptionID); err != nil && !gocardless.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel subscription")
		}
		contrib.SubscriptionID = nil
	}
	if !keepMandate && contrib.MandateID != nil {
		if err := p.client.CancelMandate(ctx, *contrib.MandateID); err != nil && !gocardless.IsNotFound(err) {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "cancel mandate")
		}
		contrib.MandateID = nil
	}
	return nil
}

func (p *gcProvider) UpdatePaymentMethod(ctx context.Context, contact *models.Contact, contrib *models.Contribution, flow CompletedFlow) error {
	if flow.MandateID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "completed flow missing mandate")
	}

	// Retire the previous mandate and its subscription before attaching
	// the new one; leaving both live keeps the old subscription collecting.
	if contrib.MandateID != nil && *contrib.MandateID != flow.MandateID {
		if err := p.CancelContribution(ctx, contrib, false); err != nil {
			return err
		}
	}

	if flow.CustomerID != "" {
		customerID := flow.CustomerID
		contrib.CustomerID = &customerID
	}
	mandateID := flow.MandateID
	contrib.MandateID = &mandateID

	// Automatic contributors get their subscription recreated against the
	// new mandate straight away. A replay with the same mandate keeps the
	// existing subscription.
	if contrib.SubscriptionID == nil &&
		contact.ContributionType == enums.ContributionTypeAutomatic &&
		contact.ContributionPeriod != nil && contact.ContributionMonthlyAmount != nil {
		_, err := p.createSubscription(ctx, contrib, Form{
			MonthlyAmount: *contact.ContributionMonthlyAmount,
			Period:        *contact.ContributionPeriod,
			PayFee:        contrib.PayFee,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

func (p *gcProvider) PermanentlyDeleteContact(ctx context.Context, contrib *models.Contribution) error {
	if contrib.CustomerID == nil {
		return nil
	}
	if err := p.client.DeleteCustomer(ctx, *contrib.CustomerID); err != nil && !gocardless.IsNotFound(err) {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete customer")
	}
	return nil
}

func intervalUnit(period enums.ContributionPeriod) string {
	if period == enums.ContributionPeriodAnnually {
		return gocardless.IntervalYearly
	}
	return gocardless.IntervalMonthly
}

// monthsUntil counts whole months from now to expiry, never negative.
func monthsUntil(now, expiry time.Time) int {
	months := 0
	for cursor := now.AddDate(0, 1, 0); !cursor.After(expiry); cursor = cursor.AddDate(0, 1, 0) {
		months++
	}
	return months
}
