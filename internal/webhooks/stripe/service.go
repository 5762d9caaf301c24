package stripewebhook

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v84"

	"github.com/memberdesk/backend/internal/notifications"
	"github.com/memberdesk/backend/internal/payments"
	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/logger"
)

type roleExtender interface {
	ExtendRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType, expiry time.Time) error
	PromoteStagedAmount(ctx context.Context, contactID uuid.UUID, amount float64) error
}

// ServiceParams groups dependencies for the Stripe webhook reconciler.
type ServiceParams struct {
	Repo          payments.Repository
	Client        payments.StripeClient
	Contacts      roleExtender
	Notifications notifications.Service
	Logger        *logger.Logger
	GracePeriod   time.Duration
}

// Service reconciles Stripe webhook events against local payment and
// contribution state.
type Service struct {
	repo        payments.Repository
	client      payments.StripeClient
	contacts    roleExtender
	notify      notifications.Service
	logg        *logger.Logger
	gracePeriod time.Duration
}

// NewService builds a Stripe webhook reconciler.
func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "payments repo required")
	}
	if params.Client == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "stripe client required")
	}
	if params.Contacts == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "contacts service required")
	}
	if params.Notifications == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "notifications service required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = 7 * 24 * time.Hour
	}
	return &Service{
		repo:        params.Repo,
		client:      params.Client,
		contacts:    params.Contacts,
		notify:      params.Notifications,
		logg:        params.Logger,
		gracePeriod: grace,
	}, nil
}

// invoicePayload carries the invoice fields the reconciler reads. The
// subscription reference moved under parent on newer API versions, so both
// locations are decoded.
type invoicePayload struct {
	ID         string `json:"id"`
	Customer   string `json:"customer"`
	AmountPaid int64  `json:"amount_paid"`
	AmountDue  int64  `json:"amount_due"`
	Created    int64  `json:"created"`

	Subscription string `json:"subscription"`
	Parent       struct {
		SubscriptionDetails struct {
			Subscription string `json:"subscription"`
		} `json:"subscription_details"`
	} `json:"parent"`
}

func (p *invoicePayload) subscriptionID() string {
	if p.Subscription != "" {
		return p.Subscription
	}
	return p.Parent.SubscriptionDetails.Subscription
}

// HandleEvent dispatches one verified webhook event.
func (s *Service) HandleEvent(ctx context.Context, event *stripe.Event) error {
	if event == nil || event.Data == nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "stripe event data required")
	}
	ctx = s.logg.WithFields(ctx, map[string]any{
		"event_id":   event.ID,
		"event_type": string(event.Type),
	})

	switch event.Type {
	case stripe.EventTypeInvoicePaid:
		return s.handleInvoicePaid(ctx, event)
	case stripe.EventTypeInvoicePaymentFailed:
		return s.handleInvoiceFailed(ctx, event)
	case stripe.EventTypeCustomerSubscriptionDeleted:
		return s.handleSubscriptionDeleted(ctx, event)
	default:
		return nil
	}
}

func (s *Service) handleInvoicePaid(ctx context.Context, event *stripe.Event) error {
	var invoice invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode invoice event")
	}

	payment, err := s.upsertInvoicePayment(ctx, &invoice, enums.PaymentStatusConfirmed)
	if err != nil {
		return err
	}
	if payment.ContactID == nil || payment.SubscriptionID == nil {
		return nil
	}

	contrib, err := s.repo.FindContribution(ctx, *payment.ContactID)
	if err != nil {
		return err
	}
	payFee := contrib != nil && contrib.PayFee

	expiry, period, err := s.subscriptionRenewal(ctx, *payment.SubscriptionID)
	if err != nil {
		return err
	}
	if payment.SubscriptionPeriod == nil && period != nil {
		payment.SubscriptionPeriod = period
		if err := s.repo.SavePayment(ctx, payment); err != nil {
			return fmt.Errorf("persist payment period: %w", err)
		}
	}
	if err := s.contacts.ExtendRole(ctx, *payment.ContactID, enums.RoleTypeMember, expiry); err != nil {
		return err
	}

	chargedPeriod := enums.ContributionPeriodMonthly
	if payment.SubscriptionPeriod != nil {
		chargedPeriod = *payment.SubscriptionPeriod
	}
	monthly := payments.MonthlyAmount(payment.Amount, chargedPeriod, payFee)
	return s.contacts.PromoteStagedAmount(ctx, *payment.ContactID, monthly)
}

func (s *Service) handleInvoiceFailed(ctx context.Context, event *stripe.Event) error {
	var invoice invoicePayload
	if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode invoice event")
	}
	_, err := s.upsertInvoicePayment(ctx, &invoice, enums.PaymentStatusFailed)
	return err
}

// upsertInvoicePayment records an invoice as a local payment row, linking it
// to a contact through the Stripe customer id when one is known.
func (s *Service) upsertInvoicePayment(ctx context.Context, invoice *invoicePayload, status enums.PaymentStatus) (*models.Payment, error) {
	if invoice.ID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id missing")
	}

	payment, err := s.repo.FindPaymentByProviderID(ctx, invoice.ID)
	if err != nil {
		return nil, err
	}
	isNew := payment == nil
	if isNew {
		payment = &models.Payment{ProviderPaymentID: invoice.ID}
		contrib, err := s.repo.FindContributionByCustomer(ctx, invoice.Customer)
		if err != nil {
			return nil, err
		}
		if contrib != nil {
			contactID := contrib.ContactID
			payment.ContactID = &contactID
		} else {
			s.logg.Warn(s.logg.WithField(ctx, "customer_id", invoice.Customer), "invoice has no known customer")
		}
	}

	payment.Status = status
	amount := invoice.AmountPaid
	if amount == 0 {
		amount = invoice.AmountDue
	}
	payment.Amount = float64(amount) / 100
	if invoice.Created > 0 {
		chargeDate := time.Unix(invoice.Created, 0).UTC()
		payment.ChargeDate = &chargeDate
	}
	if subscriptionID := invoice.subscriptionID(); subscriptionID != "" {
		payment.SubscriptionID = &subscriptionID
	}

	if isNew {
		err = s.repo.CreatePayment(ctx, payment)
	} else {
		err = s.repo.SavePayment(ctx, payment)
	}
	if err != nil {
		return nil, fmt.Errorf("persist payment %s: %w", invoice.ID, err)
	}
	return payment, nil
}

// subscriptionRenewal reads the subscription's current period end and billing
// cadence. A vanished subscription falls back to one month from now.
func (s *Service) subscriptionRenewal(ctx context.Context, subscriptionID string) (time.Time, *enums.ContributionPeriod, error) {
	sub, err := s.client.GetSubscription(ctx, subscriptionID)
	if err != nil {
		s.logg.Warn(s.logg.WithField(ctx, "subscription_id", subscriptionID), "subscription fetch failed, using fallback expiry")
		return time.Now().UTC().AddDate(0, 1, 0).Add(s.gracePeriod), nil, nil
	}

	expiry := time.Now().UTC().Add(s.gracePeriod)
	var period *enums.ContributionPeriod
	if sub.Items != nil {
		for _, item := range sub.Items.Data {
			if item.CurrentPeriodEnd > 0 {
				expiry = time.Unix(item.CurrentPeriodEnd, 0).UTC().Add(s.gracePeriod)
			}
			if item.Price != nil && item.Price.Recurring != nil {
				p := enums.ContributionPeriodMonthly
				if item.Price.Recurring.Interval == stripe.PriceRecurringIntervalYear {
					p = enums.ContributionPeriodAnnually
				}
				period = &p
			}
		}
	}
	return expiry, period, nil
}

func (s *Service) handleSubscriptionDeleted(ctx context.Context, event *stripe.Event) error {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "decode subscription event")
	}

	contrib, err := s.repo.FindContributionBySubscription(ctx, sub.ID)
	if err != nil {
		return err
	}
	if contrib == nil {
		s.logg.Warn(s.logg.WithField(ctx, "subscription_id", sub.ID), "deleted subscription has no known contribution")
		return nil
	}
	if contrib.CancelledAt != nil {
		return nil
	}

	if err := s.repo.StampCancelledAt(ctx, contrib.ContactID, time.Now().UTC()); err != nil {
		return err
	}
	s.notify.SendTemplateToContact(ctx, notifications.TemplateCancelledContribution, contrib.ContactID, nil)
	s.notify.SendTemplateToAdmin(ctx, notifications.TemplateAdminCancelledContribution, map[string]any{
		"contactId": contrib.ContactID.String(),
	})
	return nil
}
