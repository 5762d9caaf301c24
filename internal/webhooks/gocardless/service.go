package gocardless

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memberdesk/backend/internal/notifications"
	"github.com/memberdesk/backend/internal/payments"
	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	"github.com/memberdesk/backend/pkg/gocardless"
	"github.com/memberdesk/backend/pkg/logger"
)

// Resource types and actions handled by the reconciler.
const (
	resourcePayments      = "payments"
	resourceSubscriptions = "subscriptions"
	resourceMandates      = "mandates"
	resourceRefunds       = "refunds"

	actionConfirmed              = "confirmed"
	actionPaidOut                = "paid_out"
	actionCancelled              = "cancelled"
	actionFinished               = "finished"
	actionCustomerApprovalDenied = "customer_approval_denied"
	actionFailed                 = "failed"
	actionExpired                = "expired"
)

// roleExtender is the slice of the contact service the reconciler needs to
// keep memberships in step with confirmed charges.
type roleExtender interface {
	ExtendRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType, expiry time.Time) error
	PromoteStagedAmount(ctx context.Context, contactID uuid.UUID, amount float64) error
}

// Service reconciles GoCardless webhook events against local payment and
// contribution state.
type Service interface {
	HandleEvents(ctx context.Context, events []gocardless.Event) error
}

// ServiceParams groups dependencies for the webhook reconciler.
type ServiceParams struct {
	Repo          payments.Repository
	Client        payments.GoCardlessClient
	Contacts      roleExtender
	Notifications notifications.Service
	Logger        *logger.Logger
	GracePeriod   time.Duration
}

type service struct {
	repo        payments.Repository
	client      payments.GoCardlessClient
	contacts    roleExtender
	notify      notifications.Service
	logg        *logger.Logger
	gracePeriod time.Duration
}

// NewService builds a GoCardless webhook reconciler.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repo required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("gocardless client required")
	}
	if params.Contacts == nil {
		return nil, fmt.Errorf("contacts service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	grace := params.GracePeriod
	if grace <= 0 {
		grace = 7 * 24 * time.Hour
	}
	return &service{
		repo:        params.Repo,
		client:      params.Client,
		contacts:    params.Contacts,
		notify:      params.Notifications,
		logg:        params.Logger,
		gracePeriod: grace,
	}, nil
}

// HandleEvents processes a delivery batch in order and stops at the first
// failure so the provider retries the whole batch.
func (s *service) HandleEvents(ctx context.Context, events []gocardless.Event) error {
	for _, event := range events {
		ctx := s.logg.WithFields(ctx, map[string]any{
			"event_id":      event.ID,
			"resource_type": event.ResourceType,
			"action":        event.Action,
		})
		if err := s.handleEvent(ctx, event); err != nil {
			s.logg.Error(ctx, "webhook event failed", err)
			return err
		}
	}
	return nil
}

func (s *service) handleEvent(ctx context.Context, event gocardless.Event) error {
	switch event.ResourceType {
	case resourcePayments:
		return s.handlePaymentEvent(ctx, event)
	case resourceSubscriptions:
		return s.handleSubscriptionEvent(ctx, event)
	case resourceMandates:
		return s.handleMandateEvent(ctx, event)
	case resourceRefunds:
		return s.handleRefundEvent(ctx, event)
	default:
		s.logg.Info(ctx, "ignoring unhandled resource type")
		return nil
	}
}

func (s *service) handlePaymentEvent(ctx context.Context, event gocardless.Event) error {
	// paid_out carries no new billing information, so skip the API fetch.
	if event.Action == actionPaidOut {
		return s.repo.UpdatePaymentStatus(ctx, event.Links.Payment, string(enums.PaymentStatusPaidOut))
	}

	payment, err := s.updatePayment(ctx, event.Links.Payment)
	if err != nil {
		return err
	}

	if event.Action == actionConfirmed {
		return s.confirmPayment(ctx, payment)
	}
	return nil
}

// updatePayment re-fetches the payment from the API and upserts the local
// row, linking it to a contact through the mandate when possible.
func (s *service) updatePayment(ctx context.Context, gcPaymentID string) (*models.Payment, error) {
	remote, err := s.client.GetPayment(ctx, gcPaymentID)
	if err != nil {
		return nil, fmt.Errorf("fetch payment %s: %w", gcPaymentID, err)
	}

	payment, err := s.repo.FindPaymentByProviderID(ctx, gcPaymentID)
	if err != nil {
		return nil, err
	}
	isNew := payment == nil
	if isNew {
		payment = &models.Payment{ProviderPaymentID: gcPaymentID}
		contrib, err := s.repo.FindContributionByMandate(ctx, remote.Links.Mandate)
		if err != nil {
			return nil, err
		}
		if contrib != nil {
			contactID := contrib.ContactID
			payment.ContactID = &contactID
		} else {
			s.logg.Warn(s.logg.WithField(ctx, "mandate_id", remote.Links.Mandate), "payment has no known mandate")
		}
	}

	payment.Status = payments.PaymentStatusFromGC(remote.Status)
	payment.Description = remote.Description
	payment.Amount = float64(remote.Amount) / 100
	payment.AmountRefunded = float64(remote.AmountRefunded) / 100
	if chargeDate, err := time.Parse(gocardless.DateFormat, remote.ChargeDate); err == nil {
		payment.ChargeDate = &chargeDate
	}
	if remote.Links.Subscription != "" {
		subscriptionID := remote.Links.Subscription
		payment.SubscriptionID = &subscriptionID
		if payment.SubscriptionPeriod == nil {
			period, err := s.subscriptionPeriod(ctx, subscriptionID)
			if err != nil {
				return nil, err
			}
			payment.SubscriptionPeriod = period
		}
	}

	if isNew {
		err = s.repo.CreatePayment(ctx, payment)
	} else {
		err = s.repo.SavePayment(ctx, payment)
	}
	if err != nil {
		return nil, fmt.Errorf("persist payment %s: %w", gcPaymentID, err)
	}
	return payment, nil
}

// subscriptionPeriod derives the billing cadence from the subscription's
// interval settings. A vanished subscription leaves the period unknown.
func (s *service) subscriptionPeriod(ctx context.Context, subscriptionID string) (*enums.ContributionPeriod, error) {
	subscription, err := s.client.GetSubscription(ctx, subscriptionID)
	if err != nil {
		if gocardless.IsNotFound(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch subscription %s: %w", subscriptionID, err)
	}
	period := enums.ContributionPeriodMonthly
	switch {
	case subscription.IntervalUnit == gocardless.IntervalYearly:
		period = enums.ContributionPeriodAnnually
	case subscription.IntervalUnit == gocardless.IntervalMonthly && subscription.Interval == 12:
		period = enums.ContributionPeriodAnnually
	}
	return &period, nil
}

// confirmPayment extends the membership past the next scheduled charge and
// promotes any staged contribution amount the charge realized.
func (s *service) confirmPayment(ctx context.Context, payment *models.Payment) error {
	if payment.ContactID == nil || payment.SubscriptionID == nil {
		return nil
	}

	contrib, err := s.repo.FindContribution(ctx, *payment.ContactID)
	if err != nil {
		return err
	}
	payFee := contrib != nil && contrib.PayFee
	period := enums.ContributionPeriodMonthly
	if payment.SubscriptionPeriod != nil {
		period = *payment.SubscriptionPeriod
	}

	expiry, err := s.nextExpiry(ctx, payment, period)
	if err != nil {
		return err
	}
	if err := s.contacts.ExtendRole(ctx, *payment.ContactID, enums.RoleTypeMember, expiry); err != nil {
		return err
	}

	monthly := payments.MonthlyAmount(payment.Amount, period, payFee)
	return s.contacts.PromoteStagedAmount(ctx, *payment.ContactID, monthly)
}

// nextExpiry prefers the subscription's next scheduled charge; when the
// subscription no longer reports one, it falls back to the charge date plus
// one billing period.
func (s *service) nextExpiry(ctx context.Context, payment *models.Payment, period enums.ContributionPeriod) (time.Time, error) {
	subscription, err := s.client.GetSubscription(ctx, *payment.SubscriptionID)
	if err != nil && !gocardless.IsNotFound(err) {
		return time.Time{}, fmt.Errorf("fetch subscription %s: %w", *payment.SubscriptionID, err)
	}
	if subscription != nil && len(subscription.UpcomingPayments) > 0 {
		if next, err := time.Parse(gocardless.DateFormat, subscription.UpcomingPayments[0].ChargeDate); err == nil {
			return next.Add(s.gracePeriod), nil
		}
	}

	chargeDate := time.Now().UTC()
	if payment.ChargeDate != nil {
		chargeDate = *payment.ChargeDate
	}
	return chargeDate.AddDate(0, period.MonthsPerPeriod(), 0).Add(s.gracePeriod), nil
}

// handleRefundEvent resolves the refund back to its payment and refreshes the
// local row so amountRefunded tracks the provider.
func (s *service) handleRefundEvent(ctx context.Context, event gocardless.Event) error {
	refund, err := s.client.GetRefund(ctx, event.Links.Refund)
	if err != nil {
		if gocardless.IsNotFound(err) {
			s.logg.Warn(s.logg.WithField(ctx, "refund_id", event.Links.Refund), "refund vanished before reconciliation")
			return nil
		}
		return fmt.Errorf("fetch refund %s: %w", event.Links.Refund, err)
	}
	if refund.Links.Payment == "" {
		s.logg.Warn(s.logg.WithField(ctx, "refund_id", refund.ID), "refund has no payment link")
		return nil
	}
	_, err = s.updatePayment(ctx, refund.Links.Payment)
	return err
}

func (s *service) handleSubscriptionEvent(ctx context.Context, event gocardless.Event) error {
	// finished ends a fixed-length plan; denied approval never starts one.
	// Both leave the contribution uncollectable, same as an explicit cancel.
	switch event.Action {
	case actionCancelled, actionFinished, actionCustomerApprovalDenied:
	default:
		return nil
	}

	contrib, err := s.repo.FindContributionBySubscription(ctx, event.Links.Subscription)
	if err != nil {
		return err
	}
	if contrib == nil {
		s.logg.Warn(s.logg.WithField(ctx, "subscription_id", event.Links.Subscription), "cancelled subscription has no known contribution")
		return nil
	}
	if contrib.CancelledAt != nil {
		return nil
	}

	// The provider already cancelled the subscription, so only the local
	// state needs stamping.
	if err := s.repo.StampCancelledAt(ctx, contrib.ContactID, time.Now().UTC()); err != nil {
		return err
	}
	s.notify.SendTemplateToContact(ctx, notifications.TemplateCancelledContribution, contrib.ContactID, nil)
	s.notify.SendTemplateToAdmin(ctx, notifications.TemplateAdminCancelledContribution, map[string]any{
		"contactId": contrib.ContactID.String(),
	})
	return nil
}

func (s *service) handleMandateEvent(ctx context.Context, event gocardless.Event) error {
	switch event.Action {
	case actionCancelled, actionFailed, actionExpired:
	default:
		return nil
	}

	contrib, err := s.repo.FindContributionByMandate(ctx, event.Links.Mandate)
	if err != nil {
		return err
	}
	if contrib == nil {
		s.logg.Warn(s.logg.WithField(ctx, "mandate_id", event.Links.Mandate), "mandate event has no known contribution")
		return nil
	}

	// A dead mandate cannot fund future charges; drop the reference so a new
	// authorization starts clean.
	contrib.MandateID = nil
	return s.repo.SaveContribution(ctx, contrib)
}
