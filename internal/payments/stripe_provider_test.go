package payments

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stripe/stripe-go/v84"

	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	"github.com/memberdesk/backend/pkg/logger"
)

type stubStripeClient struct {
	subscription     *stripe.Subscription
	createdSubs      []*stripe.SubscriptionParams
	updatedSubs      []*stripe.SubscriptionParams
	cancelledSubs    []string
	attachedMethods  []string
	detachedMethods  []string
	updatedCustomers []string
	deletedCustomers []string
	createdIntents   []*stripe.PaymentIntentParams
}

func (s *stubStripeClient) CreateSubscription(ctx context.Context, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.createdSubs = append(s.createdSubs, params)
	return &stripe.Subscription{ID: "sub_new"}, nil
}

func (s *stubStripeClient) GetSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	if s.subscription != nil {
		return s.subscription, nil
	}
	return &stripe.Subscription{
		ID:    id,
		Items: &stripe.SubscriptionItemList{Data: []*stripe.SubscriptionItem{{ID: "si_1"}}},
	}, nil
}

func (s *stubStripeClient) UpdateSubscription(ctx context.Context, id string, params *stripe.SubscriptionParams) (*stripe.Subscription, error) {
	s.updatedSubs = append(s.updatedSubs, params)
	return &stripe.Subscription{ID: id}, nil
}

func (s *stubStripeClient) CancelSubscription(ctx context.Context, id string) (*stripe.Subscription, error) {
	s.cancelledSubs = append(s.cancelledSubs, id)
	return &stripe.Subscription{ID: id}, nil
}

func (s *stubStripeClient) DeleteCustomer(ctx context.Context, id string) (*stripe.Customer, error) {
	s.deletedCustomers = append(s.deletedCustomers, id)
	return &stripe.Customer{ID: id}, nil
}

func (s *stubStripeClient) UpdateCustomer(ctx context.Context, id string, params *stripe.CustomerParams) (*stripe.Customer, error) {
	s.updatedCustomers = append(s.updatedCustomers, id)
	return &stripe.Customer{ID: id}, nil
}

func (s *stubStripeClient) AttachPaymentMethod(ctx context.Context, id string, params *stripe.PaymentMethodAttachParams) (*stripe.PaymentMethod, error) {
	s.attachedMethods = append(s.attachedMethods, id)
	return &stripe.PaymentMethod{ID: id}, nil
}

func (s *stubStripeClient) DetachPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error) {
	s.detachedMethods = append(s.detachedMethods, id)
	return &stripe.PaymentMethod{ID: id}, nil
}

func (s *stubStripeClient) GetPaymentMethod(ctx context.Context, id string) (*stripe.PaymentMethod, error) {
	return &stripe.PaymentMethod{ID: id}, nil
}

func (s *stubStripeClient) CreatePaymentIntent(ctx context.Context, params *stripe.PaymentIntentParams) (*stripe.PaymentIntent, error) {
	s.createdIntents = append(s.createdIntents, params)
	return &stripe.PaymentIntent{ID: "pi_new"}, nil
}

func newStripeProviderForTest(t *testing.T, client StripeClient) Provider {
	t.Helper()
	provider, err := NewStripeProvider(StripeProviderParams{
		Client:      client,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Currency:    "gbp",
		ProductID:   "prod_membership",
		GracePeriod: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func TestStripeUpdateStagesDecrease(t *testing.T) {
	client := &stubStripeClient{}
	provider := newStripeProviderForTest(t, client)

	expiry := time.Now().UTC().AddDate(0, 6, 1)
	oldAmount := 10.0
	contact := &models.Contact{
		ContributionMonthlyAmount: &oldAmount,
		Roles: []models.ContactRole{{
			Type:        enums.RoleTypeMember,
			DateAdded:   time.Now().UTC().AddDate(0, -6, 0),
			DateExpires: &expiry,
		}},
	}
	contrib := &models.Contribution{
		CustomerID:     strptr("cus_1"),
		MandateID:      strptr("pm_1"),
		SubscriptionID: strptr("sub_1"),
	}

	result, err := provider.UpdateContribution(context.Background(), contact, contrib, Form{
		MonthlyAmount: 5,
		Period:        enums.ContributionPeriodMonthly,
		Prorate:       true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StartNow {
		t.Fatalf("a decrease mid-period must be staged until renewal")
	}
	if len(client.createdIntents) != 0 {
		t.Fatalf("a decrease must not charge, got %d intents", len(client.createdIntents))
	}
	if !result.ExpiryDate.Equal(expiry) {
		t.Fatalf("staged change keeps the current expiry")
	}
}

func TestStripeProratedUpgradeStartsNow(t *testing.T) {
	client := &stubStripeClient{}
	provider := newStripeProviderForTest(t, client)

	expiry := time.Now().UTC().AddDate(0, 6, 1)
	oldAmount := 5.0
	contact := &models.Contact{
		ContributionMonthlyAmount: &oldAmount,
		Roles: []models.ContactRole{{
			Type:        enums.RoleTypeMember,
			DateAdded:   time.Now().UTC().AddDate(0, -6, 0),
			DateExpires: &expiry,
		}},
	}
	contrib := &models.Contribution{
		CustomerID:     strptr("cus_1"),
		MandateID:      strptr("pm_1"),
		SubscriptionID: strptr("sub_1"),
	}

	result, err := provider.UpdateContribution(context.Background(), contact, contrib, Form{
		MonthlyAmount: 10,
		Period:        enums.ContributionPeriodMonthly,
		Prorate:       true,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.StartNow {
		t.Fatalf("prorated upgrade starts immediately")
	}
	if len(client.createdIntents) != 1 {
		t.Fatalf("expected one proration charge, got %d", len(client.createdIntents))
	}
	// (10 - 5) * 6 months = 30.00 -> 3000 minor units
	if got := *client.createdIntents[0].Amount; got != 3000 {
		t.Fatalf("expected 3000 minor units, got %d", got)
	}
}

func TestStripeMethodSwapRetiresOldSource(t *testing.T) {
	client := &stubStripeClient{}
	provider := newStripeProviderForTest(t, client)

	amount := 10.0
	period := enums.ContributionPeriodMonthly
	contact := &models.Contact{
		ContributionType:          enums.ContributionTypeAutomatic,
		ContributionPeriod:        &period,
		ContributionMonthlyAmount: &amount,
	}
	contrib := &models.Contribution{
		CustomerID:     strptr("cus_old"),
		MandateID:      strptr("pm_old"),
		SubscriptionID: strptr("sub_old"),
	}

	err := provider.UpdatePaymentMethod(context.Background(), contact, contrib, CompletedFlow{
		Method:     enums.PaymentMethodStripeCard,
		CustomerID: "cus_new",
		MandateID:  "pm_new",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.cancelledSubs) != 1 || client.cancelledSubs[0] != "sub_old" {
		t.Fatalf("old subscription must be cancelled, got %v", client.cancelledSubs)
	}
	if len(client.detachedMethods) != 1 || client.detachedMethods[0] != "pm_old" {
		t.Fatalf("old payment method must be detached, got %v", client.detachedMethods)
	}
	if len(client.attachedMethods) != 1 || client.attachedMethods[0] != "pm_new" {
		t.Fatalf("new payment method must be attached, got %v", client.attachedMethods)
	}
	if len(client.createdSubs) != 1 {
		t.Fatalf("expected one recreated subscription, got %d", len(client.createdSubs))
	}
	if contrib.SubscriptionID == nil || *contrib.SubscriptionID != "sub_new" {
		t.Fatalf("contribution must carry exactly the new subscription id, got %v", contrib.SubscriptionID)
	}
	if contrib.MandateID == nil || *contrib.MandateID != "pm_new" {
		t.Fatalf("contribution must carry the new payment method id, got %v", contrib.MandateID)
	}
}

func TestStripeMethodSwapSameMethodIsIdempotent(t *testing.T) {
	client := &stubStripeClient{}
	provider := newStripeProviderForTest(t, client)

	amount := 10.0
	period := enums.ContributionPeriodMonthly
	contact := &models.Contact{
		ContributionType:          enums.ContributionTypeAutomatic,
		ContributionPeriod:        &period,
		ContributionMonthlyAmount: &amount,
	}
	contrib := &models.Contribution{
		CustomerID:     strptr("cus_1"),
		MandateID:      strptr("pm_1"),
		SubscriptionID: strptr("sub_1"),
	}

	err := provider.UpdatePaymentMethod(context.Background(), contact, contrib, CompletedFlow{
		Method:     enums.PaymentMethodStripeCard,
		CustomerID: "cus_1",
		MandateID:  "pm_1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.cancelledSubs) != 0 || len(client.detachedMethods) != 0 {
		t.Fatalf("same payment method must not tear anything down")
	}
	if len(client.createdSubs) != 0 {
		t.Fatalf("same payment method must keep the existing subscription, got %d new", len(client.createdSubs))
	}
	if contrib.SubscriptionID == nil || *contrib.SubscriptionID != "sub_1" {
		t.Fatalf("subscription id must be unchanged, got %v", contrib.SubscriptionID)
	}
}
