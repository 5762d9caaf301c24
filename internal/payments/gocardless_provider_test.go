package payments

import (
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	"github.com/memberdesk/backend/pkg/gocardless"
	"github.com/memberdesk/backend/pkg/logger"
)

type stubGCClient struct {
	subscription     *gocardless.Subscription
	updateErrs       []error
	updateCalls      []gocardless.SubscriptionUpdateParams
	createdSubs      []gocardless.SubscriptionParams
	createdPayments  []gocardless.PaymentParams
	cancelledSubs    []string
	cancelledMandate []string
	deletedCustomers []string
	cancelSubErr     error
	cancelMandateErr error
	deleteErr        error
}

func (s *stubGCClient) GetCustomer(ctx context.Context, id string) (*gocardless.Customer, error) {
	return &gocardless.Customer{ID: id}, nil
}

func (s *stubGCClient) DeleteCustomer(ctx context.Context, id string) error {
	s.deletedCustomers = append(s.deletedCustomers, id)
	return s.deleteErr
}

func (s *stubGCClient) GetMandate(ctx context.Context, id string) (*gocardless.Mandate, error) {
	return &gocardless.Mandate{ID: id, Reference: "REF-" + id}, nil
}

func (s *stubGCClient) CancelMandate(ctx context.Context, id string) error {
	s.cancelledMandate = append(s.cancelledMandate, id)
	return s.cancelMandateErr
}

func (s *stubGCClient) GetSubscription(ctx context.Context, id string) (*gocardless.Subscription, error) {
	if s.subscription != nil {
		return s.subscription, nil
	}
	return &gocardless.Subscription{ID: id}, nil
}

func (s *stubGCClient) CreateSubscription(ctx context.Context, params gocardless.SubscriptionParams) (*gocardless.Subscription, error) {
	s.createdSubs = append(s.createdSubs, params)
	return &gocardless.Subscription{
		ID:           "SB_NEW",
		Amount:       params.Amount,
		IntervalUnit: params.IntervalUnit,
		UpcomingPayments: []gocardless.UpcomingPayment{
			{ChargeDate: time.Now().UTC().Format(gocardless.DateFormat), Amount: params.Amount},
		},
	}, nil
}

func (s *stubGCClient) UpdateSubscription(ctx context.Context, id string, params gocardless.SubscriptionUpdateParams) (*gocardless.Subscription, error) {
	s.updateCalls = append(s.updateCalls, params)
	if len(s.updateErrs) > 0 {
		err := s.updateErrs[0]
		s.updateErrs = s.updateErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &gocardless.Subscription{ID: id, Amount: params.Amount}, nil
}

func (s *stubGCClient) CancelSubscription(ctx context.Context, id string) error {
	s.cancelledSubs = append(s.cancelledSubs, id)
	return s.cancelSubErr
}

func (s *stubGCClient) GetPayment(ctx context.Context, id string) (*gocardless.Payment, error) {
	return &gocardless.Payment{ID: id}, nil
}

func (s *stubGCClient) CreatePayment(ctx context.Context, params gocardless.PaymentParams) (*gocardless.Payment, error) {
	s.createdPayments = append(s.createdPayments, params)
	return &gocardless.Payment{ID: "PM_NEW", Amount: params.Amount}, nil
}

func (s *stubGCClient) GetRefund(ctx context.Context, id string) (*gocardless.Refund, error) {
	return &gocardless.Refund{ID: id}, nil
}

func newGCProviderForTest(t *testing.T, client GoCardlessClient) Provider {
	t.Helper()
	provider, err := NewGCProvider(GCProviderParams{
		Client:      client,
		Logger:      logger.New(logger.Options{ServiceName: "test", Output: io.Discard}),
		Currency:    "GBP",
		GracePeriod: 7 * 24 * time.Hour,
	})
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	return provider
}

func strptr(s string) *string { return &s }

func TestGCUpdateRetriesWithoutNameOn422(t *testing.T) {
	client := &stubGCClient{
		updateErrs: []error{&gocardless.APIError{StatusCode: http.StatusUnprocessableEntity, Message: "validation failed"}},
	}
	provider := newGCProviderForTest(t, client)

	contrib := &models.Contribution{
		MandateID:      strptr("MD1"),
		SubscriptionID: strptr("SB1"),
	}
	contact := &models.Contact{}

	result, err := provider.UpdateContribution(context.Background(), contact, contrib, Form{
		MonthlyAmount: 15,
		Period:        enums.ContributionPeriodMonthly,
	})
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if !result.StartNow {
		t.Fatalf("no membership expiry means the change starts now")
	}
	if len(client.updateCalls) != 2 {
		t.Fatalf("expected one retry, got %d calls", len(client.updateCalls))
	}
	if client.updateCalls[0].Name == nil {
		t.Fatalf("first attempt should carry the subscription name")
	}
	if client.updateCalls[1].Name != nil {
		t.Fatalf("retry must omit the name field")
	}
}

func TestGCUpdateProrationCharge(t *testing.T) {
	client := &stubGCClient{}
	provider := newGCProviderForTest(t, client)

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
		MandateID:      strptr("MD1"),
		SubscriptionID: strptr("SB1"),
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
	if len(client.createdPayments) != 1 {
		t.Fatalf("expected one proration charge, got %d", len(client.createdPayments))
	}
	// (10 - 5) * 6 months = 30.00 -> 3000 minor units
	if got := client.createdPayments[0].Amount; got != 3000 {
		t.Fatalf("expected 3000 minor units, got %d", got)
	}
}

func TestGCUpdateStagesAmountWithoutProration(t *testing.T) {
	client := &stubGCClient{}
	provider := newGCProviderForTest(t, client)

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
		MandateID:      strptr("MD1"),
		SubscriptionID: strptr("SB1"),
	}

	result, err := provider.UpdateContribution(context.Background(), contact, contrib, Form{
		MonthlyAmount: 10,
		Period:        enums.ContributionPeriodMonthly,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.StartNow {
		t.Fatalf("unprorated upgrade mid-period must be staged")
	}
	if len(client.createdPayments) != 0 {
		t.Fatalf("staged change must not charge, got %d payments", len(client.createdPayments))
	}
	if !result.ExpiryDate.Equal(expiry) {
		t.Fatalf("staged change keeps the current expiry")
	}
}

func TestGCUpdateStagesDecrease(t *testing.T) {
	client := &stubGCClient{}
	provider := newGCProviderForTest(t, client)

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
		MandateID:      strptr("MD1"),
		SubscriptionID: strptr("SB1"),
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
	if len(client.createdPayments) != 0 {
		t.Fatalf("a decrease must not charge, got %d payments", len(client.createdPayments))
	}
	if !result.ExpiryDate.Equal(expiry) {
		t.Fatalf("staged change keeps the current expiry")
	}
}

func TestGCMethodSwapRetiresOldSource(t *testing.T) {
	client := &stubGCClient{}
	provider := newGCProviderForTest(t, client)

	amount := 10.0
	period := enums.ContributionPeriodMonthly
	contact := &models.Contact{
		ContributionType:          enums.ContributionTypeAutomatic,
		ContributionPeriod:        &period,
		ContributionMonthlyAmount: &amount,
	}
	contrib := &models.Contribution{
		CustomerID:     strptr("CU_OLD"),
		MandateID:      strptr("MD_OLD"),
		SubscriptionID: strptr("SB_OLD"),
	}

	err := provider.UpdatePaymentMethod(context.Background(), contact, contrib, CompletedFlow{
		Method:     enums.PaymentMethodGoCardlessDirectDebit,
		CustomerID: "CU_NEW",
		MandateID:  "MD_NEW",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.cancelledSubs) != 1 || client.cancelledSubs[0] != "SB_OLD" {
		t.Fatalf("old subscription must be cancelled, got %v", client.cancelledSubs)
	}
	if len(client.cancelledMandate) != 1 || client.cancelledMandate[0] != "MD_OLD" {
		t.Fatalf("old mandate must be cancelled, got %v", client.cancelledMandate)
	}
	if len(client.createdSubs) != 1 {
		t.Fatalf("expected one recreated subscription, got %d", len(client.createdSubs))
	}
	if client.createdSubs[0].Links.Mandate != "MD_NEW" {
		t.Fatalf("recreated subscription must bill the new mandate, got %q", client.createdSubs[0].Links.Mandate)
	}
	if contrib.SubscriptionID == nil || *contrib.SubscriptionID != "SB_NEW" {
		t.Fatalf("contribution must carry exactly the new subscription id, got %v", contrib.SubscriptionID)
	}
	if contrib.MandateID == nil || *contrib.MandateID != "MD_NEW" {
		t.Fatalf("contribution must carry the new mandate id, got %v", contrib.MandateID)
	}
}

func TestGCMethodSwapSameMandateIsIdempotent(t *testing.T) {
	client := &stubGCClient{}
	provider := newGCProviderForTest(t, client)

	amount := 10.0
	period := enums.ContributionPeriodMonthly
	contact := &models.Contact{
		ContributionType:          enums.ContributionTypeAutomatic,
		ContributionPeriod:        &period,
		ContributionMonthlyAmount: &amount,
	}
	contrib := &models.Contribution{
		CustomerID:     strptr("CU1"),
		MandateID:      strptr("MD1"),
		SubscriptionID: strptr("SB1"),
	}

	err := provider.UpdatePaymentMethod(context.Background(), contact, contrib, CompletedFlow{
		Method:     enums.PaymentMethodGoCardlessDirectDebit,
		CustomerID: "CU1",
		MandateID:  "MD1",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(client.cancelledSubs) != 0 || len(client.cancelledMandate) != 0 {
		t.Fatalf("same mandate must not tear anything down")
	}
	if len(client.createdSubs) != 0 {
		t.Fatalf("same mandate must keep the existing subscription, got %d new", len(client.createdSubs))
	}
	if contrib.SubscriptionID == nil || *contrib.SubscriptionID != "SB1" {
		t.Fatalf("subscription id must be unchanged, got %v", contrib.SubscriptionID)
	}
}

func TestGCCancelSwallowsNotFound(t *testing.T) {
	client := &stubGCClient{
		cancelSubErr:     &gocardless.APIError{StatusCode: http.StatusNotFound, Message: "gone"},
		cancelMandateErr: &gocardless.APIError{StatusCode: http.StatusNotFound, Message: "gone"},
	}
	provider := newGCProviderForTest(t, client)

	contrib := &models.Contribution{
		CustomerID:     strptr("CU1"),
		MandateID:      strptr("MD1"),
		SubscriptionID: strptr("SB1"),
	}
	if err := provider.CancelContribution(context.Background(), contrib, false); err != nil {
		t.Fatalf("404 on tear-down must be success, got %v", err)
	}
	if contrib.SubscriptionID != nil || contrib.MandateID != nil {
		t.Fatalf("identifiers must be cleared, got %+v", contrib)
	}

	// Second cancel sees no identifiers and is a no-op.
	if err := provider.CancelContribution(context.Background(), contrib, false); err != nil {
		t.Fatalf("repeat cancel must be a no-op, got %v", err)
	}
	if len(client.cancelledSubs) != 1 || len(client.cancelledMandate) != 1 {
		t.Fatalf("provider must only be called once per resource")
	}
}

func TestGCCancelKeepsMandate(t *testing.T) {
	client := &stubGCClient{}
	provider := newGCProviderForTest(t, client)

	contrib := &models.Contribution{
		MandateID:      strptr("MD1"),
		SubscriptionID: strptr("SB1"),
	}
	if err := provider.CancelContribution(context.Background(), contrib, true); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if contrib.MandateID == nil {
		t.Fatalf("keepMandate must preserve the mandate id")
	}
	if len(client.cancelledMandate) != 0 {
		t.Fatalf("mandate must not be cancelled")
	}
}

func TestGCDeleteContactSwallowsNotFound(t *testing.T) {
	client := &stubGCClient{
		deleteErr: &gocardless.APIError{StatusCode: http.StatusNotFound, Message: "gone"},
	}
	provider := newGCProviderForTest(t, client)

	contrib := &models.Contribution{CustomerID: strptr("CU1")}
	if err := provider.PermanentlyDeleteContact(context.Background(), contrib); err != nil {
		t.Fatalf("already-deleted customer must be success, got %v", err)
	}
}
