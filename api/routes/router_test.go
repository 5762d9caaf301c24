package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/memberdesk/backend/internal/contacts"
	"github.com/memberdesk/backend/internal/joinflow"
	"github.com/memberdesk/backend/internal/payments"
	"github.com/memberdesk/backend/pkg/config"
	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/gocardless"
	"github.com/memberdesk/backend/pkg/logger"
	"github.com/memberdesk/backend/pkg/pagination"
)

type stubContactService struct{}

func (stubContactService) CreateContact(ctx context.Context, input contacts.CreateContactInput) (*models.Contact, bool, error) {
	return &models.Contact{ID: uuid.New(), Email: input.Email}, false, nil
}

func (stubContactService) GetContact(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contact not found")
}

func (stubContactService) GetContactByEmail(ctx context.Context, email string) (*models.Contact, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contact not found")
}

func (stubContactService) UpdateContribution(ctx context.Context, contactID uuid.UUID, form payments.Form) (*payments.UpdateResult, error) {
	return &payments.UpdateResult{}, nil
}

func (stubContactService) CancelContribution(ctx context.Context, contactID uuid.UUID) error {
	return nil
}

func (stubContactService) PermanentlyDeleteContact(ctx context.Context, contactID uuid.UUID) error {
	return nil
}

func (stubContactService) ExtendRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType, expiry time.Time) error {
	return nil
}

func (stubContactService) RevokeRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType) error {
	return nil
}

func (stubContactService) PromoteStagedAmount(ctx context.Context, contactID uuid.UUID, amount float64) error {
	return nil
}

type stubPaymentService struct{}

func (stubPaymentService) CreateContribution(ctx context.Context, contactID uuid.UUID) error {
	return nil
}

func (stubPaymentService) Contribution(ctx context.Context, contactID uuid.UUID) (*models.Contribution, error) {
	return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contribution not found")
}

func (stubPaymentService) GetContributionInfo(ctx context.Context, contact *models.Contact) (*payments.ContributionInfo, error) {
	return &payments.ContributionInfo{}, nil
}

func (stubPaymentService) CanChangeContribution(ctx context.Context, contact *models.Contact, useExistingSource bool, form payments.Form) (bool, error) {
	return true, nil
}

func (stubPaymentService) UpdateContribution(ctx context.Context, contact *models.Contact, form payments.Form) (*payments.UpdateResult, error) {
	return &payments.UpdateResult{}, nil
}

func (stubPaymentService) UpdatePaymentMethod(ctx context.Context, contact *models.Contact, flow payments.CompletedFlow) error {
	return nil
}

func (stubPaymentService) CancelContribution(ctx context.Context, contact *models.Contact, keepMandate bool) error {
	return nil
}

func (stubPaymentService) PermanentlyDeleteContact(ctx context.Context, contact *models.Contact) error {
	return nil
}

func (stubPaymentService) ListPayments(ctx context.Context, contactID uuid.UUID, params pagination.Params) ([]models.Payment, string, error) {
	return nil, "", nil
}

func (stubPaymentService) MembershipStatus(contact *models.Contact, contrib *models.Contribution) enums.MembershipStatus {
	return enums.MembershipStatusNone
}

type stubJoinFlowService struct{}

func (stubJoinFlowService) Start(ctx context.Context, params joinflow.StartParams) (*joinflow.StartResult, error) {
	return &joinflow.StartResult{RedirectURL: "https://pay.example.org"}, nil
}

func (stubJoinFlowService) StartPaymentMethodUpdate(ctx context.Context, contactID uuid.UUID, completeURL string) (*joinflow.StartResult, error) {
	return &joinflow.StartResult{RedirectURL: "https://pay.example.org"}, nil
}

func (stubJoinFlowService) Complete(ctx context.Context, redirectFlowID string) (*joinflow.CompleteResult, error) {
	return &joinflow.CompleteResult{}, nil
}

func (stubJoinFlowService) CleanupStale(ctx context.Context) (int64, error) { return 0, nil }

type stubNotificationService struct{}

func (stubNotificationService) SendTemplateToContact(ctx context.Context, template string, contactID uuid.UUID, vars map[string]any) {
}

func (stubNotificationService) SendTemplateToAdmin(ctx context.Context, template string, vars map[string]any) {
}

func (stubNotificationService) ListByContact(ctx context.Context, contactID uuid.UUID) ([]models.Notification, error) {
	return nil, nil
}

func (stubNotificationService) MarkRead(ctx context.Context, id uuid.UUID) error { return nil }

type stubGCWebhookService struct {
	batches int
}

func (s *stubGCWebhookService) HandleEvents(ctx context.Context, events []gocardless.Event) error {
	s.batches++
	return nil
}

const webhookSecret = "whsec_test"

func newTestRouter(t *testing.T, gcSvc *stubGCWebhookService) http.Handler {
	t.Helper()
	cfg := &config.Config{}
	cfg.App.Env = "dev"
	cfg.GoCardless.WebhookSecret = webhookSecret

	logg := logger.New(logger.Options{ServiceName: "test", Output: io.Discard})
	return NewRouter(
		cfg,
		logg,
		stubContactService{},
		stubPaymentService{},
		stubJoinFlowService{},
		stubNotificationService{},
		gcSvc,
		nil,
		nil,
		nil,
		nil,
	)
}

func TestHealthLive(t *testing.T) {
	router := newTestRouter(t, &stubGCWebhookService{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if env := rec.Header().Get("X-MemberDesk-Env"); env != "dev" {
		t.Fatalf("expected env header, got %q", env)
	}
}

func TestGetContactRejectsMalformedID(t *testing.T) {
	router := newTestRouter(t, &stubGCWebhookService{})
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/contacts/not-a-uuid/", nil))

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestGoCardlessWebhookRejectsBadSignature(t *testing.T) {
	gcSvc := &stubGCWebhookService{}
	router := newTestRouter(t, gcSvc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gocardless", strings.NewReader(`{"events":[]}`))
	req.Header.Set(gocardless.SignatureHeader, "bogus")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != pkgerrors.StatusInvalidSignature {
		t.Fatalf("expected %d, got %d", pkgerrors.StatusInvalidSignature, rec.Code)
	}
	if gcSvc.batches != 0 {
		t.Fatal("rejected delivery must not reach the reconciler")
	}
}

func TestGoCardlessWebhookAcceptsSignedBatch(t *testing.T) {
	gcSvc := &stubGCWebhookService{}
	router := newTestRouter(t, gcSvc)

	body := `{"events":[{"id":"EV001","resource_type":"payments","action":"paid_out","links":{"payment":"PM001"}}]}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/gocardless", strings.NewReader(body))
	req.Header.Set(gocardless.SignatureHeader, gocardless.Sign([]byte(body), webhookSecret))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if gcSvc.batches != 1 {
		t.Fatalf("expected one batch handled, got %d", gcSvc.batches)
	}
}
