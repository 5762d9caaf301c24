package joinflow

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/memberdesk/backend/internal/contacts"
	"github.com/memberdesk/backend/internal/notifications"
	"github.com/memberdesk/backend/internal/payments"
	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/gocardless"
	"github.com/memberdesk/backend/pkg/logger"
)

type contactService interface {
	CreateContact(ctx context.Context, input contacts.CreateContactInput) (*models.Contact, bool, error)
	GetContact(ctx context.Context, id uuid.UUID) (*models.Contact, error)
	UpdateContribution(ctx context.Context, contactID uuid.UUID, form payments.Form) (*payments.UpdateResult, error)
}

type paymentMethodUpdater interface {
	UpdatePaymentMethod(ctx context.Context, contact *models.Contact, flow payments.CompletedFlow) error
}

type redirectFlowClient interface {
	CreateRedirectFlow(ctx context.Context, params gocardless.RedirectFlowParams) (*gocardless.RedirectFlow, error)
	CompleteRedirectFlow(ctx context.Context, id, sessionToken string) (*gocardless.RedirectFlow, error)
}

// JoinForm is the signup form carried by a join flow token.
type JoinForm struct {
	Email         string                   `json:"email"`
	FirstName     string                   `json:"firstName"`
	LastName      string                   `json:"lastName"`
	MonthlyAmount float64                  `json:"monthlyAmount"`
	Period        enums.ContributionPeriod `json:"period"`
	PayFee        bool                     `json:"payFee"`
}

// StartParams begins a new join flow.
type StartParams struct {
	Form        JoinForm
	CompleteURL string
}

// StartResult points the member at the provider's hosted authorization page.
type StartResult struct {
	FlowID      uuid.UUID `json:"flowId"`
	RedirectURL string    `json:"redirectUrl"`
}

// CompleteResult reports the outcome of a consumed join flow.
type CompleteResult struct {
	ContactID     uuid.UUID `json:"contactId"`
	Restarted     bool      `json:"restarted"`
	MethodUpdated bool      `json:"methodUpdated"`
}

// Service runs the hosted-mandate handshake: a flow is started before the
// member authorizes a mandate and consumed exactly once afterwards. The same
// handshake backs both new signups and payment-method changes for existing
// contacts.
type Service interface {
	Start(ctx context.Context, params StartParams) (*StartResult, error)
	StartPaymentMethodUpdate(ctx context.Context, contactID uuid.UUID, completeURL string) (*StartResult, error)
	Complete(ctx context.Context, redirectFlowID string) (*CompleteResult, error)
	CleanupStale(ctx context.Context) (int64, error)
}

// ServiceParams groups dependencies for the join flow service.
type ServiceParams struct {
	Repo          Repository
	Client        redirectFlowClient
	Contacts      contactService
	Payments      paymentMethodUpdater
	Notifications notifications.Service
	Logger        *logger.Logger
	TTL           time.Duration
}

type service struct {
	repo     Repository
	client   redirectFlowClient
	contacts contactService
	payments paymentMethodUpdater
	notify   notifications.Service
	logg     *logger.Logger
	ttl      time.Duration
}

// NewService builds a join flow service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("join flow repo required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("gocardless client required")
	}
	if params.Contacts == nil {
		return nil, fmt.Errorf("contacts service required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	ttl := params.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &service{
		repo:     params.Repo,
		client:   params.Client,
		contacts: params.Contacts,
		payments: params.Payments,
		notify:   params.Notifications,
		logg:     params.Logger,
		ttl:      ttl,
	}, nil
}

func (s *service) Start(ctx context.Context, params StartParams) (*StartResult, error) {
	if params.Form.Email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "email is required")
	}
	if !params.Form.Period.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid contribution period")
	}
	if params.Form.MonthlyAmount <= 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "monthly amount must be positive")
	}

	sessionToken, err := newSessionToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate session token")
	}

	redirectFlow, err := s.client.CreateRedirectFlow(ctx, gocardless.RedirectFlowParams{
		Description:        "Membership contribution",
		SessionToken:       sessionToken,
		SuccessRedirectURL: params.CompleteURL,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create redirect flow")
	}

	form, err := json.Marshal(params.Form)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode join form")
	}
	flow := &models.JoinFlow{
		JoinForm:       form,
		RedirectFlowID: redirectFlow.ID,
		SessionToken:   sessionToken,
	}
	if err := s.repo.Create(ctx, flow); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist join flow")
	}

	s.logg.Info(s.logg.WithField(ctx, "flow_id", flow.ID.String()), "join flow started")
	return &StartResult{FlowID: flow.ID, RedirectURL: redirectFlow.RedirectURL}, nil
}

// StartPaymentMethodUpdate begins a mandate change for an existing contact.
// Completing the flow swaps the contribution's payment method without
// touching amount or period.
func (s *service) StartPaymentMethodUpdate(ctx context.Context, contactID uuid.UUID, completeURL string) (*StartResult, error) {
	contact, err := s.contacts.GetContact(ctx, contactID)
	if err != nil {
		return nil, err
	}

	sessionToken, err := newSessionToken()
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate session token")
	}

	redirectFlow, err := s.client.CreateRedirectFlow(ctx, gocardless.RedirectFlowParams{
		Description:        "Payment method update",
		SessionToken:       sessionToken,
		SuccessRedirectURL: completeURL,
	})
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create redirect flow")
	}

	flow := &models.JoinFlow{
		RedirectFlowID: redirectFlow.ID,
		SessionToken:   sessionToken,
		ContactID:      &contact.ID,
	}
	if err := s.repo.Create(ctx, flow); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist join flow")
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"flow_id":    flow.ID.String(),
		"contact_id": contact.ID.String(),
	}), "payment method update started")
	return &StartResult{FlowID: flow.ID, RedirectURL: redirectFlow.RedirectURL}, nil
}

// Complete consumes the flow, attaches the authorized mandate and starts the
// contribution. The row is deleted before any provider call so a concurrent
// completion of the same token loses the race cleanly.
func (s *service) Complete(ctx context.Context, redirectFlowID string) (*CompleteResult, error) {
	flow, err := s.repo.FindByRedirectFlowID(ctx, redirectFlowID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load join flow")
	}
	if flow == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "join flow not found")
	}

	consumed, err := s.repo.Delete(ctx, flow.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "consume join flow")
	}
	if !consumed {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "join flow already used")
	}

	completed, err := s.client.CompleteRedirectFlow(ctx, flow.RedirectFlowID, flow.SessionToken)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "complete redirect flow")
	}

	if flow.ContactID != nil {
		return s.completeMethodUpdate(ctx, *flow.ContactID, completed)
	}

	var form JoinForm
	if err := json.Unmarshal(flow.JoinForm, &form); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "decode join form")
	}

	contact, restarted, err := s.contacts.CreateContact(ctx, contacts.CreateContactInput{
		Email:     form.Email,
		FirstName: form.FirstName,
		LastName:  form.LastName,
	})
	if err != nil {
		return nil, err
	}

	if err := s.payments.UpdatePaymentMethod(ctx, contact, payments.CompletedFlow{
		Method:     enums.PaymentMethodGoCardlessDirectDebit,
		CustomerID: completed.Links.Customer,
		MandateID:  completed.Links.Mandate,
	}); err != nil {
		return nil, err
	}

	if _, err := s.contacts.UpdateContribution(ctx, contact.ID, payments.Form{
		MonthlyAmount: form.MonthlyAmount,
		Period:        form.Period,
		PayFee:        form.PayFee,
	}); err != nil {
		return nil, err
	}

	if !restarted {
		s.notify.SendTemplateToContact(ctx, notifications.TemplateWelcome, contact.ID, nil)
		s.notify.SendTemplateToAdmin(ctx, notifications.TemplateAdminNewMember, map[string]any{
			"contactId": contact.ID.String(),
			"email":     contact.Email,
		})
	}

	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"contact_id": contact.ID.String(),
		"restarted":  restarted,
	}), "join flow completed")
	return &CompleteResult{ContactID: contact.ID, Restarted: restarted}, nil
}

func (s *service) completeMethodUpdate(ctx context.Context, contactID uuid.UUID, completed *gocardless.RedirectFlow) (*CompleteResult, error) {
	contact, err := s.contacts.GetContact(ctx, contactID)
	if err != nil {
		return nil, err
	}

	if err := s.payments.UpdatePaymentMethod(ctx, contact, payments.CompletedFlow{
		Method:     enums.PaymentMethodGoCardlessDirectDebit,
		CustomerID: completed.Links.Customer,
		MandateID:  completed.Links.Mandate,
	}); err != nil {
		return nil, err
	}

	s.logg.Info(s.logg.WithField(ctx, "contact_id", contact.ID.String()), "payment method updated")
	return &CompleteResult{ContactID: contact.ID, MethodUpdated: true}, nil
}

// CleanupStale removes unconsumed flows past their TTL.
func (s *service) CleanupStale(ctx context.Context) (int64, error) {
	cutoff := time.Now().UTC().Add(-s.ttl)
	removed, err := s.repo.DeleteOlderThan(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("sweep join flows: %w", err)
	}
	return removed, nil
}

func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
