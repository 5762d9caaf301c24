package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/logger"
	"github.com/memberdesk/backend/pkg/pagination"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Service is the single entry point for contribution reads and writes. It
// hides which provider backs a given contact.
type Service interface {
	CreateContribution(ctx context.Context, contactID uuid.UUID) error
	Contribution(ctx context.Context, contactID uuid.UUID) (*models.Contribution, error)
	GetContributionInfo(ctx context.Context, contact *models.Contact) (*ContributionInfo, error)
	CanChangeContribution(ctx context.Context, contact *models.Contact, useExistingSource bool, form Form) (bool, error)
	UpdateContribution(ctx context.Context, contact *models.Contact, form Form) (*UpdateResult, error)
	UpdatePaymentMethod(ctx context.Context, contact *models.Contact, flow CompletedFlow) error
	CancelContribution(ctx context.Context, contact *models.Contact, keepMandate bool) error
	PermanentlyDeleteContact(ctx context.Context, contact *models.Contact) error
	ListPayments(ctx context.Context, contactID uuid.UUID, params pagination.Params) ([]models.Payment, string, error)
	MembershipStatus(contact *models.Contact, contrib *models.Contribution) enums.MembershipStatus
}

// ServiceParams groups dependencies for the payment service.
type ServiceParams struct {
	Repo              Repository
	Manual            Provider
	GoCardless        Provider
	Stripe            Provider
	TransactionRunner txRunner
	Logger            *logger.Logger
	GracePeriod       time.Duration
}

type service struct {
	repo        Repository
	manual      Provider
	gocardless  Provider
	stripe      Provider
	txRunner    txRunner
	logg        *logger.Logger
	gracePeriod time.Duration
}

// NewService builds a payment service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repo required")
	}
	if params.Manual == nil {
		return nil, fmt.Errorf("manual provider required")
	}
	if params.GoCardless == nil {
		return nil, fmt.Errorf("gocardless provider required")
	}
	if params.Stripe == nil {
		return nil, fmt.Errorf("stripe provider required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
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
		manual:      params.Manual,
		gocardless:  params.GoCardless,
		stripe:      params.Stripe,
		txRunner:    params.TransactionRunner,
		logg:        params.Logger,
		gracePeriod: grace,
	}, nil
}

// providerFor dispatches on the contribution's payment method. A nil method
// means the contact contributes manually (or not at all).
func (s *service) providerFor(method *enums.PaymentMethod) Provider {
	if method == nil {
		return s.manual
	}
	switch {
	case *method == enums.PaymentMethodGoCardlessDirectDebit:
		return s.gocardless
	case method.IsStripe():
		return s.stripe
	default:
		return s.manual
	}
}

func (s *service) CreateContribution(ctx context.Context, contactID uuid.UUID) error {
	return s.repo.CreateContribution(ctx, &models.Contribution{ContactID: contactID})
}

func (s *service) Contribution(ctx context.Context, contactID uuid.UUID) (*models.Contribution, error) {
	contrib, err := s.repo.FindContribution(ctx, contactID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load contribution")
	}
	if contrib == nil {
		// Every contact gets a contribution row at creation time.
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contribution not found")
	}
	return contrib, nil
}

func (s *service) GetContributionInfo(ctx context.Context, contact *models.Contact) (*ContributionInfo, error) {
	contrib, err := s.Contribution(ctx, contact.ID)
	if err != nil {
		return nil, err
	}

	providerInfo, err := s.providerFor(contrib.Method).ContributionInfo(ctx, contrib)
	if err != nil {
		return nil, err
	}

	info := &ContributionInfo{
		Type:             contact.ContributionType,
		Amount:           contact.ContributionMonthlyAmount,
		NextAmount:       contact.NextContributionMonthlyAmount,
		Period:           contact.ContributionPeriod,
		MembershipStatus: s.MembershipStatus(contact, contrib),
		CancellationDate: contrib.CancelledAt,
	}
	if membership := contact.Membership(); membership != nil && membership.DateExpires != nil {
		info.MembershipExpiryDate = membership.DateExpires
		if contrib.CancelledAt == nil {
			renewal := membership.DateExpires.Add(-s.gracePeriod)
			info.RenewalDate = &renewal
		}
	}
	if providerInfo != nil {
		info.PaymentSource = providerInfo.PaymentSource
		info.HasPendingPayment = providerInfo.HasPendingPayment
	}
	return info, nil
}

func (s *service) CanChangeContribution(ctx context.Context, contact *models.Contact, useExistingSource bool, form Form) (bool, error) {
	contrib, err := s.Contribution(ctx, contact.ID)
	if err != nil {
		return false, err
	}
	ok, err := s.providerFor(contrib.Method).CanChangeContribution(ctx, contrib, useExistingSource, form)
	if err != nil {
		return false, err
	}
	s.logg.Info(s.logg.WithFields(ctx, map[string]any{
		"contact_id": contact.ID.String(),
		"allowed":    ok,
	}), "contribution change check")
	return ok, nil
}

func (s *service) UpdateContribution(ctx context.Context, contact *models.Contact, form Form) (*UpdateResult, error) {
	contrib, err := s.Contribution(ctx, contact.ID)
	if err != nil {
		return nil, err
	}

	result, err := s.providerFor(contrib.Method).UpdateContribution(ctx, contact, contrib, form)
	if err != nil {
		return nil, err
	}

	// A successful update always supersedes any pending cancellation.
	contrib.CancelledAt = nil
	if err := s.repo.SaveContribution(ctx, contrib); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist contribution")
	}
	return result, nil
}

func (s *service) UpdatePaymentMethod(ctx context.Context, contact *models.Contact, flow CompletedFlow) error {
	contrib, err := s.Contribution(ctx, contact.ID)
	if err != nil {
		return err
	}

	if contrib.Method == nil || *contrib.Method != flow.Method {
		ctx := s.logg.WithField(ctx, "contact_id", contact.ID.String())
		s.logg.Info(ctx, "payment method changing, cancelling previous contribution")

		if err := s.providerFor(contrib.Method).CancelContribution(ctx, contrib, false); err != nil {
			return err
		}

		// The identifier reset is committed before the new provider call so
		// a failure cannot leave identifiers from two providers mixed in one
		// row. cancelledAt stays set until the new source is attached.
		method := flow.Method
		now := time.Now().UTC()
		contrib.Method = &method
		contrib.CancelledAt = &now
		contrib.ClearIdentifiers()
		if err := s.repo.SaveContribution(ctx, contrib); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "reset contribution identifiers")
		}
	}

	if err := s.providerFor(contrib.Method).UpdatePaymentMethod(ctx, contact, contrib, flow); err != nil {
		return err
	}

	contrib.CancelledAt = nil
	if err := s.repo.SaveContribution(ctx, contrib); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist contribution")
	}
	return nil
}

func (s *service) CancelContribution(ctx context.Context, contact *models.Contact, keepMandate bool) error {
	contrib, err := s.Contribution(ctx, contact.ID)
	if err != nil {
		return err
	}

	if err := s.providerFor(contrib.Method).CancelContribution(ctx, contrib, keepMandate); err != nil {
		return err
	}

	now := time.Now().UTC()
	contrib.CancelledAt = &now
	if err := s.repo.SaveContribution(ctx, contrib); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist cancellation")
	}
	s.logg.Info(s.logg.WithField(ctx, "contact_id", contact.ID.String()), "contribution cancelled")
	return nil
}

func (s *service) PermanentlyDeleteContact(ctx context.Context, contact *models.Contact) error {
	contrib, err := s.Contribution(ctx, contact.ID)
	if err != nil {
		return err
	}

	// Provider deletion runs first so a provider failure never leaves local
	// rows silently purged.
	if err := s.providerFor(contrib.Method).PermanentlyDeleteContact(ctx, contrib); err != nil {
		return err
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteContribution(ctx, contact.ID); err != nil {
			return fmt.Errorf("delete contribution: %w", err)
		}
		if err := repo.DeletePaymentsByContact(ctx, contact.ID); err != nil {
			return fmt.Errorf("delete payments: %w", err)
		}
		return nil
	})
}

func (s *service) ListPayments(ctx context.Context, contactID uuid.UUID, params pagination.Params) ([]models.Payment, string, error) {
	rows, err := s.repo.ListPaymentsByContact(ctx, contactID, params)
	if err != nil {
		return nil, "", pkgerrors.Wrap(pkgerrors.CodeInternal, err, "list payments")
	}
	trimmed, next := pagination.NextCursor(rows, params.Limit, func(i int) pagination.Cursor {
		return pagination.Cursor{CreatedAt: rows[i].CreatedAt, ID: rows[i].ID}
	})
	return trimmed, next, nil
}

// MembershipStatus derives the display status from the member role and the
// contribution's cancellation state.
func (s *service) MembershipStatus(contact *models.Contact, contrib *models.Contribution) enums.MembershipStatus {
	membership := contact.Membership()
	if membership == nil {
		return enums.MembershipStatusNone
	}
	if !membership.IsActive() {
		return enums.MembershipStatusExpired
	}
	if contrib != nil && contrib.CancelledAt != nil {
		return enums.MembershipStatusExpiring
	}
	return enums.MembershipStatusActive
}
