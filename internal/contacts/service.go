package contacts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memberdesk/backend/internal/notifications"
	"github.com/memberdesk/backend/internal/payments"
	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/logger"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// CreateContactInput captures a new contact record.
type CreateContactInput struct {
	Email     string
	FirstName string
	LastName  string
}

// Service drives the contact lifecycle: creation, contribution changes,
// cancellation, role management and deletion.
type Service interface {
	CreateContact(ctx context.Context, input CreateContactInput) (*models.Contact, bool, error)
	GetContact(ctx context.Context, id uuid.UUID) (*models.Contact, error)
	GetContactByEmail(ctx context.Context, email string) (*models.Contact, error)
	UpdateContribution(ctx context.Context, contactID uuid.UUID, form payments.Form) (*payments.UpdateResult, error)
	CancelContribution(ctx context.Context, contactID uuid.UUID) error
	PermanentlyDeleteContact(ctx context.Context, contactID uuid.UUID) error
	ExtendRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType, expiry time.Time) error
	RevokeRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType) error
	PromoteStagedAmount(ctx context.Context, contactID uuid.UUID, amount float64) error
}

// ServiceParams groups dependencies for the contact service.
type ServiceParams struct {
	Repo              Repository
	Payments          payments.Service
	Notifications     notifications.Service
	TransactionRunner txRunner
	Logger            *logger.Logger
}

type service struct {
	repo     Repository
	payments payments.Service
	notify   notifications.Service
	txRunner txRunner
	logg     *logger.Logger
}

// NewService builds a contact service with the required dependencies.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, fmt.Errorf("contacts repo required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payments service required")
	}
	if params.Notifications == nil {
		return nil, fmt.Errorf("notifications service required")
	}
	if params.TransactionRunner == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	return &service{
		repo:     params.Repo,
		payments: params.Payments,
		notify:   params.Notifications,
		txRunner: params.TransactionRunner,
		logg:     params.Logger,
	}, nil
}

// CreateContact inserts a contact plus its empty contribution row. A
// duplicate email is not an error: the existing contact is returned with
// existing=true so callers can branch into a restart flow.
func (s *service) CreateContact(ctx context.Context, input CreateContactInput) (*models.Contact, bool, error) {
	contact := &models.Contact{
		Email:            input.Email,
		FirstName:        input.FirstName,
		LastName:         input.LastName,
		ContributionType: enums.ContributionTypeNone,
	}

	err := s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.WithTx(tx).Create(ctx, contact); err != nil {
			return err
		}
		return s.payments.CreateContribution(ctx, contact.ID)
	})
	if err != nil {
		if pkgerrors.IsDuplicateIndex(err, "uq_contacts_email") {
			existing, lookupErr := s.repo.FindByEmail(ctx, input.Email)
			if lookupErr != nil {
				return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, lookupErr, "load existing contact")
			}
			if existing != nil {
				s.logg.Info(s.logg.WithField(ctx, "contact_id", existing.ID.String()), "duplicate email, returning existing contact")
				return existing, true, nil
			}
		}
		return nil, false, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "create contact")
	}
	return contact, false, nil
}

func (s *service) GetContact(ctx context.Context, id uuid.UUID) (*models.Contact, error) {
	contact, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load contact")
	}
	if contact == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contact not found")
	}
	return contact, nil
}

func (s *service) GetContactByEmail(ctx context.Context, email string) (*models.Contact, error) {
	contact, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load contact")
	}
	if contact == nil {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "contact not found")
	}
	return contact, nil
}

// UpdateContribution applies a contribution change through the payment
// service, refusing period changes that would need a cancel-then-rejoin.
func (s *service) UpdateContribution(ctx context.Context, contactID uuid.UUID, form payments.Form) (*payments.UpdateResult, error) {
	contact, err := s.GetContact(ctx, contactID)
	if err != nil {
		return nil, err
	}

	if err := s.checkUpdatePolicy(contact, form); err != nil {
		return nil, err
	}

	canChange, err := s.payments.CanChangeContribution(ctx, contact, true, form)
	if err != nil {
		return nil, err
	}
	if !canChange {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "cant-update-contribution")
	}

	wasManual := contact.ContributionType == enums.ContributionTypeManual

	result, err := s.payments.UpdateContribution(ctx, contact, form)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	period := form.Period
	contact.ContributionPeriod = &period
	contact.ContributionChanged = &now
	if result.StartNow {
		amount := form.MonthlyAmount
		contact.ContributionMonthlyAmount = &amount
		contact.NextContributionMonthlyAmount = nil
	} else {
		staged := form.MonthlyAmount
		contact.NextContributionMonthlyAmount = &staged
	}

	contrib, err := s.payments.Contribution(ctx, contactID)
	if err != nil {
		return nil, err
	}
	if contrib.Method != nil {
		contact.ContributionType = enums.ContributionTypeAutomatic
	} else {
		contact.ContributionType = enums.ContributionTypeManual
	}

	if err := s.repo.Save(ctx, contact); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "persist contact")
	}

	if err := s.ExtendRole(ctx, contact.ID, enums.RoleTypeMember, result.ExpiryDate); err != nil {
		return nil, err
	}

	if wasManual && contact.ContributionType == enums.ContributionTypeAutomatic {
		s.notify.SendTemplateToContact(ctx, notifications.TemplateManualToAutomatic, contact.ID, nil)
	}
	return result, nil
}

// checkUpdatePolicy rejects in-place period changes that have undefined
// proration: active annual manual contributors, and active automatic
// contributors asking for a different period.
func (s *service) checkUpdatePolicy(contact *models.Contact, form payments.Form) error {
	membership := contact.Membership()
	active := membership != nil && membership.IsActive()
	if !active || contact.ContributionPeriod == nil {
		return nil
	}
	periodChanging := *contact.ContributionPeriod != form.Period

	switch contact.ContributionType {
	case enums.ContributionTypeManual:
		if *contact.ContributionPeriod == enums.ContributionPeriodAnnually && periodChanging {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cant-update-contribution")
		}
	case enums.ContributionTypeAutomatic:
		if periodChanging {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "cant-update-contribution")
		}
	}
	return nil
}

func (s *service) CancelContribution(ctx context.Context, contactID uuid.UUID) error {
	contact, err := s.GetContact(ctx, contactID)
	if err != nil {
		return err
	}

	if err := s.payments.CancelContribution(ctx, contact, false); err != nil {
		return err
	}

	s.notify.SendTemplateToContact(ctx, notifications.TemplateCancelledContribution, contact.ID, nil)
	s.notify.SendTemplateToAdmin(ctx, notifications.TemplateAdminCancelledContribution, map[string]any{
		"contactId": contact.ID.String(),
		"email":     contact.Email,
	})
	return nil
}

func (s *service) PermanentlyDeleteContact(ctx context.Context, contactID uuid.UUID) error {
	contact, err := s.GetContact(ctx, contactID)
	if err != nil {
		return err
	}

	if err := s.payments.PermanentlyDeleteContact(ctx, contact); err != nil {
		return err
	}

	return s.txRunner.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		if err := repo.DeleteRoles(ctx, contact.ID); err != nil {
			return fmt.Errorf("delete roles: %w", err)
		}
		if err := repo.Delete(ctx, contact.ID); err != nil {
			return fmt.Errorf("delete contact: %w", err)
		}
		return nil
	})
}

// ExtendRole moves a role's expiry forward, never backward. A role with no
// expiry date is already unbounded and stays that way.
func (s *service) ExtendRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType, expiry time.Time) error {
	role, err := s.repo.FindRole(ctx, contactID, roleType)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "load role")
	}
	if role == nil {
		role = &models.ContactRole{
			ContactID:   contactID,
			Type:        roleType,
			DateAdded:   time.Now().UTC(),
			DateExpires: &expiry,
		}
		return s.repo.SaveRole(ctx, role)
	}
	if role.DateExpires == nil || !expiry.After(*role.DateExpires) {
		return nil
	}
	role.DateExpires = &expiry
	return s.repo.SaveRole(ctx, role)
}

func (s *service) RevokeRole(ctx context.Context, contactID uuid.UUID, roleType enums.RoleType) error {
	return s.repo.DeleteRole(ctx, contactID, roleType)
}

// PromoteStagedAmount makes a staged next amount current once the provider
// confirms a charge at that amount.
func (s *service) PromoteStagedAmount(ctx context.Context, contactID uuid.UUID, amount float64) error {
	contact, err := s.GetContact(ctx, contactID)
	if err != nil {
		return err
	}
	if contact.NextContributionMonthlyAmount == nil || *contact.NextContributionMonthlyAmount != amount {
		return nil
	}
	contact.ContributionMonthlyAmount = &amount
	contact.NextContributionMonthlyAmount = nil
	return s.repo.Save(ctx, contact)
}
