package payments

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/pagination"
)

// Repository handles contribution and payment persistence.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	CreateContribution(ctx context.Context, contrib *models.Contribution) error
	SaveContribution(ctx context.Context, contrib *models.Contribution) error
	DeleteContribution(ctx context.Context, contactID uuid.UUID) error
	FindContribution(ctx context.Context, contactID uuid.UUID) (*models.Contribution, error)
	FindContributionByMandate(ctx context.Context, mandateID string) (*models.Contribution, error)
	FindContributionByCustomer(ctx context.Context, customerID string) (*models.Contribution, error)
	FindContributionBySubscription(ctx context.Context, subscriptionID string) (*models.Contribution, error)
	ClearCancelledAt(ctx context.Context, contactID uuid.UUID) error
	StampCancelledAt(ctx context.Context, contactID uuid.UUID, at time.Time) error

	CreatePayment(ctx context.Context, payment *models.Payment) error
	SavePayment(ctx context.Context, payment *models.Payment) error
	FindPaymentByProviderID(ctx context.Context, providerPaymentID string) (*models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, providerPaymentID string, status string) error
	ListPaymentsByContact(ctx context.Context, contactID uuid.UUID, params pagination.Params) ([]models.Payment, error)
	ListStalePendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error)
	DeletePaymentsByContact(ctx context.Context, contactID uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payments repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) CreateContribution(ctx context.Context, contrib *models.Contribution) error {
	return r.db.WithContext(ctx).Create(contrib).Error
}

func (r *repository) SaveContribution(ctx context.Context, contrib *models.Contribution) error {
	return r.db.WithContext(ctx).Save(contrib).Error
}

func (r *repository) DeleteContribution(ctx context.Context, contactID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Delete(&models.Contribution{}).Error
}

func (r *repository) FindContribution(ctx context.Context, contactID uuid.UUID) (*models.Contribution, error) {
	var contrib models.Contribution
	if err := r.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		First(&contrib).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contrib, nil
}

func (r *repository) FindContributionByMandate(ctx context.Context, mandateID string) (*models.Contribution, error) {
	return r.findContributionBy(ctx, "mandate_id = ?", mandateID)
}

func (r *repository) FindContributionByCustomer(ctx context.Context, customerID string) (*models.Contribution, error) {
	return r.findContributionBy(ctx, "customer_id = ?", customerID)
}

func (r *repository) FindContributionBySubscription(ctx context.Context, subscriptionID string) (*models.Contribution, error) {
	return r.findContributionBy(ctx, "subscription_id = ?", subscriptionID)
}

func (r *repository) findContributionBy(ctx context.Context, cond string, value string) (*models.Contribution, error) {
	if value == "" {
		return nil, nil
	}
	var contrib models.Contribution
	if err := r.db.WithContext(ctx).
		Where(cond, value).
		First(&contrib).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &contrib, nil
}

func (r *repository) ClearCancelledAt(ctx context.Context, contactID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Where("contact_id = ?", contactID).
		Update("cancelled_at", nil).Error
}

func (r *repository) StampCancelledAt(ctx context.Context, contactID uuid.UUID, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.Contribution{}).
		Where("contact_id = ?", contactID).
		Update("cancelled_at", at).Error
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Create(payment).Error
}

func (r *repository) SavePayment(ctx context.Context, payment *models.Payment) error {
	return r.db.WithContext(ctx).Save(payment).Error
}

func (r *repository) FindPaymentByProviderID(ctx context.Context, providerPaymentID string) (*models.Payment, error) {
	var payment models.Payment
	if err := r.db.WithContext(ctx).
		Where("provider_payment_id = ?", providerPaymentID).
		First(&payment).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &payment, nil
}

func (r *repository) UpdatePaymentStatus(ctx context.Context, providerPaymentID string, status string) error {
	return r.db.WithContext(ctx).
		Model(&models.Payment{}).
		Where("provider_payment_id = ?", providerPaymentID).
		Update("status", status).Error
}

func (r *repository) ListPaymentsByContact(ctx context.Context, contactID uuid.UUID, params pagination.Params) ([]models.Payment, error) {
	query := r.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Order("created_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit))

	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}
	if cursor != nil {
		query = query.Where("(created_at, id) < (?, ?)", cursor.CreatedAt, cursor.ID)
	}

	var rows []models.Payment
	if err := query.Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) ListStalePendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error) {
	if limit <= 0 {
		limit = 250
	}
	cutoff := time.Now().UTC().Add(-olderThan)
	var rows []models.Payment
	if err := r.db.WithContext(ctx).
		Where("status IN ?", []string{"pending", "submitted"}).
		Where("updated_at < ?", cutoff).
		Order("updated_at ASC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (r *repository) DeletePaymentsByContact(ctx context.Context, contactID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("contact_id = ?", contactID).
		Delete(&models.Payment{}).Error
}
