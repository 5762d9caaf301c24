package joinflow

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/memberdesk/backend/pkg/db/models"
)

// Repository handles join flow persistence.
type Repository interface {
	Create(ctx context.Context, flow *models.JoinFlow) error
	FindByRedirectFlowID(ctx context.Context, redirectFlowID string) (*models.JoinFlow, error)
	Delete(ctx context.Context, id uuid.UUID) (bool, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a join flow repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) Create(ctx context.Context, flow *models.JoinFlow) error {
	return r.db.WithContext(ctx).Create(flow).Error
}

func (r *repository) FindByRedirectFlowID(ctx context.Context, redirectFlowID string) (*models.JoinFlow, error) {
	var flow models.JoinFlow
	if err := r.db.WithContext(ctx).
		Where("redirect_flow_id = ?", redirectFlowID).
		First(&flow).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &flow, nil
}

// Delete removes the row and reports whether it still existed, so concurrent
// completions race on the delete instead of double-processing.
func (r *repository) Delete(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Where("id = ?", id).
		Delete(&models.JoinFlow{})
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected > 0, nil
}

func (r *repository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("created_at < ?", cutoff).
		Delete(&models.JoinFlow{})
	return result.RowsAffected, result.Error
}
