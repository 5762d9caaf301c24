package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/memberdesk/backend/internal/payments"
	"github.com/memberdesk/backend/pkg/db/models"
	"github.com/memberdesk/backend/pkg/enums"
	"github.com/memberdesk/backend/pkg/gocardless"
	"github.com/memberdesk/backend/pkg/logger"
)

const (
	stalePaymentAge   = 24 * time.Hour
	stalePaymentBatch = 100
)

type stalePaymentRepo interface {
	ListStalePendingPayments(ctx context.Context, olderThan time.Duration, limit int) ([]models.Payment, error)
	UpdatePaymentStatus(ctx context.Context, providerPaymentID string, status string) error
}

type stalePaymentClient interface {
	GetPayment(ctx context.Context, id string) (*gocardless.Payment, error)
}

// StalePaymentJobParams configure the pending-payment reconciliation sweep.
type StalePaymentJobParams struct {
	Logger *logger.Logger
	Repo   stalePaymentRepo
	Client stalePaymentClient
	MaxAge time.Duration
	Limit  int
}

// NewStalePaymentJob re-checks payments stuck in pending or submitted against
// the provider, catching deliveries the webhook endpoint missed.
func NewStalePaymentJob(params StalePaymentJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Repo == nil {
		return nil, fmt.Errorf("payments repo required")
	}
	if params.Client == nil {
		return nil, fmt.Errorf("gocardless client required")
	}
	maxAge := params.MaxAge
	if maxAge <= 0 {
		maxAge = stalePaymentAge
	}
	limit := params.Limit
	if limit <= 0 {
		limit = stalePaymentBatch
	}
	return &stalePaymentJob{
		logg:   params.Logger,
		repo:   params.Repo,
		client: params.Client,
		maxAge: maxAge,
		limit:  limit,
	}, nil
}

type stalePaymentJob struct {
	logg   *logger.Logger
	repo   stalePaymentRepo
	client stalePaymentClient
	maxAge time.Duration
	limit  int
}

func (j *stalePaymentJob) Name() string { return "stale-payment-reconcile" }

func (j *stalePaymentJob) Run(ctx context.Context) error {
	stale, err := j.repo.ListStalePendingPayments(ctx, j.maxAge, j.limit)
	if err != nil {
		return fmt.Errorf("list stale payments: %w", err)
	}

	var updated int
	for _, payment := range stale {
		remote, err := j.client.GetPayment(ctx, payment.ProviderPaymentID)
		if err != nil {
			if gocardless.IsNotFound(err) {
				// The provider no longer knows the payment; it will never
				// settle.
				if err := j.repo.UpdatePaymentStatus(ctx, payment.ProviderPaymentID, string(enums.PaymentStatusCancelled)); err != nil {
					return fmt.Errorf("cancel vanished payment %s: %w", payment.ProviderPaymentID, err)
				}
				updated++
				continue
			}
			return fmt.Errorf("fetch payment %s: %w", payment.ProviderPaymentID, err)
		}

		status := payments.PaymentStatusFromGC(remote.Status)
		if status == payment.Status {
			continue
		}
		if err := j.repo.UpdatePaymentStatus(ctx, payment.ProviderPaymentID, string(status)); err != nil {
			return fmt.Errorf("update payment %s: %w", payment.ProviderPaymentID, err)
		}
		updated++
	}

	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked": len(stale),
		"updated": updated,
	}), "stale payment reconcile complete")
	return nil
}
