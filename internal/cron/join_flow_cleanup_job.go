package cron

import (
	"context"
	"fmt"

	"github.com/memberdesk/backend/pkg/logger"
)

type joinFlowSweeper interface {
	CleanupStale(ctx context.Context) (int64, error)
}

// JoinFlowCleanupJobParams configure the abandoned-signup sweep.
type JoinFlowCleanupJobParams struct {
	Logger   *logger.Logger
	JoinFlow joinFlowSweeper
}

// NewJoinFlowCleanupJob sweeps join flow tokens that were never completed.
func NewJoinFlowCleanupJob(params JoinFlowCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.JoinFlow == nil {
		return nil, fmt.Errorf("join flow service required")
	}
	return &joinFlowCleanupJob{
		logg:     params.Logger,
		joinFlow: params.JoinFlow,
	}, nil
}

type joinFlowCleanupJob struct {
	logg     *logger.Logger
	joinFlow joinFlowSweeper
}

func (j *joinFlowCleanupJob) Name() string { return "join-flow-cleanup" }

func (j *joinFlowCleanupJob) Run(ctx context.Context) error {
	removed, err := j.joinFlow.CleanupStale(ctx)
	if err != nil {
		return fmt.Errorf("join flow cleanup: %w", err)
	}
	j.logg.Info(j.logg.WithField(ctx, "rows_deleted", removed), "join flow cleanup complete")
	return nil
}
