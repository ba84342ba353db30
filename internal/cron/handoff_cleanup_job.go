package cron

import (
	"context"
	"fmt"

	"github.com/localkart/localkart-backend/pkg/logger"
)

// HandoffCleanupJobParams configure the dead handoff token purge.
type HandoffCleanupJobParams struct {
	Logger  *logger.Logger
	Handoff deadTokenPurger
}

type deadTokenPurger interface {
	PurgeDeadTokens(ctx context.Context) (int64, error)
}

// NewHandoffCleanupJob builds the job that deletes expired and invalidated
// handoff tokens. Consumed tokens stay for the audit trail.
func NewHandoffCleanupJob(params HandoffCleanupJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Handoff == nil {
		return nil, fmt.Errorf("handoff service required")
	}
	return &handoffCleanupJob{
		logg:    params.Logger,
		handoff: params.Handoff,
	}, nil
}

type handoffCleanupJob struct {
	logg    *logger.Logger
	handoff deadTokenPurger
}

func (j *handoffCleanupJob) Name() string { return "handoff-cleanup" }

func (j *handoffCleanupJob) Run(ctx context.Context) error {
	deleted, err := j.handoff.PurgeDeadTokens(ctx)
	if err != nil {
		return fmt.Errorf("handoff cleanup: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{"rows_deleted": deleted})
	j.logg.Info(logCtx, "handoff token cleanup complete")
	return nil
}
