package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/localkart/localkart-backend/pkg/logger"
)

const defaultPendingMaxAge = 72 * time.Hour

// OrderTTLJobParams configure the stale pending order sweeper.
type OrderTTLJobParams struct {
	Logger        *logger.Logger
	Orders        staleOrderExpirer
	PendingMaxAge time.Duration
}

type staleOrderExpirer interface {
	ExpireStalePending(ctx context.Context, cutoff time.Time) (int, error)
}

// NewOrderTTLJob builds the job that cancels orders no shopkeeper accepted
// in time and puts their stock back.
func NewOrderTTLJob(params OrderTTLJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Orders == nil {
		return nil, fmt.Errorf("order service required")
	}
	maxAge := params.PendingMaxAge
	if maxAge <= 0 {
		maxAge = defaultPendingMaxAge
	}
	return &orderTTLJob{
		logg:   params.Logger,
		orders: params.Orders,
		maxAge: maxAge,
		now:    time.Now,
	}, nil
}

type orderTTLJob struct {
	logg   *logger.Logger
	orders staleOrderExpirer
	maxAge time.Duration
	now    func() time.Time
}

func (j *orderTTLJob) Name() string { return "order-ttl" }

func (j *orderTTLJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.maxAge)
	expired, err := j.orders.ExpireStalePending(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("expire stale pending orders: %w", err)
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":         cutoff,
		"max_age":        j.maxAge.String(),
		"orders_expired": expired,
	})
	j.logg.Info(logCtx, "pending order expiration complete")
	return nil
}
