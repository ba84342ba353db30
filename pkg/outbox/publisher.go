package outbox

import (
	"context"
	"time"

	"github.com/localkart/localkart-backend/pkg/config"
	"github.com/localkart/localkart-backend/pkg/logger"
)

// EventPublisher pushes a serialized event to the downstream channel.
// The Redis client satisfies this with pub/sub.
type EventPublisher interface {
	Publish(ctx context.Context, channel string, payload []byte) error
}

// Publisher drains unpublished outbox rows and forwards them to the
// configured channel. Events that exhaust MaxAttempts are skipped by the
// fetch ordering until operators intervene.
type Publisher struct {
	repo      *Repository
	publisher EventPublisher
	logg      *logger.Logger
	cfg       config.OutboxConfig
}

func NewPublisher(repo *Repository, publisher EventPublisher, logg *logger.Logger, cfg config.OutboxConfig) *Publisher {
	return &Publisher{repo: repo, publisher: publisher, logg: logg, cfg: cfg}
}

// Run polls until the context is canceled.
func (p *Publisher) Run(ctx context.Context) error {
	interval := time.Duration(p.cfg.PollIntervalMS) * time.Millisecond
	if interval <= 0 {
		interval = 500 * time.Millisecond
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := p.drainOnce(ctx); err != nil {
				p.logg.Error(ctx, "outbox drain failed", err)
			}
		}
	}
}

func (p *Publisher) drainOnce(ctx context.Context) error {
	batch := p.cfg.BatchSize
	if batch <= 0 {
		batch = 50
	}
	rows, err := p.repo.FetchUnpublished(batch)
	if err != nil {
		return err
	}
	for _, row := range rows {
		if p.cfg.MaxAttempts > 0 && row.AttemptCount >= p.cfg.MaxAttempts {
			continue
		}
		if err := p.publisher.Publish(ctx, p.cfg.Channel, row.Payload); err != nil {
			if markErr := p.repo.MarkFailed(row.ID, err); markErr != nil {
				p.logg.Error(ctx, "mark outbox event failed", markErr)
			}
			continue
		}
		if err := p.repo.MarkPublished(row.ID); err != nil {
			p.logg.Error(ctx, "mark outbox event published", err)
		}
	}
	return nil
}
