package handoff

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/pkg/db/models"
)

// Repository defines persistence operations for handoff tokens.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Insert(ctx context.Context, token *models.HandoffToken) error
	FindActiveToken(ctx context.Context, orderID uuid.UUID) (*models.HandoffToken, error)
	InvalidateActive(ctx context.Context, orderID uuid.UUID, now time.Time) error
	MarkConsumed(ctx context.Context, tokenID uuid.UUID, now time.Time) error
	RecordFailedAttempt(ctx context.Context, tokenID uuid.UUID, invalidate bool, now time.Time) error
	DeleteDeadTokensBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a handoff repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Insert(ctx context.Context, token *models.HandoffToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

func (r *repository) FindActiveToken(ctx context.Context, orderID uuid.UUID) (*models.HandoffToken, error) {
	var token models.HandoffToken
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND consumed_at IS NULL AND invalidated_at IS NULL", orderID).
		Order("issued_at DESC").
		First(&token).Error
	if err != nil {
		return nil, err
	}
	return &token, nil
}

func (r *repository) InvalidateActive(ctx context.Context, orderID uuid.UUID, now time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.HandoffToken{}).
		Where("order_id = ? AND consumed_at IS NULL AND invalidated_at IS NULL", orderID).
		Update("invalidated_at", now).Error
}

// MarkConsumed stamps the token used. Only a still-active token qualifies;
// a row already consumed or invalidated reports gorm.ErrRecordNotFound so
// the caller can refuse the replay.
func (r *repository) MarkConsumed(ctx context.Context, tokenID uuid.UUID, now time.Time) error {
	result := r.db.WithContext(ctx).
		Model(&models.HandoffToken{}).
		Where("id = ? AND consumed_at IS NULL AND invalidated_at IS NULL", tokenID).
		Update("consumed_at", now)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *repository) RecordFailedAttempt(ctx context.Context, tokenID uuid.UUID, invalidate bool, now time.Time) error {
	updates := map[string]any{"attempts": gorm.Expr("attempts + 1")}
	if invalidate {
		updates["invalidated_at"] = now
	}
	return r.db.WithContext(ctx).
		Model(&models.HandoffToken{}).
		Where("id = ?", tokenID).
		Updates(updates).Error
}

// DeleteDeadTokensBefore removes expired or invalidated tokens issued before
// the cutoff. Consumed tokens are kept for audit.
func (r *repository) DeleteDeadTokensBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result := r.db.WithContext(ctx).
		Where("consumed_at IS NULL AND (expires_at < ? OR invalidated_at IS NOT NULL)", cutoff).
		Delete(&models.HandoffToken{})
	return result.RowsAffected, result.Error
}
