package handoff

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/pkg/config"
	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/enums"
	pkgerrors "github.com/localkart/localkart-backend/pkg/errors"
	"github.com/localkart/localkart-backend/pkg/logger"
	"github.com/localkart/localkart-backend/pkg/security"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type orderLoader interface {
	FindOrderStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.OrderStatus, error)
}

// IssuedCode is returned to the party that will present the code at handoff.
type IssuedCode struct {
	Code      string    `json:"code"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Service issues and verifies single-use handoff codes.
type Service struct {
	repo   Repository
	tx     txRunner
	orders orderLoader
	cfg    config.HandoffConfig
	logg   *logger.Logger
}

// NewService builds the handoff verifier.
func NewService(repo Repository, tx txRunner, orders orderLoader, cfg config.HandoffConfig, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("handoff repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order loader required")
	}
	if cfg.CodeLength <= 0 || cfg.TTL <= 0 || cfg.MaxAttempts <= 0 {
		return nil, fmt.Errorf("handoff config incomplete")
	}
	return &Service{repo: repo, tx: tx, orders: orders, cfg: cfg, logg: logg}, nil
}

// IssueCode generates a fresh code for the order and invalidates any earlier
// unconsumed one, keeping a single active code per order. Only the plaintext
// return value ever carries the code; storage holds the argon2id hash.
func (s *Service) IssueCode(ctx context.Context, orderID uuid.UUID) (*IssuedCode, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var issued *IssuedCode
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		status, err := s.orders.FindOrderStatus(ctx, tx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if status != enums.OrderStatusOutForDelivery {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "handoff codes are issued once the order is out for delivery")
		}

		code, err := security.GenerateNumericCode(s.cfg.CodeLength)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "generate code")
		}
		hash, err := security.HashCode(code)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "hash code")
		}

		now := time.Now().UTC()
		repo := s.repo.WithTx(tx)
		if err := repo.InvalidateActive(ctx, orderID, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "invalidate previous code")
		}

		token := &models.HandoffToken{
			ID:        uuid.New(),
			OrderID:   orderID,
			CodeHash:  hash,
			IssuedAt:  now,
			ExpiresAt: now.Add(s.cfg.TTL),
		}
		if err := repo.Insert(ctx, token); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "store handoff token")
		}

		issued = &IssuedCode{Code: code, ExpiresAt: token.ExpiresAt}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, orderID.String())
		s.logg.Info(logCtx, "handoff code issued")
	}
	return issued, nil
}

// Consume verifies the submitted code inside the caller's transaction and
// marks it used on success. A consumed code never verifies again; a wrong
// code burns one attempt and the token dies at the attempt cap.
//
// On CodeHandoffMismatch the attempt bookkeeping has been written to tx:
// the caller must commit the transaction (its own pending writes permitting)
// or the counter is lost with the rollback.
func (s *Service) Consume(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, code string) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if orderID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if code == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "handoff code required")
	}

	repo := s.repo.WithTx(tx)
	now := time.Now().UTC()

	token, err := repo.FindActiveToken(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return s.noActiveToken(ctx, tx, orderID)
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load handoff token")
	}

	if now.After(token.ExpiresAt) {
		s.logOutcome(ctx, orderID, "expired")
		return pkgerrors.New(pkgerrors.CodeHandoffExpired, "invalid or expired code")
	}

	match, err := security.VerifyCode(code, token.CodeHash)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "verify code")
	}
	if !match {
		invalidate := token.Attempts+1 >= s.cfg.MaxAttempts
		if err := repo.RecordFailedAttempt(ctx, token.ID, invalidate, now); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record failed attempt")
		}
		s.logOutcome(ctx, orderID, "mismatch")
		return pkgerrors.New(pkgerrors.CodeHandoffMismatch, "invalid or expired code")
	}

	if err := repo.MarkConsumed(ctx, token.ID, now); err != nil {
		if err == gorm.ErrRecordNotFound {
			// lost the race to another verification
			s.logOutcome(ctx, orderID, "consumed")
			return pkgerrors.New(pkgerrors.CodeHandoffConsumed, "invalid or expired code")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "consume handoff token")
	}
	s.logOutcome(ctx, orderID, "verified")
	return nil
}

// noActiveToken distinguishes a consumed token from a never-issued or expired
// one for the error code, while the public message stays identical.
func (s *Service) noActiveToken(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	var consumed int64
	err := tx.WithContext(ctx).
		Model(&models.HandoffToken{}).
		Where("order_id = ? AND consumed_at IS NOT NULL", orderID).
		Count(&consumed).Error
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "inspect handoff tokens")
	}
	if consumed > 0 {
		s.logOutcome(ctx, orderID, "consumed")
		return pkgerrors.New(pkgerrors.CodeHandoffConsumed, "invalid or expired code")
	}
	s.logOutcome(ctx, orderID, "expired")
	return pkgerrors.New(pkgerrors.CodeHandoffExpired, "invalid or expired code")
}

// PurgeDeadTokens is the cron entry point for removing expired and
// invalidated tokens.
func (s *Service) PurgeDeadTokens(ctx context.Context) (int64, error) {
	var purged int64
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		n, err := s.repo.WithTx(tx).DeleteDeadTokensBefore(ctx, time.Now().UTC())
		if err != nil {
			return err
		}
		purged = n
		return nil
	})
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge handoff tokens")
	}
	return purged, nil
}

func (s *Service) logOutcome(ctx context.Context, orderID uuid.UUID, outcome string) {
	if s.logg == nil {
		return
	}
	logCtx := s.logg.WithFields(ctx, map[string]any{
		"order_id": orderID.String(),
		"outcome":  outcome,
	})
	if outcome == "verified" {
		s.logg.Info(logCtx, "handoff code verified")
		return
	}
	s.logg.Warn(logCtx, "handoff verification rejected")
}
