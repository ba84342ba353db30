package models

import (
	"time"

	"github.com/google/uuid"
)

// HandoffToken stores one OTP issued for an order handoff. Only the argon2id
// hash of the code is persisted. A token is active while consumed_at and
// invalidated_at are both null.
type HandoffToken struct {
	ID            uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	OrderID       uuid.UUID  `gorm:"column:order_id;type:uuid;not null;index"`
	CodeHash      string     `gorm:"column:code_hash;not null"`
	IssuedAt      time.Time  `gorm:"column:issued_at;not null"`
	ExpiresAt     time.Time  `gorm:"column:expires_at;not null"`
	Attempts      int        `gorm:"column:attempts;not null;default:0"`
	ConsumedAt    *time.Time `gorm:"column:consumed_at"`
	InvalidatedAt *time.Time `gorm:"column:invalidated_at"`
}

// IsActive reports whether the token can still be presented for verification.
func (t HandoffToken) IsActive() bool {
	return t.ConsumedAt == nil && t.InvalidatedAt == nil
}
