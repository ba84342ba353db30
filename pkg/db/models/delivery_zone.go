package models

import (
	"time"

	"github.com/google/uuid"
)

// DeliveryZone is an area the marketplace delivers to. The zone fee feeds
// into order totals at placement time.
type DeliveryZone struct {
	ID               uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Name             string    `gorm:"column:name;not null;uniqueIndex"`
	DeliveryFeeCents int       `gorm:"column:delivery_fee_cents;not null;default:0"`
	EstimatedMinutes int       `gorm:"column:estimated_minutes;not null;default:60"`
	IsActive         bool      `gorm:"column:is_active;not null"`
	CreatedAt        time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
