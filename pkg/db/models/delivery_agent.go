package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/localkart/localkart-backend/pkg/enums"
)

// DeliveryAgent is the delivery profile keyed by the agent's user id.
// Location is owned by the agent and updated independently of order state.
type DeliveryAgent struct {
	ID                uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	VehicleType       enums.VehicleType `gorm:"column:vehicle_type;type:text;not null"`
	VehicleNumber     *string           `gorm:"column:vehicle_number"`
	IsAvailable       bool              `gorm:"column:is_available;not null"`
	Zones             pq.StringArray    `gorm:"column:zones;not null"`
	CurrentLat        *float64          `gorm:"column:current_lat"`
	CurrentLng        *float64          `gorm:"column:current_lng"`
	LocationUpdatedAt *time.Time        `gorm:"column:location_updated_at"`
	Rating            decimal.Decimal   `gorm:"column:rating;type:numeric(3,2);not null;default:5.0"`
	TotalDeliveries   int               `gorm:"column:total_deliveries;not null;default:0"`
	CreatedAt         time.Time         `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time         `gorm:"column:updated_at;autoUpdateTime"`
}
