package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/localkart/localkart-backend/pkg/enums"
)

// Order is the aggregate root of the order lifecycle. Status mutates only
// through the order service's validated transitions; rows are never deleted.
type Order struct {
	ID                 uuid.UUID           `gorm:"column:id;type:uuid;primaryKey"`
	OrderNumber        int64               `gorm:"column:order_number;not null;uniqueIndex"`
	CustomerID         uuid.UUID           `gorm:"column:customer_id;type:uuid;not null;index"`
	ShopID             uuid.UUID           `gorm:"column:shop_id;type:uuid;not null;index"`
	ZoneID             uuid.UUID           `gorm:"column:zone_id;type:uuid;not null"`
	Status             enums.OrderStatus   `gorm:"column:status;type:text;not null;default:'pending'"`
	PaymentStatus      enums.PaymentStatus `gorm:"column:payment_status;type:text;not null;default:'pending'"`
	DeliveryAddress    string              `gorm:"column:delivery_address;not null"`
	DeliveryPhone      string              `gorm:"column:delivery_phone;not null"`
	Notes              *string             `gorm:"column:notes"`
	SubtotalCents      int                 `gorm:"column:subtotal_cents;not null"`
	DeliveryFeeCents   int                 `gorm:"column:delivery_fee_cents;not null;default:0"`
	TotalCents         int                 `gorm:"column:total_cents;not null"`
	CancellationReason *string             `gorm:"column:cancellation_reason"`
	StatusChangedAt    time.Time           `gorm:"column:status_changed_at;not null"`
	DeliveredAt        *time.Time          `gorm:"column:delivered_at"`
	CancelledAt        *time.Time          `gorm:"column:cancelled_at"`
	Items              []OrderItem         `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Assignments        []DeliveryAssignment `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	CreatedAt          time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}
