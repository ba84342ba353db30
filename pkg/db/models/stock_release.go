package models

import (
	"time"

	"github.com/google/uuid"
)

// StockRelease records that an order's hold on a product was returned to
// stock. The unique index makes a second release for the same pair a no-op.
type StockRelease struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OrderID   uuid.UUID `gorm:"column:order_id;type:uuid;not null;uniqueIndex:idx_stock_releases_order_product"`
	ProductID uuid.UUID `gorm:"column:product_id;type:uuid;not null;uniqueIndex:idx_stock_releases_order_product"`
	Qty       int       `gorm:"column:qty;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
}
