package models

import (
	"time"

	"github.com/google/uuid"
)

// Product is the catalog listing referenced by orders. Catalog CRUD lives in
// another service; this backend only reads listings and owns the stock column.
type Product struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ShopID     uuid.UUID `gorm:"column:shop_id;type:uuid;not null;index"`
	Name       string    `gorm:"column:name;not null"`
	PriceCents int       `gorm:"column:price_cents;not null"`
	// StockQty is mutated exclusively through the inventory ledger.
	StockQty  int       `gorm:"column:stock_qty;not null;default:0"`
	IsActive  bool      `gorm:"column:is_active;not null"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
