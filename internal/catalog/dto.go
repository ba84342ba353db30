package catalog

import "github.com/google/uuid"

// ProductSummary exposes the listing fields returned in the shop catalog.
type ProductSummary struct {
	ID         uuid.UUID `json:"id"`
	Name       string    `json:"name"`
	PriceCents int       `json:"price_cents"`
	StockQty   int       `json:"stock_qty"`
}

// ProductList wraps the paginated products plus the next page cursor.
type ProductList struct {
	Products   []ProductSummary `json:"products"`
	NextCursor string           `json:"next_cursor,omitempty"`
}
