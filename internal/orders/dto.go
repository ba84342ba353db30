package orders

import (
	"time"

	"github.com/google/uuid"

	"github.com/localkart/localkart-backend/pkg/enums"
)

// Actor identifies who is asking for an order mutation. Roles come from the
// verified access token, never from the request body.
type Actor struct {
	UserID uuid.UUID
	Role   enums.ActorRole
}

// OrderItemInput is one requested product line at placement.
type OrderItemInput struct {
	ProductID uuid.UUID
	Qty       int
}

// CreateOrderInput carries everything needed to place an order.
type CreateOrderInput struct {
	CustomerID      uuid.UUID
	ShopID          uuid.UUID
	ZoneID          uuid.UUID
	DeliveryAddress string
	DeliveryPhone   string
	Notes           *string
	Items           []OrderItemInput
}

// TransitionInput requests a status change on an order. HandoffCode is only
// consulted when the target is delivered.
type TransitionInput struct {
	OrderID     uuid.UUID
	Target      enums.OrderStatus
	Actor       Actor
	HandoffCode string
	Reason      *string
}

// OrderFilters describe the inputs supported by the order lists.
type OrderFilters struct {
	Status   *enums.OrderStatus
	DateFrom *time.Time
	DateTo   *time.Time
}

// OrderSummary exposes the aggregated fields returned in list endpoints.
type OrderSummary struct {
	ID          uuid.UUID         `json:"id"`
	OrderNumber int64             `json:"order_number"`
	Status      enums.OrderStatus `json:"status"`
	TotalCents  int               `json:"total_cents"`
	TotalItems  int               `json:"total_items"`
	CreatedAt   time.Time         `json:"created_at"`
}

// OrderList wraps the paginated orders plus the next page cursor.
type OrderList struct {
	Orders     []OrderSummary `json:"orders"`
	NextCursor string         `json:"next_cursor,omitempty"`
}
