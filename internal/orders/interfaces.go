package orders

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/internal/inventory"
	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/enums"
	"github.com/localkart/localkart-backend/pkg/pagination"
)

// Repository defines persistence operations for order tables.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error)
	CreateOrderItems(ctx context.Context, items []models.OrderItem) error
	NextOrderNumber(ctx context.Context) (int64, error)
	FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindOrderWithItems(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
	FindZone(ctx context.Context, zoneID uuid.UUID) (*models.DeliveryZone, error)
	FindPendingOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error)
	ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error)
	ListShopOrders(ctx context.Context, shopID uuid.UUID, params pagination.Params, filters OrderFilters) (*OrderList, error)
	// CompareAndSetStatus updates the order's status only when the row still
	// holds the status the caller read. Returns false on a lost race.
	CompareAndSetStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error)
}

// StockLedger abstracts the inventory ledger so service tests can stub it.
type StockLedger interface {
	Reserve(ctx context.Context, tx *gorm.DB, requests []inventory.ReservationRequest) error
	Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, items []inventory.ReleaseItem) (int, error)
}

// HandoffConsumer verifies and consumes a handoff code inside the caller's
// transaction, gating the delivered transition.
type HandoffConsumer interface {
	Consume(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, code string) error
}

// AssignmentCloser closes out delivery assignments when the order reaches a
// terminal state.
type AssignmentCloser interface {
	ReleaseForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
	CompleteForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error
}

// ledgerFuncs adapts the inventory package functions to the StockLedger
// interface for production wiring.
type ledgerFuncs struct{}

// NewStockLedger returns the real inventory-backed ledger.
func NewStockLedger() StockLedger {
	return ledgerFuncs{}
}

func (ledgerFuncs) Reserve(ctx context.Context, tx *gorm.DB, requests []inventory.ReservationRequest) error {
	return inventory.Reserve(ctx, tx, requests)
}

func (ledgerFuncs) Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, items []inventory.ReleaseItem) (int, error) {
	return inventory.Release(ctx, tx, orderID, items)
}
