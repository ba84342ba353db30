package inventory

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/pkg/db"
	"github.com/localkart/localkart-backend/pkg/db/models"
	pkgerrors "github.com/localkart/localkart-backend/pkg/errors"
)

// ReservationRequest asks for qty units of a product to be held.
type ReservationRequest struct {
	ProductID uuid.UUID
	Qty       int
}

// ReleaseItem returns qty units of a product held by an order.
type ReleaseItem struct {
	ProductID uuid.UUID
	Qty       int
}

// ShortageDetail reports a product that could not cover the requested qty.
type ShortageDetail struct {
	ProductID uuid.UUID `json:"product_id"`
	Requested int       `json:"requested"`
	Available int       `json:"available"`
}

// Reserve decrements stock for every request inside the caller's transaction.
// Any shortage fails the whole call, so the surrounding rollback restores the
// decrements already applied. The guarded UPDATE keeps concurrent orders from
// overselling the same product.
func Reserve(ctx context.Context, tx *gorm.DB, requests []ReservationRequest) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if len(requests) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}

	merged := make(map[uuid.UUID]int, len(requests))
	for _, req := range requests {
		if req.ProductID == uuid.Nil {
			return pkgerrors.New(pkgerrors.CodeValidation, "product id required")
		}
		if req.Qty <= 0 {
			return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid qty %d for product %s", req.Qty, req.ProductID))
		}
		merged[req.ProductID] += req.Qty
	}

	// lock products in a stable order so concurrent orders cannot deadlock
	ordered := make([]uuid.UUID, 0, len(merged))
	for productID := range merged {
		ordered = append(ordered, productID)
	}
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].String() < ordered[j].String()
	})

	var shortages []ShortageDetail
	for _, productID := range ordered {
		qty := merged[productID]
		result := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ? AND is_active = ? AND stock_qty >= ?", productID, true, qty).
			Update("stock_qty", gorm.Expr("stock_qty - ?", qty))
		if result.Error != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "decrement stock")
		}
		if result.RowsAffected == 0 {
			var product models.Product
			err := tx.WithContext(ctx).Where("id = ?", productID).First(&product).Error
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", productID))
			}
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load product")
			}
			if !product.IsActive {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %s is not active", productID))
			}
			shortages = append(shortages, ShortageDetail{
				ProductID: productID,
				Requested: qty,
				Available: product.StockQty,
			})
		}
	}
	if len(shortages) > 0 {
		return pkgerrors.New(pkgerrors.CodeInsufficientStock, "insufficient stock").WithDetails(shortages)
	}
	return nil
}

// Release returns an order's held stock. Each (order, product) pair is
// released at most once: the stock_releases unique index turns a replay into
// a skip, so crash-retry or a cancel racing the TTL job cannot double-credit.
// Returns the number of pairs actually credited.
func Release(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, items []ReleaseItem) (int, error) {
	if tx == nil {
		return 0, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	if orderID == uuid.Nil {
		return 0, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	released := 0
	for _, item := range items {
		if item.ProductID == uuid.Nil || item.Qty <= 0 {
			return released, pkgerrors.New(pkgerrors.CodeValidation, "invalid release item")
		}

		marker := models.StockRelease{
			ID:        uuid.New(),
			OrderID:   orderID,
			ProductID: item.ProductID,
			Qty:       item.Qty,
		}
		if err := tx.WithContext(ctx).Create(&marker).Error; err != nil {
			if db.IsUniqueViolation(err, "") {
				// already released for this order
				continue
			}
			return released, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record stock release")
		}

		result := tx.WithContext(ctx).
			Model(&models.Product{}).
			Where("id = ?", item.ProductID).
			Update("stock_qty", gorm.Expr("stock_qty + ?", item.Qty))
		if result.Error != nil {
			return released, pkgerrors.Wrap(pkgerrors.CodeDependency, result.Error, "increment stock")
		}
		released++
	}
	return released, nil
}
