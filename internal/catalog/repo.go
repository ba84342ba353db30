package catalog

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/pagination"
)

// Repository defines read access to catalog listings. Catalog writes happen
// in the merchant service; only stock_qty is mutated here, via the inventory
// ledger.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error)
	FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error)
	ListShopProducts(ctx context.Context, shopID uuid.UUID, params pagination.Params) (*ProductList, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a catalog repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&product).Error
	if err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *repository) FindProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var products []models.Product
	err := r.db.WithContext(ctx).
		Where("id IN ?", ids).
		Order("created_at ASC").
		Find(&products).Error
	if err != nil {
		return nil, err
	}
	return products, nil
}

func (r *repository) ListShopProducts(ctx context.Context, shopID uuid.UUID, params pagination.Params) (*ProductList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Model(&models.Product{}).
		Where("shop_id = ? AND is_active = ?", shopID, true)
	if cursor != nil {
		query = query.Where(
			"(created_at > ?) OR (created_at = ? AND id > ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var products []models.Product
	err = query.
		Order("created_at ASC, id ASC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&products).Error
	if err != nil {
		return nil, err
	}

	trimmed, more := pagination.Trim(products, params.Limit)
	list := &ProductList{Products: make([]ProductSummary, 0, len(trimmed))}
	for _, p := range trimmed {
		list.Products = append(list.Products, ProductSummary{
			ID:         p.ID,
			Name:       p.Name,
			PriceCents: p.PriceCents,
			StockQty:   p.StockQty,
		})
	}
	if more {
		last := trimmed[len(trimmed)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.CreatedAt,
			ID:        last.ID,
		})
	}
	return list, nil
}
