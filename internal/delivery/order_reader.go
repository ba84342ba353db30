package delivery

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/pkg/db/models"
)

type orderRowReader struct{}

// NewOrderReader returns the production order lookup used by Assign.
func NewOrderReader() orderReader {
	return orderRowReader{}
}

func (orderRowReader) FindOrderForAssignment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := tx.WithContext(ctx).
		Select("id", "status", "zone_id").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}
