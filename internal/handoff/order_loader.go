package handoff

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/enums"
)

type orderStatusLoader struct{}

// NewOrderLoader returns the production order status lookup used by IssueCode.
func NewOrderLoader() orderLoader {
	return orderStatusLoader{}
}

func (orderStatusLoader) FindOrderStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.OrderStatus, error) {
	var order models.Order
	err := tx.WithContext(ctx).
		Select("status").
		Where("id = ?", orderID).
		First(&order).Error
	if err != nil {
		return "", err
	}
	return order.Status, nil
}
