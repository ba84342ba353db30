package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/localkart/localkart-backend/pkg/enums"
)

// DeliveryAssignment binds an agent to an order. At most one active
// assignment may exist per order; history rows are kept for audit.
type DeliveryAssignment struct {
	ID               uuid.UUID              `gorm:"column:id;type:uuid;primaryKey"`
	OrderID          uuid.UUID              `gorm:"column:order_id;type:uuid;not null;index"`
	AgentID          uuid.UUID              `gorm:"column:agent_id;type:uuid;not null;index"`
	AssignedByUserID *uuid.UUID             `gorm:"column:assigned_by_user_id;type:uuid"`
	Status           enums.AssignmentStatus `gorm:"column:status;type:text;not null;default:'assigned'"`
	Active           bool                   `gorm:"column:active;not null"`
	AssignedAt       time.Time              `gorm:"column:assigned_at;autoCreateTime"`
	ReleasedAt       *time.Time             `gorm:"column:released_at"`
	CompletedAt      *time.Time             `gorm:"column:completed_at"`
}
