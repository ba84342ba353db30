package delivery

import (
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/enums"
	"github.com/localkart/localkart-backend/pkg/pagination"
)

// AgentProfileInput registers or updates a delivery agent profile.
type AgentProfileInput struct {
	AgentID       uuid.UUID
	VehicleType   enums.VehicleType
	VehicleNumber *string
	Zones         []string
}

// AgentView is the read shape returned to API callers.
type AgentView struct {
	ID              uuid.UUID         `json:"id"`
	VehicleType     enums.VehicleType `json:"vehicle_type"`
	VehicleNumber   *string           `json:"vehicle_number,omitempty"`
	IsAvailable     bool              `json:"is_available"`
	Zones           []string          `json:"zones"`
	Rating          decimal.Decimal   `json:"rating"`
	TotalDeliveries int               `json:"total_deliveries"`
	LocationStale   bool              `json:"location_stale"`
}

// AssignmentQuery carries list inputs from the API layer.
type AssignmentQuery struct {
	Limit  int
	Cursor string
}

// Pagination converts the query into cursor pagination params.
func (q AssignmentQuery) Pagination() pagination.Params {
	return pagination.Params{Limit: q.Limit, Cursor: q.Cursor}
}

// AssignmentList wraps paginated assignments plus the next cursor.
type AssignmentList struct {
	Assignments []models.DeliveryAssignment `json:"assignments"`
	NextCursor  string                      `json:"next_cursor,omitempty"`
}
