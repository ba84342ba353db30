package delivery

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/enums"
	"github.com/localkart/localkart-backend/pkg/pagination"
)

// Repository defines persistence operations for agents and assignments.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	UpsertAgent(ctx context.Context, agent *models.DeliveryAgent) error
	FindAgent(ctx context.Context, agentID uuid.UUID) (*models.DeliveryAgent, error)
	ListAvailableAgents(ctx context.Context) ([]models.DeliveryAgent, error)
	ClaimAgent(ctx context.Context, agentID uuid.UUID) (bool, error)
	FreeAgent(ctx context.Context, agentID uuid.UUID, deliveryDone bool) error
	SetAgentAvailability(ctx context.Context, agentID uuid.UUID, available bool) error
	UpdateAgentLocation(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) error
	CreateAssignment(ctx context.Context, assignment *models.DeliveryAssignment) error
	FindActiveAssignmentByOrder(ctx context.Context, orderID uuid.UUID) (*models.DeliveryAssignment, error)
	CloseAssignment(ctx context.Context, assignmentID uuid.UUID, status enums.AssignmentStatus, at time.Time) error
	MarkInTransit(ctx context.Context, assignmentID uuid.UUID) error
	ListAgentAssignments(ctx context.Context, agentID uuid.UUID, params pagination.Params) (*AssignmentList, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a delivery repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) UpsertAgent(ctx context.Context, agent *models.DeliveryAgent) error {
	return r.db.WithContext(ctx).Save(agent).Error
}

func (r *repository) FindAgent(ctx context.Context, agentID uuid.UUID) (*models.DeliveryAgent, error) {
	var agent models.DeliveryAgent
	err := r.db.WithContext(ctx).
		Where("id = ?", agentID).
		First(&agent).Error
	if err != nil {
		return nil, err
	}
	return &agent, nil
}

// ListAvailableAgents returns free agents least-loaded first. Zone coverage
// is filtered by the caller; text[] containment is not portable to the
// sqlite test driver.
func (r *repository) ListAvailableAgents(ctx context.Context) ([]models.DeliveryAgent, error) {
	var agents []models.DeliveryAgent
	err := r.db.WithContext(ctx).
		Where("is_available = ?", true).
		Order("total_deliveries ASC, created_at ASC").
		Find(&agents).Error
	if err != nil {
		return nil, err
	}
	return agents, nil
}

// ClaimAgent flips is_available off only if the agent is still free, so two
// concurrent assignments cannot grab the same agent.
func (r *repository) ClaimAgent(ctx context.Context, agentID uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).
		Model(&models.DeliveryAgent{}).
		Where("id = ? AND is_available = ?", agentID, true).
		Update("is_available", false)
	if result.Error != nil {
		return false, result.Error
	}
	return result.RowsAffected == 1, nil
}

func (r *repository) FreeAgent(ctx context.Context, agentID uuid.UUID, deliveryDone bool) error {
	updates := map[string]any{"is_available": true}
	if deliveryDone {
		updates["total_deliveries"] = gorm.Expr("total_deliveries + 1")
	}
	return r.db.WithContext(ctx).
		Model(&models.DeliveryAgent{}).
		Where("id = ?", agentID).
		Updates(updates).Error
}

func (r *repository) SetAgentAvailability(ctx context.Context, agentID uuid.UUID, available bool) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryAgent{}).
		Where("id = ?", agentID).
		Update("is_available", available).Error
}

func (r *repository) UpdateAgentLocation(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryAgent{}).
		Where("id = ?", agentID).
		Updates(map[string]any{
			"current_lat":         lat,
			"current_lng":         lng,
			"location_updated_at": at,
		}).Error
}

func (r *repository) CreateAssignment(ctx context.Context, assignment *models.DeliveryAssignment) error {
	return r.db.WithContext(ctx).Create(assignment).Error
}

func (r *repository) FindActiveAssignmentByOrder(ctx context.Context, orderID uuid.UUID) (*models.DeliveryAssignment, error) {
	var assignment models.DeliveryAssignment
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND active = ?", orderID, true).
		First(&assignment).Error
	if err != nil {
		return nil, err
	}
	return &assignment, nil
}

func (r *repository) CloseAssignment(ctx context.Context, assignmentID uuid.UUID, status enums.AssignmentStatus, at time.Time) error {
	updates := map[string]any{
		"status": status,
		"active": false,
	}
	switch status {
	case enums.AssignmentStatusReleased:
		updates["released_at"] = at
	case enums.AssignmentStatusCompleted:
		updates["completed_at"] = at
	}
	return r.db.WithContext(ctx).
		Model(&models.DeliveryAssignment{}).
		Where("id = ?", assignmentID).
		Updates(updates).Error
}

func (r *repository) MarkInTransit(ctx context.Context, assignmentID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.DeliveryAssignment{}).
		Where("id = ? AND active = ?", assignmentID, true).
		Update("status", enums.AssignmentStatusInTransit).Error
}

func (r *repository) ListAgentAssignments(ctx context.Context, agentID uuid.UUID, params pagination.Params) (*AssignmentList, error) {
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, err
	}

	query := r.db.WithContext(ctx).
		Model(&models.DeliveryAssignment{}).
		Where("agent_id = ?", agentID)
	if cursor != nil {
		query = query.Where(
			"(assigned_at < ?) OR (assigned_at = ? AND id < ?)",
			cursor.CreatedAt, cursor.CreatedAt, cursor.ID,
		)
	}

	var rows []models.DeliveryAssignment
	err = query.
		Order("assigned_at DESC, id DESC").
		Limit(pagination.LimitWithBuffer(params.Limit)).
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	trimmed, more := pagination.Trim(rows, params.Limit)
	list := &AssignmentList{Assignments: trimmed}
	if more {
		last := trimmed[len(trimmed)-1]
		list.NextCursor = pagination.EncodeCursor(pagination.Cursor{
			CreatedAt: last.AssignedAt,
			ID:        last.ID,
		})
	}
	return list, nil
}
