package delivery

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/pkg/config"
	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/enums"
	pkgerrors "github.com/localkart/localkart-backend/pkg/errors"
	"github.com/localkart/localkart-backend/pkg/logger"
	"github.com/localkart/localkart-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type orderReader interface {
	FindOrderForAssignment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error)
}

// Service assigns agents to orders and tracks agent state.
type Service struct {
	repo   Repository
	tx     txRunner
	outbox outboxEmitter
	orders orderReader
	cfg    config.AssignmentConfig
	logg   *logger.Logger
}

// AssignmentEvent is emitted when an assignment opens or closes.
type AssignmentEvent struct {
	AssignmentID uuid.UUID              `json:"assignment_id"`
	OrderID      uuid.UUID              `json:"order_id"`
	AgentID      uuid.UUID              `json:"agent_id"`
	Status       enums.AssignmentStatus `json:"status"`
}

// NewService builds the delivery assignment manager.
func NewService(repo Repository, tx txRunner, emitter outboxEmitter, orders orderReader, cfg config.AssignmentConfig, logg *logger.Logger) (*Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("delivery repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if orders == nil {
		return nil, fmt.Errorf("order reader required")
	}
	return &Service{repo: repo, tx: tx, outbox: emitter, orders: orders, cfg: cfg, logg: logg}, nil
}

// Assign binds the least-loaded free agent covering the order's zone.
// NoAgentAvailable is an expected condition; the caller retries later and the
// order keeps its status.
func (s *Service) Assign(ctx context.Context, orderID uuid.UUID, assignedBy *uuid.UUID) (*models.DeliveryAssignment, error) {
	if orderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}

	var created *models.DeliveryAssignment
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := s.orders.FindOrderForAssignment(ctx, tx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}
		if order.Status != enums.OrderStatusAccepted && order.Status != enums.OrderStatusPacked {
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order is not ready for delivery assignment")
		}

		if _, err := repo.FindActiveAssignmentByOrder(ctx, orderID); err == nil {
			return pkgerrors.New(pkgerrors.CodeConflict, "order already has an active assignment")
		} else if err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check existing assignment")
		}

		agents, err := repo.ListAvailableAgents(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list agents")
		}

		zoneKey := order.ZoneID.String()
		var claimed *models.DeliveryAgent
		for i := range agents {
			agent := agents[i]
			if !coversZone(agent.Zones, zoneKey) {
				continue
			}
			ok, err := repo.ClaimAgent(ctx, agent.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "claim agent")
			}
			if ok {
				claimed = &agent
				break
			}
		}
		if claimed == nil {
			return pkgerrors.New(pkgerrors.CodeNoAgentAvailable, "no delivery agent available in zone")
		}

		assignment := &models.DeliveryAssignment{
			ID:               uuid.New(),
			OrderID:          orderID,
			AgentID:          claimed.ID,
			AssignedByUserID: assignedBy,
			Status:           enums.AssignmentStatusAssigned,
			Active:           true,
			AssignedAt:       time.Now().UTC(),
		}
		if err := repo.CreateAssignment(ctx, assignment); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist assignment")
		}

		err = s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventDeliveryAssigned,
			AggregateType: enums.AggregateAssignment,
			AggregateID:   assignment.ID,
			Version:       1,
			Data: AssignmentEvent{
				AssignmentID: assignment.ID,
				OrderID:      orderID,
				AgentID:      claimed.ID,
				Status:       enums.AssignmentStatusAssigned,
			},
		})
		if err != nil {
			return err
		}

		created = assignment
		return nil
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		logCtx := s.logg.WithFields(ctx, map[string]any{
			"order_id": orderID.String(),
			"agent_id": created.AgentID.String(),
		})
		s.logg.Info(logCtx, "delivery assignment created")
	}
	return created, nil
}

// UpdateLocation overwrites the agent's last-known position, last write wins.
func (s *Service) UpdateLocation(ctx context.Context, agentID uuid.UUID, lat, lng float64) error {
	if agentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	if lat < -90 || lat > 90 || lng < -180 || lng > 180 {
		return pkgerrors.New(pkgerrors.CodeValidation, "coordinates out of range")
	}
	err := s.repo.UpdateAgentLocation(ctx, agentID, lat, lng, time.Now().UTC())
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update agent location")
	}
	return nil
}

// Release frees the order's active assignment in its own transaction.
func (s *Service) Release(ctx context.Context, orderID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		return s.ReleaseForOrder(ctx, tx, orderID)
	})
}

// ReleaseForOrder closes the active assignment inside the caller's
// transaction and frees the agent. No-op when the order was never assigned.
func (s *Service) ReleaseForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.closeForOrder(ctx, tx, orderID, enums.AssignmentStatusReleased)
}

// CompleteForOrder marks the active assignment completed, frees the agent and
// bumps their delivery count.
func (s *Service) CompleteForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	return s.closeForOrder(ctx, tx, orderID, enums.AssignmentStatusCompleted)
}

func (s *Service) closeForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, status enums.AssignmentStatus) error {
	repo := s.repo.WithTx(tx)

	assignment, err := repo.FindActiveAssignmentByOrder(ctx, orderID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
	}

	now := time.Now().UTC()
	if err := repo.CloseAssignment(ctx, assignment.ID, status, now); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "close assignment")
	}
	if err := repo.FreeAgent(ctx, assignment.AgentID, status == enums.AssignmentStatusCompleted); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "free agent")
	}

	eventType := enums.EventDeliveryReleased
	if status == enums.AssignmentStatusCompleted {
		eventType = enums.EventHandoffVerified
	}
	return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateAssignment,
		AggregateID:   assignment.ID,
		Version:       1,
		Data: AssignmentEvent{
			AssignmentID: assignment.ID,
			OrderID:      orderID,
			AgentID:      assignment.AgentID,
			Status:       status,
		},
	})
}

// StartTransit flags the assignment in_transit once the agent picks up the
// parcel. Only the assigned agent may do this.
func (s *Service) StartTransit(ctx context.Context, orderID, agentID uuid.UUID) error {
	return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		assignment, err := repo.FindActiveAssignmentByOrder(ctx, orderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "no active assignment for order")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load assignment")
		}
		if assignment.AgentID != agentID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "assignment belongs to another agent")
		}
		if err := repo.MarkInTransit(ctx, assignment.ID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mark in transit")
		}
		return nil
	})
}

// RegisterAgent creates or updates the agent profile.
func (s *Service) RegisterAgent(ctx context.Context, input AgentProfileInput) (*models.DeliveryAgent, error) {
	if input.AgentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "agent identity missing")
	}
	if !input.VehicleType.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown vehicle type %q", input.VehicleType))
	}
	if len(input.Zones) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one zone required")
	}

	var agent *models.DeliveryAgent
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		existing, err := repo.FindAgent(ctx, input.AgentID)
		if err != nil && err != gorm.ErrRecordNotFound {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
		}
		if existing == nil {
			existing = &models.DeliveryAgent{
				ID:          input.AgentID,
				IsAvailable: true,
			}
		}
		existing.VehicleType = input.VehicleType
		existing.VehicleNumber = input.VehicleNumber
		existing.Zones = input.Zones
		if err := repo.UpsertAgent(ctx, existing); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist agent")
		}
		agent = existing
		return nil
	})
	if err != nil {
		return nil, err
	}
	return agent, nil
}

// SetAvailability toggles whether the agent accepts new assignments.
func (s *Service) SetAvailability(ctx context.Context, agentID uuid.UUID, available bool) error {
	if agentID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	if err := s.repo.SetAgentAvailability(ctx, agentID, available); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "set availability")
	}
	return nil
}

// GetAgent returns the agent's profile view.
func (s *Service) GetAgent(ctx context.Context, agentID uuid.UUID) (*AgentView, error) {
	agent, err := s.repo.FindAgent(ctx, agentID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "agent not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load agent")
	}

	stale := agent.LocationUpdatedAt == nil
	if !stale && s.cfg.StaleLocationAge > 0 {
		stale = time.Since(*agent.LocationUpdatedAt) > s.cfg.StaleLocationAge
	}
	return &AgentView{
		ID:              agent.ID,
		VehicleType:     agent.VehicleType,
		VehicleNumber:   agent.VehicleNumber,
		IsAvailable:     agent.IsAvailable,
		Zones:           agent.Zones,
		Rating:          agent.Rating,
		TotalDeliveries: agent.TotalDeliveries,
		LocationStale:   stale,
	}, nil
}

// ListAssignments returns the agent's assignment history, newest first.
func (s *Service) ListAssignments(ctx context.Context, agentID uuid.UUID, params AssignmentQuery) (*AssignmentList, error) {
	if agentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "agent id required")
	}
	list, err := s.repo.ListAgentAssignments(ctx, agentID, params.Pagination())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list assignments")
	}
	return list, nil
}

func coversZone(zones []string, zoneKey string) bool {
	for _, z := range zones {
		if z == zoneKey {
			return true
		}
	}
	return false
}
