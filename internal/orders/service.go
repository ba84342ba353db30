package orders

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/internal/catalog"
	"github.com/localkart/localkart-backend/internal/inventory"
	"github.com/localkart/localkart-backend/pkg/db"
	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/enums"
	pkgerrors "github.com/localkart/localkart-backend/pkg/errors"
	"github.com/localkart/localkart-backend/pkg/logger"
	"github.com/localkart/localkart-backend/pkg/metrics"
	"github.com/localkart/localkart-backend/pkg/outbox"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// orderNumberRetries bounds placement restarts when concurrent orders race
// for the same order number.
const orderNumberRetries = 3

var errOrderNumberTaken = errors.New("order number taken")

type outboxEmitter interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

// Service is the only writer of order records.
type Service interface {
	Create(ctx context.Context, input CreateOrderInput) (*models.Order, error)
	Transition(ctx context.Context, input TransitionInput) (*models.Order, error)
	Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error)
	ExpireStalePending(ctx context.Context, cutoff time.Time) (int, error)
}

type service struct {
	repo        Repository
	catalog     catalog.Repository
	tx          txRunner
	outbox      outboxEmitter
	ledger      StockLedger
	handoff     HandoffConsumer
	assignments AssignmentCloser
	metrics     *metrics.OrderMetrics
	logg        *logger.Logger
}

// OrderPlacedEvent is emitted when an order is accepted with stock held.
type OrderPlacedEvent struct {
	OrderID     uuid.UUID `json:"order_id"`
	OrderNumber int64     `json:"order_number"`
	CustomerID  uuid.UUID `json:"customer_id"`
	ShopID      uuid.UUID `json:"shop_id"`
	TotalCents  int       `json:"total_cents"`
	ItemCount   int       `json:"item_count"`
}

// OrderStatusChangedEvent is emitted on every successful transition.
type OrderStatusChangedEvent struct {
	OrderID    uuid.UUID         `json:"order_id"`
	CustomerID uuid.UUID         `json:"customer_id"`
	ShopID     uuid.UUID         `json:"shop_id"`
	FromStatus enums.OrderStatus `json:"from_status"`
	ToStatus   enums.OrderStatus `json:"to_status"`
	Reason     *string           `json:"reason,omitempty"`
}

// NewService builds the order service with the required dependencies.
func NewService(
	repo Repository,
	catalogRepo catalog.Repository,
	tx txRunner,
	emitter outboxEmitter,
	ledger StockLedger,
	handoff HandoffConsumer,
	assignments AssignmentCloser,
	orderMetrics *metrics.OrderMetrics,
	logg *logger.Logger,
) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if catalogRepo == nil {
		return nil, fmt.Errorf("catalog repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if ledger == nil {
		ledger = NewStockLedger()
	}
	if handoff == nil {
		return nil, fmt.Errorf("handoff consumer required")
	}
	if assignments == nil {
		return nil, fmt.Errorf("assignment closer required")
	}
	return &service{
		repo:        repo,
		catalog:     catalogRepo,
		tx:          tx,
		outbox:      emitter,
		ledger:      ledger,
		handoff:     handoff,
		assignments: assignments,
		metrics:     orderMetrics,
		logg:        logg,
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateOrderInput) (*models.Order, error) {
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "customer identity missing")
	}
	if input.ShopID == uuid.Nil || input.ZoneID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "shop and zone required")
	}
	if strings.TrimSpace(input.DeliveryAddress) == "" || strings.TrimSpace(input.DeliveryPhone) == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "delivery address and phone required")
	}
	if len(input.Items) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "at least one item required")
	}
	for _, item := range input.Items {
		if item.ProductID == uuid.Nil || item.Qty <= 0 {
			return nil, pkgerrors.New(pkgerrors.CodeValidation, "every item needs a product and qty > 0")
		}
	}

	var created *models.Order
	place := func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		catalogRepo := s.catalog.WithTx(tx)

		zone, err := repo.FindZone(ctx, input.ZoneID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeValidation, "unknown delivery zone")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load delivery zone")
		}
		if !zone.IsActive {
			return pkgerrors.New(pkgerrors.CodeValidation, "delivery zone is not active")
		}

		productIDs := make([]uuid.UUID, 0, len(input.Items))
		for _, item := range input.Items {
			productIDs = append(productIDs, item.ProductID)
		}
		products, err := catalogRepo.FindProductsByIDs(ctx, productIDs)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load products")
		}
		byID := make(map[uuid.UUID]models.Product, len(products))
		for _, p := range products {
			byID[p.ID] = p
		}

		reservations := make([]inventory.ReservationRequest, 0, len(input.Items))
		subtotal := 0
		for _, item := range input.Items {
			product, ok := byID[item.ProductID]
			if !ok {
				return pkgerrors.New(pkgerrors.CodeNotFound, fmt.Sprintf("product %s not found", item.ProductID))
			}
			if product.ShopID != input.ShopID {
				return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("product %s does not belong to shop", item.ProductID))
			}
			subtotal += product.PriceCents * item.Qty
			reservations = append(reservations, inventory.ReservationRequest{ProductID: item.ProductID, Qty: item.Qty})
		}

		if err := s.ledger.Reserve(ctx, tx, reservations); err != nil {
			return err
		}

		orderNumber, err := repo.NextOrderNumber(ctx)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "allocate order number")
		}

		now := time.Now().UTC()
		order := &models.Order{
			ID:               uuid.New(),
			OrderNumber:      orderNumber,
			CustomerID:       input.CustomerID,
			ShopID:           input.ShopID,
			ZoneID:           input.ZoneID,
			Status:           enums.OrderStatusPending,
			PaymentStatus:    enums.PaymentStatusPending,
			DeliveryAddress:  strings.TrimSpace(input.DeliveryAddress),
			DeliveryPhone:    strings.TrimSpace(input.DeliveryPhone),
			Notes:            input.Notes,
			SubtotalCents:    subtotal,
			DeliveryFeeCents: zone.DeliveryFeeCents,
			TotalCents:       subtotal + zone.DeliveryFeeCents,
			StatusChangedAt:  now,
		}
		if _, err := repo.CreateOrder(ctx, order); err != nil {
			if db.IsUniqueViolation(err, "order_number") {
				return errOrderNumberTaken
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order")
		}

		items := make([]models.OrderItem, 0, len(input.Items))
		for _, item := range input.Items {
			product := byID[item.ProductID]
			items = append(items, models.OrderItem{
				ID:             uuid.New(),
				OrderID:        order.ID,
				ProductID:      item.ProductID,
				Name:           product.Name,
				Qty:            item.Qty,
				UnitPriceCents: product.PriceCents,
				TotalCents:     product.PriceCents * item.Qty,
			})
		}
		if err := repo.CreateOrderItems(ctx, items); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "persist order items")
		}
		order.Items = items

		event := outbox.DomainEvent{
			EventType:     enums.EventOrderPlaced,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.CustomerID, Role: string(enums.ActorRoleCustomer)},
			Data: OrderPlacedEvent{
				OrderID:     order.ID,
				OrderNumber: order.OrderNumber,
				CustomerID:  order.CustomerID,
				ShopID:      order.ShopID,
				TotalCents:  order.TotalCents,
				ItemCount:   len(items),
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		created = order
		return nil
	}

	// MAX+1 allocation can collide under concurrent placements, so the losing
	// writer restarts the whole transaction with a fresh number.
	var err error
	for attempt := 0; attempt < orderNumberRetries; attempt++ {
		err = s.tx.WithTx(ctx, place)
		if err != errOrderNumberTaken {
			break
		}
	}
	if err == errOrderNumberTaken {
		err = pkgerrors.New(pkgerrors.CodeConflict, "order number contention, retry")
	}
	if err != nil {
		return nil, err
	}

	s.metrics.IncPlaced()
	if s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, created.ID.String())
		s.logg.Info(logCtx, "order placed")
	}
	return created, nil
}

func (s *service) Transition(ctx context.Context, input TransitionInput) (*models.Order, error) {
	if input.OrderID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "order id required")
	}
	if input.Actor.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeUnauthorized, "user identity missing")
	}
	if !input.Target.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("unknown status %q", input.Target))
	}
	if input.Target == enums.OrderStatusPending {
		return nil, pkgerrors.New(pkgerrors.CodeStateConflict, "orders cannot return to pending")
	}

	var updated *models.Order
	var codeMismatch error
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		order, err := repo.FindOrderWithItems(ctx, input.OrderID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return pkgerrors.New(pkgerrors.CodeNotFound, "order not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load order")
		}

		if err := s.authorizeActor(order, input.Actor); err != nil {
			return err
		}
		if err := ValidateTransition(order.Status, input.Target, input.Actor.Role); err != nil {
			return err
		}

		now := time.Now().UTC()
		updates := map[string]any{"status_changed_at": now}

		switch input.Target {
		case enums.OrderStatusDelivered:
			if err := s.handoff.Consume(ctx, tx, order.ID, input.HandoffCode); err != nil {
				if pkgerrors.IsCode(err, pkgerrors.CodeHandoffMismatch) {
					// The burned attempt was written to tx and must outlive
					// the rejected transition, so commit instead of
					// rolling back. No order rows have been touched yet.
					codeMismatch = err
					return nil
				}
				return err
			}
			updates["delivered_at"] = now
		case enums.OrderStatusCancelled:
			updates["cancelled_at"] = now
			if input.Reason != nil {
				updates["cancellation_reason"] = *input.Reason
			}
		}

		swapped, err := repo.CompareAndSetStatus(ctx, order.ID, order.Status, input.Target, updates)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update order status")
		}
		if !swapped {
			s.metrics.IncConflict()
			return pkgerrors.New(pkgerrors.CodeStateConflict, "order changed concurrently, retry")
		}

		switch input.Target {
		case enums.OrderStatusCancelled:
			if err := s.releaseOrderStock(ctx, tx, order); err != nil {
				return err
			}
			if err := s.assignments.ReleaseForOrder(ctx, tx, order.ID); err != nil {
				return err
			}
		case enums.OrderStatusDelivered:
			if err := s.assignments.CompleteForOrder(ctx, tx, order.ID); err != nil {
				return err
			}
		}

		eventType := enums.EventOrderStatusChanged
		if input.Target == enums.OrderStatusCancelled {
			eventType = enums.EventOrderCancelled
		}
		event := outbox.DomainEvent{
			EventType:     eventType,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			Actor:         &outbox.ActorRef{UserID: input.Actor.UserID, Role: string(input.Actor.Role)},
			Data: OrderStatusChangedEvent{
				OrderID:    order.ID,
				CustomerID: order.CustomerID,
				ShopID:     order.ShopID,
				FromStatus: order.Status,
				ToStatus:   input.Target,
				Reason:     input.Reason,
			},
		}
		if err := s.outbox.Emit(ctx, tx, event); err != nil {
			return err
		}

		order.Status = input.Target
		order.StatusChangedAt = now
		if input.Target == enums.OrderStatusDelivered {
			order.DeliveredAt = &now
		}
		if input.Target == enums.OrderStatusCancelled {
			order.CancelledAt = &now
			order.CancellationReason = input.Reason
		}
		updated = order
		return nil
	})
	if err != nil {
		return nil, err
	}
	if codeMismatch != nil {
		s.metrics.IncHandoff("mismatch")
		return nil, codeMismatch
	}

	s.metrics.IncTransition(string(input.Target))
	if input.Target == enums.OrderStatusDelivered {
		s.metrics.IncHandoff("verified")
	}
	return updated, nil
}

func (s *service) Cancel(ctx context.Context, orderID uuid.UUID, actor Actor, reason string) (*models.Order, error) {
	trimmed := strings.TrimSpace(reason)
	var reasonPtr *string
	if trimmed != "" {
		reasonPtr = &trimmed
	}
	return s.Transition(ctx, TransitionInput{
		OrderID: orderID,
		Target:  enums.OrderStatusCancelled,
		Actor:   actor,
		Reason:  reasonPtr,
	})
}

// ExpireStalePending cancels pending orders older than the cutoff and returns
// their stock. Each order expires in its own transaction so one bad row does
// not block the sweep.
func (s *service) ExpireStalePending(ctx context.Context, cutoff time.Time) (int, error) {
	stale, err := s.repo.FindPendingOrdersBefore(ctx, cutoff)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list stale pending orders")
	}

	expired := 0
	var errs []error
	for _, candidate := range stale {
		candidate := candidate
		err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			repo := s.repo.WithTx(tx)
			now := time.Now().UTC()
			swapped, err := repo.CompareAndSetStatus(ctx, candidate.ID, enums.OrderStatusPending, enums.OrderStatusCancelled, map[string]any{
				"status_changed_at":   now,
				"cancelled_at":        now,
				"cancellation_reason": "expired: not accepted in time",
			})
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "expire order")
			}
			if !swapped {
				// someone accepted or cancelled it while we were sweeping
				return nil
			}

			order, err := repo.FindOrderWithItems(ctx, candidate.ID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load expired order")
			}
			if err := s.releaseOrderStock(ctx, tx, order); err != nil {
				return err
			}

			expired++
			return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventOrderExpired,
				AggregateType: enums.AggregateOrder,
				AggregateID:   order.ID,
				Version:       1,
				Data: OrderStatusChangedEvent{
					OrderID:    order.ID,
					CustomerID: order.CustomerID,
					ShopID:     order.ShopID,
					FromStatus: enums.OrderStatusPending,
					ToStatus:   enums.OrderStatusCancelled,
				},
			})
		})
		if err != nil {
			if s.logg != nil {
				logCtx := s.logg.WithOrderID(ctx, candidate.ID.String())
				s.logg.Error(logCtx, "expiring stale order failed", err)
			}
			errs = append(errs, err)
			continue
		}
	}
	return expired, multierr.Combine(errs...)
}

// authorizeActor scopes mutations to the order's own parties. Admins can act
// on any order; the delivery role is checked against the active assignment by
// the API layer before the request reaches here.
func (s *service) authorizeActor(order *models.Order, actor Actor) error {
	switch actor.Role {
	case enums.ActorRoleAdmin, enums.ActorRoleDelivery:
		return nil
	case enums.ActorRoleShopkeeper:
		if order.ShopID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to shop")
		}
		return nil
	case enums.ActorRoleCustomer:
		if order.CustomerID != actor.UserID {
			return pkgerrors.New(pkgerrors.CodeForbidden, "order does not belong to customer")
		}
		return nil
	default:
		return pkgerrors.New(pkgerrors.CodeForbidden, "unknown actor role")
	}
}

func (s *service) releaseOrderStock(ctx context.Context, tx *gorm.DB, order *models.Order) error {
	items := make([]inventory.ReleaseItem, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, inventory.ReleaseItem{ProductID: item.ProductID, Qty: item.Qty})
	}
	released, err := s.ledger.Release(ctx, tx, order.ID, items)
	if err != nil {
		return err
	}
	if released < len(items) && s.logg != nil {
		logCtx := s.logg.WithOrderID(ctx, order.ID.String())
		s.logg.Warn(logCtx, fmt.Sprintf("duplicate stock release skipped for %d of %d items", len(items)-released, len(items)))
	}
	return nil
}
