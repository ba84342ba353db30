package orders

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/internal/catalog"
	"github.com/localkart/localkart-backend/internal/handoff"
	"github.com/localkart/localkart-backend/pkg/config"
	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/enums"
	pkgerrors "github.com/localkart/localkart-backend/pkg/errors"
	"github.com/localkart/localkart-backend/pkg/outbox"
)

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.Transaction(fn)
}

type stubEmitter struct {
	events []outbox.DomainEvent
}

func (s *stubEmitter) Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error {
	s.events = append(s.events, event)
	return nil
}

type stubHandoff struct {
	err   error
	codes []string
}

func (s *stubHandoff) Consume(ctx context.Context, tx *gorm.DB, orderID uuid.UUID, code string) error {
	s.codes = append(s.codes, code)
	return s.err
}

type stubAssignments struct {
	released  []uuid.UUID
	completed []uuid.UUID
}

func (s *stubAssignments) ReleaseForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	s.released = append(s.released, orderID)
	return nil
}

func (s *stubAssignments) CompleteForOrder(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) error {
	s.completed = append(s.completed, orderID)
	return nil
}

type fixture struct {
	db          *gorm.DB
	service     Service
	emitter     *stubEmitter
	handoff     *stubHandoff
	assignments *stubAssignments
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dsn := "file:orders_" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	err = db.AutoMigrate(
		&models.Product{},
		&models.StockRelease{},
		&models.DeliveryZone{},
		&models.Order{},
		&models.OrderItem{},
		&models.DeliveryAssignment{},
		&models.HandoffToken{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}

	emitter := &stubEmitter{}
	handoff := &stubHandoff{}
	assignments := &stubAssignments{}
	svc, err := NewService(
		NewRepository(db),
		catalog.NewRepository(db),
		gormTxRunner{db: db},
		emitter,
		nil, // default inventory ledger
		handoff,
		assignments,
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}
	return &fixture{db: db, service: svc, emitter: emitter, handoff: handoff, assignments: assignments}
}

func (f *fixture) seedZone(t *testing.T, feeCents int) uuid.UUID {
	t.Helper()
	zone := models.DeliveryZone{ID: uuid.New(), Name: "zone-" + uuid.NewString(), DeliveryFeeCents: feeCents, EstimatedMinutes: 45, IsActive: true}
	if err := f.db.Create(&zone).Error; err != nil {
		t.Fatalf("seed zone: %v", err)
	}
	return zone.ID
}

func (f *fixture) seedProduct(t *testing.T, shopID uuid.UUID, priceCents, stock int) uuid.UUID {
	t.Helper()
	product := models.Product{ID: uuid.New(), ShopID: shopID, Name: "basket", PriceCents: priceCents, StockQty: stock, IsActive: true}
	if err := f.db.Create(&product).Error; err != nil {
		t.Fatalf("seed product: %v", err)
	}
	return product.ID
}

func (f *fixture) stockOf(t *testing.T, productID uuid.UUID) int {
	t.Helper()
	var product models.Product
	if err := f.db.First(&product, "id = ?", productID).Error; err != nil {
		t.Fatalf("load product: %v", err)
	}
	return product.StockQty
}

func (f *fixture) placeOrder(t *testing.T, shopID, zoneID, productID uuid.UUID, qty int) *models.Order {
	t.Helper()
	order, err := f.service.Create(context.Background(), CreateOrderInput{
		CustomerID:      uuid.New(),
		ShopID:          shopID,
		ZoneID:          zoneID,
		DeliveryAddress: "12 Market Lane",
		DeliveryPhone:   "+14155550123",
		Items:           []OrderItemInput{{ProductID: productID, Qty: qty}},
	})
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	return order
}

func (f *fixture) forceStatus(t *testing.T, orderID uuid.UUID, status enums.OrderStatus) {
	t.Helper()
	err := f.db.Model(&models.Order{}).Where("id = ?", orderID).Update("status", status).Error
	if err != nil {
		t.Fatalf("force status: %v", err)
	}
}

func TestCreateOrderReservesStockAndPersists(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	shopID := uuid.New()
	zoneID := f.seedZone(t, 300)
	productID := f.seedProduct(t, shopID, 500, 5)

	order := f.placeOrder(t, shopID, zoneID, productID, 2)

	if order.Status != enums.OrderStatusPending {
		t.Fatalf("expected pending, got %s", order.Status)
	}
	if order.SubtotalCents != 1000 || order.DeliveryFeeCents != 300 || order.TotalCents != 1300 {
		t.Fatalf("unexpected totals %+v", order)
	}
	if order.OrderNumber != 1001 {
		t.Fatalf("expected first order number 1001, got %d", order.OrderNumber)
	}
	if len(order.Items) != 1 || order.Items[0].Name != "basket" || order.Items[0].UnitPriceCents != 500 {
		t.Fatalf("item snapshot missing: %+v", order.Items)
	}
	if got := f.stockOf(t, productID); got != 3 {
		t.Fatalf("expected stock 3, got %d", got)
	}
	if len(f.emitter.events) != 1 || f.emitter.events[0].EventType != enums.EventOrderPlaced {
		t.Fatalf("expected order.placed event, got %+v", f.emitter.events)
	}
}

func TestCreateOrderInsufficientStockRollsBack(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	shopID := uuid.New()
	zoneID := f.seedZone(t, 0)
	productID := f.seedProduct(t, shopID, 500, 5)

	_, err := f.service.Create(context.Background(), CreateOrderInput{
		CustomerID:      uuid.New(),
		ShopID:          shopID,
		ZoneID:          zoneID,
		DeliveryAddress: "12 Market Lane",
		DeliveryPhone:   "+14155550123",
		Items:           []OrderItemInput{{ProductID: productID, Qty: 6}},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeInsufficientStock) {
		t.Fatalf("expected insufficient stock, got %v", err)
	}

	if got := f.stockOf(t, productID); got != 5 {
		t.Fatalf("expected stock unchanged, got %d", got)
	}
	var count int64
	if err := f.db.Model(&models.Order{}).Count(&count).Error; err != nil {
		t.Fatalf("count orders: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected no order rows, got %d", count)
	}
	if len(f.emitter.events) != 0 {
		t.Fatalf("no event should be emitted, got %+v", f.emitter.events)
	}
}

func TestCreateOrderRejectsForeignShopProduct(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	zoneID := f.seedZone(t, 0)
	productID := f.seedProduct(t, uuid.New(), 500, 5)

	_, err := f.service.Create(context.Background(), CreateOrderInput{
		CustomerID:      uuid.New(),
		ShopID:          uuid.New(), // different shop
		ZoneID:          zoneID,
		DeliveryAddress: "12 Market Lane",
		DeliveryPhone:   "+14155550123",
		Items:           []OrderItemInput{{ProductID: productID, Qty: 1}},
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestCancelReleasesStockExactlyOnce(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	shopID := uuid.New()
	zoneID := f.seedZone(t, 0)
	productID := f.seedProduct(t, shopID, 500, 5)
	order := f.placeOrder(t, shopID, zoneID, productID, 2)

	shopkeeper := Actor{UserID: shopID, Role: enums.ActorRoleShopkeeper}
	cancelled, err := f.service.Cancel(context.Background(), order.ID, shopkeeper, "out of hours")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}
	if cancelled.CancellationReason == nil || *cancelled.CancellationReason != "out of hours" {
		t.Fatalf("reason not stored: %+v", cancelled.CancellationReason)
	}
	if got := f.stockOf(t, productID); got != 5 {
		t.Fatalf("expected stock restored to 5, got %d", got)
	}
	if len(f.assignments.released) != 1 {
		t.Fatalf("expected assignment release, got %v", f.assignments.released)
	}

	// a second cancel hits the terminal state
	_, err = f.service.Cancel(context.Background(), order.ID, shopkeeper, "again")
	if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
		t.Fatalf("expected state conflict, got %v", err)
	}
	if got := f.stockOf(t, productID); got != 5 {
		t.Fatalf("stock must not be credited twice, got %d", got)
	}
}

func TestCustomerCancelForbiddenAfterAcceptance(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	shopID := uuid.New()
	zoneID := f.seedZone(t, 0)
	productID := f.seedProduct(t, shopID, 500, 5)
	order := f.placeOrder(t, shopID, zoneID, productID, 1)
	f.forceStatus(t, order.ID, enums.OrderStatusAccepted)

	var customer models.Order
	if err := f.db.First(&customer, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}

	_, err := f.service.Cancel(context.Background(), order.ID, Actor{UserID: customer.CustomerID, Role: enums.ActorRoleCustomer}, "changed my mind")
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
}

func TestTransitionDeliveredConsumesHandoffCode(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	shopID := uuid.New()
	zoneID := f.seedZone(t, 0)
	productID := f.seedProduct(t, shopID, 500, 5)
	order := f.placeOrder(t, shopID, zoneID, productID, 1)
	f.forceStatus(t, order.ID, enums.OrderStatusOutForDelivery)

	agent := Actor{UserID: uuid.New(), Role: enums.ActorRoleDelivery}

	f.handoff.err = pkgerrors.New(pkgerrors.CodeHandoffMismatch, "invalid or expired code")
	_, err := f.service.Transition(context.Background(), TransitionInput{
		OrderID:     order.ID,
		Target:      enums.OrderStatusDelivered,
		Actor:       agent,
		HandoffCode: "000000",
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeHandoffMismatch) {
		t.Fatalf("expected handoff mismatch, got %v", err)
	}
	var current models.Order
	if err := f.db.First(&current, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if current.Status != enums.OrderStatusOutForDelivery {
		t.Fatalf("status must be unchanged on bad code, got %s", current.Status)
	}

	f.handoff.err = nil
	delivered, err := f.service.Transition(context.Background(), TransitionInput{
		OrderID:     order.ID,
		Target:      enums.OrderStatusDelivered,
		Actor:       agent,
		HandoffCode: "482915",
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered.Status != enums.OrderStatusDelivered || delivered.DeliveredAt == nil {
		t.Fatalf("unexpected delivered state %+v", delivered)
	}
	if len(f.handoff.codes) != 2 || f.handoff.codes[1] != "482915" {
		t.Fatalf("handoff consumer not invoked with code: %v", f.handoff.codes)
	}
	if len(f.assignments.completed) != 1 {
		t.Fatalf("expected assignment completion, got %v", f.assignments.completed)
	}
}

func TestTerminalOrdersRejectAllTransitions(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	shopID := uuid.New()
	zoneID := f.seedZone(t, 0)
	productID := f.seedProduct(t, shopID, 500, 5)
	order := f.placeOrder(t, shopID, zoneID, productID, 1)
	f.forceStatus(t, order.ID, enums.OrderStatusDelivered)

	for _, target := range []enums.OrderStatus{enums.OrderStatusAccepted, enums.OrderStatusCancelled, enums.OrderStatusOutForDelivery} {
		_, err := f.service.Transition(context.Background(), TransitionInput{
			OrderID: order.ID,
			Target:  target,
			Actor:   Actor{UserID: uuid.New(), Role: enums.ActorRoleAdmin},
		})
		if !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("expected state conflict for -> %s, got %v", target, err)
		}
	}
}

func TestExpireStalePendingReleasesStock(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	shopID := uuid.New()
	zoneID := f.seedZone(t, 0)
	productID := f.seedProduct(t, shopID, 500, 5)
	order := f.placeOrder(t, shopID, zoneID, productID, 2)

	// age the order past the cutoff
	old := time.Now().Add(-96 * time.Hour)
	if err := f.db.Model(&models.Order{}).Where("id = ?", order.ID).Update("created_at", old).Error; err != nil {
		t.Fatalf("age order: %v", err)
	}

	expired, err := f.service.ExpireStalePending(context.Background(), time.Now().Add(-72*time.Hour))
	if err != nil {
		t.Fatalf("expire: %v", err)
	}
	if expired != 1 {
		t.Fatalf("expected 1 expired order, got %d", expired)
	}

	var current models.Order
	if err := f.db.First(&current, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if current.Status != enums.OrderStatusCancelled {
		t.Fatalf("expected cancelled, got %s", current.Status)
	}
	if got := f.stockOf(t, productID); got != 5 {
		t.Fatalf("expected stock restored, got %d", got)
	}

	// a fresh pending order is left alone
	fresh := f.placeOrder(t, shopID, zoneID, productID, 1)
	expired, err = f.service.ExpireStalePending(context.Background(), time.Now().Add(-72*time.Hour))
	if err != nil || expired != 0 {
		t.Fatalf("fresh order must survive sweep: expired=%d err=%v", expired, err)
	}
	var freshRow models.Order
	if err := f.db.First(&freshRow, "id = ?", fresh.ID).Error; err != nil {
		t.Fatalf("load fresh order: %v", err)
	}
	if freshRow.Status != enums.OrderStatusPending {
		t.Fatalf("fresh order should stay pending, got %s", freshRow.Status)
	}
}

// staleNumberRepo hands out a preset order number once to force a unique
// index collision on the first placement attempt.
type staleNumberRepo struct {
	Repository
	next *int64
}

func (r *staleNumberRepo) WithTx(tx *gorm.DB) Repository {
	return &staleNumberRepo{Repository: r.Repository.WithTx(tx), next: r.next}
}

func (r *staleNumberRepo) NextOrderNumber(ctx context.Context) (int64, error) {
	if n := *r.next; n != 0 {
		*r.next = 0
		return n, nil
	}
	return r.Repository.NextOrderNumber(ctx)
}

func TestCreateOrderRetriesOnOrderNumberCollision(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	shopID := uuid.New()
	zoneID := f.seedZone(t, 0)
	productID := f.seedProduct(t, shopID, 500, 10)
	first := f.placeOrder(t, shopID, zoneID, productID, 1)

	taken := first.OrderNumber
	repo := &staleNumberRepo{Repository: NewRepository(f.db), next: &taken}
	svc, err := NewService(
		repo,
		catalog.NewRepository(f.db),
		gormTxRunner{db: f.db},
		f.emitter,
		nil,
		f.handoff,
		f.assignments,
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	order, err := svc.Create(context.Background(), CreateOrderInput{
		CustomerID:      uuid.New(),
		ShopID:          shopID,
		ZoneID:          zoneID,
		DeliveryAddress: "12 Market Lane",
		DeliveryPhone:   "+14155550123",
		Items:           []OrderItemInput{{ProductID: productID, Qty: 1}},
	})
	if err != nil {
		t.Fatalf("create after collision: %v", err)
	}
	if order.OrderNumber != first.OrderNumber+1 {
		t.Fatalf("expected fresh number %d, got %d", first.OrderNumber+1, order.OrderNumber)
	}
}

func TestShopkeeperCannotMutateForeignOrder(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	shopID := uuid.New()
	zoneID := f.seedZone(t, 0)
	productID := f.seedProduct(t, shopID, 500, 5)
	order := f.placeOrder(t, shopID, zoneID, productID, 1)

	foreign := Actor{UserID: uuid.New(), Role: enums.ActorRoleShopkeeper}
	_, err := f.service.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusAccepted,
		Actor:   foreign,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden for foreign shopkeeper, got %v", err)
	}
	_, err = f.service.Cancel(context.Background(), order.ID, foreign, "not mine")
	if !pkgerrors.IsCode(err, pkgerrors.CodeForbidden) {
		t.Fatalf("expected forbidden cancel for foreign shopkeeper, got %v", err)
	}

	var current models.Order
	if err := f.db.First(&current, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if current.Status != enums.OrderStatusPending {
		t.Fatalf("foreign shopkeeper must not move the order, got %s", current.Status)
	}

	owner := Actor{UserID: shopID, Role: enums.ActorRoleShopkeeper}
	accepted, err := f.service.Transition(context.Background(), TransitionInput{
		OrderID: order.ID,
		Target:  enums.OrderStatusAccepted,
		Actor:   owner,
	})
	if err != nil {
		t.Fatalf("owning shopkeeper transition: %v", err)
	}
	if accepted.Status != enums.OrderStatusAccepted {
		t.Fatalf("expected accepted, got %s", accepted.Status)
	}
}

func TestTransitionWrongCodeBurnsPersistedAttempts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	shopID := uuid.New()
	zoneID := f.seedZone(t, 0)
	productID := f.seedProduct(t, shopID, 500, 5)
	order := f.placeOrder(t, shopID, zoneID, productID, 1)
	f.forceStatus(t, order.ID, enums.OrderStatusOutForDelivery)

	verifier, err := handoff.NewService(
		handoff.NewRepository(f.db),
		gormTxRunner{db: f.db},
		handoff.NewOrderLoader(),
		config.HandoffConfig{CodeLength: 6, TTL: 10 * time.Minute, MaxAttempts: 3},
		nil,
	)
	if err != nil {
		t.Fatalf("build verifier: %v", err)
	}
	svc, err := NewService(
		NewRepository(f.db),
		catalog.NewRepository(f.db),
		gormTxRunner{db: f.db},
		f.emitter,
		nil,
		verifier,
		f.assignments,
		nil,
		nil,
	)
	if err != nil {
		t.Fatalf("build service: %v", err)
	}

	issued, err := verifier.IssueCode(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("issue code: %v", err)
	}
	wrong := "000000"
	if wrong == issued.Code {
		wrong = "000001"
	}

	agent := Actor{UserID: uuid.New(), Role: enums.ActorRoleDelivery}
	for i := 0; i < 3; i++ {
		_, err := svc.Transition(context.Background(), TransitionInput{
			OrderID:     order.ID,
			Target:      enums.OrderStatusDelivered,
			Actor:       agent,
			HandoffCode: wrong,
		})
		if !pkgerrors.IsCode(err, pkgerrors.CodeHandoffMismatch) {
			t.Fatalf("attempt %d: expected mismatch, got %v", i, err)
		}
	}

	// the counter survives each rejected transition
	var token models.HandoffToken
	if err := f.db.First(&token, "order_id = ?", order.ID).Error; err != nil {
		t.Fatalf("load token: %v", err)
	}
	if token.Attempts != 3 {
		t.Fatalf("expected 3 persisted attempts, got %d", token.Attempts)
	}
	if token.InvalidatedAt == nil {
		t.Fatal("token must be invalidated at the attempt cap")
	}

	// even the right code is dead now and the order has not moved
	_, err = svc.Transition(context.Background(), TransitionInput{
		OrderID:     order.ID,
		Target:      enums.OrderStatusDelivered,
		Actor:       agent,
		HandoffCode: issued.Code,
	})
	if !pkgerrors.IsCode(err, pkgerrors.CodeHandoffExpired) {
		t.Fatalf("expected dead token to read as expired, got %v", err)
	}
	var current models.Order
	if err := f.db.First(&current, "id = ?", order.ID).Error; err != nil {
		t.Fatalf("load order: %v", err)
	}
	if current.Status != enums.OrderStatusOutForDelivery {
		t.Fatalf("order must stay out for delivery, got %s", current.Status)
	}
}
