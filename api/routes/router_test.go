package routes

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/localkart/localkart-backend/internal/delivery"
	"github.com/localkart/localkart-backend/internal/handoff"
	ordersrepo "github.com/localkart/localkart-backend/internal/orders"
	pkgAuth "github.com/localkart/localkart-backend/pkg/auth"
	"github.com/localkart/localkart-backend/pkg/config"
	"github.com/localkart/localkart-backend/pkg/db/models"
	"github.com/localkart/localkart-backend/pkg/enums"
	"github.com/localkart/localkart-backend/pkg/logger"
	"github.com/localkart/localkart-backend/pkg/outbox"
	"github.com/localkart/localkart-backend/pkg/pagination"
	"github.com/localkart/localkart-backend/pkg/redis"
)

type stubPinger struct{}

func (stubPinger) Ping(context.Context) error {
	return nil
}

type stubOrdersRepo struct {
	listCustomer func(ctx context.Context, customerID uuid.UUID, params pagination.Params, filters ordersrepo.OrderFilters) (*ordersrepo.OrderList, error)
	findOrder    func(ctx context.Context, orderID uuid.UUID) (*models.Order, error)
}

func (s *stubOrdersRepo) WithTx(tx *gorm.DB) ordersrepo.Repository {
	return s
}

func (s *stubOrdersRepo) CreateOrder(ctx context.Context, order *models.Order) (*models.Order, error) {
	panic("unimplemented")
}

func (s *stubOrdersRepo) CreateOrderItems(ctx context.Context, items []models.OrderItem) error {
	panic("unimplemented")
}

func (s *stubOrdersRepo) NextOrderNumber(ctx context.Context) (int64, error) {
	panic("unimplemented")
}

func (s *stubOrdersRepo) FindOrder(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	if s.findOrder != nil {
		return s.findOrder(ctx, orderID)
	}
	return nil, gorm.ErrRecordNotFound
}

func (s *stubOrdersRepo) FindOrderWithItems(ctx context.Context, orderID uuid.UUID) (*models.Order, error) {
	panic("unimplemented")
}

func (s *stubOrdersRepo) FindZone(ctx context.Context, zoneID uuid.UUID) (*models.DeliveryZone, error) {
	panic("unimplemented")
}

func (s *stubOrdersRepo) FindPendingOrdersBefore(ctx context.Context, cutoff time.Time) ([]models.Order, error) {
	panic("unimplemented")
}

func (s *stubOrdersRepo) ListCustomerOrders(ctx context.Context, customerID uuid.UUID, params pagination.Params, filters ordersrepo.OrderFilters) (*ordersrepo.OrderList, error) {
	if s.listCustomer != nil {
		return s.listCustomer(ctx, customerID, params, filters)
	}
	return &ordersrepo.OrderList{}, nil
}

func (s *stubOrdersRepo) ListShopOrders(ctx context.Context, shopID uuid.UUID, params pagination.Params, filters ordersrepo.OrderFilters) (*ordersrepo.OrderList, error) {
	return &ordersrepo.OrderList{}, nil
}

func (s *stubOrdersRepo) CompareAndSetStatus(ctx context.Context, orderID uuid.UUID, from, to enums.OrderStatus, updates map[string]any) (bool, error) {
	panic("unimplemented")
}

type stubOrdersService struct{}

func (stubOrdersService) Create(ctx context.Context, input ordersrepo.CreateOrderInput) (*models.Order, error) {
	panic("unimplemented")
}

func (stubOrdersService) Transition(ctx context.Context, input ordersrepo.TransitionInput) (*models.Order, error) {
	panic("unimplemented")
}

func (stubOrdersService) Cancel(ctx context.Context, orderID uuid.UUID, actor ordersrepo.Actor, reason string) (*models.Order, error) {
	panic("unimplemented")
}

func (stubOrdersService) ExpireStalePending(ctx context.Context, cutoff time.Time) (int, error) {
	panic("unimplemented")
}

type stubDeliveryRepo struct {
	listAssignments func(ctx context.Context, agentID uuid.UUID, params pagination.Params) (*delivery.AssignmentList, error)
}

func (s *stubDeliveryRepo) WithTx(tx *gorm.DB) delivery.Repository {
	return s
}

func (s *stubDeliveryRepo) UpsertAgent(ctx context.Context, agent *models.DeliveryAgent) error {
	panic("unimplemented")
}

func (s *stubDeliveryRepo) FindAgent(ctx context.Context, agentID uuid.UUID) (*models.DeliveryAgent, error) {
	panic("unimplemented")
}

func (s *stubDeliveryRepo) ListAvailableAgents(ctx context.Context) ([]models.DeliveryAgent, error) {
	panic("unimplemented")
}

func (s *stubDeliveryRepo) ClaimAgent(ctx context.Context, agentID uuid.UUID) (bool, error) {
	panic("unimplemented")
}

func (s *stubDeliveryRepo) FreeAgent(ctx context.Context, agentID uuid.UUID, deliveryDone bool) error {
	panic("unimplemented")
}

func (s *stubDeliveryRepo) SetAgentAvailability(ctx context.Context, agentID uuid.UUID, available bool) error {
	panic("unimplemented")
}

func (s *stubDeliveryRepo) UpdateAgentLocation(ctx context.Context, agentID uuid.UUID, lat, lng float64, at time.Time) error {
	panic("unimplemented")
}

func (s *stubDeliveryRepo) CreateAssignment(ctx context.Context, assignment *models.DeliveryAssignment) error {
	panic("unimplemented")
}

func (s *stubDeliveryRepo) FindActiveAssignmentByOrder(ctx context.Context, orderID uuid.UUID) (*models.DeliveryAssignment, error) {
	return nil, gorm.ErrRecordNotFound
}

func (s *stubDeliveryRepo) CloseAssignment(ctx context.Context, assignmentID uuid.UUID, status enums.AssignmentStatus, at time.Time) error {
	panic("unimplemented")
}

func (s *stubDeliveryRepo) MarkInTransit(ctx context.Context, assignmentID uuid.UUID) error {
	panic("unimplemented")
}

func (s *stubDeliveryRepo) ListAgentAssignments(ctx context.Context, agentID uuid.UUID, params pagination.Params) (*delivery.AssignmentList, error) {
	if s.listAssignments != nil {
		return s.listAssignments(ctx, agentID, params)
	}
	return &delivery.AssignmentList{}, nil
}

type stubTxRunner struct{}

func (stubTxRunner) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return fn(nil)
}

type stubEmitter struct{}

func (stubEmitter) Emit(context.Context, *gorm.DB, outbox.DomainEvent) error {
	return nil
}

type stubOrderReader struct {
	status enums.OrderStatus
}

func (s stubOrderReader) FindOrderForAssignment(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (*models.Order, error) {
	return &models.Order{ID: orderID, Status: s.status, ZoneID: uuid.New()}, nil
}

type stubHandoffRepo struct{}

func (s stubHandoffRepo) WithTx(tx *gorm.DB) handoff.Repository {
	return s
}

func (stubHandoffRepo) Insert(ctx context.Context, token *models.HandoffToken) error {
	panic("unimplemented")
}

func (stubHandoffRepo) FindActiveToken(ctx context.Context, orderID uuid.UUID) (*models.HandoffToken, error) {
	panic("unimplemented")
}

func (stubHandoffRepo) InvalidateActive(ctx context.Context, orderID uuid.UUID, now time.Time) error {
	panic("unimplemented")
}

func (stubHandoffRepo) MarkConsumed(ctx context.Context, tokenID uuid.UUID, now time.Time) error {
	panic("unimplemented")
}

func (stubHandoffRepo) RecordFailedAttempt(ctx context.Context, tokenID uuid.UUID, invalidate bool, now time.Time) error {
	panic("unimplemented")
}

func (stubHandoffRepo) DeleteDeadTokensBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	panic("unimplemented")
}

type stubOrderLoader struct{}

func (stubOrderLoader) FindOrderStatus(ctx context.Context, tx *gorm.DB, orderID uuid.UUID) (enums.OrderStatus, error) {
	return enums.OrderStatusOutForDelivery, nil
}

func testConfig() *config.Config {
	return &config.Config{
		App: config.AppConfig{Env: "test", Port: "0"},
		JWT: config.JWTConfig{
			Secret:            "secret",
			Issuer:            "issuer",
			ExpirationMinutes: 60,
		},
		Handoff: config.HandoffConfig{
			CodeLength:  6,
			TTL:         10 * time.Minute,
			MaxAttempts: 5,
		},
	}
}

func newTestRouter(t *testing.T, cfg *config.Config, ordersRepo *stubOrdersRepo, deliveryRepo *stubDeliveryRepo) http.Handler {
	t.Helper()
	logg := logger.New(logger.Options{ServiceName: "test-routing", Level: logger.ParseLevel("debug"), Output: io.Discard})

	deliverySvc, err := delivery.NewService(deliveryRepo, stubTxRunner{}, stubEmitter{}, stubOrderReader{status: enums.OrderStatusPending}, config.AssignmentConfig{StaleLocationAge: 30 * time.Minute}, logg)
	if err != nil {
		t.Fatalf("build delivery service: %v", err)
	}
	handoffSvc, err := handoff.NewService(stubHandoffRepo{}, stubTxRunner{}, stubOrderLoader{}, cfg.Handoff, logg)
	if err != nil {
		t.Fatalf("build handoff service: %v", err)
	}

	return NewRouter(RouterParams{
		Config:       cfg,
		Logger:       logg,
		DB:           stubPinger{},
		Redis:        (*redis.Client)(nil),
		OrdersRepo:   ordersRepo,
		OrdersSvc:    stubOrdersService{},
		DeliveryRepo: deliveryRepo,
		DeliverySvc:  deliverySvc,
		HandoffSvc:   handoffSvc,
	})
}

func buildToken(t *testing.T, cfg *config.Config, role enums.ActorRole) string {
	t.Helper()
	return buildTokenWithUserID(t, cfg, role, uuid.New())
}

func buildTokenWithUserID(t *testing.T, cfg *config.Config, role enums.ActorRole, userID uuid.UUID) string {
	t.Helper()
	token, err := pkgAuth.MintAccessToken(cfg.JWT, time.Now(), pkgAuth.AccessTokenPayload{
		UserID: userID,
		Role:   role,
		JTI:    uuid.NewString(),
	})
	if err != nil {
		t.Fatalf("mint token: %v", err)
	}
	return token
}

func TestHealthLiveIsPublic(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubOrdersRepo{}, &stubDeliveryRepo{})
	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for liveness got %d", resp.Code)
	}
}

func TestHealthReadyPingsStores(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubOrdersRepo{}, &stubDeliveryRepo{})
	req := httptest.NewRequest(http.MethodGet, "/health/ready", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for readiness got %d", resp.Code)
	}
}

func TestAPIGroupRejectsMissingJWT(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubOrdersRepo{}, &stubDeliveryRepo{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token got %d", resp.Code)
	}
}

func TestAPIGroupRejectsGarbageJWT(t *testing.T) {
	router := newTestRouter(t, testConfig(), &stubOrdersRepo{}, &stubDeliveryRepo{})
	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for garbage token got %d", resp.Code)
	}
}

func TestListOrdersReturnsCustomerOrders(t *testing.T) {
	cfg := testConfig()
	customerID := uuid.New()
	repo := &stubOrdersRepo{
		listCustomer: func(ctx context.Context, gotCustomer uuid.UUID, params pagination.Params, filters ordersrepo.OrderFilters) (*ordersrepo.OrderList, error) {
			if gotCustomer != customerID {
				t.Fatalf("expected listing scoped to token holder %s got %s", customerID, gotCustomer)
			}
			return &ordersrepo.OrderList{Orders: []ordersrepo.OrderSummary{{ID: uuid.New()}}}, nil
		},
	}
	router := newTestRouter(t, cfg, repo, &stubDeliveryRepo{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildTokenWithUserID(t, cfg, enums.ActorRoleCustomer, customerID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for customer listing got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestCreateOrderRequiresCustomerRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, &stubOrdersRepo{}, &stubDeliveryRepo{})

	shopkeeper := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	shopkeeper.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleShopkeeper))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, shopkeeper)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for shopkeeper placing order got %d", resp.Code)
	}

	// A customer clears the role gate and fails only on the empty body.
	customer := httptest.NewRequest(http.MethodPost, "/api/v1/orders", nil)
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, customer)
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for empty order body got %d", resp.Code)
	}
}

func TestAssignmentRequiresShopkeeperOrAdmin(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, &stubOrdersRepo{}, &stubDeliveryRepo{})
	orderID := uuid.New()

	agent := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/assignment", nil)
	agent.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleDelivery))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, agent)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for delivery agent assigning got %d", resp.Code)
	}

	// An admin clears the gate; the stubbed order is still pending so the
	// service reports a state conflict rather than assigning.
	admin := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/assignment", nil)
	admin.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleAdmin))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, admin)
	if resp.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for admin assigning pending order got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestHandoffVerifyRequiresDeliveryRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, &stubOrdersRepo{}, &stubDeliveryRepo{})
	orderID := uuid.New()

	req := httptest.NewRequest(http.MethodPost, "/api/v1/orders/"+orderID.String()+"/handoff/verify", nil)
	req.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer verifying handoff got %d", resp.Code)
	}
}

func TestAgentGroupRequiresDeliveryRole(t *testing.T) {
	cfg := testConfig()
	router := newTestRouter(t, cfg, &stubOrdersRepo{}, &stubDeliveryRepo{})

	customer := httptest.NewRequest(http.MethodGet, "/api/v1/agent/orders", nil)
	customer.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleCustomer))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, customer)
	if resp.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for customer on agent routes got %d", resp.Code)
	}

	agent := httptest.NewRequest(http.MethodGet, "/api/v1/agent/orders", nil)
	agent.Header.Set("Authorization", "Bearer "+buildToken(t, cfg, enums.ActorRoleDelivery))
	resp = httptest.NewRecorder()
	router.ServeHTTP(resp, agent)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for agent assignment listing got %d: %s", resp.Code, resp.Body.String())
	}
}

func TestAgentAssignmentsScopedToTokenHolder(t *testing.T) {
	cfg := testConfig()
	agentID := uuid.New()
	deliveryRepo := &stubDeliveryRepo{
		listAssignments: func(ctx context.Context, gotAgent uuid.UUID, params pagination.Params) (*delivery.AssignmentList, error) {
			if gotAgent != agentID {
				t.Fatalf("expected listing scoped to token holder %s got %s", agentID, gotAgent)
			}
			return &delivery.AssignmentList{
				Assignments: []models.DeliveryAssignment{{ID: uuid.New(), AgentID: gotAgent}},
			}, nil
		},
	}
	router := newTestRouter(t, cfg, &stubOrdersRepo{}, deliveryRepo)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/agent/orders", nil)
	req.Header.Set("Authorization", "Bearer "+buildTokenWithUserID(t, cfg, enums.ActorRoleDelivery, agentID))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 for scoped agent listing got %d: %s", resp.Code, resp.Body.String())
	}
}
