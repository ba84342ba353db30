package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/localkart/localkart-backend/api/controllers"
	"github.com/localkart/localkart-backend/api/middleware"
	"github.com/localkart/localkart-backend/internal/delivery"
	"github.com/localkart/localkart-backend/internal/handoff"
	"github.com/localkart/localkart-backend/internal/orders"
	"github.com/localkart/localkart-backend/pkg/config"
	"github.com/localkart/localkart-backend/pkg/db"
	"github.com/localkart/localkart-backend/pkg/enums"
	"github.com/localkart/localkart-backend/pkg/logger"
	"github.com/localkart/localkart-backend/pkg/redis"
)

// RouterParams carries everything the router wires into handlers.
type RouterParams struct {
	Config       *config.Config
	Logger       *logger.Logger
	DB           db.Pinger
	Redis        *redis.Client
	OrdersRepo   orders.Repository
	OrdersSvc    orders.Service
	DeliveryRepo delivery.Repository
	DeliverySvc  *delivery.Service
	HandoffSvc   *handoff.Service
	Metrics      prometheus.Gatherer
}

func NewRouter(p RouterParams) http.Handler {
	cfg := p.Config
	logg := p.Logger

	// A typed nil *redis.Client must not leak into the middleware as a
	// non-nil interface, so convert only when the client is present.
	var idemStore redis.IdempotencyStore
	var rlStore interface {
		IncrWithTTL(context.Context, string, time.Duration) (int64, error)
	}
	var cachePinger redis.Pinger
	if p.Redis != nil {
		idemStore = p.Redis
		rlStore = p.Redis
		cachePinger = p.Redis
	}

	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, p.DB, cachePinger, logg))
	})

	if p.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(p.Metrics, promhttp.HandlerOpts{}))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))
		r.Use(middleware.Idempotency(idemStore, logg))

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", controllers.ListOrders(p.OrdersRepo, logg))
			r.With(middleware.RequireRole(logg, enums.ActorRoleCustomer)).
				Post("/", controllers.CreateOrder(p.OrdersSvc, logg))

			r.Route("/{orderId}", func(r chi.Router) {
				r.Get("/", controllers.OrderDetail(p.OrdersRepo, p.DeliveryRepo, logg))
				r.Post("/status", controllers.UpdateOrderStatus(p.OrdersSvc, p.DeliveryRepo, logg))
				r.Post("/cancel", controllers.CancelOrder(p.OrdersSvc, logg))

				r.With(middleware.RequireRole(logg, enums.ActorRoleShopkeeper, enums.ActorRoleAdmin)).
					Post("/assignment", controllers.AssignDelivery(p.DeliverySvc, logg))

				r.Route("/handoff", func(r chi.Router) {
					r.With(middleware.RequireRole(logg, enums.ActorRoleCustomer)).
						Post("/code", controllers.IssueHandoffCode(p.HandoffSvc, p.OrdersRepo, logg))
					r.With(
						middleware.RequireRole(logg, enums.ActorRoleDelivery),
						middleware.HandoffVerifyRateLimit(cfg.RateLimit, rlStore, logg),
					).Post("/verify", controllers.VerifyHandoff(p.OrdersSvc, p.DeliveryRepo, logg))
				})
			})
		})

		r.Route("/agent", func(r chi.Router) {
			r.Use(middleware.RequireRole(logg, enums.ActorRoleDelivery))
			r.Get("/profile", controllers.AgentProfile(p.DeliverySvc, logg))
			r.Put("/profile", controllers.UpsertAgentProfile(p.DeliverySvc, logg))
			r.Post("/availability", controllers.SetAgentAvailability(p.DeliverySvc, logg))
			r.Post("/location", controllers.AgentLocation(p.DeliverySvc, logg))
			r.Get("/orders", controllers.AgentOrders(p.DeliverySvc, logg))
		})
	})

	return r
}
