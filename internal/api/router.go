package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/ayo6706/mfs-ledger/internal/api/handler"
	"github.com/ayo6706/mfs-ledger/internal/api/middleware"
	"github.com/ayo6706/mfs-ledger/internal/api/spec"
	"github.com/ayo6706/mfs-ledger/internal/config"
	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/idempotency"
	"github.com/ayo6706/mfs-ledger/internal/service"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"
)

// Services bundles the ledger services the HTTP surface exposes.
type Services struct {
	Accounts     *service.AccountService
	Lifecycle    *service.LifecycleService
	Transfers    *service.TransferService
	Requests     *service.RequestService
	Transactions *service.TransactionService
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	store     store.Store
	idemStore *idempotency.Store
	redis     redis.Cmdable
	svcs      Services
}

// NewRouter wires handlers to their services. idemStore and redis may be nil,
// in which case idempotency replay and the Redis readiness check are off.
func NewRouter(cfg *config.Config, logger *zap.Logger, s store.Store, idemStore *idempotency.Store, redisClient redis.Cmdable, svcs Services) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{
		cfg:       cfg,
		logger:    logger,
		store:     s,
		idemStore: idemStore,
		redis:     redisClient,
		svcs:      svcs,
	}
}

func (api *Router) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.TraceMiddleware)
	r.Use(middleware.RecoverMiddleware(api.logger))
	r.Use(middleware.LoggingMiddleware(api.logger))
	r.Use(middleware.MetricsMiddleware)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   api.cfg.CORSAllowedOrigins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", middleware.IdempotencyKeyHeader, middleware.TraceIDHeader},
		ExposedHeaders:   []string{middleware.TraceIDHeader, "X-Idempotent-Replay"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	healthHandler := handler.NewHealthHandler(api.store, api.redis)
	userHandler := handler.NewUserHandler(api.svcs.Accounts)
	authHandler := handler.NewAuthHandler(api.svcs.Accounts, api.cfg.JWTTTL)
	accountHandler := handler.NewAccountHandler(api.svcs.Accounts, api.svcs.Lifecycle)
	transferHandler := handler.NewTransferHandler(api.svcs.Transfers)
	requestHandler := handler.NewRequestHandler(api.svcs.Requests)
	transactionHandler := handler.NewTransactionHandler(api.svcs.Transactions)
	idempotent := middleware.IdempotencyMiddleware(api.idemStore, api.logger)

	r.Get("/healthz/live", healthHandler.Live)
	r.Get("/healthz/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/docs/index.html", http.StatusMovedPermanently)
	})
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/users", userHandler.CreateUser)
		r.Post("/v1/auth/login", authHandler.Login)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		r.Get("/v1/me", accountHandler.Me)
		r.Get("/v1/requests", requestHandler.ListRequests)
		r.Get("/v1/transactions", transactionHandler.ListOwn)

		r.With(idempotent).Post("/v1/transfers", transferHandler.MakeTransfer)
		r.With(idempotent).Post("/v1/cash-in", requestHandler.CashIn)
		r.With(idempotent).Post("/v1/cash-out", requestHandler.CashOut)

		r.Route("/v1/admin", func(r chi.Router) {
			r.Use(middleware.RequireRole(string(domain.RoleAdmin)))
			r.Use(middleware.RequireCurrentRole(api.currentRole, string(domain.RoleAdmin)))

			r.Get("/accounts", accountHandler.ListAccounts)
			r.With(idempotent).Post("/accounts/{mobile}/activate", accountHandler.Activate)
			r.With(idempotent).Post("/accounts/{mobile}/block", accountHandler.Block)
			r.Get("/requests", requestHandler.ListRequests)
			r.With(idempotent).Post("/requests/{id}/approve", requestHandler.Approve)
			r.With(idempotent).Post("/requests/{id}/decline", requestHandler.Decline)
			r.Get("/transactions", transactionHandler.ListAll)
		})
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		handler.RespondError(w, r, http.StatusNotFound, "route/not-found", "no route for "+r.Method+" "+r.URL.Path)
	})

	return r
}

// currentRole reads the role of an account from the store. Inactive and
// unknown accounts hold no role.
func (api *Router) currentRole(ctx context.Context, mobile string) (string, error) {
	acct, err := api.store.Queries().GetAccountByMobile(ctx, mobile)
	if errors.Is(err, store.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if !acct.Active() {
		return "", nil
	}
	return string(acct.Role), nil
}
