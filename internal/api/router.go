package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	httpSwagger "github.com/swaggo/http-swagger/v2"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/api/handler"
	"github.com/rentfolio/escrow-ledger/internal/api/middleware"
	"github.com/rentfolio/escrow-ledger/internal/api/spec"
	"github.com/rentfolio/escrow-ledger/internal/config"
	"github.com/rentfolio/escrow-ledger/internal/domain"
	"github.com/rentfolio/escrow-ledger/internal/idempotency"
	"github.com/rentfolio/escrow-ledger/internal/repository"
	"github.com/rentfolio/escrow-ledger/internal/service"
)

// Services bundles the domain services the router wires into handlers.
type Services struct {
	Account *service.AccountService
	Payment *service.PaymentService
	Release *service.ReleaseService
	Cleanup *service.CleanupService
	Webhook *service.WebhookService
	Rule    *service.RuleService
	Charge  *service.ChargeService
}

type Router struct {
	cfg       *config.Config
	logger    *zap.Logger
	db        *pgxpool.Pool
	repo      *repository.Repository
	idemStore *idempotency.Store
	redis     redis.Cmdable
	svcs      Services
}

func NewRouter(cfg *config.Config, logger *zap.Logger, db *pgxpool.Pool, repo *repository.Repository, idemStore *idempotency.Store, redisClient redis.Cmdable, svcs Services) *Router {
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)
	return &Router{
		cfg:       cfg,
		logger:    logger,
		db:        db,
		repo:      repo,
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

	idem := middleware.IdempotencyMiddleware(api.idemStore, api.logger)

	authHandler := handler.NewAuthHandler(api.repo)
	userHandler := handler.NewUserHandler(api.repo)
	accountHandler := handler.NewAccountHandler(api.svcs.Account, api.svcs.Payment, api.svcs.Charge)
	paymentHandler := handler.NewPaymentHandler(api.svcs.Payment, api.svcs.Account)
	transactionHandler := handler.NewTransactionHandler(api.svcs.Payment, api.svcs.Release, api.svcs.Cleanup, api.svcs.Account)
	ruleHandler := handler.NewRuleHandler(api.svcs.Rule)
	chargeHandler := handler.NewChargeHandler(api.svcs.Charge, api.svcs.Account)
	webhookHandler := handler.NewWebhookHandler(api.svcs.Webhook)
	healthHandler := handler.NewHealthHandler(api.db, api.redis)

	// Operational endpoints
	r.Get("/health/live", healthHandler.Live)
	r.Get("/health/ready", healthHandler.Ready)
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/openapi.yaml", spec.OpenAPIHandler())
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/openapi.yaml")))

	// Public routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.PublicRateLimiter(api.cfg.PublicRateLimitRPS))
		r.Post("/v1/auth/login", authHandler.Login)
		r.Post("/v1/users", userHandler.CreateUser)
		r.Post("/v1/webhooks/capture", webhookHandler.HandleCaptureWebhook)
	})

	// Protected routes
	r.Group(func(r chi.Router) {
		r.Use(middleware.AuthMiddleware)
		r.Use(middleware.AuthRateLimiter(api.cfg.AuthRateLimitRPS))

		// Accounts
		r.Post("/v1/accounts", accountHandler.CreateAccount)
		r.Get("/v1/accounts/{id}", accountHandler.GetAccount)
		r.Get("/v1/accounts/{id}/transactions", accountHandler.GetTransactions)
		r.Get("/v1/accounts/{id}/upcoming-charges", accountHandler.GetUpcomingCharges)
		r.With(idem).Post("/v1/accounts/{id}/clear-pending", transactionHandler.ClearPending)

		// Payments and transactions
		r.With(idem).Post("/v1/payments", paymentHandler.CreatePayment)
		r.Get("/v1/transactions/{id}", transactionHandler.GetTransaction)
		r.With(idem).Post("/v1/transactions/{id}/release", transactionHandler.Release)
		r.With(middleware.RequireRoles(domain.RoleAdmin), idem).Post("/v1/transactions/{id}/refund", transactionHandler.Refund)
		r.With(idem).Post("/v1/transactions/{id}/cancel", transactionHandler.Cancel)
		r.Post("/v1/transactions/{id}/evidence", transactionHandler.AddEvidence)

		// Escrow rules (match is open to all roles for form prefill)
		r.Get("/v1/escrow-rules/match", ruleHandler.MatchRule)
		r.With(middleware.RequireRoles(domain.RoleAdmin)).Get("/v1/escrow-rules", ruleHandler.ListRules)
		r.With(middleware.RequireRoles(domain.RoleAdmin), idem).Put("/v1/escrow-rules", ruleHandler.UpsertRule)

		// Service charges
		r.With(middleware.RequireRoles(domain.RoleAdmin, domain.RoleLandlord), idem).Post("/v1/service-charges", chargeHandler.CreateCharge)
	})

	return r
}
