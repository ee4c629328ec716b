package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/rentfolio/escrow-ledger/internal/api"
	"github.com/rentfolio/escrow-ledger/internal/config"
	"github.com/rentfolio/escrow-ledger/internal/db"
	"github.com/rentfolio/escrow-ledger/internal/events"
	"github.com/rentfolio/escrow-ledger/internal/gateway"
	"github.com/rentfolio/escrow-ledger/internal/idempotency"
	"github.com/rentfolio/escrow-ledger/internal/observability"
	"github.com/rentfolio/escrow-ledger/internal/repository"
	"github.com/rentfolio/escrow-ledger/internal/service"
	"github.com/rentfolio/escrow-ledger/internal/worker"
)

// Run bootstraps the HTTP server and background workers, blocking until shutdown.
func Run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()
	zap.ReplaceGlobals(logger)
	observability.Init()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()

	redisClient, err := newRedisClient(cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer redisClient.Close()

	idemStore := idempotency.NewStore(redisClient, pool, cfg.IdempotencyTTL)
	repo := repository.NewRepository(pool)
	store := repository.NewStore(pool)
	publisher := events.NewRedisPublisher(redisClient)

	checkout := gateway.NewMockCheckout()
	ruleSvc := service.NewRuleService(store, cfg.DefaultFeePercent)
	accountSvc := service.NewAccountService(store)
	paymentSvc := service.NewPaymentService(store, checkout, ruleSvc, publisher)
	releaseSvc := service.NewReleaseService(store, publisher)
	cleanupSvc := service.NewCleanupService(store, publisher)
	webhookSvc := service.NewWebhookService(store, cfg.WebhookHMACKey, cfg.WebhookSkipSignature, publisher)
	chargeSvc := service.NewChargeService(store)
	reconciliationSvc := service.NewReconciliationService(store)

	releaseWorker := worker.NewReleaseWorker(releaseSvc).
		WithPollInterval(cfg.ReleasePollInterval).
		WithBatchSize(cfg.ReleaseBatchSize)
	stopReleaseWorker := releaseWorker.Run(ctx)
	logger.Info("release worker started", zap.Duration("interval", cfg.ReleasePollInterval), zap.Int32("batch", cfg.ReleaseBatchSize))

	reconciliationWorker := worker.NewReconciliationWorker(reconciliationSvc).
		WithInterval(cfg.ReconciliationInterval)
	stopReconciliationWorker := reconciliationWorker.Run(ctx)
	logger.Info("reconciliation worker started", zap.Duration("interval", cfg.ReconciliationInterval))

	router := api.NewRouter(cfg, logger, pool, repo, idemStore, redisClient, api.Services{
		Account: accountSvc,
		Payment: paymentSvc,
		Release: releaseSvc,
		Cleanup: cleanupSvc,
		Webhook: webhookSvc,
		Rule:    ruleSvc,
		Charge:  chargeSvc,
	})

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
	}

	logger.Info("stopping workers")
	stopReleaseWorker()
	stopReconciliationWorker()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("shutdown complete")
	return nil
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	switch strings.ToLower(level) {
	case "debug":
		cfg.Level = zap.NewAtomicLevelAt(zap.DebugLevel)
	case "info", "":
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	case "warn":
		cfg.Level = zap.NewAtomicLevelAt(zap.WarnLevel)
	case "error":
		cfg.Level = zap.NewAtomicLevelAt(zap.ErrorLevel)
	default:
		cfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	return cfg.Build()
}

func newRedisClient(url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return client, nil
}
