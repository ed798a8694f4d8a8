package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/ayo6706/mfs-ledger/internal/api"
	"github.com/ayo6706/mfs-ledger/internal/api/middleware"
	"github.com/ayo6706/mfs-ledger/internal/auth/pin"
	"github.com/ayo6706/mfs-ledger/internal/config"
	"github.com/ayo6706/mfs-ledger/internal/db"
	"github.com/ayo6706/mfs-ledger/internal/domain"
	"github.com/ayo6706/mfs-ledger/internal/events"
	"github.com/ayo6706/mfs-ledger/internal/idempotency"
	"github.com/ayo6706/mfs-ledger/internal/lock"
	"github.com/ayo6706/mfs-ledger/internal/observability"
	"github.com/ayo6706/mfs-ledger/internal/repository"
	"github.com/ayo6706/mfs-ledger/internal/service"
	"github.com/ayo6706/mfs-ledger/internal/store"
	"github.com/ayo6706/mfs-ledger/internal/store/memstore"
	"github.com/ayo6706/mfs-ledger/internal/store/mongostore"
	"github.com/ayo6706/mfs-ledger/internal/worker"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Run bootstraps the ledger, the HTTP server and the reconciliation worker,
// blocking until shutdown.
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
	middleware.SetJWTSecret(cfg.JWTSecret)
	middleware.SetJWTValidation(cfg.JWTIssuer, cfg.JWTAudience)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ledgerStore, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	var (
		redisClient *redis.Client
		idemStore   *idempotency.Store
		locker      lock.Locker = lock.NopLocker{}
	)
	if cfg.RedisURL != "" {
		redisClient, err = newRedisClient(cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connect redis: %w", err)
		}
		defer redisClient.Close()

		idemStore = idempotency.NewStore(redisClient, cfg.IdempotencyTTL)
		if cfg.RedisLocksEnabled {
			opts := lock.DefaultOptions()
			opts.Expiry = cfg.LockTTL
			locker = lock.NewRedisLocker(redisClient, opts)
		}
	} else {
		logger.Warn("REDIS_URL not set: idempotency replay and distributed locks are disabled")
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.AMQPURL != "" {
		amqpPublisher, err := events.NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPExchange)
		if err != nil {
			return fmt.Errorf("connect amqp: %w", err)
		}
		defer amqpPublisher.Close()
		publisher = amqpPublisher
	}

	if cfg.DeclinePolicy == domain.DeclineRefundAll {
		logger.Warn("declined cash-in requests credit the requester", zap.String("decline_refund_policy", string(cfg.DeclinePolicy)))
	}

	deps := service.Deps{
		Store:     ledgerStore,
		Secrets:   pin.NewHasher(cfg.PINHashCost),
		Locker:    locker,
		Publisher: publisher,
		Fees:      cfg.Fees,
		Seeds:     cfg.StartingBalances,
		Decline:   cfg.DeclinePolicy,
	}
	svcs := api.Services{
		Accounts:     service.NewAccountService(deps),
		Lifecycle:    service.NewLifecycleService(deps),
		Transfers:    service.NewTransferService(deps),
		Requests:     service.NewRequestService(deps),
		Transactions: service.NewTransactionService(ledgerStore),
	}

	if cfg.Admin.Enabled() {
		if _, err := svcs.Accounts.EnsureAdmin(ctx, service.AdminSeed{
			Name:   cfg.Admin.Name,
			Email:  cfg.Admin.Email,
			Mobile: cfg.Admin.Mobile,
			PIN:    cfg.Admin.PIN,
		}); err != nil {
			return fmt.Errorf("bootstrap admin: %w", err)
		}
	}

	reconciliationWorker := worker.NewReconciliationWorker(service.NewReconciliationService(ledgerStore)).
		WithSchedule(cfg.ReconciliationSchedule)
	stopWorker, err := reconciliationWorker.Run(ctx)
	if err != nil {
		return fmt.Errorf("start reconciliation worker: %w", err)
	}

	var redisCmd redis.Cmdable
	if redisClient != nil {
		redisCmd = redisClient
	}
	router := api.NewRouter(cfg, logger, ledgerStore, idemStore, redisCmd, svcs)

	server := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      router.Routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("port", cfg.HTTPPort), zap.String("store", cfg.StoreDriver))
		serverErr <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case <-sigChan:
		logger.Info("shutdown signal received")
	case err := <-serverErr:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			stopWorker()
			return fmt.Errorf("server error: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown failed", zap.Error(err))
	}

	logger.Info("stopping reconciliation worker")
	stopWorker()

	logger.Info("shutdown complete")
	return nil
}

// openStore connects the configured ledger backend and returns a function
// that releases it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (store.Store, func(), error) {
	switch cfg.StoreDriver {
	case config.StoreDriverPostgres:
		if cfg.DatabaseMigrate {
			if err := db.Migrate(cfg.DatabaseURL, logger); err != nil {
				return nil, nil, fmt.Errorf("migrate database: %w", err)
			}
		}
		pool, err := db.Connect(ctx, cfg.DatabaseURL, db.PoolOptions{MaxConns: cfg.DatabaseMaxConns})
		if err != nil {
			return nil, nil, fmt.Errorf("connect database: %w", err)
		}
		return repository.NewStore(pool), pool.Close, nil
	case config.StoreDriverMongo:
		s, err := mongostore.Open(ctx, cfg.MongoURI, cfg.MongoDatabase)
		if err != nil {
			return nil, nil, fmt.Errorf("connect mongo: %w", err)
		}
		return s, func() {
			closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := s.Close(closeCtx); err != nil {
				logger.Warn("mongo disconnect failed", zap.Error(err))
			}
		}, nil
	case config.StoreDriverMemory:
		logger.Warn("using the in-memory store: balances are lost on restart")
		return memstore.New(), func() {}, nil
	default:
		return nil, nil, fmt.Errorf("unsupported store driver %q", cfg.StoreDriver)
	}
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
