package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger-engine/config"
	httpHandler "wallet-ledger-engine/internal/adapter/http/handler"
	kafkaMsg "wallet-ledger-engine/internal/adapter/messaging/kafka"
	pgStorage "wallet-ledger-engine/internal/adapter/storage/postgres"
	redisStorage "wallet-ledger-engine/internal/adapter/storage/redis"
	"wallet-ledger-engine/internal/core/ports"
	"wallet-ledger-engine/internal/service"
	"wallet-ledger-engine/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load("")
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Pretty)

	log.Info().
		Str("mode", cfg.Server.Mode).
		Int("port", cfg.Server.Port).
		Msg("Starting Wallet Ledger Engine")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	if cfg.Database.MigrationsAuto {
		if err := pgStorage.RunMigrations(cfg.Database.DSN()); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
		log.Info().Msg("Migrations applied")
	}

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// Initialize Kafka alert bus
	alertBus, err := kafkaMsg.NewAlertBus(ctx, cfg.Kafka, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Kafka")
	}
	defer alertBus.Close()
	log.Info().Msg("Kafka alert bus ready")

	// Initialize repositories
	walletRepo := pgStorage.NewWalletRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	quarantineRepo := pgStorage.NewQuarantineRepo(pool)
	susRepo := pgStorage.NewSuspiciousActivityRepo(pool)
	feeRuleRepo := pgStorage.NewFeeRuleRepo(pool)
	panicRepo := pgStorage.NewPanicStateRepo(pool)
	idempotencyRepo := pgStorage.NewIdempotencyRepo(pool)
	projectionRepo := pgStorage.NewProjectionRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	idempotencyStore := redisStorage.NewIdempotencyStore(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize services
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	pinSvc := service.NewArgon2PinService()
	feeSvc := service.NewFeeService(feeRuleRepo)
	ledgerSvc := service.NewLedgerService(ledgerRepo, log)
	panicSvc := service.NewPanicService(panicRepo, alertBus, log)
	fraudSvc := service.NewFraudService(txRepo, susRepo, alertBus, cfg.Fraud, log)
	idempotencySvc := service.NewIdempotencyService(idempotencyStore, idempotencyRepo, cfg.Idempotency.WindowSeconds, cfg.Idempotency.TTL, log)

	projectionSvc, err := service.NewProjectionService(projectionRepo, cfg.Projection.Workers, cfg.Projection.Roles, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to start projection workers")
	}
	defer projectionSvc.Close()

	quarantineSvc := service.NewQuarantineService(quarantineRepo, txRepo, walletRepo, ledgerSvc, transactor, alertBus, projectionSvc, log)
	transferSvc := service.NewTransferService(
		walletRepo,
		txRepo,
		idempotencySvc,
		feeSvc,
		fraudSvc,
		panicSvc,
		ledgerSvc,
		quarantineSvc,
		pinSvc,
		alertBus,
		projectionSvc,
		transactor,
		cfg.Platform,
		log,
	)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		TransferSvc:    transferSvc,
		PanicSvc:       panicSvc,
		QuarantineSvc:  quarantineSvc,
		FraudSvc:       fraudSvc,
		LedgerSvc:      ledgerSvc,
		TokenSvc:       tokenSvc,
		WalletRepo:     walletRepo,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Logger:         log,
	})

	// HTTP Server with graceful shutdown
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:    addr,
		Handler: router,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited")
}
