package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"wallet-ledger/config"
	"wallet-ledger/internal/adapter/events"
	httpHandler "wallet-ledger/internal/adapter/http/handler"
	"wallet-ledger/internal/adapter/psp"
	pgStorage "wallet-ledger/internal/adapter/storage/postgres"
	redisStorage "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/metrics"
	"wallet-ledger/internal/service"
	"wallet-ledger/pkg/logger"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
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
		Msg("Starting Wallet Ledger")

	ctx := context.Background()

	// Initialize PostgreSQL pool
	pool, err := pgStorage.NewPool(ctx, cfg.Database, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()
	log.Info().Msg("PostgreSQL connected")

	// Initialize Redis client
	rdb, err := redisStorage.NewClient(ctx, cfg.Redis, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()
	log.Info().Msg("Redis connected")

	// NATS JetStream publisher (optional)
	var publisher ports.EventPublisher
	if cfg.NATS.URL != "" {
		nc, err := nats.Connect(cfg.NATS.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to NATS")
		}
		defer nc.Drain() //nolint:errcheck
		js, err := jetstream.New(nc)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create JetStream context")
		}
		publisher, err = events.NewNATSPublisher(ctx, js, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize ledger entry stream")
		}
		log.Info().Str("url", cfg.NATS.URL).Msg("NATS connected")
	} else {
		log.Info().Msg("NATS disabled, ledger entries will not be published")
	}

	// Metrics registry
	m := metrics.New()

	// Initialize repositories
	balanceRepo := pgStorage.NewBalanceRepo(pool)
	ledgerRepo := pgStorage.NewLedgerRepo(pool)
	txRepo := pgStorage.NewTransactionRepo(pool)
	reconRepo := pgStorage.NewReconRepo(pool)
	auditRepo := pgStorage.NewAuditRepo(pool)
	transactor := pgStorage.NewTransactor(pool)

	// Initialize Redis stores
	nonceStore := redisStorage.NewNonceStore(rdb)
	respCache := redisStorage.NewIdempotencyCache(rdb)
	rateLimitStore := redisStorage.NewRateLimitStore(rdb)

	// Initialize core services
	sigSvc := service.NewHMACSignatureService()
	secretSvc := service.NewHKDFSecretService(cfg.Webhook.MasterSecret)
	tokenSvc := service.NewJWTTokenService(cfg.JWT.Secret, cfg.JWT.Expiry, cfg.JWT.Issuer)
	auditSvc := service.NewAuditService(auditRepo, log)

	// Outbound PSP client (optional)
	var pspClient ports.PSPClient
	var exportFeed ports.ExportFeed
	if cfg.PSP.BaseURL != "" {
		client := psp.NewClient(cfg.PSP.BaseURL, cfg.PSP.APIKey, cfg.PSP.Timeout, sigSvc, log)
		pspClient = client
		exportFeed = psp.NewHTTPExportFeed(client)
		log.Info().Str("base_url", cfg.PSP.BaseURL).Msg("PSP client configured")
	} else {
		log.Info().Msg("PSP disabled, deposits stay manual and reconciliation has no feed")
	}

	// Initialize business services
	ledgerSvc := service.NewLedgerService(balanceRepo, ledgerRepo, auditSvc, transactor, publisher, m, log)
	txSvc := service.NewTransactionService(txRepo, ledgerSvc, auditSvc, pspClient, transactor, m, log)
	gate := service.NewWebhookGate(
		sigSvc,
		secretSvc,
		nonceStore,
		respCache,
		ledgerSvc,
		txSvc,
		ledgerRepo,
		cfg.Webhook.Tolerance,
		cfg.Webhook.NonceTTL,
		cfg.Webhook.ResponseTTL,
		m,
		log,
	)
	reconSvc := service.NewReconService(reconRepo, ledgerRepo, exportFeed, m, log)

	// Initialize health checkers
	pgHealth := pgStorage.NewHealthCheck(pool)
	redisHealth := redisStorage.NewHealthCheck(rdb)

	// Load OpenAPI spec for Swagger UI
	if specBytes, err := os.ReadFile("docs/api/openapi.yaml"); err == nil {
		httpHandler.SetSwaggerSpec(specBytes)
		log.Info().Msg("OpenAPI spec loaded for Swagger UI at /swagger")
	} else {
		log.Warn().Err(err).Msg("OpenAPI spec not found, Swagger UI will be unavailable")
	}

	// Setup Gin router with all routes
	router := httpHandler.SetupRouter(httpHandler.RouterDeps{
		Gate:           gate,
		LedgerSvc:      ledgerSvc,
		TxSvc:          txSvc,
		ReconSvc:       reconSvc,
		AuditSvc:       auditSvc,
		TokenSvc:       tokenSvc,
		RateLimitStore: rateLimitStore,
		HealthCheckers: []ports.HealthChecker{pgHealth, redisHealth},
		Metrics:        m,
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
