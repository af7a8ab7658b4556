package handler

import (
	"wallet-ledger/internal/adapter/http/middleware"
	redisStore "wallet-ledger/internal/adapter/storage/redis"
	"wallet-ledger/internal/core/ports"
	"wallet-ledger/internal/metrics"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	Gate           ports.WebhookGate
	LedgerSvc      ports.LedgerService
	TxSvc          ports.TransactionService
	ReconSvc       ports.ReconService
	AuditSvc       ports.AuditService
	TokenSvc       ports.TokenService
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
	Metrics        *metrics.Metrics // nil = /metrics disabled
	Logger         zerolog.Logger
}

// SetupRouter initialises the Gin engine with all routes and middleware.
func SetupRouter(deps RouterDeps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	// Global middleware
	r.Use(middleware.Recovery(deps.Logger))
	r.Use(middleware.RequestLogger(deps.Logger))
	r.Use(middleware.MaxBodySize(1 << 20)) // 1 MB request body limit

	// Health check (deep — verifies PostgreSQL + Redis)
	r.GET("/health", HealthCheck(deps.HealthCheckers...))

	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	// Swagger documentation
	swagger := r.Group("/swagger")
	{
		swagger.GET("", SwaggerUI)
		swagger.GET("/spec", SwaggerSpec)
	}

	// Rate limit rules
	rules := middleware.DefaultRateLimitRules()

	// Helper: return rate limiter middleware if store is available, else noop.
	rl := func(group string) gin.HandlerFunc {
		if deps.RateLimitStore == nil {
			return func(c *gin.Context) { c.Next() }
		}
		rule, ok := rules[group]
		if !ok {
			return func(c *gin.Context) { c.Next() }
		}
		return middleware.RateLimiter(deps.RateLimitStore, group, rule, deps.Logger)
	}

	v1 := r.Group("/v1")

	// --- Provider callbacks (HMAC-authenticated inside the gate) ---
	webhookHandler := NewWebhookHandler(deps.Gate)
	v1.POST("/webhooks/:provider", rl("webhooks"), webhookHandler.HandleCallback)

	// --- Operator routes (JWT-authenticated) ---
	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	ledgerHandler := NewLedgerHandler(deps.LedgerSvc)
	balances := v1.Group("/balances", jwtAuth)
	{
		balances.GET("/:account_id", rl("ops"), ledgerHandler.GetBalance)
	}

	txHandler := NewTransactionHandler(deps.TxSvc)
	transactions := v1.Group("/transactions", jwtAuth)
	{
		transactions.POST("", rl("transactions"), txHandler.Create)
		transactions.POST("/:id/transition", rl("transactions"), txHandler.Transition)
		transactions.GET("/:id", rl("ops"), txHandler.Get)
	}

	reconHandler := NewReconHandler(deps.ReconSvc)
	recon := v1.Group("/recon", jwtAuth)
	{
		recon.POST("/runs", rl("recon"), reconHandler.CreateRun)
		recon.GET("/findings", rl("ops"), reconHandler.ListFindings)
		recon.POST("/findings/:id/resolve", rl("ops"), reconHandler.ResolveFinding)
	}

	auditHandler := NewAuditHandler(deps.AuditSvc)
	audit := v1.Group("/audit", jwtAuth)
	{
		audit.GET("/verify", rl("ops"), auditHandler.VerifyChain)
	}

	return r
}
