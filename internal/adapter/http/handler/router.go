package handler

import (
	"wallet-ledger-engine/internal/adapter/http/middleware"
	redisStore "wallet-ledger-engine/internal/adapter/storage/redis"
	"wallet-ledger-engine/internal/core/ports"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// RouterDeps holds all dependencies needed to set up routes.
type RouterDeps struct {
	TransferSvc    ports.TransferService
	PanicSvc       ports.PanicService
	QuarantineSvc  ports.QuarantineService
	FraudSvc       ports.FraudService
	LedgerSvc      ports.LedgerService
	TokenSvc       ports.TokenService
	WalletRepo     ports.WalletRepository
	RateLimitStore *redisStore.RateLimitStore // nil = rate limiting disabled
	HealthCheckers []ports.HealthChecker
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

	// API v1 routes
	v1 := r.Group("/api/v1")

	jwtAuth := middleware.JWTAuth(deps.TokenSvc, deps.Logger)

	// --- Wallet routes (any authenticated user) ---
	walletHandler := NewWalletHandler(deps.TransferSvc, deps.WalletRepo)
	wallet := v1.Group("/wallet", jwtAuth)
	{
		wallet.POST("/operations", rl("wallet_operations"), walletHandler.Operate)
		wallet.GET("/balance", rl("wallet_balance"), walletHandler.GetBalance)
	}

	// --- Oversight routes (operator role required) ---
	oversightHandler := NewOversightHandler(deps.PanicSvc, deps.QuarantineSvc, deps.FraudSvc, deps.LedgerSvc)
	oversight := v1.Group("/oversight", jwtAuth, middleware.RequireOperator())
	{
		oversight.GET("/panic", rl("oversight"), oversightHandler.GetPanicState)
		oversight.POST("/panic", rl("oversight"), oversightHandler.TogglePanic)
		oversight.GET("/quarantine", rl("oversight"), oversightHandler.ListQuarantine)
		oversight.POST("/quarantine/:id/resolve", rl("oversight"), oversightHandler.ResolveQuarantine)
		oversight.GET("/suspicious", rl("oversight"), oversightHandler.ListSuspicious)
		oversight.POST("/suspicious/:id/ack", rl("oversight"), oversightHandler.AcknowledgeSuspicious)
		oversight.GET("/ledger", rl("oversight"), oversightHandler.LedgerFeed)
		oversight.GET("/ledger/verify", rl("oversight"), oversightHandler.VerifyLedger)
	}

	return r
}
