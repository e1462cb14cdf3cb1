package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"dexflow/internal/auth"
	"dexflow/internal/chain"
	"dexflow/internal/config"
	"dexflow/internal/database"
	"dexflow/internal/engine"
	"dexflow/internal/ledger"
	"dexflow/internal/metrics"
	"dexflow/internal/orders"
	"dexflow/internal/pricing"
	"dexflow/internal/security"
	"dexflow/internal/types"
	"dexflow/pkg/middleware"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main wires the trading bot engine and its API surface, starts the
// condition monitor, and runs until interrupted.
func main() {
	cfg, err := config.Load(os.Getenv("DEXFLOW_CONFIG"))
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize database
	db, err := database.NewDatabase(cfg.Database.Path)
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize router
	router := gin.Default()

	// Initialize services and handlers
	authService := auth.NewService(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL)
	authHandlers := auth.NewGinHandlers(authService)
	// Register test credentials
	authService.RegisterAPICredentials(auth.TestAPIKey, auth.TestAPISecret, "user-demo")
	authService.RegisterAPICredentials("admin-api-key", "admin-api-secret", "operator", "trade", "admin")

	securityService := security.NewService(db, cfg)
	securityHandlers := security.NewGinHandlers(securityService)

	ledgerService := ledger.NewService(db)
	// Attempts orphaned by a previous crash must not linger as pending.
	if recovered, err := ledgerService.RecoverOrphaned(cfg.Engine.ConfirmTimeout); err != nil {
		zlog.Error().Err(err).Msg("Failed to recover orphaned transactions")
	} else if recovered > 0 {
		zlog.Warn().Int64("count", recovered).Msg("Failed orphaned transactions from previous run")
	}

	orderService := orders.NewService(db, securityService)
	orderHandlers := orders.NewGinHandlers(orderService, ledgerService)

	emitter := metrics.NewService(db)

	prices := pricing.NewRandomWalkSource(time.Now().UnixNano(), 0.02)
	adapter := chain.NewSimulatedAdapter(time.Now().UnixNano())

	coordinator := engine.NewCoordinator(cfg, orderService.DB(), ledgerService, securityService, adapter, prices, emitter)
	orderService.SetDispatcher(coordinator)
	orderService.SetClaimGuard(coordinator.Claims())

	seedDemoData(orderService, prices)

	// Create and start the condition monitor
	monitor := engine.NewMonitor(cfg, orderService.DB(), coordinator, prices, emitter)
	monitorCtx, monitorCancel := context.WithCancel(context.Background())
	defer monitorCancel()

	go monitor.Start(monitorCtx)

	// Setup middleware
	router.Use(middleware.RateLimit())

	// Setup API routes
	setupRoutes(router, cfg, authHandlers, orderHandlers, securityHandlers)

	// Create server
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: router,
	}

	// Graceful shutdown setup
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal().Err(err).Msg("listen")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down server...")

	// Stop scanning, then let in-flight executions drain.
	monitorCancel()
	coordinator.Wait()

	// Give outstanding requests 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zlog.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	zlog.Info().Msg("Server exiting")
}

// seedDemoData provisions demo wallets and starting quotes so a fresh
// instance is usable immediately. Wallet creation is idempotent thanks to
// the (user, network) unique index; duplicate errors are ignored.
func seedDemoData(orderService *orders.Service, prices *pricing.RandomWalkSource) {
	wallets := map[string]string{
		"SOL": "4Nd1mYvhGkXxXiPZLRmQmUXnPmRqbtmmN81ByTdm5cvM",
		"TON": "EQAvDfWFG0oYX7YM82PNNyi8TdWcYCi1YjknFzGTsH1Z23aM",
	}
	for _, user := range []string{"user-demo", "operator"} {
		for network, address := range wallets {
			_ = orderService.DB().CreateWallet(&types.Wallet{
				UserID:  user,
				Network: network,
				Address: address,
			})
		}
	}

	prices.Seed("SOL", "SOL", "USDT", decimal.NewFromInt(150))
	prices.Seed("TON", "TON", "USDT", decimal.NewFromInt(6))
}

// setupRoutes configures all API endpoints and their handlers
// It groups routes by functionality and applies appropriate middleware:
// - Auth routes: Public endpoints for authentication
// - Order routes: Protected by JWT authentication
// - Internal routes: Protected by the admin permission
func setupRoutes(
	router *gin.Engine,
	cfg *config.Config,
	authHandlers *auth.GinHandlers,
	orderHandlers *orders.GinHandlers,
	securityHandlers *security.GinHandlers,
) {
	v1 := router.Group("/api/v1")
	{
		// Auth routes
		authGroup := v1.Group("/auth")
		{
			authGroup.POST("/token", authHandlers.GenerateTokenHandler())
		}

		// Order routes
		orderGroup := v1.Group("/orders")
		orderGroup.Use(middleware.JWTAuth(cfg.Auth.JWTSecret))
		{
			orderGroup.POST("", orderHandlers.CreateOrderHandler())
			orderGroup.GET("", orderHandlers.ListOrdersHandler())
			orderGroup.GET("/:order_id", orderHandlers.GetOrderHandler())
			orderGroup.GET("/:order_id/transactions", orderHandlers.ListOrderTransactionsHandler())
			orderGroup.DELETE("/:order_id", orderHandlers.CancelOrderHandler())
		}

		// Internal routes (operator only)
		internal := v1.Group("/internal")
		internal.Use(middleware.InternalAuth(cfg.Auth.JWTSecret))
		{
			internal.GET("/alerts", securityHandlers.ListAlertsHandler())
			internal.POST("/alerts/:alert_id/resolve", securityHandlers.ResolveAlertHandler())
		}
	}
}
