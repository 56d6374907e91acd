package main

import (
	"context"
	"log"

	"harmonyclass-api/internal/api"
	"harmonyclass-api/internal/config"
	"harmonyclass-api/internal/database"
	"harmonyclass-api/internal/middleware"
	"harmonyclass-api/internal/services"
	"harmonyclass-api/pkg/logging"

	"github.com/gin-gonic/gin"
)

func main() {
	// Initialize configuration
	cfg, err := config.InitConfig()
	if err != nil {
		log.Fatal("Failed to initialize config:", err)
	}

	// Initialize logging
	logging.InitLogging(cfg.Mode, cfg.LogLevel)
	for _, name := range cfg.Missing() {
		logging.Warnf("%s is not set, features that need it will fail", name)
	}

	// Initialize database
	db, err := database.Open(cfg)
	if err != nil {
		log.Fatal("Failed to initialize database:", err)
	}

	rdb, err := database.OpenRedis(context.Background(), cfg.RedisURL)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer database.Close(db, rdb)

	var (
		ledger  services.EventLedger
		limiter services.RateLimiter
	)
	if rdb != nil {
		ledger = services.NewRedisEventLedger(rdb, cfg.EventLedgerTTL)
		limiter = services.NewRedisRateLimiter(rdb, "checkout", cfg.CheckoutRateLimit)
	} else {
		logging.Warnf("REDIS_URL not set, using in-memory event ledger without checkout rate limit")
		memoryLedger := services.NewMemoryEventLedger(cfg.EventLedgerTTL)
		defer memoryLedger.Stop()
		ledger = memoryLedger
	}

	store := database.NewProfileStore(db)
	mailing, groups := services.NewMailingList(cfg)
	stripeService := services.NewStripeService(cfg)

	handlers := &api.Handlers{
		Checkout:     services.NewCheckoutService(stripeService, services.PlanFromConfig(cfg), cfg.SiteURL, limiter, cfg.ExternalCallTimeout),
		Reconciler:   services.NewReconciler(stripeService, store, mailing, groups, ledger, stripeService, cfg.ExternalCallTimeout),
		Newsletter:   services.NewNewsletterService(mailing, store, groups, cfg.ExternalCallTimeout),
		News:         services.NewNewsService(cfg, database.NewCache(rdb)),
		Subscription: services.NewSubscriptionService(store),
	}

	// Set Gin mode
	gin.SetMode(cfg.Mode)

	// Create Gin engine
	r := gin.Default()
	r.Use(middleware.RequestID())

	// Setup routes
	api.SetupRoutes(r, handlers, middleware.SupabaseAuthMiddleware(cfg.SupabaseJWTSecret))

	// Start server
	logging.Infof("Starting server on port %s (mailing provider: %s)", cfg.Port, cfg.MailingProvider)

	if err := r.Run(":" + cfg.Port); err != nil {
		log.Fatal("Failed to start server:", err)
	}
}
