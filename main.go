package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"referral-engine/config"
	"referral-engine/handlers"
	"referral-engine/metrics"
	"referral-engine/middleware"
	"referral-engine/services"
	"referral-engine/storage"
	"referral-engine/workers"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	log, err := newLogger(cfg)
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	if cfg.Database.URL == "" {
		log.Fatal("DATABASE_URL environment variable not set")
	}
	if cfg.Server.ServiceToken == "" {
		log.Fatal("❌ REFERRAL_SERVICE_TOKEN is not set, service cannot authenticate Gateway")
	}

	db, err := storage.Open(cfg.Database.URL)
	if err != nil {
		log.Fatal("failed to connect to database", zap.Error(err))
	}
	if err := storage.Migrate(db); err != nil {
		log.Fatal("failed to migrate database", zap.Error(err))
	}

	codes := services.NewReferralCodeRegistry(db, log.Named("codes"))
	rewards := services.NewRewardEngine(db, log.Named("rewards"))
	api := &handlers.ReferralAPI{
		Codes:        codes,
		Ledger:       services.NewReferralLedger(db, log.Named("ledger"), codes),
		Clicks:       services.NewClickValidator(db, log.Named("clicks"), rewards),
		Claims:       services.NewClaimTokenService(db, log.Named("claims")),
		Dashboard:    services.NewDashboardService(db),
		ShareBaseURL: cfg.Referral.ShareBaseURL,
		Log:          log.Named("http"),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sweeper := workers.NewExpirySweeper(db, log.Named("sweeper"), cfg.Referral.SweepInterval)
	if err := sweeper.Start(ctx); err != nil {
		log.Fatal("failed to start expiry sweeper", zap.Error(err))
	}

	app := fiber.New(handlers.FiberConfig(cfg.Server.TrustedProxies))
	app.Use(recover.New())

	// Scraped inside the cluster, not through the gateway.
	app.Get("/metrics", metrics.Handler())
	app.Get("/healthz", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	// 🔐❗ Everything below only accepts Gateway requests
	app.Use(middleware.GatewayAuthMiddleware(cfg.Server.ServiceToken, log.Named("gateway")))
	app.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.Server.AllowedOrigins,
		AllowMethods:     "GET,POST,OPTIONS",
		AllowHeaders:     "Origin, Content-Type, Accept, Authorization, X-Requested-With, X-Request-ID, X-User-ID",
		AllowCredentials: true,
		MaxAge:           86400,
	}))

	handlers.SetupReferralRoutes(app, api)

	go func() {
		if err := app.Listen(":" + cfg.Server.Port); err != nil {
			log.Error("server error", zap.Error(err))
		}
	}()

	log.Info("✅ Referral engine running", zap.String("port", cfg.Server.Port))
	log.Info("✅ Expiry sweeper running", zap.Duration("interval", cfg.Referral.SweepInterval))
	log.Info("✅ CORS configured", zap.String("origins", cfg.Server.AllowedOrigins))

	<-ctx.Done()
	log.Info("Shutting down server...")
	if err := app.ShutdownWithTimeout(10 * time.Second); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
}

func newLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}
