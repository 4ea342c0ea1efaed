package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"arena-platform/config"
	"arena-platform/handlers"
	"arena-platform/logger"
	"arena-platform/middleware"
	"arena-platform/services"
	"arena-platform/storage"
	"arena-platform/utils"
)

func main() {
	// no .env file is fine, the process environment wins anyway
	_ = godotenv.Load()

	cfg := config.Load()
	logger.Init(cfg.LogLevel, cfg.LogDevelopment)
	defer logger.Sync()
	log := logger.L()

	key, err := middleware.LoadVerifyKey(cfg.JWTKeyFile)
	if err != nil {
		log.Fatal("failed to load token verification key",
			zap.String("path", cfg.JWTKeyFile), zap.Error(err))
	}

	catalog, err := storage.OpenCatalog(cfg)
	if err != nil {
		log.Fatal("failed to connect to catalog", zap.Error(err))
	}
	if err := catalog.Migrate(); err != nil {
		log.Fatal("failed to migrate catalog", zap.Error(err))
	}

	stores := storage.NewTenantStores(cfg)

	if err := utils.InitSnapshotExport(); err != nil {
		log.Fatal("failed to initialize snapshot export", zap.Error(err))
	}

	billing := services.NewBillingService(catalog, stores)
	tenants := services.NewTenantService(catalog, stores, billing, cfg.AdminHostname, cfg.InitializeScript)
	players := services.NewPlayerService(catalog, stores)
	competitions := services.NewCompetitionService(catalog, stores)

	sched, err := billing.StartBillingSnapshots(time.Duration(cfg.SnapshotIntervalMinutes) * time.Minute)
	if err != nil {
		log.Fatal("failed to start reconciliation scheduler", zap.Error(err))
	}

	app := fiber.New(fiber.Config{
		ErrorHandler: handlers.ErrorHandler,
		BodyLimit:    32 * 1024 * 1024,
	})
	app.Use(recover.New())
	app.Use(requestid.New(requestid.Config{Generator: uuid.NewString}))
	app.Use(middleware.AccessLog())

	resolver := middleware.ViewerResolver(key, cfg.BaseHostname, catalog.TenantByName)
	handlers.SetupRoutes(app, resolver, tenants, players, competitions, billing)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		if err := app.Listen(":" + cfg.Port); err != nil {
			log.Error("server stopped", zap.Error(err))
		}
	}()
	log.Info("arena-platform listening",
		zap.String("port", cfg.Port),
		zap.String("base_hostname", cfg.BaseHostname),
	)

	<-ctx.Done()
	log.Info("shutting down")
	_ = sched.Shutdown()
	_ = app.Shutdown()
}
