package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"hppgate/internal/bootstrap"
	"hppgate/internal/checkout"
	"hppgate/internal/config"
	cronpkg "hppgate/internal/cron"
	"hppgate/internal/handler"
	"hppgate/internal/handler/api"
	"hppgate/internal/metrics"
	"hppgate/internal/middleware"
	"hppgate/internal/payment"
	"hppgate/internal/pkg/telegram"
	"hppgate/internal/pricing"
	"hppgate/internal/repository"
	"hppgate/internal/router"
)

func main() {
	// --- Logger ---
	logger, err := zap.NewProduction()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	seed, err := loadSeed(argValue("--seed"))
	if err != nil {
		logger.Fatal("Failed to read seed file", zap.Error(err))
	}

	if hasArg("--bootstrap-db") {
		if err := runDBBootstrap(seed, logger); err != nil {
			logger.Fatal("Database bootstrap failed", zap.Error(err))
		}
		logger.Info("Database bootstrap completed")
		return
	}

	// --- Config ---
	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
	}

	// --- Database ---
	db, err := config.NewDatabase(&cfg.Database, logger)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	if err := bootstrap.MigrateAndSeed(db, seed); err != nil {
		logger.Fatal("Failed to bootstrap database schema", zap.Error(err))
	}

	// --- Repositories ---
	configs := repository.NewGatewayConfigLoader(db, cfg.Gateway.Name)
	payables := repository.NewPayableRepository(db)
	attempts := repository.NewAttemptRepository(db)
	events := repository.NewWebhookEventRepository(db)
	fees := pricing.NewPolicy(cfg.Gateway.SurchargePercent)

	// --- Metrics ---
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	paymentMetrics := metrics.NewPaymentMetrics("hppgate", registry)

	// --- Telegram reports ---
	notifier, err := telegram.NewNotifier(cfg.Telegram, "", logger)
	if err != nil {
		logger.Warn("Telegram reports disabled", zap.Error(err))
		notifier = nil
	}

	// --- Webhook Deduper (Redis with in-memory fallback) ---
	deduper, dedupeErr := middleware.NewEventDeduper(cfg.Redis.Addr, cfg.Redis.Pass, cfg.Redis.DB, 24*time.Hour)
	if dedupeErr != nil {
		logger.Warn("Redis unavailable for webhook dedup, using in-memory fallback", zap.Error(dedupeErr))
	}

	// --- Checkout ---
	dialer := payment.NewDialer(cfg.Gateway, logger)
	orchestrator := checkout.NewOrchestrator(dialer, configs, payables, fees, attempts, checkout.Settings{
		Gateway:   cfg.Gateway.Name,
		Mode:      cfg.Gateway.Mode,
		PublicURL: cfg.Site.PublicURL,
	}, paymentMetrics, logger)

	deps := checkout.ReconcilerDeps{
		Connector: dialer,
		Configs:   configs,
		Payables:  payables,
		Fees:      fees,
		Ledger:    repository.NewPaymentRepository(db),
		Deliverer: repository.NewDeliveryRepository(db),
		Records:   repository.NewIntentRecordRepository(db),
		Attempts:  attempts,
		Tx:        repository.NewTransactor(db),
		Gateway:   cfg.Gateway.Name,
		Metrics:   paymentMetrics,
		Logger:    logger,
	}
	if notifier != nil {
		deps.Notifier = notifier
	}
	reconciler := checkout.NewReconciler(deps)

	// --- Echo ---
	e := echo.New()
	e.HideBanner = true

	// --- Routes ---
	router.Setup(e, router.Options{
		DB:           db,
		Logger:       logger,
		APIKey:       cfg.API.Key,
		HashFilePath: cfg.API.HashFile,
		Checkout:     api.NewCheckoutHandler(orchestrator, logger),
		Payment: handler.NewPaymentHandler(handler.PaymentDeps{
			Reconciler: reconciler,
			Attempts:   attempts,
			Configs:    configs,
			Events:     events,
			Deduper:    deduper,
			Metrics:    paymentMetrics,
			ResultURL:  cfg.Site.ResultURL,
			Tolerance:  cfg.Gateway.WebhookTolerance,
			Logger:     logger,
		}),
		Gatherer: registry,
	})

	// --- Cron Scheduler ---
	var scheduler *cronpkg.Scheduler
	if cfg.Cron.Enabled {
		scheduler = cronpkg.New(cfg.Cron, reconciler, events, logger)
		if err := scheduler.Start(); err != nil {
			logger.Fatal("Failed to start cron scheduler", zap.Error(err))
		}
	}

	// --- Start Server ---
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	go func() {
		logger.Info("Starting hppgate server",
			zap.String("addr", addr),
			zap.String("gateway", cfg.Gateway.Name),
			zap.String("mode", cfg.Gateway.Mode),
		)
		if err := e.Start(addr); err != nil {
			logger.Info("Server stopped", zap.Error(err))
		}
	}()

	// --- Graceful Shutdown ---
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down...")

	// Stop cron
	if scheduler != nil {
		ctx := scheduler.Stop()
		<-ctx.Done()
	}

	// Stop HTTP server
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	logger.Info("Server exited")
}

func hasArg(name string) bool {
	for _, arg := range os.Args[1:] {
		if arg == name {
			return true
		}
	}
	return false
}

// argValue reads "--name value" or "--name=value".
func argValue(name string) string {
	args := os.Args[1:]
	for i, arg := range args {
		if arg == name && i+1 < len(args) {
			return args[i+1]
		}
		if strings.HasPrefix(arg, name+"=") {
			return strings.TrimPrefix(arg, name+"=")
		}
	}
	return ""
}

func loadSeed(path string) (*bootstrap.Seed, error) {
	if path == "" {
		return nil, nil
	}
	return bootstrap.LoadSeed(path)
}

func runDBBootstrap(seed *bootstrap.Seed, logger *zap.Logger) error {
	dbCfg, err := config.LoadDatabaseOnly()
	if err != nil {
		return err
	}
	db, err := config.NewDatabase(dbCfg, logger)
	if err != nil {
		return err
	}
	if err := bootstrap.MigrateAndSeed(db, seed); err != nil {
		return err
	}
	logger.Info("Schema migration and seed completed")
	return nil
}
