package main

import (
	"context"
	"errors"
	"os"
	"os/signal"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mercaline/storefront-backend/internal/cartlock"
	"github.com/mercaline/storefront-backend/internal/catalog"
	"github.com/mercaline/storefront-backend/internal/cron"
	"github.com/mercaline/storefront-backend/internal/shipping"
	"github.com/mercaline/storefront-backend/internal/tax"
	"github.com/mercaline/storefront-backend/pkg/config"
	"github.com/mercaline/storefront-backend/pkg/db"
	"github.com/mercaline/storefront-backend/pkg/logger"
	"github.com/mercaline/storefront-backend/pkg/metrics"
	"github.com/mercaline/storefront-backend/pkg/migrate"
	"github.com/mercaline/storefront-backend/pkg/redis"
)

func main() {
	logg := logger.New(logger.Options{ServiceName: "cron-worker"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	cfg.Service.Kind = "cron-worker"

	logg = logger.New(logger.Options{
		ServiceName: "cron-worker",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(context.Background(), "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to bootstrap redis", err)
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(context.Background(), "error closing redis", err)
		}
	}()

	lockService, err := cartlock.NewService(
		cartlock.NewRepository(dbClient.DB()),
		catalog.NewRepository(dbClient.DB()),
		dbClient,
		shipping.NewQuoter(cfg.Shipping),
		tax.NewCalculator(cfg.Tax),
		nil,
		metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer),
		logg,
		cfg.Checkout.LockTTL,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create lock service", err)
		os.Exit(1)
	}

	sweepJob, err := cron.NewLockSweepJob(cron.LockSweepJobParams{
		Logger: logg,
		Locks:  lockService,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create sweep job", err)
		os.Exit(1)
	}

	lock, err := cron.NewRedisLock(redisClient, redisClient.CronLockKey("cron-worker"), cfg.Cron.LockTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create cron lock", err)
		os.Exit(1)
	}

	service, err := cron.NewService(cron.ServiceParams{
		Logger:   logg,
		Registry: cron.NewRegistry(sweepJob),
		Lock:     lock,
		Metrics:  metrics.NewCronJobMetrics(prometheus.DefaultRegisterer),
		Interval: cfg.Checkout.SweepInterval,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create cron service", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	ctx = logg.WithFields(ctx, map[string]any{
		"env":         cfg.App.Env,
		"serviceKind": cfg.Service.Kind,
	})
	logg.Info(ctx, "starting cron worker")

	if err := service.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logg.Error(ctx, "cron worker stopped unexpectedly", err)
		os.Exit(1)
	}

	logg.Info(ctx, "cron worker shutting down gracefully")
}
