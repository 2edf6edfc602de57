package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/mercaline/storefront-backend/api/routes"
	"github.com/mercaline/storefront-backend/internal/cartlock"
	"github.com/mercaline/storefront-backend/internal/catalog"
	checkoutsvc "github.com/mercaline/storefront-backend/internal/checkout"
	"github.com/mercaline/storefront-backend/internal/shipping"
	"github.com/mercaline/storefront-backend/internal/tax"
	stripewebhook "github.com/mercaline/storefront-backend/internal/webhooks/stripe"
	"github.com/mercaline/storefront-backend/pkg/config"
	"github.com/mercaline/storefront-backend/pkg/db"
	"github.com/mercaline/storefront-backend/pkg/logger"
	"github.com/mercaline/storefront-backend/pkg/metrics"
	"github.com/mercaline/storefront-backend/pkg/migrate"
	"github.com/mercaline/storefront-backend/pkg/redis"
	pkgstripe "github.com/mercaline/storefront-backend/pkg/stripe"
)

const webhookDedupeTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	if err != nil {
		logg.Error(context.Background(), "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "api",
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

	var (
		stripeClient *pkgstripe.Client
		gateway      cartlock.PaymentGateway
	)
	if cfg.Stripe.APIKey != "" {
		stripeClient, err = pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
		if err != nil {
			logg.Error(context.Background(), "failed to initialize stripe", err)
			os.Exit(1)
		}
		gateway, err = pkgstripe.NewGateway(stripeClient)
		if err != nil {
			logg.Error(context.Background(), "failed to wrap stripe gateway", err)
			os.Exit(1)
		}
	} else {
		logg.Warn(context.Background(), "stripe api key not set, card payments disabled")
	}

	checkoutMetrics := metrics.NewCheckoutMetrics(prometheus.DefaultRegisterer)

	lockRepo := cartlock.NewRepository(dbClient.DB())
	catalogRepo := catalog.NewRepository(dbClient.DB())
	orderRepo := checkoutsvc.NewRepository(dbClient.DB())

	lockService, err := cartlock.NewService(
		lockRepo,
		catalogRepo,
		dbClient,
		shipping.NewQuoter(cfg.Shipping),
		tax.NewCalculator(cfg.Tax),
		gateway,
		checkoutMetrics,
		logg,
		cfg.Checkout.LockTTL,
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create lock service", err)
		os.Exit(1)
	}

	orderService, err := checkoutsvc.NewService(orderRepo, lockService, lockRepo, catalogRepo, dbClient, gateway, logg)
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	webhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		OrderRepo:         orderRepo,
		TransactionRunner: dbClient,
		Metrics:           checkoutMetrics,
		Logger:            logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook service", err)
		os.Exit(1)
	}

	webhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, webhookDedupeTTL, "stripe_webhook")
	if err != nil {
		logg.Error(context.Background(), "failed to create webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":  cfg.App.Env,
		"addr": addr,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			dbClient,
			redisClient,
			lockService,
			orderService,
			orderRepo,
			stripeClient,
			webhookService,
			webhookGuard,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}
