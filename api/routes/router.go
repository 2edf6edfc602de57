package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/mercaline/storefront-backend/api/controllers"
	webhookcontrollers "github.com/mercaline/storefront-backend/api/controllers/webhooks"
	"github.com/mercaline/storefront-backend/api/middleware"
	"github.com/mercaline/storefront-backend/internal/cartlock"
	checkoutsvc "github.com/mercaline/storefront-backend/internal/checkout"
	stripewebhook "github.com/mercaline/storefront-backend/internal/webhooks/stripe"
	"github.com/mercaline/storefront-backend/pkg/config"
	"github.com/mercaline/storefront-backend/pkg/db"
	"github.com/mercaline/storefront-backend/pkg/logger"
	"github.com/mercaline/storefront-backend/pkg/redis"
	"github.com/mercaline/storefront-backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	dbP db.Pinger,
	redisClient *redis.Client,
	lockService cartlock.Service,
	orderService checkoutsvc.Service,
	orderRepo checkoutsvc.Repository,
	stripeClient *stripe.Client,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, dbP, redisClient))
	})

	r.Route("/api/public", func(r chi.Router) {
		r.Get("/ping", controllers.PublicPing())
	})

	r.Route("/api/webhooks", func(r chi.Router) {
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, logg))
	})

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.Idempotency(redisClient, logg))

		r.Route("/checkout", func(r chi.Router) {
			r.Post("/lock", controllers.CheckoutLock(lockService, logg))
			r.Post("/lock/extend", controllers.CheckoutLockExtend(lockService, logg))
			r.Post("/lock/release", controllers.CheckoutLockRelease(lockService, logg))
			r.Post("/payment-method", controllers.CheckoutPaymentMethod(lockService, logg))
		})

		r.Post("/orders", controllers.CreateOrder(orderService, logg))
		r.Get("/orders/{orderId}", controllers.OrderDetail(orderRepo, logg))
	})

	return r
}
