package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/kofabeauty/storefront-backend/api/controllers"
	ordercontrollers "github.com/kofabeauty/storefront-backend/api/controllers/orders"
	webhookcontrollers "github.com/kofabeauty/storefront-backend/api/controllers/webhooks"
	"github.com/kofabeauty/storefront-backend/api/middleware"
	checkoutsvc "github.com/kofabeauty/storefront-backend/internal/checkout"
	"github.com/kofabeauty/storefront-backend/internal/orders"
	products "github.com/kofabeauty/storefront-backend/internal/products"
	"github.com/kofabeauty/storefront-backend/internal/promotions"
	paystackwebhook "github.com/kofabeauty/storefront-backend/internal/webhooks/paystack"
	"github.com/kofabeauty/storefront-backend/pkg/config"
	"github.com/kofabeauty/storefront-backend/pkg/db"
	"github.com/kofabeauty/storefront-backend/pkg/enums"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/redis"
)

// RouterParams carries everything the HTTP surface is wired to.
type RouterParams struct {
	Config          *config.Config
	Logger          *logger.Logger
	Signer          middleware.TokenVerifier
	DB              db.Pinger
	Redis           *redis.Client
	Gatherer        prometheus.Gatherer
	Products        products.Service
	Checkout        checkoutsvc.Service
	Orders          orders.Service
	Promotions      promotions.Service
	DeadLetters     controllers.DeadLetters
	PaystackWebhook *paystackwebhook.Service
	WebhookGuard    webhookcontrollers.DeliveryGuard
}

func NewRouter(p RouterParams) http.Handler {
	cfg, logg := p.Config, p.Logger
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.CORS(cfg.HTTP.CORSOrigins),
	)

	// a nil *redis.Client must not end up inside a non-nil interface
	var idempotencyStore middleware.ResponseStore
	var rateStore middleware.RateLimitStore
	var redisPinger controllers.Pinger
	if p.Redis != nil {
		idempotencyStore = p.Redis
		rateStore = p.Redis
		redisPinger = p.Redis
	}
	var dbPinger controllers.Pinger
	if p.DB != nil {
		dbPinger = p.DB
	}

	checkoutPolicy := middleware.NewRateLimitPolicy("checkout", cfg.HTTP.CheckoutRateWindow,
		middleware.ByClientIP(cfg.HTTP.CheckoutIPLimit),
		middleware.ByJSONEmail(cfg.HTTP.CheckoutEmailLimit),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, map[string]controllers.Pinger{
			"postgres": dbPinger,
			"redis":    redisPinger,
		}))
	})

	gatherer := p.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/paystack", webhookcontrollers.PaystackWebhook(p.PaystackWebhook, cfg.Paystack.SecretKey, p.WebhookGuard, logg))
	})

	// checkout writes are replayed longer than admin writes
	idempotent := middleware.Idempotency(idempotencyStore, cfg.HTTP.IdempotencyTTL, logg)
	idempotentCheckout := middleware.Idempotency(idempotencyStore, cfg.HTTP.CheckoutIdempotencyTTL, logg)

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/products", controllers.ProductList(p.Products, logg))
		r.Get("/products/{productId}", controllers.ProductDetail(p.Products, logg))

		r.With(middleware.RateLimit(checkoutPolicy, rateStore, logg), idempotentCheckout).Post("/checkout", controllers.Checkout(p.Checkout, logg))
		r.With(idempotentCheckout).Post("/checkout/{reference}/confirm", controllers.CheckoutConfirm(p.Checkout, logg))
		r.Post("/checkout/{reference}/cancel", controllers.CheckoutCancel(p.Checkout, logg))
		r.Get("/orders/{reference}", ordercontrollers.Receipt(p.Orders, logg))

		r.Route("/admin", func(r chi.Router) {
			r.Use(middleware.Auth(p.Signer, logg))
			r.Use(middleware.RequireRole(logg, enums.StaffRoleAdmin))

			r.Route("/orders", func(r chi.Router) {
				r.Get("/", ordercontrollers.List(p.Orders, logg))
				r.Get("/{orderId}", ordercontrollers.Detail(p.Orders, logg))
				r.Delete("/{orderId}", ordercontrollers.Delete(p.Orders, logg))
				r.With(idempotent).Patch("/{orderId}/status", ordercontrollers.UpdateStatus(p.Orders, logg))
			})
			r.Get("/customers/stats", ordercontrollers.CustomerStats(p.Orders, logg))
			r.Route("/promotions", func(r chi.Router) {
				r.Get("/", controllers.AdminActivePromotions(p.Promotions, logg))
				r.With(idempotent).Post("/", controllers.AdminApplyPromotion(p.Promotions, logg))
				r.Delete("/{category}", controllers.AdminClearPromotion(p.Promotions, logg))
			})
			r.Route("/outbox/dead-letters", func(r chi.Router) {
				r.Get("/", controllers.AdminDeadLetters(p.DeadLetters, logg))
				r.Get("/{eventId}", controllers.AdminDeadLetter(p.DeadLetters, logg))
				r.With(idempotent).Post("/{eventId}/requeue", controllers.AdminRequeueDeadLetter(p.DeadLetters, logg))
			})
		})
	})

	return r
}
