package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/kofabeauty/storefront-backend/api/routes"
	checkoutsvc "github.com/kofabeauty/storefront-backend/internal/checkout"
	"github.com/kofabeauty/storefront-backend/internal/orders"
	products "github.com/kofabeauty/storefront-backend/internal/products"
	"github.com/kofabeauty/storefront-backend/internal/promotions"
	paystackwebhook "github.com/kofabeauty/storefront-backend/internal/webhooks/paystack"
	"github.com/kofabeauty/storefront-backend/pkg/auth"
	"github.com/kofabeauty/storefront-backend/pkg/config"
	"github.com/kofabeauty/storefront-backend/pkg/db"
	"github.com/kofabeauty/storefront-backend/pkg/logger"
	"github.com/kofabeauty/storefront-backend/pkg/metrics"
	"github.com/kofabeauty/storefront-backend/pkg/migrate"
	"github.com/kofabeauty/storefront-backend/pkg/outbox"
	"github.com/kofabeauty/storefront-backend/pkg/outbox/idempotency"
	"github.com/kofabeauty/storefront-backend/pkg/paystack"
	"github.com/kofabeauty/storefront-backend/pkg/pricing"
	"github.com/kofabeauty/storefront-backend/pkg/redis"
)

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
		Format:      cfg.App.LogFormat,
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

	paystackClient, err := paystack.NewClient(cfg.Paystack.SecretKey,
		paystack.WithBaseURL(cfg.Paystack.BaseURL),
		paystack.WithTimeout(cfg.Paystack.VerifyTimeout),
	)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack client", err)
		os.Exit(1)
	}

	signer, err := auth.NewSigner(cfg.JWT)
	if err != nil {
		logg.Error(context.Background(), "failed to create token signer", err)
		os.Exit(1)
	}

	storefrontMetrics := metrics.NewStorefrontMetrics(prometheus.DefaultRegisterer)
	engine := pricing.NewEngine(nil)
	outboxService := outbox.NewService(outbox.NewRepository(dbClient.DB()), logg)
	productRepo := products.NewRepository(dbClient.DB())

	productService, err := products.NewService(productRepo, engine)
	if err != nil {
		logg.Error(context.Background(), "failed to create product service", err)
		os.Exit(1)
	}

	orderService, err := orders.NewService(orders.ServiceParams{
		Repo:     orders.NewRepository(dbClient.DB()),
		Tx:       dbClient,
		Outbox:   outboxService,
		Numbers:  orders.NewNumberGenerator(cfg.Checkout.OrderPrefix, nil),
		Currency: cfg.Checkout.Currency,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create order service", err)
		os.Exit(1)
	}

	checkoutService, err := checkoutsvc.NewService(checkoutsvc.ServiceParams{
		Catalog:       productRepo,
		Orders:        orderService,
		Verifier:      paystackClient,
		Engine:        engine,
		ShippingFee:   cfg.Checkout.ShippingFeeAmount(),
		TaxRate:       cfg.Checkout.TaxRateValue(),
		Currency:      cfg.Checkout.Currency,
		PublicKey:     cfg.Paystack.PublicKey,
		VerifyTimeout: cfg.Paystack.VerifyTimeout,
		Metrics:       storefrontMetrics,
		Logger:        logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create checkout service", err)
		os.Exit(1)
	}

	promotionService, err := promotions.NewService(promotions.ServiceParams{
		DB:      dbClient,
		Repo:    productRepo,
		Outbox:  outboxService,
		Engine:  engine,
		Logger:  logg,
		Metrics: storefrontMetrics,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create promotion service", err)
		os.Exit(1)
	}

	webhookService, err := paystackwebhook.NewService(paystackwebhook.ServiceParams{
		Checkout: checkoutService,
		Logger:   logg,
	})
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack webhook service", err)
		os.Exit(1)
	}
	webhookGuard, err := idempotency.NewGuard(redisClient, paystackwebhook.GuardScope, cfg.Eventing.OutboxIdempotencyTTL)
	if err != nil {
		logg.Error(context.Background(), "failed to create paystack webhook guard", err)
		os.Exit(1)
	}

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":      cfg.App.Env,
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(routes.RouterParams{
			Config:          cfg,
			Logger:          logg,
			Signer:          signer,
			DB:              dbClient,
			Redis:           redisClient,
			Gatherer:        prometheus.DefaultGatherer,
			Products:        productService,
			Checkout:        checkoutService,
			Orders:          orderService,
			Promotions:      promotionService,
			DeadLetters:     outbox.NewDeadLetterService(dbClient.DB(), logg),
			PaystackWebhook: webhookService,
			WebhookGuard:    webhookGuard,
		}),
	}

	sigCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			logg.Error(ctx, "api server stopped unexpectedly", err)
			os.Exit(1)
		}
	case <-sigCtx.Done():
		logg.Info(ctx, "shutting down api server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logg.Error(ctx, "api server shutdown failed", err)
		}
	}

	logg.Info(ctx, "api server stopped")
}
