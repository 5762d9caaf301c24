package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/memberdesk/backend/api/routes"
	"github.com/memberdesk/backend/internal/contacts"
	"github.com/memberdesk/backend/internal/joinflow"
	"github.com/memberdesk/backend/internal/notifications"
	"github.com/memberdesk/backend/internal/payments"
	gcwebhook "github.com/memberdesk/backend/internal/webhooks/gocardless"
	stripewebhook "github.com/memberdesk/backend/internal/webhooks/stripe"
	"github.com/memberdesk/backend/pkg/config"
	"github.com/memberdesk/backend/pkg/db"
	"github.com/memberdesk/backend/pkg/gocardless"
	"github.com/memberdesk/backend/pkg/logger"
	"github.com/memberdesk/backend/pkg/metrics"
	"github.com/memberdesk/backend/pkg/migrate"
	"github.com/memberdesk/backend/pkg/redis"
	pkgstripe "github.com/memberdesk/backend/pkg/stripe"
)

// Stripe retries webhook deliveries for up to three days; a one-day claim
// absorbs the burst retries without pinning keys forever.
const stripeEventClaimTTL = 24 * time.Hour

func main() {
	logg := logger.New(logger.Options{ServiceName: "api"})

	if err := godotenv.Load(); err != nil {
		logg.Warn(context.Background(), ".env file not found, relying on environment")
	}

	cfg, err := config.Load()
	requireResource(context.Background(), logg, "config", err)

	logg = logger.New(logger.Options{
		ServiceName: "api",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})
	ctx := logg.WithFields(context.Background(), map[string]any{"env": cfg.App.Env})

	dbClient, err := db.New(context.Background(), cfg.DB, logg)
	requireResource(ctx, logg, "database", err)
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := migrate.MaybeRunDev(context.Background(), cfg, logg, dbClient); err != nil {
		logg.Error(ctx, "failed to run dev migrations", err)
		os.Exit(1)
	}

	redisClient, err := redis.New(context.Background(), cfg.Redis, logg)
	requireResource(ctx, logg, "redis", err)
	defer func() {
		if err := redisClient.Close(); err != nil {
			logg.Error(ctx, "error closing redis", err)
		}
	}()

	gcClient, err := gocardless.NewClient(cfg.GoCardless.AccessToken, gocardless.WithSandbox(cfg.GoCardless.Sandbox))
	requireResource(ctx, logg, "gocardless client", err)

	stripeAPI, err := pkgstripe.NewClient(context.Background(), cfg.Stripe, logg)
	requireResource(ctx, logg, "stripe client", err)
	stripeClient := payments.NewStripeClient(stripeAPI)

	grace := cfg.Membership.GracePeriod

	gcProvider, err := payments.NewGCProvider(payments.GCProviderParams{
		Client:      gcClient,
		Logger:      logg,
		Currency:    cfg.Currency.Code,
		GracePeriod: grace,
	})
	requireResource(ctx, logg, "gocardless provider", err)

	stripeProvider, err := payments.NewStripeProvider(payments.StripeProviderParams{
		Client:      stripeClient,
		Logger:      logg,
		Currency:    cfg.Currency.Code,
		ProductID:   cfg.Stripe.MembershipProduct,
		GracePeriod: grace,
	})
	requireResource(ctx, logg, "stripe provider", err)

	paymentsRepo := payments.NewRepository(dbClient.DB())
	paymentService, err := payments.NewService(payments.ServiceParams{
		Repo:              paymentsRepo,
		Manual:            payments.NewManualProvider(grace),
		GoCardless:        gcProvider,
		Stripe:            stripeProvider,
		TransactionRunner: dbClient,
		Logger:            logg,
		GracePeriod:       grace,
	})
	requireResource(ctx, logg, "payments service", err)

	notificationService, err := notifications.NewService(notifications.ServiceParams{
		Repo:   notifications.NewRepository(dbClient.DB()),
		Logger: logg,
	})
	requireResource(ctx, logg, "notifications service", err)

	contactService, err := contacts.NewService(contacts.ServiceParams{
		Repo:              contacts.NewRepository(dbClient.DB()),
		Payments:          paymentService,
		Notifications:     notificationService,
		TransactionRunner: dbClient,
		Logger:            logg,
	})
	requireResource(ctx, logg, "contacts service", err)

	joinFlowService, err := joinflow.NewService(joinflow.ServiceParams{
		Repo:          joinflow.NewRepository(dbClient.DB()),
		Client:        gcClient,
		Contacts:      contactService,
		Payments:      paymentService,
		Notifications: notificationService,
		Logger:        logg,
		TTL:           cfg.JoinFlow.TTL,
	})
	requireResource(ctx, logg, "join flow service", err)

	gcWebhookService, err := gcwebhook.NewService(gcwebhook.ServiceParams{
		Repo:          paymentsRepo,
		Client:        gcClient,
		Contacts:      contactService,
		Notifications: notificationService,
		Logger:        logg,
		GracePeriod:   grace,
	})
	requireResource(ctx, logg, "gocardless webhook service", err)

	stripeWebhookService, err := stripewebhook.NewService(stripewebhook.ServiceParams{
		Repo:          paymentsRepo,
		Client:        stripeClient,
		Contacts:      contactService,
		Notifications: notificationService,
		Logger:        logg,
		GracePeriod:   grace,
	})
	requireResource(ctx, logg, "stripe webhook service", err)

	stripeWebhookGuard, err := stripewebhook.NewIdempotencyGuard(redisClient, stripeEventClaimTTL, "stripe")
	requireResource(ctx, logg, "stripe webhook guard", err)

	webhookMetrics := metrics.NewWebhookMetrics(prometheus.DefaultRegisterer)

	port := os.Getenv("PORT")
	if port == "" {
		port = cfg.App.Port
	}
	addr := ":" + port
	id := os.Getenv("DYNO")
	if id == "" {
		id = "local"
	}
	ctx = logg.WithFields(ctx, map[string]any{
		"addr":     addr,
		"instance": id,
	})
	logg.Info(ctx, "starting api server")

	server := &http.Server{
		Addr: addr,
		Handler: routes.NewRouter(
			cfg,
			logg,
			contactService,
			paymentService,
			joinFlowService,
			notificationService,
			gcWebhookService,
			stripeWebhookService,
			stripeWebhookGuard,
			stripeAPI,
			webhookMetrics,
			dbClient,
			redisClient,
		),
	}

	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logg.Error(ctx, "api server stopped unexpectedly", err)
		os.Exit(1)
	}
}

func requireResource(ctx context.Context, logg *logger.Logger, resource string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "failed to bootstrap "+resource, err)
	os.Exit(1)
}
