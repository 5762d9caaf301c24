package routes

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/memberdesk/backend/api/controllers"
	webhookcontrollers "github.com/memberdesk/backend/api/controllers/webhooks"
	"github.com/memberdesk/backend/api/middleware"
	"github.com/memberdesk/backend/internal/contacts"
	"github.com/memberdesk/backend/internal/joinflow"
	"github.com/memberdesk/backend/internal/notifications"
	"github.com/memberdesk/backend/internal/payments"
	gcwebhook "github.com/memberdesk/backend/internal/webhooks/gocardless"
	stripewebhook "github.com/memberdesk/backend/internal/webhooks/stripe"
	"github.com/memberdesk/backend/pkg/config"
	"github.com/memberdesk/backend/pkg/logger"
	"github.com/memberdesk/backend/pkg/metrics"
	"github.com/memberdesk/backend/pkg/stripe"
)

func NewRouter(
	cfg *config.Config,
	logg *logger.Logger,
	contactService contacts.Service,
	paymentService payments.Service,
	joinFlowService joinflow.Service,
	notificationsService notifications.Service,
	gcWebhookService gcwebhook.Service,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	stripeClient *stripe.Client,
	webhookMetrics *metrics.WebhookMetrics,
	pingers ...controllers.Pinger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, pingers...))
	})

	mountWebhooks(r, cfg, logg, gcWebhookService, stripeWebhookService, stripeWebhookGuard, stripeClient, webhookMetrics)
	mountJoin(r, joinFlowService, logg)
	mountContacts(r, contactService, paymentService, notificationsService, joinFlowService, logg)

	return r
}

// NewWebhookRouter serves only the provider callback surface. It backs the
// dedicated webhook listener so provider traffic can be isolated from the
// member-facing API.
func NewWebhookRouter(
	cfg *config.Config,
	logg *logger.Logger,
	gcWebhookService gcwebhook.Service,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	stripeClient *stripe.Client,
	webhookMetrics *metrics.WebhookMetrics,
	pingers ...controllers.Pinger,
) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
	)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, pingers...))
	})

	mountWebhooks(r, cfg, logg, gcWebhookService, stripeWebhookService, stripeWebhookGuard, stripeClient, webhookMetrics)

	return r
}

func mountWebhooks(
	r chi.Router,
	cfg *config.Config,
	logg *logger.Logger,
	gcWebhookService gcwebhook.Service,
	stripeWebhookService *stripewebhook.Service,
	stripeWebhookGuard *stripewebhook.IdempotencyGuard,
	stripeClient *stripe.Client,
	webhookMetrics *metrics.WebhookMetrics,
) {
	r.Route("/api/v1/webhooks", func(r chi.Router) {
		r.Post("/gocardless", webhookcontrollers.GoCardlessWebhook(gcWebhookService, cfg.GoCardless.WebhookSecret, webhookMetrics, logg))
		r.Post("/stripe", webhookcontrollers.StripeWebhook(stripeWebhookService, stripeClient, stripeWebhookGuard, webhookMetrics, logg))
	})
}

func mountJoin(r chi.Router, joinFlowService joinflow.Service, logg *logger.Logger) {
	r.Route("/api/v1/join", func(r chi.Router) {
		r.Post("/", controllers.StartJoin(joinFlowService, logg))
		r.Post("/complete", controllers.CompleteJoin(joinFlowService, logg))
	})
}

func mountContacts(
	r chi.Router,
	contactService contacts.Service,
	paymentService payments.Service,
	notificationsService notifications.Service,
	joinFlowService joinflow.Service,
	logg *logger.Logger,
) {
	r.Route("/api/v1/contacts", func(r chi.Router) {
		r.Post("/", controllers.CreateContact(contactService, logg))
		r.Route("/{contactID}", func(r chi.Router) {
			r.Get("/", controllers.GetContact(contactService, logg))
			r.Delete("/", controllers.DeleteContact(contactService, logg))

			r.Route("/contribution", func(r chi.Router) {
				r.Get("/", controllers.GetContribution(contactService, paymentService, logg))
				r.Put("/", controllers.UpdateContribution(contactService, logg))
				r.Post("/cancel", controllers.CancelContribution(contactService, logg))
			})

			r.Put("/payment-method", controllers.UpdatePaymentMethod(joinFlowService, logg))

			r.Get("/payments", controllers.ListPayments(paymentService, logg))

			r.Route("/notifications", func(r chi.Router) {
				r.Get("/", controllers.ListNotifications(notificationsService, logg))
				r.Post("/{notificationID}/read", controllers.MarkNotificationRead(notificationsService, logg))
			})
		})
	})
}
