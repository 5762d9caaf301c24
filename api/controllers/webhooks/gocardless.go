package webhooks

import (
	"context"
	"io"
	"net/http"

	"github.com/memberdesk/backend/api/responses"
	pkgerrors "github.com/memberdesk/backend/pkg/errors"
	"github.com/memberdesk/backend/pkg/gocardless"
	"github.com/memberdesk/backend/pkg/logger"
	"github.com/memberdesk/backend/pkg/metrics"
)

const maxWebhookBodyBytes = 1 << 20

type GoCardlessWebhookService interface {
	HandleEvents(ctx context.Context, events []gocardless.Event) error
}

// GoCardlessWebhook verifies and reconciles a GoCardless delivery batch. A
// bad signature gets a distinct status so the provider flags the endpoint
// instead of retrying forever.
func GoCardlessWebhook(svc GoCardlessWebhookService, secret string, m *metrics.WebhookMetrics, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}

		body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBodyBytes))
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		signature := r.Header.Get(gocardless.SignatureHeader)
		if !gocardless.ValidateSignature(body, secret, signature) {
			if m != nil {
				m.IncRejected("gocardless")
			}
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeSignature, "invalid webhook signature"))
			return
		}

		parsed, err := gocardless.ParseWebhookBody(body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode webhook body"))
			return
		}

		if m != nil {
			for _, event := range parsed.Events {
				m.IncReceived("gocardless", event.ResourceType+"."+event.Action)
			}
		}

		if err := svc.HandleEvents(ctx, parsed.Events); err != nil {
			if m != nil {
				m.IncFailed("gocardless", "batch")
			}
			responses.WriteError(ctx, logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]int{"processed": len(parsed.Events)})
	}
}
