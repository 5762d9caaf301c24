package metrics

import "github.com/prometheus/client_golang/prometheus"

// WebhookMetrics tracks inbound provider webhook traffic.
type WebhookMetrics struct {
	received *prometheus.CounterVec
	rejected *prometheus.CounterVec
	failed   *prometheus.CounterVec
}

// NewWebhookMetrics registers the webhook counters on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	received := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_received_total",
		Help: "Webhook events accepted after signature validation.",
	}, []string{"provider", "event"})
	rejected := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_signature_rejected_total",
		Help: "Webhook deliveries rejected for a bad signature.",
	}, []string{"provider"})
	failed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_failed_total",
		Help: "Webhook events that errored during processing.",
	}, []string{"provider", "event"})
	reg.MustRegister(received, rejected, failed)
	return &WebhookMetrics{
		received: received,
		rejected: rejected,
		failed:   failed,
	}
}

// IncReceived counts an accepted event of the given type.
func (w *WebhookMetrics) IncReceived(provider, event string) {
	if w == nil || w.received == nil {
		return
	}
	w.received.WithLabelValues(normalizeLabel(provider), normalizeLabel(event)).Inc()
}

// IncRejected counts a delivery that failed signature validation.
func (w *WebhookMetrics) IncRejected(provider string) {
	if w == nil || w.rejected == nil {
		return
	}
	w.rejected.WithLabelValues(normalizeLabel(provider)).Inc()
}

// IncFailed counts an event that errored during processing.
func (w *WebhookMetrics) IncFailed(provider, event string) {
	if w == nil || w.failed == nil {
		return
	}
	w.failed.WithLabelValues(normalizeLabel(provider), normalizeLabel(event)).Inc()
}
