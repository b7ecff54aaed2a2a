// Package metrics exposes the bridge's Prometheus metrics. All metrics are
// registered on a private registry so tests and embedders do not collide
// with the global default one.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds every whatsbridge metric plus the Go runtime collectors.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

func init() {
	Registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// Handler renders the registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{Registry: Registry})
}

// Send outcome label values.
const (
	OutcomeDelivered = "delivered"
	OutcomeFailed    = "failed"
	OutcomeNotReady  = "not_ready"
	OutcomeInvalid   = "invalid"
)

// --- Pre-defined metrics used across the application ---

var (
	InboundMessages = factory.NewCounter(prometheus.CounterOpts{
		Name: "whatsbridge_inbound_messages_total",
		Help: "Inbound chat events normalized and appended to the inbox",
	})
	IdentityFallbacks = factory.NewCounter(prometheus.CounterOpts{
		Name: "whatsbridge_identity_fallbacks_total",
		Help: "Contact lookups that failed and used the fallback name",
	})
	MediaFailures = factory.NewCounter(prometheus.CounterOpts{
		Name: "whatsbridge_media_failures_total",
		Help: "Attachment downloads that failed",
	})
	MediaDiscarded = factory.NewCounter(prometheus.CounterOpts{
		Name: "whatsbridge_media_discarded_total",
		Help: "Downloaded attachments dropped by the media policy",
	})
	SendAttempts = factory.NewCounter(prometheus.CounterOpts{
		Name: "whatsbridge_send_attempts_total",
		Help: "Calls made to the network send primitive",
	})
	SendOutcomes = factory.NewCounterVec(prometheus.CounterOpts{
		Name: "whatsbridge_send_outcomes_total",
		Help: "Send requests by final outcome",
	}, []string{"outcome"})
	SendLatency = factory.NewHistogram(prometheus.HistogramOpts{
		Name:    "whatsbridge_send_latency_seconds",
		Help:    "Time from accepted send request to final outcome, retries included",
		Buckets: []float64{0.1, 0.25, 0.5, 1, 2, 5, 10},
	})
	ConnectedClients = factory.NewGauge(prometheus.GaugeOpts{
		Name: "whatsbridge_connected_clients",
		Help: "Browser clients currently subscribed",
	})
	InboxSize = factory.NewGauge(prometheus.GaugeOpts{
		Name: "whatsbridge_inbox_messages",
		Help: "Messages held in the in-memory inbox",
	})
	SessionState = factory.NewGauge(prometheus.GaugeOpts{
		Name: "whatsbridge_session_state",
		Help: "Connection state (0 uninitialized, 1 awaiting scan, 2 ready, 3 auth failed, 4 disconnected)",
	})
)
