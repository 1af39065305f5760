// Package metrics exposes the broker's Prometheus collectors.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// ConnectionsTotal counts accepted websocket connections.
	ConnectionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topicrelay_connections_total",
		Help: "The total number of websocket connections accepted.",
	})

	// ConnectionsActive tracks connections that have not finished cleanup.
	ConnectionsActive = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "topicrelay_connections_active",
		Help: "The number of live websocket connections.",
	})

	// CommandsTotal counts processed inbound commands by kind.
	CommandsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topicrelay_commands_total",
		Help: "The total number of inbound commands processed, by command.",
	},
		[]string{"command"},
	)

	// ProtocolErrorsTotal counts ignored frames: unknown commands, malformed
	// JSON, non-text frames.
	ProtocolErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "topicrelay_protocol_errors_total",
		Help: "The total number of inbound frames ignored as protocol errors, by reason.",
	},
		[]string{"reason"},
	)

	// PublishedTotal counts envelopes routed.
	PublishedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topicrelay_published_total",
		Help: "The total number of envelopes published.",
	})

	// DeliveriesTotal counts envelopes enqueued to recipients.
	DeliveriesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topicrelay_deliveries_total",
		Help: "The total number of envelopes enqueued to subscribers.",
	})

	// DeliveryFailuresTotal counts recipients skipped because their outbox
	// was already closed.
	DeliveryFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topicrelay_delivery_failures_total",
		Help: "The total number of deliveries skipped for torn-down subscribers.",
	})

	// TokensRejectedTotal counts upgrade tokens that failed verification.
	TokensRejectedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "topicrelay_tokens_rejected_total",
		Help: "The total number of connection tokens that failed verification.",
	})
)

// Handler returns the /metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
