package broker

import (
	"log/slog"

	"github.com/topicrelay/backend/internal/metrics"
	"github.com/topicrelay/backend/internal/protocol"
)

// Delivery reports the outcome of one Publish.
type Delivery struct {
	Recipients int
	Failed     int
}

// Router fans published envelopes out to the outboxes the registry returns
// for the envelope's (topic, session).
type Router struct {
	registry *Registry
}

// NewRouter creates a Router over the given registry.
func NewRouter(registry *Registry) *Router {
	return &Router{registry: registry}
}

// Publish enqueues the encoded envelope on every matching outbox. A recipient
// whose outbox is already closed is logged and skipped; Publish never retries
// and never fails the publisher. Frames reach each recipient in Publish call
// order.
func (r *Router) Publish(env protocol.Envelope) (Delivery, error) {
	frame, err := env.Encode()
	if err != nil {
		return Delivery{}, err
	}

	metrics.PublishedTotal.Inc()

	var d Delivery
	for _, o := range r.registry.Route(env.Topic, env.SessionID) {
		if err := o.Push(frame); err != nil {
			d.Failed++
			metrics.DeliveryFailuresTotal.Inc()
			slog.Warn("publish: failed to enqueue to subscriber",
				slog.Uint64("outbox", o.ID()),
				slog.String("topic", env.Topic),
				slog.String("session_id", env.SessionID),
				slog.Any("error", err),
			)
			continue
		}
		d.Recipients++
		metrics.DeliveriesTotal.Inc()
	}
	return d, nil
}
