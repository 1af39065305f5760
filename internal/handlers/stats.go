package handlers

import (
	"net/http"

	"github.com/topicrelay/backend/internal/broker"
	"github.com/topicrelay/backend/internal/models"
)

// ConnectionCounter reports live connections.
type ConnectionCounter interface {
	ActiveConnections() int64
}

type StatsHandler struct {
	registry    *broker.Registry
	connections ConnectionCounter
}

func NewStatsHandler(registry *broker.Registry, connections ConnectionCounter) *StatsHandler {
	return &StatsHandler{registry: registry, connections: connections}
}

// Stats returns a snapshot of the registry and the live connection count.
func (h *StatsHandler) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.StatsResponse{
		Stats:       h.registry.Stats(),
		Connections: h.connections.ActiveConnections(),
	})
}

// Health reports liveness.
func Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, models.HealthResponse{Status: "ok"})
}
