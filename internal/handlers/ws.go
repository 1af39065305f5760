package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"github.com/topicrelay/backend/internal/broker"
	"github.com/topicrelay/backend/internal/config"
	"github.com/topicrelay/backend/internal/logging"
	"github.com/topicrelay/backend/internal/metrics"
	"github.com/topicrelay/backend/internal/middleware"
	"github.com/topicrelay/backend/internal/sentry"
	"github.com/topicrelay/backend/internal/services"
	"github.com/topicrelay/backend/internal/session"
)

// WSHandler upgrades requests to websocket connections and runs a session
// for each. Sessions live until the peer disconnects or ctx is cancelled.
type WSHandler struct {
	ctx          context.Context
	registry     *broker.Registry
	router       *broker.Router
	authService  *services.AuthService
	upgrader     websocket.Upgrader
	maxMessage   int64
	writeTimeout time.Duration
	pingInterval time.Duration

	active atomic.Int64
	wg     sync.WaitGroup
}

func NewWSHandler(ctx context.Context, cfg *config.Config, registry *broker.Registry, router *broker.Router, authService *services.AuthService) *WSHandler {
	allowed := middleware.OriginAllowed(cfg.CORSAllowedOrigins)

	return &WSHandler{
		ctx:         ctx,
		registry:    registry,
		router:      router,
		authService: authService,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return origin == "" || allowed(origin)
			},
		},
		maxMessage:   cfg.WSMaxMessageBytes,
		writeTimeout: cfg.WSWriteTimeout,
		pingInterval: cfg.WSPingInterval,
	}
}

// Connect handles GET /ws. A valid token in the "token" query parameter
// (or a bearer header) pins the connection's identity; an invalid one is
// logged and the connection proceeds anonymously.
func (h *WSHandler) Connect(w http.ResponseWriter, r *http.Request) {
	identity := h.identity(r)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already written the HTTP error response.
		slog.WarnContext(r.Context(), "websocket upgrade failed", append(logging.RequestFields(r.Context()), slog.Any("error", err))...)
		return
	}

	if h.maxMessage > 0 {
		conn.SetReadLimit(h.maxMessage)
	}
	if h.pingInterval > 0 {
		pongWait := 2 * h.pingInterval
		_ = conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})
	}

	sess := session.New(conn, h.registry, h.router, identity, session.Options{
		WriteTimeout: h.writeTimeout,
		PingInterval: h.pingInterval,
		RemoteAddr:   logging.ExtractClientIP(r),
	})

	h.wg.Add(1)
	h.active.Add(1)
	defer func() {
		h.active.Add(-1)
		h.wg.Done()
	}()

	if err := sess.Run(h.ctx); err != nil {
		sentry.CaptureError(err, map[string]string{
			"conn_id":    sess.ID(),
			"session_id": sess.Identity().SessionID,
		})
	}
}

func (h *WSHandler) identity(r *http.Request) session.Identity {
	token := r.URL.Query().Get("token")
	if token == "" {
		if bearer, _, ok := middleware.BearerToken(r); ok {
			token = bearer
		}
	}
	if token == "" {
		return session.Anonymous()
	}

	claims, err := h.authService.ValidateToken(token)
	if err != nil {
		metrics.TokensRejectedTotal.Inc()
		logging.LogSecurityEvent(r.Context(), logging.SecurityEventInvalidWSToken, "invalid websocket token, continuing anonymously")
		return session.Anonymous()
	}
	return session.FromClaims(claims)
}

// ActiveConnections returns the number of sessions currently running.
func (h *WSHandler) ActiveConnections() int64 {
	return h.active.Load()
}

// Wait blocks until every session started by Connect has finished.
func (h *WSHandler) Wait() {
	h.wg.Wait()
}
