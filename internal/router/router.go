package router

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"github.com/topicrelay/backend/internal/broker"
	"github.com/topicrelay/backend/internal/config"
	"github.com/topicrelay/backend/internal/crypto"
	"github.com/topicrelay/backend/internal/handlers"
	"github.com/topicrelay/backend/internal/metrics"
	"github.com/topicrelay/backend/internal/middleware"
	"github.com/topicrelay/backend/internal/services"
)

// Deps are the long-lived components the routes serve.
type Deps struct {
	Registry    *broker.Registry
	Router      *broker.Router
	Auth        *services.AuthService
	Credentials *services.CredentialStore
	Keys        *crypto.KeyPair
}

// New builds the route table. Websocket sessions and the rate limiter's
// janitor stop when ctx is cancelled; the returned WSHandler can be waited
// on for sessions to finish.
func New(ctx context.Context, cfg *config.Config, deps Deps) (http.Handler, *handlers.WSHandler) {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.NewRealIPMiddleware(cfg.TrustedProxies).Handler)
	r.Use(middleware.RequestContextMiddleware)
	r.Use(middleware.RequestLogger)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORSMiddleware(cfg.CORSAllowedOrigins))

	// Handlers
	wsHandler := handlers.NewWSHandler(ctx, cfg, deps.Registry, deps.Router, deps.Auth)
	authHandler := handlers.NewAuthHandler(deps.Auth, deps.Credentials)
	keyHandler := handlers.NewKeyHandler(deps.Keys)
	configHandler := handlers.NewConfigHandler(deps.Auth, deps.Credentials, deps.Keys.Type())
	statsHandler := handlers.NewStatsHandler(deps.Registry, wsHandler)

	// Rate limiter for token issuance
	tokenRateLimiter := middleware.NewRateLimiter(ctx, cfg.RateLimitPerMinute)

	// Broker connection
	r.Get("/ws", wsHandler.Connect)

	// Token issuance (rate limited)
	r.With(tokenRateLimiter.Middleware).Post("/auth/token", authHandler.IssueToken)

	// Encryption key for end-to-end payload sealing
	r.Get("/public-key", keyHandler.PublicKey)
	r.Get("/enc/public-key", keyHandler.PublicKey)

	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)

		// Public configuration (websocket path, key type, token lifetime)
		r.Get("/config", configHandler.PublicConfig)

		r.Group(func(r chi.Router) {
			r.Use(middleware.AuthMiddleware(deps.Auth))
			r.Use(middleware.UpdateRequestContextMiddleware)

			r.Get("/stats", statsHandler.Stats)
		})
	})

	return r, wsHandler
}
