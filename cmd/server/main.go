package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/topicrelay/backend/internal/broker"
	"github.com/topicrelay/backend/internal/config"
	"github.com/topicrelay/backend/internal/crypto"
	"github.com/topicrelay/backend/internal/logging"
	"github.com/topicrelay/backend/internal/router"
	"github.com/topicrelay/backend/internal/sentry"
	"github.com/topicrelay/backend/internal/services"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	// Initialize structured logging (reads LOGGING_LEVEL env var)
	logging.Initialize()

	// Load configuration
	cfg := config.Load()
	if cfg.JWTSecret == "change-me-in-production" {
		slog.Warn("JWT_SECRET_KEY not set, using the development default")
	}

	if err := sentry.Init(cfg.SentryDSN, cfg.SentryEnvironment, version); err != nil {
		slog.Error("failed to initialize sentry", slog.Any("error", err))
	}
	defer sentry.Flush(2 * time.Second)

	keyType, err := crypto.ParseKeyType(cfg.KeyType)
	if err != nil {
		slog.Error("invalid KEY_TYPE", slog.Any("error", err))
		os.Exit(1)
	}
	keys, err := crypto.GenerateKeyPair(keyType)
	if err != nil {
		slog.Error("failed to generate key pair", slog.Any("error", logging.WrapError(err, "generate key pair")))
		os.Exit(1)
	}

	credentials := services.NewCredentialStore(cfg.AuthUsers)
	if credentials.DemoMode() {
		slog.Warn("AUTH_USERS not set, token endpoint accepts any non-empty credentials")
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	registry := broker.NewRegistry()
	handler, ws := router.New(ctx, cfg, router.Deps{
		Registry:    registry,
		Router:      broker.NewRouter(registry),
		Auth:        services.NewAuthService(cfg.JWTSecret, cfg.TokenDuration),
		Credentials: credentials,
		Keys:        keys,
	})

	addr := ":" + cfg.Port
	srv := &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("starting server",
			slog.String("addr", addr),
			slog.String("key_type", string(keys.Type())),
			slog.String("version", version),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("server failed", slog.Any("error", err))
			os.Exit(1)
		}
	case <-ctx.Done():
	}

	slog.Info("shutting down", slog.Duration("timeout", cfg.ShutdownTimeout))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http shutdown failed", slog.Any("error", err))
	}

	// Hijacked websocket connections are not tracked by Shutdown; ctx is
	// already cancelled so every session is closing.
	done := make(chan struct{})
	go func() {
		ws.Wait()
		close(done)
	}()
	select {
	case <-done:
		slog.Info("all sessions closed")
	case <-shutdownCtx.Done():
		slog.Warn("timed out waiting for sessions", slog.Int64("remaining", ws.ActiveConnections()))
	}
}
