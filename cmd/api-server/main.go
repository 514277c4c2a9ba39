package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hackgods/clinic-scheduling/internal/api"
	"github.com/hackgods/clinic-scheduling/internal/auth"
	"github.com/hackgods/clinic-scheduling/internal/availability"
	"github.com/hackgods/clinic-scheduling/internal/bootstrap"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/scheduling"
)

var version = "dev"

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalLog := logging.New("prod", "info", "api-server")
		fatalLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "api-server")
	logger.Info().Str("env", cfg.Env).Str("http_port", cfg.HTTPPort).Str("store", cfg.StoreBackend).Msg("api-server starting up")

	tz, err := cfg.Location()
	if err != nil {
		logger.Fatal().Err(err).Msg("clinic timezone")
	}

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := bootstrap.OpenStore(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer backend.Close()

	var tokens *auth.Issuer
	if cfg.JWTSecret != "" {
		tokens = auth.NewIssuer(cfg.JWTSecret, cfg.JWTIssuer, cfg.TokenTTL)
	} else {
		logger.Warn().Msg("JWT_SECRET not set; every request acts as a development staff user")
	}

	svc := scheduling.NewService(backend.Store, availability.DefaultCatalog(tz), cfg.Policy(tz),
		scheduling.WithLogger(logger.With().Str("component", "scheduling").Logger()))

	logger.Info().
		Dur("modification_window", cfg.ModificationWindow).
		Str("initial_status", string(cfg.InitialStatus)).
		Dur("lock_ttl", cfg.LockTTL).
		Dur("shutdown_timeout", cfg.ShutdownTimeout).
		Msg("scheduling configured")

	srv := &http.Server{
		Addr: ":" + cfg.HTTPPort,
		Handler: api.NewRouter(api.RouterConfig{
			Service:      svc,
			Tokens:       tokens,
			Dependencies: backend.Dependencies,
			Logger:       logger,
			Env:          cfg.Env,
			Version:      version,
		}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("starting server")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-rootCtx.Done():
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		backend.Close()
		os.Exit(1)
	}

	logger.Info().Msg("shutting down api-server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
}
