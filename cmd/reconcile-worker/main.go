package main

import (
	"context"
	"encoding/json"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/bootstrap"
	"github.com/hackgods/clinic-scheduling/internal/config"
	"github.com/hackgods/clinic-scheduling/internal/logging"
	"github.com/hackgods/clinic-scheduling/internal/store/pgstore"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fatalLog := logging.New("prod", "info", "reconcile-worker")
		fatalLog.Fatal().Err(err).Msg("config load error")
	}
	logger := logging.New(cfg.Env, cfg.LogLevel, "reconcile-worker")
	if cfg.StoreBackend != config.BackendPostgres {
		logger.Fatal().Str("store", cfg.StoreBackend).Msg("reconcile worker needs STORE_BACKEND=postgres")
	}
	logger.Info().Str("env", cfg.Env).Dur("interval", cfg.WorkerInterval).Msg("reconcile-worker starting up")

	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	backend, err := bootstrap.OpenStore(rootCtx, cfg, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("open store")
	}
	defer backend.Close()

	// Run once at startup
	runOnce(rootCtx, backend.Postgres, logger)

	ticker := time.NewTicker(cfg.WorkerInterval)
	defer ticker.Stop()

	for {
		select {
		case <-rootCtx.Done():
			logger.Info().Msg("shutdown signal received, stopping reconcile worker")
			return
		case <-ticker.C:
			runOnce(rootCtx, backend.Postgres, logger)
		}
	}
}

type partialFailure struct {
	SourceID      string `json:"source_id"`
	ReplacementID string `json:"replacement_id"`
	Cause         string `json:"cause"`
	RollbackError string `json:"rollback_error"`
}

// runOnce reports every partial reschedule that staff have not reconciled yet.
func runOnce(ctx context.Context, store *pgstore.Store, logger zerolog.Logger) {
	runCtx, cancel := context.WithTimeout(ctx, 20*time.Second)
	defer cancel()

	start := time.Now()
	open, err := store.OpenReconciliations(runCtx)
	if err != nil {
		logger.Error().Err(err).Msg("reconcile run error")
		return
	}
	for _, ev := range open {
		var p partialFailure
		if err := json.Unmarshal(ev.Payload, &p); err != nil {
			logger.Error().Err(err).Int64("event_id", ev.ID).Msg("unreadable partial failure payload")
			continue
		}
		logger.Error().
			Int64("event_id", ev.ID).
			Str("appointment_id", p.SourceID).
			Str("replacement_id", p.ReplacementID).
			Str("cause", p.Cause).
			Str("rollback_error", p.RollbackError).
			Time("since", ev.CreatedAt).
			Msg("reschedule awaiting manual reconciliation")
	}
	logger.Info().Int("open", len(open)).Dur("took", time.Since(start)).Msg("reconcile run complete")
}
