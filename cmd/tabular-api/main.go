package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coldchain-risk/internal/api"
	"coldchain-risk/internal/cfg"
	"coldchain-risk/internal/metrics"
	"coldchain-risk/internal/ml"
	"coldchain-risk/internal/storage"

	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	cfg.SetupLogging(c.LogLevel, c.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	m := metrics.New()
	mw := metrics.NewWrapper(m)

	// Artifacts are loaded once; a missing or unpaired pair must stop the process.
	predictor, err := ml.NewTabularPredictor(c.TabularScalerPath, c.TabularModelPath, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load tabular artifacts")
	}

	opts := api.Options{
		Addr:           c.Addr(),
		RateLimit:      c.RateLimit,
		RequestTimeout: c.RequestTimeout,
		Metrics:        m,
	}
	if store := initializeStorage(c); store != nil {
		defer store.Close()
		logRegisteredRun(store, predictor.Info())
	}

	srv := api.NewTabularServer(predictor, opts)
	if err := srv.Run(ctx, 10*time.Second); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}

// initializeStorage opens the run registry if DATA_PATH is configured
func initializeStorage(c cfg.Settings) *storage.Store {
	if c.DataPath == "" {
		return nil
	}
	store, err := storage.New(c.DataPath)
	if err != nil {
		log.Warn().Err(err).Msg("storage initialization failed, continuing without run registry")
		return nil
	}
	return store
}

func logRegisteredRun(store *storage.Store, info ml.ModelInfo) {
	run, err := store.FindRun(info.Pipeline, info.RunID)
	if err != nil {
		log.Warn().Err(err).Str("run_id", info.RunID).Msg("serving a model with no registered training run")
		return
	}
	log.Info().
		Str("run_id", run.RunID).
		Float64("accuracy", run.Report.Accuracy).
		Time("trained_at", run.CreatedAt).
		Msg("serving registered training run")
}
