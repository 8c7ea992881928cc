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

	predictor, err := ml.NewSequencePredictor(c.SequenceScalerPath, c.SequenceModelPath, mw)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load sequence artifacts")
	}

	opts := api.Options{
		Addr:           c.Addr(),
		RateLimit:      c.RateLimit,
		RequestTimeout: c.RequestTimeout,
		Metrics:        m,
	}
	if c.DataPath != "" {
		store, err := storage.New(c.DataPath)
		if err != nil {
			log.Warn().Err(err).Msg("storage initialization failed, predictions will not be recorded")
		} else {
			defer store.Close()
			opts.Predictions = store
			log.Info().Str("path", c.DataPath).Msg("recording device predictions")
		}
	}

	srv := api.NewSequenceServer(predictor, opts)
	if err := srv.Run(ctx, 10*time.Second); err != nil {
		log.Error().Err(err).Msg("server stopped with error")
		os.Exit(1)
	}
	log.Info().Msg("server stopped")
}
