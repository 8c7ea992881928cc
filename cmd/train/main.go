package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"coldchain-risk/internal/cfg"
	"coldchain-risk/internal/common"
	"coldchain-risk/internal/metrics"
	"coldchain-risk/internal/pipeline"
	"coldchain-risk/internal/storage"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

func main() {
	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	var (
		which       = flag.String("pipeline", common.PipelineTabular, "Pipeline to train: tabular, sequence or all")
		importance  = flag.String("importance", "", "Write ranked tabular feature importances to this JSON file")
		metricsAddr = flag.String("metrics-addr", "", "Serve Prometheus metrics on this address while training")
		logLevel    = flag.String("log-level", c.LogLevel, "Log level: debug, info, warn, error")
	)
	flag.Parse()
	cfg.SetupLogging(*logLevel, c.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var store pipeline.RunStore
	if c.DataPath != "" {
		s, err := storage.New(c.DataPath)
		if err != nil {
			log.Fatal().Err(err).Msg("storage initialization failed")
		}
		defer s.Close()
		store = s
	}

	mw := metrics.NewWrapper(metrics.New())
	if *metricsAddr != "" {
		startMetricsServer(*metricsAddr)
	}
	trainer := pipeline.New(store, mw)

	var runs []string
	switch *which {
	case common.PipelineTabular, common.PipelineSequence:
		runs = []string{*which}
	case "all":
		runs = pipeline.Pipelines
	default:
		log.Fatal().Str("pipeline", *which).Msg("unknown pipeline")
	}

	for _, name := range runs {
		res, err := run(ctx, trainer, name, c, *importance)
		if err != nil {
			log.Fatal().Err(err).Str("pipeline", name).Msg("training failed")
		}
		fmt.Printf("=== %s run %s ===\n", name, res.Meta.RunID)
		fmt.Print(res.Report.String())
		if len(res.Importances) > 0 {
			fmt.Println("Feature importance:")
			for _, fs := range res.Importances {
				fmt.Printf("  %d. %-18s %.4f\n", fs.Rank, fs.Name, fs.ImportanceScore)
			}
		}
	}
}

func run(ctx context.Context, trainer *pipeline.Trainer, name string, c cfg.Settings, importance string) (*pipeline.Result, error) {
	if name == common.PipelineSequence {
		return trainer.TrainSequence(ctx, pipeline.SequenceOptionsFrom(c))
	}
	opts := pipeline.TabularOptionsFrom(c)
	opts.ImportancePath = importance
	return trainer.TrainTabular(ctx, opts)
}

// startMetricsServer exposes /metrics for scraping long training runs
func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", addr).Msg("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}
