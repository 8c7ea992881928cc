// Package api serves the spoilage models over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"coldchain-risk/internal/common"
	"coldchain-risk/internal/features"
	"coldchain-risk/internal/metrics"
	"coldchain-risk/internal/ml"
	"coldchain-risk/internal/storage"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

// TabularModel is the service behind the tabular routes. *ml.TabularPredictor
// satisfies it.
type TabularModel interface {
	Predict(r features.Reading) (ml.TabularPrediction, error)
	Info() ml.ModelInfo
}

// SequenceModel is the service behind the sequence routes. *ml.SequencePredictor
// satisfies it.
type SequenceModel interface {
	PredictStream(seq [][]float64) (ml.SequencePrediction, error)
	ScoreWindow(window [][]float64) (float64, error)
	WindowLen() int
	Info() ml.ModelInfo
}

// PredictionLog receives served sequence predictions. *storage.Store satisfies it.
type PredictionLog interface {
	StorePrediction(record storage.PredictionRecord) error
}

// Options are shared by both servers.
type Options struct {
	Addr           string
	RateLimit      int // requests per minute per IP on predict routes; 0 disables
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
	// Gatherer backs /metrics and the health error rate. Defaults to the
	// Prometheus default gatherer.
	Gatherer prometheus.Gatherer
	// Predictions, when set, records every /predict-batch outcome that names a device.
	Predictions PredictionLog
}

// Server hosts one pipeline's routes.
type Server struct {
	pipeline string
	tabular  TabularModel
	sequence SequenceModel
	opts     Options
	started  time.Time
	handler  http.Handler
	server   *http.Server
}

// NewTabularServer exposes a tabular model.
func NewTabularServer(model TabularModel, opts Options) *Server {
	s := newServer(common.PipelineTabular, opts)
	s.tabular = model
	s.handler = s.routes()
	s.server.Handler = s.handler
	return s
}

// NewSequenceServer exposes a sequence model, including the /stream websocket.
func NewSequenceServer(model SequenceModel, opts Options) *Server {
	s := newServer(common.PipelineSequence, opts)
	s.sequence = model
	s.handler = s.routes()
	s.server.Handler = s.handler
	return s
}

func newServer(pipeline string, opts Options) *Server {
	if opts.Gatherer == nil {
		opts.Gatherer = prometheus.DefaultGatherer
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 10 * time.Second
	}
	return &Server{
		pipeline: pipeline,
		opts:     opts,
		started:  time.Now(),
		server: &http.Server{
			Addr:              opts.Addr,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       opts.RequestTimeout,
			IdleTimeout:       120 * time.Second,
		},
	}
}

// Handler returns the router, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins serving HTTP requests
func (s *Server) Start() error {
	log.Info().Str("addr", s.server.Addr).Str("pipeline", s.pipeline).Msg("Starting inference server")
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Run serves until ctx is cancelled, then drains in-flight requests for up to
// drain before returning.
func (s *Server) Run(ctx context.Context, drain time.Duration) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- s.Start()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("Shutting down gracefully...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), drain)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(s.observe)

	r.Get("/", s.handleRoot)
	r.Get("/health", s.handleHealth)
	r.Get("/model/info", s.handleModelInfo)
	r.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))

	limit := s.rateLimit()
	r.Group(func(r chi.Router) {
		r.Use(limit)
		r.Use(chimiddleware.Timeout(s.opts.RequestTimeout))
		switch s.pipeline {
		case common.PipelineTabular:
			r.Post("/predict", s.handlePredict)
		case common.PipelineSequence:
			r.Post("/predict-batch", s.handlePredictBatch)
		}
	})
	if s.pipeline == common.PipelineSequence {
		// websocket connections outlive the request timeout
		r.With(limit).Get("/stream", s.handleStream)
	}
	return r
}

func (s *Server) info() ml.ModelInfo {
	if s.tabular != nil {
		return s.tabular.Info()
	}
	return s.sequence.Info()
}
