// Package metrics provides Prometheus metrics collection for the spoilage risk
// services. It defines the HTTP, inference, streaming and training metrics
// exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the services.
type Metrics struct {
	// HTTP metrics
	HTTPRequests     *prometheus.CounterVec   // Requests by route, method and status
	HTTPDuration     *prometheus.HistogramVec // Request duration by route
	RejectedRequests *prometheus.CounterVec   // Requests refused before inference, by reason

	// ML and prediction metrics
	MLPredictions      *prometheus.CounterVec   // Successful predictions by pipeline
	MLFailures         *prometheus.CounterVec   // Failed predictions by pipeline
	MLModelAge         *prometheus.GaugeVec     // Age of the loaded model in seconds
	MLLatency          *prometheus.HistogramVec // Inference latency in seconds
	MLPredictionScores *prometheus.HistogramVec // Distribution of high-risk probabilities
	Verdicts           *prometheus.CounterVec   // Shipment verdicts by outcome

	// Streaming metrics
	StreamConnections prometheus.Gauge   // Open /stream websocket connections
	StreamReadings    prometheus.Counter // Readings received over websockets

	// Training metrics
	TrainingRuns     *prometheus.CounterVec   // Completed training runs by pipeline
	TrainingDuration *prometheus.HistogramVec // Training wall time in seconds
	TrainingAccuracy *prometheus.GaugeVec     // Held-out accuracy of the latest run

	// System metrics
	ErrorsTotal prometheus.Counter // Total number of errors encountered
}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		HTTPRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		}, []string{"route", "method", "status"}),
		HTTPDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
		RejectedRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "rejected_requests_total",
			Help: "Total number of requests rejected before inference",
		}, []string{"reason"}),
		MLPredictions: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_predictions_total",
			Help: "Total number of ML predictions made",
		}, []string{"pipeline"}),
		MLFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "ml_failures_total",
			Help: "Total number of ML prediction failures",
		}, []string{"pipeline"}),
		MLModelAge: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "ml_model_age_seconds",
			Help: "Age of the loaded ML model in seconds",
		}, []string{"pipeline"}),
		MLLatency: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ml_latency_seconds",
			Help:    "ML prediction latency in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		}, []string{"pipeline"}),
		MLPredictionScores: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ml_prediction_scores",
			Help:    "Distribution of predicted high-risk probabilities",
			Buckets: prometheus.LinearBuckets(0, 0.1, 11),
		}, []string{"pipeline"}),
		Verdicts: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "shipment_verdicts_total",
			Help: "Total number of shipment verdicts by outcome",
		}, []string{"verdict"}),
		StreamConnections: factory.NewGauge(prometheus.GaugeOpts{
			Name: "stream_connections",
			Help: "Number of open reading stream connections",
		}),
		StreamReadings: factory.NewCounter(prometheus.CounterOpts{
			Name: "stream_readings_total",
			Help: "Total number of readings received over streams",
		}),
		TrainingRuns: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "training_runs_total",
			Help: "Total number of completed training runs",
		}, []string{"pipeline"}),
		TrainingDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "training_duration_seconds",
			Help:    "Training wall time in seconds",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 15),
		}, []string{"pipeline"}),
		TrainingAccuracy: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "training_accuracy",
			Help: "Held-out accuracy of the latest training run",
		}, []string{"pipeline"}),
		ErrorsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "errors_total",
			Help: "Total number of errors encountered",
		}),
	}
}

// GetErrorRate returns failed over attempted predictions across pipelines, as
// gathered from g, or 0 if nothing has been predicted yet.
func GetErrorRate(g prometheus.Gatherer) float64 {
	var predictions, failures float64

	metricFamilies, err := g.Gather()
	if err != nil {
		return 0
	}

	for _, mf := range metricFamilies {
		switch mf.GetName() {
		case "ml_predictions_total":
			for _, m := range mf.Metric {
				predictions += m.GetCounter().GetValue()
			}
		case "ml_failures_total":
			for _, m := range mf.Metric {
				failures += m.GetCounter().GetValue()
			}
		}
	}

	if predictions+failures == 0 {
		return 0
	}
	return failures / (predictions + failures)
}
