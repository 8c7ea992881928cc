package metrics

import (
	"time"
)

// MetricsWrapper adapts Metrics to the interfaces the predictors and training
// pipelines consume, so those packages never touch Prometheus types.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

func (w *MetricsWrapper) MLPredictionsInc(pipeline string) {
	w.m.MLPredictions.WithLabelValues(pipeline).Inc()
}

func (w *MetricsWrapper) MLFailuresInc(pipeline string) {
	w.m.MLFailures.WithLabelValues(pipeline).Inc()
	w.m.ErrorsTotal.Inc()
}

func (w *MetricsWrapper) MLLatencyObserve(pipeline string, seconds float64) {
	w.m.MLLatency.WithLabelValues(pipeline).Observe(seconds)
}

func (w *MetricsWrapper) MLModelAgeSet(pipeline string, seconds float64) {
	w.m.MLModelAge.WithLabelValues(pipeline).Set(seconds)
}

func (w *MetricsWrapper) MLPredictionScoresObserve(pipeline string, score float64) {
	w.m.MLPredictionScores.WithLabelValues(pipeline).Observe(score)
}

func (w *MetricsWrapper) MLVerdictInc(verdict string) {
	w.m.Verdicts.WithLabelValues(verdict).Inc()
}

// TrainingCompleted records a finished training run.
func (w *MetricsWrapper) TrainingCompleted(pipeline string, d time.Duration, accuracy float64) {
	w.m.TrainingRuns.WithLabelValues(pipeline).Inc()
	w.m.TrainingDuration.WithLabelValues(pipeline).Observe(d.Seconds())
	w.m.TrainingAccuracy.WithLabelValues(pipeline).Set(accuracy)
}
