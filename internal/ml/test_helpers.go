package ml

import (
	"sync"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu               sync.Mutex
	predictions      map[string]int
	failures         map[string]int
	latencySum       float64
	modelAge         map[string]float64
	predictionScores []float64
	verdicts         map[string]int
}

func NewMockMetrics() *MockMetrics {
	return &MockMetrics{
		predictions: make(map[string]int),
		failures:    make(map[string]int),
		modelAge:    make(map[string]float64),
		verdicts:    make(map[string]int),
	}
}

func (m *MockMetrics) MLPredictionsInc(pipeline string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictions[pipeline]++
}

func (m *MockMetrics) MLFailuresInc(pipeline string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[pipeline]++
}

func (m *MockMetrics) MLLatencyObserve(_ string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.latencySum += v
}

func (m *MockMetrics) MLModelAgeSet(pipeline string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.modelAge[pipeline] = v
}

func (m *MockMetrics) MLPredictionScoresObserve(_ string, v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.predictionScores = append(m.predictionScores, v)
}

func (m *MockMetrics) MLVerdictInc(verdict string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.verdicts[verdict]++
}

func (m *MockMetrics) Predictions(pipeline string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.predictions[pipeline]
}

func (m *MockMetrics) Failures(pipeline string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.failures[pipeline]
}

func (m *MockMetrics) Verdicts(verdict string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.verdicts[verdict]
}
