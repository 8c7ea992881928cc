package api

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"coldchain-risk/internal/common"
	"coldchain-risk/internal/features"
	"coldchain-risk/internal/ml"
	"coldchain-risk/internal/pipeline"
	"coldchain-risk/internal/storage"

	"github.com/stretchr/testify/require"
)

// stubSequence scores a window by the crate temperature of its last reading
// divided by 100.
type stubSequence struct {
	mu    sync.Mutex
	calls int
}

func (s *stubSequence) scoreWindow(w [][]float64) float64 {
	p := w[len(w)-1][features.IdxCrateTemp] / 100
	return min(max(p, 0), 1)
}

func (s *stubSequence) PredictStream(seq [][]float64) (ml.SequencePrediction, error) {
	s.mu.Lock()
	s.calls++
	s.mu.Unlock()
	windows, err := features.CreateWindows(seq, s.WindowLen(), features.DefaultStride)
	if err != nil {
		return ml.SequencePrediction{}, err
	}
	probs := make([]float64, len(windows))
	for i, w := range windows {
		probs[i] = s.scoreWindow(w)
	}
	return ml.SequencePrediction{
		TotalWindows:        len(windows),
		WindowPredictions:   ml.WindowLabels(probs),
		WindowProbabilities: probs,
		FinalDecision:       ml.Decide(probs),
	}, nil
}

func (s *stubSequence) ScoreWindow(w [][]float64) (float64, error) {
	return s.scoreWindow(w), nil
}

func (s *stubSequence) WindowLen() int { return features.DefaultWindowLen }

func (s *stubSequence) Info() ml.ModelInfo {
	return ml.ModelInfo{
		Pipeline:  common.PipelineSequence,
		RunID:     "stub-run",
		ModelKind: ml.KindLSTM,
		SeqLen:    features.DefaultWindowLen,
	}
}

// readings builds a stream whose crate temperatures are temps.
func readings(temps ...float64) [][]float64 {
	out := make([][]float64, len(temps))
	for i, t := range temps {
		out[i] = []float64{t, 6, 70, 22, 12, 1}
	}
	return out
}

// trainedTabular trains a small forest into a temp dir and returns a predictor
// over its artifacts.
func trainedTabular(t *testing.T) *ml.TabularPredictor {
	t.Helper()
	dir := t.TempDir()
	opts := pipeline.TabularOptions{
		Samples:        500,
		Seed:           21,
		FlipRate:       0.08,
		TestSize:       0.2,
		Forest:         ml.ForestConfig{NumTrees: 10, MinSamplesLeaf: 1, Seed: 21},
		SMOTENeighbors: 5,
		ScalerPath:     filepath.Join(dir, "scaler.json"),
		ModelPath:      filepath.Join(dir, "model.json"),
	}
	_, err := pipeline.New(nil, nil).TrainTabular(context.Background(), opts)
	require.NoError(t, err)

	p, err := ml.NewTabularPredictor(opts.ScalerPath, opts.ModelPath, nil)
	require.NoError(t, err)
	return p
}

func newTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}
