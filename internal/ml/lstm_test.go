package ml

import (
	"math"
	"path/filepath"
	"testing"

	"coldchain-risk/internal/common"
	"coldchain-risk/internal/synth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func tinyLSTMConfig() LSTMConfig {
	return LSTMConfig{
		SeqLen:       3,
		NumFeatures:  2,
		Hidden:       3,
		Dense:        4,
		Epochs:       1,
		BatchSize:    4,
		LearningRate: 0.01,
		Seed:         7,
	}
}

func TestLSTM_GradientMatchesFiniteDifference(t *testing.T) {
	m, err := NewLSTM(tinyLSTMConfig())
	require.NoError(t, err)
	seq := [][]float64{{0.2, 0.9}, {0.5, 0.1}, {0.8, 0.4}}

	for _, label := range []int{0, 1} {
		cache := m.newCache()
		grads := newLSTMParams(m.cfg)
		m.forward(seq, cache)
		m.backward(cache, label, &grads)

		const eps = 1e-6
		analytic := grads.tensors()
		for ti, w := range m.params.tensors() {
			for i := range w {
				orig := w[i]
				w[i] = orig + eps
				plus := bce(m.forward(seq, cache), label)
				w[i] = orig - eps
				minus := bce(m.forward(seq, cache), label)
				w[i] = orig

				numeric := (plus - minus) / (2 * eps)
				diff := math.Abs(numeric - analytic[ti][i])
				if diff > 1e-6+1e-4*math.Abs(numeric) {
					t.Fatalf("label %d tensor %d weight %d: analytic %g, numeric %g", label, ti, i, analytic[ti][i], numeric)
				}
			}
		}
	}
}

func TestLSTM_ForgetBiasInitialisedToOne(t *testing.T) {
	m, err := NewLSTM(tinyLSTMConfig())
	require.NoError(t, err)
	h := m.cfg.Hidden
	for j := 0; j < 4*h; j++ {
		want := 0.0
		if j >= h && j < 2*h {
			want = 1
		}
		assert.Equal(t, want, m.params.B[j], "bias %d", j)
	}
}

func sequenceTrainingSet(t *testing.T, n int, seed uint64) ([][][]float64, []int, Scaler) {
	t.Helper()
	g, err := synth.NewTemporalGenerator(synth.PresetStable(), seed)
	require.NoError(t, err)
	x, y := synth.SplitSequences(g.Generate(n))

	scaler := NewMinMaxScaler()
	require.NoError(t, scaler.Fit(FlattenSequences(x)))
	scaled, err := TransformSequences(scaler, x)
	require.NoError(t, err)
	return scaled, y, scaler
}

func TestLSTM_LearnsSpikes(t *testing.T) {
	x, y, _ := sequenceTrainingSet(t, 600, 21)
	split, err := TrainTestSplit(x, y, 0.2, newTestRand(4))
	require.NoError(t, err)

	cfg := DefaultLSTMConfig()
	cfg.Hidden = 16
	cfg.Dense = 8
	cfg.Epochs = 20
	cfg.LearningRate = 0.01
	m, err := NewLSTM(cfg)
	require.NoError(t, err)

	history, err := m.FitWithValidation(split.XTrain, split.YTrain, split.XTest, split.YTest)
	require.NoError(t, err)
	require.Len(t, history, 20)

	first, last := history[0], history[len(history)-1]
	assert.Less(t, last.Loss, first.Loss)
	assert.GreaterOrEqual(t, last.ValAccuracy, 0.8)

	probs, err := m.Predict(split.XTest)
	require.NoError(t, err)
	for _, p := range probs {
		assert.True(t, p >= 0 && p <= 1)
	}
}

func TestLSTM_ArtifactRoundTrip(t *testing.T) {
	cfg := tinyLSTMConfig()
	cfg.SeqLen = 5
	cfg.NumFeatures = 6
	cfg.Epochs = 2
	x, y, _ := sequenceTrainingSet(t, 40, 3)

	m, err := NewLSTM(cfg)
	require.NoError(t, err)
	require.NoError(t, m.Fit(x, y))

	path := filepath.Join(t.TempDir(), "lstm.json")
	meta := NewRunMeta(common.PipelineSequence)
	require.NoError(t, SaveArtifact(path, meta, KindLSTM, m))

	var loaded LSTM
	gotMeta, err := LoadArtifact(path, KindLSTM, &loaded)
	require.NoError(t, err)
	assert.Equal(t, meta.RunID, gotMeta.RunID)
	assert.Equal(t, cfg, loaded.Config())

	want, err := m.Predict(x)
	require.NoError(t, err)
	got, err := loaded.Predict(x)
	require.NoError(t, err)
	sameFloats(t, want, got)
}

func TestLSTM_Errors(t *testing.T) {
	_, err := NewLSTM(LSTMConfig{})
	assert.Error(t, err)

	m, err := NewLSTM(tinyLSTMConfig())
	require.NoError(t, err)
	_, err = m.Predict([][][]float64{{{0, 0}, {0, 0}, {0, 0}}})
	assert.ErrorIs(t, err, ErrNotFitted)

	_, err = m.FitWithValidation([][][]float64{{{0, 0}}}, []int{1}, nil, nil)
	assert.Error(t, err, "short sequence")
	_, err = m.FitWithValidation([][][]float64{{{0, 0}, {0, 0}, {0, math.NaN()}}}, []int{1}, nil, nil)
	assert.Error(t, err, "missing values")
	_, err = m.FitWithValidation([][][]float64{{{0, 0}, {0, 0}, {0, 0}}}, []int{3}, nil, nil)
	assert.Error(t, err, "non-binary label")

	_, err = m.MarshalJSON()
	assert.ErrorIs(t, err, ErrNotFitted)

	var bad LSTM
	assert.Error(t, bad.UnmarshalJSON([]byte(`{"config":{"seq_len":5,"num_features":6,"hidden":2,"dense":2,"epochs":1,"batch_size":1,"learning_rate":0.1},"params":{"wx":[1]}}`)))
}
