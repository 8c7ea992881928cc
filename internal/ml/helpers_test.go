package ml

import (
	"math"
	"math/rand/v2"
	"path/filepath"
	"testing"

	"coldchain-risk/internal/common"
	"coldchain-risk/internal/features"
	"coldchain-risk/internal/synth"

	"github.com/stretchr/testify/require"
)

// identityScaler passes rows through unchanged.
type identityScaler struct{ width int }

func (s identityScaler) Fit([][]float64) error { return nil }
func (s identityScaler) Transform(x [][]float64) ([][]float64, error) {
	return transformRows(s, x)
}
func (s identityScaler) TransformRow(row []float64) ([]float64, error) {
	if err := checkFitted(s.width, row); err != nil {
		return nil, err
	}
	return append([]float64(nil), row...), nil
}
func (s identityScaler) NumFeatures() int { return s.width }

// stubSequenceModel scores a window by the crate temperature of its last
// timestep, looked up in scores.
type stubSequenceModel struct {
	seqLen int
	scores map[float64]float64
}

func (m stubSequenceModel) Fit([][][]float64, []int) error { return nil }
func (m stubSequenceModel) InputShape() (int, int)         { return m.seqLen, 6 }
func (m stubSequenceModel) Predict(x [][][]float64) ([]float64, error) {
	out := make([]float64, len(x))
	for i, w := range x {
		out[i] = m.scores[w[len(w)-1][0]]
	}
	return out, nil
}

func tabularTrainingSet(t *testing.T, n int, seed uint64) ([][]float64, []int) {
	t.Helper()
	x, y := synth.SplitXY(synth.GenerateTabular(n, seed))
	medians, err := ColumnMedians(x)
	require.NoError(t, err)
	x, err = ImputeMissing(x, medians)
	require.NoError(t, err)
	return x, y
}

// writeTabularArtifacts trains a small forest and writes a paired scaler and
// model into dir.
func writeTabularArtifacts(t *testing.T, dir string) (scalerPath, modelPath string) {
	t.Helper()
	x, y := tabularTrainingSet(t, 600, 5)
	scaler := NewStandardScaler()
	require.NoError(t, scaler.Fit(x))
	scaled, err := scaler.Transform(x)
	require.NoError(t, err)

	forest := NewRandomForest(ForestConfig{NumTrees: 15, MinSamplesLeaf: 1, Seed: 1})
	require.NoError(t, forest.Fit(scaled, y))

	meta := NewRunMeta(common.PipelineTabular)
	meta.NumFeatures = features.NumFeatures
	scalerPath = filepath.Join(dir, "scaler.json")
	modelPath = filepath.Join(dir, "model.json")
	require.NoError(t, SaveArtifact(scalerPath, meta, KindStandardScaler, scaler))
	require.NoError(t, SaveArtifact(modelPath, meta, KindRandomForest, forest))
	return scalerPath, modelPath
}

func sameFloats(t *testing.T, want, got []float64) {
	t.Helper()
	require.Len(t, got, len(want))
	for i := range want {
		if math.Abs(want[i]-got[i]) > 1e-12 {
			t.Fatalf("index %d: want %v, got %v", i, want[i], got[i])
		}
	}
}

func newTestRand(seed uint64) *rand.Rand {
	return rand.New(rand.NewPCG(seed, seed))
}
