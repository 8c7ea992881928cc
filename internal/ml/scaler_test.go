package ml

import (
	"errors"
	"math"
	"path/filepath"
	"testing"

	"coldchain-risk/internal/common"
	"coldchain-risk/internal/features"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStandardScaler(t *testing.T) {
	x := [][]float64{
		{1, 10, 5},
		{2, 20, 5},
		{3, 30, 5},
	}
	s := NewStandardScaler()
	require.NoError(t, s.Fit(x))
	assert.Equal(t, 3, s.NumFeatures())

	out, err := s.Transform(x)
	require.NoError(t, err)
	std := math.Sqrt(2.0 / 3.0)
	assert.InDelta(t, -1/std, out[0][0], 1e-12)
	assert.InDelta(t, 0, out[1][1], 1e-12)
	assert.InDelta(t, 1/std, out[2][1], 1e-12)
	// constant column keeps a unit scale
	for _, row := range out {
		assert.Equal(t, 0.0, row[2])
	}
	assert.Equal(t, 1.0, x[0][0], "input must not be modified")

	assert.ErrorIs(t, s.Fit(x), ErrAlreadyFitted)
}

func TestMinMaxScaler(t *testing.T) {
	x := [][]float64{{0, 7}, {5, 7}, {10, 7}}
	s := NewMinMaxScaler()
	require.NoError(t, s.Fit(x))

	row, err := s.TransformRow([]float64{2.5, 7})
	require.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0}, row)

	row, err = s.TransformRow([]float64{20, 8})
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 1}, row, "values outside the training range are not clipped")
}

func TestScaler_Errors(t *testing.T) {
	for _, s := range []Scaler{NewStandardScaler(), NewMinMaxScaler()} {
		_, err := s.TransformRow([]float64{1})
		assert.ErrorIs(t, err, ErrNotFitted)

		assert.Error(t, s.Fit(nil))
		assert.Error(t, s.Fit([][]float64{{1, 2}, {3}}))
		assert.Error(t, s.Fit([][]float64{{1, math.NaN()}}), "missing values must be imputed first")

		require.NoError(t, s.Fit([][]float64{{1, 2}, {3, 4}}))
		_, err = s.TransformRow([]float64{1, 2, 3})
		var shapeErr *features.ShapeError
		require.True(t, errors.As(err, &shapeErr))
		assert.Equal(t, 3, shapeErr.Got)
		assert.Equal(t, 2, shapeErr.Want)
	}
}

func TestScaler_ArtifactRoundTrip(t *testing.T) {
	dir := t.TempDir()
	x := [][]float64{{1, 2}, {3, 8}, {4, 5}}
	meta := NewRunMeta(common.PipelineSequence)

	minmax := NewMinMaxScaler()
	require.NoError(t, minmax.Fit(x))
	path := filepath.Join(dir, "minmax.json")
	require.NoError(t, SaveArtifact(path, meta, KindMinMaxScaler, minmax))

	loaded, loadedMeta, err := LoadScaler(path)
	require.NoError(t, err)
	assert.IsType(t, &MinMaxScaler{}, loaded)
	assert.Equal(t, meta.RunID, loadedMeta.RunID)
	assert.Equal(t, KindMinMaxScaler, loadedMeta.Kind)

	want, _ := minmax.TransformRow([]float64{2, 6})
	got, err := loaded.TransformRow([]float64{2, 6})
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestImpute(t *testing.T) {
	nan := math.NaN()
	x := [][]float64{
		{1, nan, nan},
		{3, 4, nan},
		{2, 8, nan},
		{nan, 6, nan},
	}
	medians, err := ColumnMedians(x)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 6, 0}, medians)

	filled, err := ImputeMissing(x, medians)
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 6, 0}, filled[0])
	assert.Equal(t, []float64{2, 6, 0}, filled[3])
	assert.True(t, math.IsNaN(x[0][1]), "input must not be modified")

	_, err = ImputeMissing([][]float64{{1}}, medians)
	assert.Error(t, err)

	even, err := ColumnMedians([][]float64{{4}, {1}, {8}, {nan}, {2}})
	require.NoError(t, err)
	assert.Equal(t, []float64{3}, even, "even count averages the two middle values")
}

func TestTrainTestSplit(t *testing.T) {
	x := make([]int, 10)
	y := make([]int, 10)
	for i := range x {
		x[i] = i
		y[i] = i % 2
	}
	s, err := TrainTestSplit(x, y, 0.2, newTestRand(1))
	require.NoError(t, err)
	assert.Len(t, s.XTest, 2)
	assert.Len(t, s.XTrain, 8)

	seen := map[int]bool{}
	for _, v := range append(append([]int(nil), s.XTrain...), s.XTest...) {
		assert.False(t, seen[v], "row %d appears twice", v)
		seen[v] = true
	}
	for i, v := range s.XTrain {
		assert.Equal(t, v%2, s.YTrain[i], "labels must follow their rows")
	}

	_, err = TrainTestSplit(x, y, 0, newTestRand(1))
	assert.Error(t, err)
	_, err = TrainTestSplit(x[:1], y[:1], 0.5, newTestRand(1))
	assert.Error(t, err)
}
