package pipeline

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"coldchain-risk/internal/cfg"
	"coldchain-risk/internal/common"
	"coldchain-risk/internal/features"
	"coldchain-risk/internal/ml"
	"coldchain-risk/internal/storage"
	"coldchain-risk/internal/synth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordedRun struct {
	pipeline string
	accuracy float64
}

type fakeMetrics struct {
	mu   sync.Mutex
	runs []recordedRun
}

func (f *fakeMetrics) TrainingCompleted(pipeline string, _ time.Duration, accuracy float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, recordedRun{pipeline, accuracy})
}

func tabularOptions(dir string) TabularOptions {
	return TabularOptions{
		DatasetPath: filepath.Join(dir, "dataset.csv"),
		Samples:     600,
		Seed:        3,
		FlipRate:    0.08,
		TestSize:    0.2,
		Forest: ml.ForestConfig{
			NumTrees:       12,
			MinSamplesLeaf: 1,
			Seed:           3,
		},
		SMOTENeighbors: 5,
		ScalerPath:     filepath.Join(dir, "scaler.json"),
		ModelPath:      filepath.Join(dir, "model.json"),
		ImportancePath: filepath.Join(dir, "importance.json"),
	}
}

func TestTrainTabular(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(filepath.Join(dir, "db"))
	require.NoError(t, err)
	defer store.Close()
	metrics := &fakeMetrics{}

	opts := tabularOptions(dir)
	res, err := New(store, metrics).TrainTabular(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, common.PipelineTabular, res.Meta.Pipeline)
	assert.Equal(t, 600, res.DatasetRows)
	assert.Equal(t, 120, res.TestRows)
	assert.GreaterOrEqual(t, res.TrainRows, 480, "SMOTE only adds rows")
	assert.Equal(t, 120, res.Report.Samples)
	assert.Greater(t, res.Report.Accuracy, 0.5)
	require.Len(t, res.Importances, features.NumFeatures)
	assert.Equal(t, 1, res.Importances[0].Rank)

	assert.FileExists(t, opts.DatasetPath)
	assert.FileExists(t, opts.ImportancePath)

	predictor, err := ml.NewTabularPredictor(opts.ScalerPath, opts.ModelPath, nil)
	require.NoError(t, err)
	assert.Equal(t, res.Meta.RunID, predictor.Info().RunID)

	reading := features.Reading{CrateTemp: 15, ReeferTemp: 6, Humidity: 60, LocationTemp: 22, TransitDuration: 8, CropType: 2}
	first, err := predictor.Predict(reading)
	require.NoError(t, err)
	second, err := predictor.Predict(reading)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.InDelta(t, 1.0, first.Probabilities.LowRisk+first.Probabilities.HighRisk, 1e-9)

	run, err := store.LatestRun(common.PipelineTabular)
	require.NoError(t, err)
	assert.Equal(t, res.Meta.RunID, run.RunID)
	assert.Equal(t, opts.ModelPath, run.ModelPath)
	assert.Equal(t, res.Report.Accuracy, run.Report.Accuracy)

	require.Len(t, metrics.runs, 1)
	assert.Equal(t, common.PipelineTabular, metrics.runs[0].pipeline)
}

func TestTrainTabular_ReusesDataset(t *testing.T) {
	dir := t.TempDir()
	opts := tabularOptions(dir)

	samples := synth.GenerateTabular(300, 11)
	require.NoError(t, synth.WriteCSVFile(opts.DatasetPath, samples))

	res, err := New(nil, nil).TrainTabular(context.Background(), opts)
	require.NoError(t, err)
	assert.Equal(t, 300, res.DatasetRows, "existing dataset should be used instead of generating")
}

func TestTrainTabular_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	opts := tabularOptions(t.TempDir())
	_, err := New(nil, nil).TrainTabular(ctx, opts)
	assert.ErrorIs(t, err, context.Canceled)
	assert.NoFileExists(t, opts.ModelPath)
}

func TestTrainTabular_NoData(t *testing.T) {
	opts := tabularOptions(t.TempDir())
	opts.Samples = 0
	_, err := New(nil, nil).TrainTabular(context.Background(), opts)
	assert.Error(t, err)
}

func sequenceOptions(dir string) SequenceOptions {
	lstm := ml.DefaultLSTMConfig()
	lstm.Hidden = 8
	lstm.Dense = 4
	lstm.Epochs = 2
	lstm.BatchSize = 16
	lstm.LearningRate = 0.01
	lstm.Seed = 5
	return SequenceOptions{
		Sequences:  250,
		Preset:     "stable",
		Seed:       5,
		TestSize:   0.2,
		LSTM:       lstm,
		ScalerPath: filepath.Join(dir, "scaler_multi.json"),
		ModelPath:  filepath.Join(dir, "lstm.json"),
	}
}

func TestTrainSequence(t *testing.T) {
	dir := t.TempDir()
	store, err := storage.New(filepath.Join(dir, "db"))
	require.NoError(t, err)
	defer store.Close()
	metrics := &fakeMetrics{}

	opts := sequenceOptions(dir)
	res, err := New(store, metrics).TrainSequence(context.Background(), opts)
	require.NoError(t, err)

	assert.Equal(t, common.PipelineSequence, res.Meta.Pipeline)
	assert.Equal(t, features.DefaultWindowLen, res.Meta.SeqLen)
	assert.Equal(t, 250, res.DatasetRows)
	assert.Equal(t, 50, res.TestRows)
	assert.Equal(t, 160, res.TrainRows)
	require.Len(t, res.History, 2)
	assert.Equal(t, res.History[1].ValLoss, res.Report.ValidationLoss)

	predictor, err := ml.NewSequencePredictor(opts.ScalerPath, opts.ModelPath, nil)
	require.NoError(t, err)

	seq := make([][]float64, 6)
	for i := range seq {
		seq[i] = []float64{18, 6, 70, 22, 12, 1}
	}
	out, err := predictor.PredictStream(seq)
	require.NoError(t, err)
	assert.Equal(t, 2, out.TotalWindows)
	assert.Len(t, out.WindowProbabilities, 2)

	run, err := store.FindRun(common.PipelineSequence, res.Meta.RunID)
	require.NoError(t, err)
	assert.Equal(t, "stable", run.Params["preset"])

	require.Len(t, metrics.runs, 1)
	assert.Equal(t, common.PipelineSequence, metrics.runs[0].pipeline)
}

func TestTrainSequence_UnknownPreset(t *testing.T) {
	opts := sequenceOptions(t.TempDir())
	opts.Preset = "chaotic"
	_, err := New(nil, nil).TrainSequence(context.Background(), opts)
	assert.Error(t, err)
}

func TestOptionsFromSettings(t *testing.T) {
	settings := cfg.Settings{
		DatasetPath:        "data.csv",
		TabularScalerPath:  "a.json",
		TabularModelPath:   "b.json",
		SequenceScalerPath: "c.json",
		SequenceModelPath:  "d.json",
		Training: cfg.TrainingSettings{
			Seed: 9, Samples: 100, Sequences: 50, FlipRate: 0.1, TestSize: 0.25,
			Trees: 20, MaxDepth: 4, MinSamplesLeaf: 2, SMOTENeighbors: 3,
			Epochs: 4, BatchSize: 8, HiddenUnits: 16, DenseUnits: 8, LearningRate: 0.005,
			TemporalPreset: "legacy",
		},
	}

	tab := TabularOptionsFrom(settings)
	assert.Equal(t, "data.csv", tab.DatasetPath)
	assert.Equal(t, 20, tab.Forest.NumTrees)
	assert.Equal(t, 4, tab.Forest.MaxDepth)
	assert.Equal(t, uint64(9), tab.Forest.Seed)
	assert.Equal(t, "b.json", tab.ModelPath)

	seq := SequenceOptionsFrom(settings)
	assert.Equal(t, "legacy", seq.Preset)
	assert.Equal(t, 16, seq.LSTM.Hidden)
	assert.Equal(t, 8, seq.LSTM.BatchSize)
	assert.Equal(t, "d.json", seq.ModelPath)
}
