// Package pipeline runs the two training pipelines end to end: dataset, scaler,
// classifier, evaluation and the paired artifacts the inference services load.
package pipeline

import (
	"time"

	"coldchain-risk/internal/cfg"
	"coldchain-risk/internal/common"
	"coldchain-risk/internal/ml"
	"coldchain-risk/internal/storage"
)

// RunStore records finished runs. *storage.Store satisfies it.
type RunStore interface {
	SaveRun(run storage.RunRecord) error
}

// Metrics receives training outcomes. *metrics.MetricsWrapper satisfies it.
type Metrics interface {
	TrainingCompleted(pipeline string, d time.Duration, accuracy float64)
}

// Result describes one completed training run.
type Result struct {
	Meta        ml.ArtifactMeta
	Report      ml.Report
	DatasetRows int
	TrainRows   int
	TestRows    int
	Importances []ml.FeatureStats
	History     []ml.EpochStats
	Duration    time.Duration
}

// Trainer runs pipelines and reports them to an optional store and metrics sink.
type Trainer struct {
	store   RunStore
	metrics Metrics
}

// New creates a trainer. Either argument may be nil.
func New(store RunStore, metrics Metrics) *Trainer {
	return &Trainer{store: store, metrics: metrics}
}

func (t *Trainer) finish(res *Result, scalerPath, modelPath string, params map[string]any) error {
	if t.metrics != nil {
		t.metrics.TrainingCompleted(res.Meta.Pipeline, res.Duration, res.Report.Accuracy)
	}
	if t.store == nil {
		return nil
	}
	return t.store.SaveRun(storage.RunRecord{
		RunID:       res.Meta.RunID,
		Pipeline:    res.Meta.Pipeline,
		CreatedAt:   res.Meta.CreatedAt,
		ScalerPath:  scalerPath,
		ModelPath:   modelPath,
		DatasetRows: res.DatasetRows,
		TrainRows:   res.TrainRows,
		TestRows:    res.TestRows,
		Params:      params,
		Report:      res.Report,
		Importances: res.Importances,
	})
}

// TabularOptionsFrom maps loaded settings onto tabular pipeline options.
func TabularOptionsFrom(s cfg.Settings) TabularOptions {
	t := s.Training
	return TabularOptions{
		DatasetPath: s.DatasetPath,
		Samples:     t.Samples,
		Seed:        t.Seed,
		FlipRate:    t.FlipRate,
		TestSize:    t.TestSize,
		Forest: ml.ForestConfig{
			NumTrees:       t.Trees,
			MaxDepth:       t.MaxDepth,
			MinSamplesLeaf: t.MinSamplesLeaf,
			Seed:           t.Seed,
		},
		SMOTENeighbors: t.SMOTENeighbors,
		ScalerPath:     s.TabularScalerPath,
		ModelPath:      s.TabularModelPath,
	}
}

// SequenceOptionsFrom maps loaded settings onto sequence pipeline options.
func SequenceOptionsFrom(s cfg.Settings) SequenceOptions {
	t := s.Training
	lstm := ml.DefaultLSTMConfig()
	lstm.Hidden = t.HiddenUnits
	lstm.Dense = t.DenseUnits
	lstm.Epochs = t.Epochs
	lstm.BatchSize = t.BatchSize
	lstm.LearningRate = t.LearningRate
	lstm.Seed = t.Seed
	return SequenceOptions{
		Sequences:  t.Sequences,
		Preset:     t.TemporalPreset,
		Seed:       t.Seed,
		TestSize:   t.TestSize,
		LSTM:       lstm,
		ScalerPath: s.SequenceScalerPath,
		ModelPath:  s.SequenceModelPath,
	}
}

// Pipelines lists the accepted pipeline names.
var Pipelines = []string{common.PipelineTabular, common.PipelineSequence}
