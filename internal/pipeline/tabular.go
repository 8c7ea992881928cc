package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"time"

	"coldchain-risk/internal/common"
	"coldchain-risk/internal/features"
	"coldchain-risk/internal/ml"
	"coldchain-risk/internal/synth"

	"github.com/rs/zerolog/log"
)

// TabularOptions configures TrainTabular.
type TabularOptions struct {
	// DatasetPath is read when it exists. Otherwise Samples rows are generated,
	// noised with FlipRate and written there (unless empty).
	DatasetPath    string
	Samples        int
	Seed           uint64
	FlipRate       float64
	TestSize       float64
	Forest         ml.ForestConfig
	SMOTENeighbors int
	ScalerPath     string
	ModelPath      string
	// ImportancePath receives the ranked feature importances when set.
	ImportancePath string
}

// TrainTabular imputes, scales, splits, oversamples the minority class of the
// training part, fits the random forest and writes the scaler/model pair.
func (t *Trainer) TrainTabular(ctx context.Context, opts TabularOptions) (*Result, error) {
	start := time.Now()
	rng := synth.NewRand(opts.Seed)

	samples, err := loadOrGenerate(opts, rng)
	if err != nil {
		return nil, err
	}
	log.Info().
		Int("rows", len(samples)).
		Float64("positive_rate", synth.PositiveRate(samples)).
		Msg("Tabular dataset ready")

	x, y := synth.SplitXY(samples)
	medians, err := ml.ColumnMedians(x)
	if err != nil {
		return nil, fmt.Errorf("compute medians: %w", err)
	}
	x, err = ml.ImputeMissing(x, medians)
	if err != nil {
		return nil, fmt.Errorf("impute: %w", err)
	}

	scaler := ml.NewStandardScaler()
	if err := scaler.Fit(x); err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	x, err = scaler.Transform(x)
	if err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}

	split, err := ml.TrainTestSplit(x, y, opts.TestSize, rng)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	xTrain, yTrain, err := ml.NewSMOTE(opts.SMOTENeighbors, rng).FitResample(split.XTrain, split.YTrain)
	if err != nil {
		return nil, fmt.Errorf("smote: %w", err)
	}
	log.Info().
		Int("train_rows", len(split.XTrain)).
		Int("resampled_rows", len(xTrain)).
		Int("test_rows", len(split.XTest)).
		Msg("Training set balanced")

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	forest := ml.NewRandomForest(opts.Forest)
	if err := forest.Fit(xTrain, yTrain); err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	pred, err := forest.Predict(split.XTest)
	if err != nil {
		return nil, fmt.Errorf("predict test set: %w", err)
	}
	report, err := ml.Evaluate(split.YTest, pred)
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	importances, err := ml.RankFeatures(features.Names, forest.FeatureImportances())
	if err != nil {
		return nil, fmt.Errorf("rank features: %w", err)
	}

	meta := ml.NewRunMeta(common.PipelineTabular)
	meta.NumFeatures = features.NumFeatures
	err = ml.SaveArtifactPair(meta,
		ml.Artifact{Path: opts.ScalerPath, Kind: ml.KindStandardScaler, Value: scaler},
		ml.Artifact{Path: opts.ModelPath, Kind: ml.KindRandomForest, Value: forest},
	)
	if err != nil {
		return nil, err
	}
	if opts.ImportancePath != "" {
		if err := ml.SaveFeatureImportance(opts.ImportancePath, importances); err != nil {
			return nil, fmt.Errorf("save feature importance: %w", err)
		}
	}

	res := &Result{
		Meta:        meta,
		Report:      report,
		DatasetRows: len(samples),
		TrainRows:   len(xTrain),
		TestRows:    len(split.XTest),
		Importances: importances,
		Duration:    time.Since(start),
	}
	log.Info().
		Str("run_id", meta.RunID).
		Float64("accuracy", report.Accuracy).
		Dur("duration", res.Duration).
		Str("scaler", opts.ScalerPath).
		Str("model", opts.ModelPath).
		Msg("Tabular model trained")

	params := map[string]any{
		"samples":          opts.Samples,
		"seed":             opts.Seed,
		"flip_rate":        opts.FlipRate,
		"test_size":        opts.TestSize,
		"trees":            opts.Forest.NumTrees,
		"max_depth":        opts.Forest.MaxDepth,
		"min_samples_leaf": opts.Forest.MinSamplesLeaf,
		"smote_neighbors":  opts.SMOTENeighbors,
	}
	if err := t.finish(res, opts.ScalerPath, opts.ModelPath, params); err != nil {
		return res, fmt.Errorf("record run: %w", err)
	}
	return res, nil
}

func loadOrGenerate(opts TabularOptions, rng *rand.Rand) ([]synth.Sample, error) {
	if opts.DatasetPath != "" {
		samples, err := synth.ReadCSVFile(opts.DatasetPath)
		if err == nil {
			log.Info().Str("path", opts.DatasetPath).Msg("Loaded dataset")
			return samples, nil
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read dataset: %w", err)
		}
	}

	if opts.Samples < 1 {
		return nil, fmt.Errorf("no dataset at %q and no samples requested", opts.DatasetPath)
	}
	samples := synth.GenerateTabular(opts.Samples, opts.Seed)
	flipped := synth.FlipLabels(samples, opts.FlipRate, synth.NewRand(rng.Uint64()))
	log.Info().Int("rows", len(samples)).Int("flipped", len(flipped)).Msg("Generated tabular dataset")

	if opts.DatasetPath != "" {
		if err := synth.WriteCSVFile(opts.DatasetPath, samples); err != nil {
			return nil, fmt.Errorf("write dataset: %w", err)
		}
	}
	return samples, nil
}
