package pipeline

import (
	"context"
	"fmt"
	"time"

	"coldchain-risk/internal/common"
	"coldchain-risk/internal/features"
	"coldchain-risk/internal/ml"
	"coldchain-risk/internal/synth"

	"github.com/rs/zerolog/log"
)

// validationSplit is the share of the training part held back for per-epoch
// validation.
const validationSplit = 0.2

// SequenceOptions configures TrainSequence.
type SequenceOptions struct {
	Sequences  int
	Preset     string
	Seed       uint64
	TestSize   float64
	LSTM       ml.LSTMConfig
	ScalerPath string
	ModelPath  string
}

// TrainSequence generates labelled windows, min-max scales every timestep,
// trains the LSTM with a validation split and writes the scaler/model pair.
func (t *Trainer) TrainSequence(ctx context.Context, opts SequenceOptions) (*Result, error) {
	start := time.Now()

	params, err := synth.PresetByName(opts.Preset)
	if err != nil {
		return nil, err
	}
	gen, err := synth.NewTemporalGenerator(params, opts.Seed)
	if err != nil {
		return nil, err
	}
	seqs := gen.Generate(opts.Sequences)
	x, y := synth.SplitSequences(seqs)
	log.Info().
		Str("preset", params.Name).
		Int("sequences", len(seqs)).
		Int("seq_len", params.SeqLen).
		Msg("Temporal dataset ready")

	scaler := ml.NewMinMaxScaler()
	if err := scaler.Fit(ml.FlattenSequences(x)); err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	x, err = ml.TransformSequences(scaler, x)
	if err != nil {
		return nil, fmt.Errorf("scale: %w", err)
	}

	rng := synth.NewRand(opts.Seed ^ 0x5eed)
	split, err := ml.TrainTestSplit(x, y, opts.TestSize, rng)
	if err != nil {
		return nil, fmt.Errorf("split: %w", err)
	}
	fit, err := ml.TrainTestSplit(split.XTrain, split.YTrain, validationSplit, rng)
	if err != nil {
		return nil, fmt.Errorf("validation split: %w", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lstmCfg := opts.LSTM
	lstmCfg.SeqLen = params.SeqLen
	lstmCfg.NumFeatures = features.NumFeatures
	model, err := ml.NewLSTM(lstmCfg)
	if err != nil {
		return nil, err
	}
	history, err := model.FitWithValidation(fit.XTrain, fit.YTrain, fit.XTest, fit.YTest)
	if err != nil {
		return nil, fmt.Errorf("fit lstm: %w", err)
	}

	probs, err := model.Predict(split.XTest)
	if err != nil {
		return nil, fmt.Errorf("predict test set: %w", err)
	}
	report, err := ml.Evaluate(split.YTest, ml.WindowLabels(probs))
	if err != nil {
		return nil, fmt.Errorf("evaluate: %w", err)
	}
	if n := len(history); n > 0 {
		report.ValidationLoss = history[n-1].ValLoss
	}

	meta := ml.NewRunMeta(common.PipelineSequence)
	meta.NumFeatures = features.NumFeatures
	meta.SeqLen = params.SeqLen
	err = ml.SaveArtifactPair(meta,
		ml.Artifact{Path: opts.ScalerPath, Kind: ml.KindMinMaxScaler, Value: scaler},
		ml.Artifact{Path: opts.ModelPath, Kind: ml.KindLSTM, Value: model},
	)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Meta:        meta,
		Report:      report,
		DatasetRows: len(seqs),
		TrainRows:   len(fit.XTrain),
		TestRows:    len(split.XTest),
		History:     history,
		Duration:    time.Since(start),
	}
	log.Info().
		Str("run_id", meta.RunID).
		Float64("accuracy", report.Accuracy).
		Float64("val_loss", report.ValidationLoss).
		Dur("duration", res.Duration).
		Str("scaler", opts.ScalerPath).
		Str("model", opts.ModelPath).
		Msg("Sequence model trained")

	runParams := map[string]any{
		"sequences":     opts.Sequences,
		"preset":        params.Name,
		"seed":          opts.Seed,
		"test_size":     opts.TestSize,
		"hidden":        lstmCfg.Hidden,
		"dense":         lstmCfg.Dense,
		"epochs":        lstmCfg.Epochs,
		"batch_size":    lstmCfg.BatchSize,
		"learning_rate": lstmCfg.LearningRate,
	}
	if err := t.finish(res, opts.ScalerPath, opts.ModelPath, runParams); err != nil {
		return res, fmt.Errorf("record run: %w", err)
	}
	return res, nil
}
