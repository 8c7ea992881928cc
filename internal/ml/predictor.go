package ml

import (
	"fmt"
	"time"

	"coldchain-risk/internal/common"
	"coldchain-risk/internal/features"

	"github.com/rs/zerolog/log"
	"gonum.org/v1/gonum/floats"
)

// MetricsInterface defines metrics methods needed by the predictors
type MetricsInterface interface {
	MLPredictionsInc(pipeline string)
	MLFailuresInc(pipeline string)
	MLLatencyObserve(pipeline string, seconds float64)
	MLModelAgeSet(pipeline string, seconds float64)
	MLPredictionScoresObserve(pipeline string, score float64)
	MLVerdictInc(verdict string)
}

// Labels returned by the tabular pipeline.
const (
	LabelHighRisk = "High Risk"
	LabelLowRisk  = "Low Risk"
)

// ClassProbabilities is the per-class probability map of a tabular prediction.
type ClassProbabilities struct {
	LowRisk  float64 `json:"Low Risk"`
	HighRisk float64 `json:"High Risk"`
}

// TabularPrediction is the outcome for one reading.
type TabularPrediction struct {
	Label         string             `json:"prediction"`
	Code          int                `json:"prediction_code"`
	Probabilities ClassProbabilities `json:"probabilities"`
}

// SequencePrediction is the outcome for one reading stream.
type SequencePrediction struct {
	TotalWindows        int       `json:"total_windows"`
	WindowPredictions   []int     `json:"window_predictions"`
	WindowProbabilities []float64 `json:"window_probabilities"`
	FinalDecision       Verdict   `json:"final_decision"`
}

// ModelInfo describes the artifacts a predictor is serving.
type ModelInfo struct {
	Pipeline    string       `json:"pipeline"`
	RunID       string       `json:"run_id"`
	ModelKind   ArtifactKind `json:"model_kind"`
	CreatedAt   time.Time    `json:"created_at"`
	AgeSeconds  float64      `json:"age_seconds"`
	NumFeatures int          `json:"num_features"`
	SeqLen      int          `json:"seq_len,omitempty"`
	Features    []string     `json:"features"`
}

// TabularPredictor scores single readings with a fitted scaler and forest.
// It holds no mutable state after construction and is safe for concurrent use.
type TabularPredictor struct {
	scaler  Scaler
	model   Classifier
	meta    ArtifactMeta
	metrics MetricsInterface
}

// NewTabularPredictor loads and cross-checks the scaler and model artifacts.
func NewTabularPredictor(scalerPath, modelPath string, metrics MetricsInterface) (*TabularPredictor, error) {
	scaler, scalerMeta, err := LoadScaler(scalerPath)
	if err != nil {
		return nil, err
	}
	model := NewRandomForest(ForestConfig{})
	modelMeta, err := LoadArtifact(modelPath, KindRandomForest, model)
	if err != nil {
		return nil, err
	}
	if err := CheckPair(scalerMeta, modelMeta); err != nil {
		return nil, &ArtifactError{Path: modelPath, Reason: "unpaired", Err: err}
	}
	if modelMeta.Pipeline != common.PipelineTabular {
		return nil, &ArtifactError{Path: modelPath, Reason: fmt.Sprintf("built for pipeline %q", modelMeta.Pipeline)}
	}

	p, err := NewTabularPredictorFrom(scaler, model, modelMeta, metrics)
	if err != nil {
		return nil, &ArtifactError{Path: modelPath, Reason: "shape mismatch", Err: err}
	}
	log.Info().
		Str("scaler", scalerPath).
		Str("model", modelPath).
		Str("run_id", modelMeta.RunID).
		Int("trees", model.NumTrees()).
		Msg("Tabular model loaded")
	return p, nil
}

// NewTabularPredictorFrom wraps already-loaded components.
func NewTabularPredictorFrom(scaler Scaler, model Classifier, meta ArtifactMeta, metrics MetricsInterface) (*TabularPredictor, error) {
	if scaler.NumFeatures() != features.NumFeatures {
		return nil, &features.ShapeError{Op: "scaler", Got: scaler.NumFeatures(), Want: features.NumFeatures}
	}
	if model.NumFeatures() != features.NumFeatures {
		return nil, &features.ShapeError{Op: "model", Got: model.NumFeatures(), Want: features.NumFeatures}
	}
	p := &TabularPredictor{scaler: scaler, model: model, meta: meta, metrics: metrics}
	if metrics != nil && !meta.CreatedAt.IsZero() {
		metrics.MLModelAgeSet(common.PipelineTabular, meta.Age().Seconds())
	}
	return p, nil
}

// Predict scales the reading with the training statistics and classifies it.
func (p *TabularPredictor) Predict(r features.Reading) (TabularPrediction, error) {
	start := time.Now()
	var out TabularPrediction

	if r.HasMissing() {
		p.failure()
		return out, fmt.Errorf("reading has missing values")
	}
	row, err := p.scaler.TransformRow(r.Vector())
	if err != nil {
		p.failure()
		return out, err
	}
	batch := [][]float64{row}
	labels, err := p.model.Predict(batch)
	if err != nil {
		p.failure()
		return out, err
	}
	proba, err := p.model.PredictProba(batch)
	if err != nil {
		p.failure()
		return out, err
	}

	out.Code = labels[0]
	out.Label = LabelLowRisk
	if out.Code == 1 {
		out.Label = LabelHighRisk
	}
	out.Probabilities = ClassProbabilities{LowRisk: proba[0][0], HighRisk: proba[0][1]}

	if p.metrics != nil {
		p.metrics.MLPredictionsInc(common.PipelineTabular)
		p.metrics.MLLatencyObserve(common.PipelineTabular, time.Since(start).Seconds())
		p.metrics.MLPredictionScoresObserve(common.PipelineTabular, out.Probabilities.HighRisk)
	}
	return out, nil
}

// Info reports the loaded model identity.
func (p *TabularPredictor) Info() ModelInfo {
	return ModelInfo{
		Pipeline:    p.meta.Pipeline,
		RunID:       p.meta.RunID,
		ModelKind:   KindRandomForest,
		CreatedAt:   p.meta.CreatedAt,
		AgeSeconds:  p.meta.Age().Seconds(),
		NumFeatures: p.model.NumFeatures(),
		Features:    features.Names,
	}
}

func (p *TabularPredictor) failure() {
	if p.metrics != nil {
		p.metrics.MLFailuresInc(common.PipelineTabular)
	}
}

// SequencePredictor scores reading streams with a fitted scaler and LSTM,
// one probability per sliding window. Safe for concurrent use.
type SequencePredictor struct {
	scaler    Scaler
	model     SequenceClassifier
	meta      ArtifactMeta
	metrics   MetricsInterface
	windowLen int
	stride    int
}

// NewSequencePredictor loads and cross-checks the scaler and model artifacts.
func NewSequencePredictor(scalerPath, modelPath string, metrics MetricsInterface) (*SequencePredictor, error) {
	scaler, scalerMeta, err := LoadScaler(scalerPath)
	if err != nil {
		return nil, err
	}
	model := &LSTM{}
	modelMeta, err := LoadArtifact(modelPath, KindLSTM, model)
	if err != nil {
		return nil, err
	}
	if err := CheckPair(scalerMeta, modelMeta); err != nil {
		return nil, &ArtifactError{Path: modelPath, Reason: "unpaired", Err: err}
	}
	if modelMeta.Pipeline != common.PipelineSequence {
		return nil, &ArtifactError{Path: modelPath, Reason: fmt.Sprintf("built for pipeline %q", modelMeta.Pipeline)}
	}

	p, err := NewSequencePredictorFrom(scaler, model, modelMeta, metrics)
	if err != nil {
		return nil, &ArtifactError{Path: modelPath, Reason: "shape mismatch", Err: err}
	}
	log.Info().
		Str("scaler", scalerPath).
		Str("model", modelPath).
		Str("run_id", modelMeta.RunID).
		Int("hidden", model.Config().Hidden).
		Msg("Sequence model loaded")
	return p, nil
}

// NewSequencePredictorFrom wraps already-loaded components. The model's
// sequence length becomes the window length.
func NewSequencePredictorFrom(scaler Scaler, model SequenceClassifier, meta ArtifactMeta, metrics MetricsInterface) (*SequencePredictor, error) {
	seqLen, width := model.InputShape()
	if seqLen != features.DefaultWindowLen {
		return nil, &features.ShapeError{Op: "model sequence length", Got: seqLen, Want: features.DefaultWindowLen}
	}
	if width != features.NumFeatures {
		return nil, &features.ShapeError{Op: "model", Got: width, Want: features.NumFeatures}
	}
	if scaler.NumFeatures() != features.NumFeatures {
		return nil, &features.ShapeError{Op: "scaler", Got: scaler.NumFeatures(), Want: features.NumFeatures}
	}
	p := &SequencePredictor{
		scaler:    scaler,
		model:     model,
		meta:      meta,
		metrics:   metrics,
		windowLen: seqLen,
		stride:    features.DefaultStride,
	}
	if metrics != nil && !meta.CreatedAt.IsZero() {
		metrics.MLModelAgeSet(common.PipelineSequence, meta.Age().Seconds())
	}
	return p, nil
}

// WindowLen is the number of readings per scored window.
func (p *SequencePredictor) WindowLen() int {
	return p.windowLen
}

// PredictStream windows the readings, scores every window and applies the
// decision rule. Streams shorter than one window fail with
// features.ErrSequenceTooShort.
func (p *SequencePredictor) PredictStream(seq [][]float64) (SequencePrediction, error) {
	start := time.Now()
	var out SequencePrediction

	windows, err := features.CreateWindows(seq, p.windowLen, p.stride)
	if err != nil {
		p.failure()
		return out, err
	}
	probs, err := p.score(windows)
	if err != nil {
		p.failure()
		return out, err
	}

	out.TotalWindows = len(windows)
	out.WindowProbabilities = probs
	out.WindowPredictions = WindowLabels(probs)
	out.FinalDecision = Decide(probs)

	if p.metrics != nil {
		p.metrics.MLPredictionsInc(common.PipelineSequence)
		p.metrics.MLLatencyObserve(common.PipelineSequence, time.Since(start).Seconds())
		for _, prob := range probs {
			p.metrics.MLPredictionScoresObserve(common.PipelineSequence, prob)
		}
		p.metrics.MLVerdictInc(string(out.FinalDecision))
	}
	return out, nil
}

// ScoreWindow returns P(high risk) for exactly one window of readings.
func (p *SequencePredictor) ScoreWindow(window [][]float64) (float64, error) {
	if len(window) != p.windowLen {
		return 0, &features.ShapeError{Op: "stream window", Got: len(window), Want: p.windowLen}
	}
	probs, err := p.score([][][]float64{window})
	if err != nil {
		p.failure()
		return 0, err
	}
	if p.metrics != nil {
		p.metrics.MLPredictionScoresObserve(common.PipelineSequence, probs[0])
	}
	return probs[0], nil
}

func (p *SequencePredictor) score(windows [][][]float64) ([]float64, error) {
	for i, w := range windows {
		for t, row := range w {
			if floats.HasNaN(row) {
				return nil, fmt.Errorf("window %d reading %d has missing values", i, t)
			}
		}
	}
	scaled, err := TransformSequences(p.scaler, windows)
	if err != nil {
		return nil, err
	}
	return p.model.Predict(scaled)
}

// Info reports the loaded model identity.
func (p *SequencePredictor) Info() ModelInfo {
	return ModelInfo{
		Pipeline:    p.meta.Pipeline,
		RunID:       p.meta.RunID,
		ModelKind:   KindLSTM,
		CreatedAt:   p.meta.CreatedAt,
		AgeSeconds:  p.meta.Age().Seconds(),
		NumFeatures: features.NumFeatures,
		SeqLen:      p.windowLen,
		Features:    features.Names,
	}
}

func (p *SequencePredictor) failure() {
	if p.metrics != nil {
		p.metrics.MLFailuresInc(common.PipelineSequence)
	}
}
