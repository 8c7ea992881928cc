// Package ml provides the models behind both spoilage pipelines: feature scalers,
// a random-forest tabular classifier with SMOTE balancing, an LSTM sequence
// classifier, evaluation, artifact persistence and the read-only predictor
// services that serve them.
package ml

import "errors"

var (
	// ErrNotFitted is returned when a model or scaler is used before Fit.
	ErrNotFitted = errors.New("model is not fitted")
	// ErrAlreadyFitted is returned when Fit is called on fitted state, which is immutable.
	ErrAlreadyFitted = errors.New("model is already fitted")
)

// Scaler normalizes feature rows. Transform must apply exactly the statistics
// computed by Fit.
type Scaler interface {
	// Fit computes per-feature statistics from training rows.
	Fit(x [][]float64) error

	// Transform scales a batch of rows into new slices.
	Transform(x [][]float64) ([][]float64, error)

	// TransformRow scales a single row into a new slice.
	TransformRow(row []float64) ([]float64, error)

	// NumFeatures is the row width seen by Fit, or 0 before Fit.
	NumFeatures() int
}

// Classifier is a binary tabular classifier.
type Classifier interface {
	Fit(x [][]float64, y []int) error

	// Predict returns a hard label per row.
	Predict(x [][]float64) ([]int, error)

	// PredictProba returns [P(low risk), P(high risk)] per row.
	PredictProba(x [][]float64) ([][2]float64, error)

	NumFeatures() int
}

// SequenceClassifier scores fixed-length sequences with the probability of the positive class.
type SequenceClassifier interface {
	Fit(x [][][]float64, y []int) error
	Predict(x [][][]float64) ([]float64, error)
	InputShape() (seqLen, numFeatures int)
}
