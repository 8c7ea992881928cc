package ml

import (
	"fmt"
	"math"

	"coldchain-risk/internal/features"

	"github.com/goccy/go-json"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// StandardScaler removes the mean and scales to unit population variance.
type StandardScaler struct {
	mean  []float64
	scale []float64
}

type standardScalerState struct {
	Mean  []float64 `json:"mean"`
	Scale []float64 `json:"scale"`
}

// NewStandardScaler returns an unfitted z-score scaler.
func NewStandardScaler() *StandardScaler {
	return &StandardScaler{}
}

// Fit computes per-column mean and standard deviation. Columns with zero
// variance get a scale of 1. Rows must not contain NaN.
func (s *StandardScaler) Fit(x [][]float64) error {
	if s.NumFeatures() > 0 {
		return ErrAlreadyFitted
	}
	cols, err := columns(x)
	if err != nil {
		return err
	}

	mean := make([]float64, len(cols))
	scale := make([]float64, len(cols))
	for j, col := range cols {
		if floats.HasNaN(col) {
			return fmt.Errorf("column %d contains missing values, impute before fitting", j)
		}
		m, std := stat.PopMeanStdDev(col, nil)
		mean[j] = m
		scale[j] = nonZeroScale(std)
	}
	s.mean, s.scale = mean, scale
	return nil
}

// Transform scales every row.
func (s *StandardScaler) Transform(x [][]float64) ([][]float64, error) {
	return transformRows(s, x)
}

// TransformRow returns (row - mean) / scale.
func (s *StandardScaler) TransformRow(row []float64) ([]float64, error) {
	if err := checkFitted(s.NumFeatures(), row); err != nil {
		return nil, err
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.mean[j]) / s.scale[j]
	}
	return out, nil
}

// NumFeatures returns the fitted row width.
func (s *StandardScaler) NumFeatures() int {
	return len(s.mean)
}

func (s *StandardScaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(standardScalerState{Mean: s.mean, Scale: s.scale})
}

func (s *StandardScaler) UnmarshalJSON(data []byte) error {
	var st standardScalerState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if len(st.Mean) != len(st.Scale) {
		return fmt.Errorf("standard scaler: %d means but %d scales", len(st.Mean), len(st.Scale))
	}
	for _, v := range st.Scale {
		if v == 0 || math.IsNaN(v) {
			return fmt.Errorf("standard scaler: invalid scale %v", v)
		}
	}
	s.mean, s.scale = st.Mean, st.Scale
	return nil
}

// MinMaxScaler maps each column onto [0, 1] using the training min and max.
type MinMaxScaler struct {
	min []float64
	rng []float64
}

type minMaxScalerState struct {
	Min   []float64 `json:"min"`
	Range []float64 `json:"range"`
}

// NewMinMaxScaler returns an unfitted min-max scaler.
func NewMinMaxScaler() *MinMaxScaler {
	return &MinMaxScaler{}
}

// Fit records per-column minimum and range. Constant columns get a range of 1.
func (s *MinMaxScaler) Fit(x [][]float64) error {
	if s.NumFeatures() > 0 {
		return ErrAlreadyFitted
	}
	cols, err := columns(x)
	if err != nil {
		return err
	}

	lo := make([]float64, len(cols))
	span := make([]float64, len(cols))
	for j, col := range cols {
		if floats.HasNaN(col) {
			return fmt.Errorf("column %d contains missing values, impute before fitting", j)
		}
		lo[j] = floats.Min(col)
		span[j] = nonZeroScale(floats.Max(col) - lo[j])
	}
	s.min, s.rng = lo, span
	return nil
}

// Transform scales every row.
func (s *MinMaxScaler) Transform(x [][]float64) ([][]float64, error) {
	return transformRows(s, x)
}

// TransformRow returns (row - min) / (max - min).
func (s *MinMaxScaler) TransformRow(row []float64) ([]float64, error) {
	if err := checkFitted(s.NumFeatures(), row); err != nil {
		return nil, err
	}
	out := make([]float64, len(row))
	for j, v := range row {
		out[j] = (v - s.min[j]) / s.rng[j]
	}
	return out, nil
}

// NumFeatures returns the fitted row width.
func (s *MinMaxScaler) NumFeatures() int {
	return len(s.min)
}

func (s *MinMaxScaler) MarshalJSON() ([]byte, error) {
	return json.Marshal(minMaxScalerState{Min: s.min, Range: s.rng})
}

func (s *MinMaxScaler) UnmarshalJSON(data []byte) error {
	var st minMaxScalerState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if len(st.Min) != len(st.Range) {
		return fmt.Errorf("min-max scaler: %d minimums but %d ranges", len(st.Min), len(st.Range))
	}
	for _, v := range st.Range {
		if v == 0 || math.IsNaN(v) {
			return fmt.Errorf("min-max scaler: invalid range %v", v)
		}
	}
	s.min, s.rng = st.Min, st.Range
	return nil
}

// FlattenSequences stacks every timestep of every sequence into one row matrix,
// the layout sequence scalers are fitted on.
func FlattenSequences(x [][][]float64) [][]float64 {
	var rows [][]float64
	for _, seq := range x {
		rows = append(rows, seq...)
	}
	return rows
}

// TransformSequences scales every timestep of every sequence.
func TransformSequences(s Scaler, x [][][]float64) ([][][]float64, error) {
	out := make([][][]float64, len(x))
	for i, seq := range x {
		scaled, err := s.Transform(seq)
		if err != nil {
			return nil, fmt.Errorf("sequence %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

func transformRows(s Scaler, x [][]float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		scaled, err := s.TransformRow(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

func checkFitted(width int, row []float64) error {
	if width == 0 {
		return ErrNotFitted
	}
	if len(row) != width {
		return &features.ShapeError{Op: "transform", Got: len(row), Want: width}
	}
	return nil
}

func columns(x [][]float64) ([][]float64, error) {
	if len(x) == 0 || len(x[0]) == 0 {
		return nil, fmt.Errorf("cannot fit on empty data")
	}
	width := len(x[0])
	cols := make([][]float64, width)
	for j := range cols {
		cols[j] = make([]float64, len(x))
	}
	for i, row := range x {
		if len(row) != width {
			return nil, fmt.Errorf("row %d: %w", i, &features.ShapeError{Op: "fit", Got: len(row), Want: width})
		}
		for j, v := range row {
			cols[j][i] = v
		}
	}
	return cols, nil
}

func nonZeroScale(v float64) float64 {
	if v == 0 || math.IsNaN(v) {
		return 1
	}
	return v
}
