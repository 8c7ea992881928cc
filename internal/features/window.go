package features

import (
	"errors"
	"fmt"
)

// Window geometry the sequence model was trained with.
const (
	DefaultWindowLen = 5
	DefaultStride    = 1
)

// ErrSequenceTooShort is returned when a stream holds fewer readings than one window.
var ErrSequenceTooShort = errors.New("sequence too short")

// ShapeError reports an input whose length does not fit the expected shape.
type ShapeError struct {
	Op   string
	Got  int
	Want int
}

func (e *ShapeError) Error() string {
	if e.Op == "window" {
		return fmt.Sprintf("sequence too short: got %d, need at least %d", e.Got, e.Want)
	}
	return fmt.Sprintf("%s: got length %d, want %d", e.Op, e.Got, e.Want)
}

// Unwrap lets callers match a short window input with errors.Is(err, ErrSequenceTooShort).
func (e *ShapeError) Unwrap() error {
	if e.Op == "window" {
		return ErrSequenceTooShort
	}
	return nil
}

// CreateWindows slices seq into every contiguous sub-sequence of windowLen rows,
// stepping by stride. Windows are copies, so callers may scale them in place.
func CreateWindows(seq [][]float64, windowLen, stride int) ([][][]float64, error) {
	if windowLen <= 0 {
		return nil, fmt.Errorf("window length must be positive, got %d", windowLen)
	}
	if stride <= 0 {
		return nil, fmt.Errorf("stride must be positive, got %d", stride)
	}
	if len(seq) < windowLen {
		return nil, &ShapeError{Op: "window", Got: len(seq), Want: windowLen}
	}

	windows := make([][][]float64, 0, (len(seq)-windowLen)/stride+1)
	for start := 0; start+windowLen <= len(seq); start += stride {
		w := make([][]float64, windowLen)
		for j := 0; j < windowLen; j++ {
			w[j] = append([]float64(nil), seq[start+j]...)
		}
		windows = append(windows, w)
	}
	return windows, nil
}

// ReadingsToMatrix converts readings into row vectors.
func ReadingsToMatrix(readings []Reading) [][]float64 {
	m := make([][]float64, len(readings))
	for i, r := range readings {
		m[i] = r.Vector()
	}
	return m
}
