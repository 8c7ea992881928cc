package ml

import (
	"fmt"
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"
)

// ColumnMedians returns the median of the non-missing values of every column.
// A column with no observed values gets 0.
func ColumnMedians(x [][]float64) ([]float64, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("cannot compute medians of empty data")
	}
	width := len(x[0])
	medians := make([]float64, width)
	col := make([]float64, 0, len(x))
	for j := 0; j < width; j++ {
		col = col[:0]
		for i, row := range x {
			if len(row) != width {
				return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), width)
			}
			if !math.IsNaN(row[j]) {
				col = append(col, row[j])
			}
		}
		medians[j] = median(col)
	}
	return medians, nil
}

// ImputeMissing returns a copy of x with NaN cells replaced by fill[column].
func ImputeMissing(x [][]float64, fill []float64) ([][]float64, error) {
	out := make([][]float64, len(x))
	for i, row := range x {
		if len(row) != len(fill) {
			return nil, fmt.Errorf("row %d has %d columns, expected %d", i, len(row), len(fill))
		}
		r := make([]float64, len(row))
		for j, v := range row {
			if math.IsNaN(v) {
				v = fill[j]
			}
			r[j] = v
		}
		out[i] = r
	}
	return out, nil
}

func median(values []float64) float64 {
	n := len(values)
	if n == 0 {
		return 0
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	// the empirical quantile is the lower middle value for even n
	lower := stat.Quantile(0.5, stat.Empirical, sorted, nil)
	return (lower + sorted[n/2]) / 2
}
