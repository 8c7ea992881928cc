package ml

import (
	"fmt"
	"math/rand/v2"

	"gonum.org/v1/gonum/floats"
)

// SMOTE oversamples the minority class by interpolating between a minority
// row and one of its k nearest minority neighbours.
type SMOTE struct {
	k   int
	rng *rand.Rand
}

// NewSMOTE returns an oversampler using k neighbours.
func NewSMOTE(k int, rng *rand.Rand) *SMOTE {
	return &SMOTE{k: k, rng: rng}
}

// FitResample returns the original rows followed by synthetic minority rows,
// enough to equalize both classes. Inputs are not modified.
func (s *SMOTE) FitResample(x [][]float64, y []int) ([][]float64, []int, error) {
	if err := checkTrainingSet(x, y); err != nil {
		return nil, nil, err
	}
	if s.k < 1 {
		return nil, nil, fmt.Errorf("smote: k must be positive, got %d", s.k)
	}

	var byClass [2][]int
	for i, label := range y {
		byClass[label] = append(byClass[label], i)
	}
	minority := 1
	if len(byClass[0]) < len(byClass[1]) {
		minority = 0
	}
	minIdx := byClass[minority]
	need := len(byClass[1-minority]) - len(minIdx)

	outX := append(make([][]float64, 0, len(x)+need), x...)
	outY := append(make([]int, 0, len(y)+need), y...)
	if need == 0 {
		return outX, outY, nil
	}
	if len(minIdx) < 2 {
		return nil, nil, fmt.Errorf("smote: need at least 2 minority rows, got %d", len(minIdx))
	}

	k := min(s.k, len(minIdx)-1)
	neighbours := nearestNeighbours(x, minIdx, k)

	for n := 0; n < need; n++ {
		a := s.rng.IntN(len(minIdx))
		b := neighbours[a][s.rng.IntN(k)]
		gap := s.rng.Float64()
		xa, xb := x[minIdx[a]], x[minIdx[b]]
		row := make([]float64, len(xa))
		for j := range row {
			row[j] = xa[j] + gap*(xb[j]-xa[j])
		}
		outX = append(outX, row)
		outY = append(outY, minority)
	}
	return outX, outY, nil
}

// nearestNeighbours returns, for every position in idx, the positions of its
// k closest other members by Euclidean distance.
func nearestNeighbours(x [][]float64, idx []int, k int) [][]int {
	out := make([][]int, len(idx))
	dist := make([]float64, k)
	for a := range idx {
		nn := make([]int, 0, k)
		dist = dist[:0]
		for b := range idx {
			if a == b {
				continue
			}
			d := floats.Distance(x[idx[a]], x[idx[b]], 2)
			if len(nn) == k && d >= dist[k-1] {
				continue
			}
			// insertion into the sorted candidate list
			pos := len(nn)
			for pos > 0 && dist[pos-1] > d {
				pos--
			}
			if len(nn) < k {
				nn = append(nn, 0)
				dist = append(dist, 0)
			}
			copy(nn[pos+1:], nn[pos:len(nn)-1])
			copy(dist[pos+1:], dist[pos:len(dist)-1])
			nn[pos] = b
			dist[pos] = d
		}
		out[a] = nn
	}
	return out
}
