package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
)

// Split holds the two sides of a shuffled train/test partition.
type Split[T any] struct {
	XTrain []T
	XTest  []T
	YTrain []int
	YTest  []int
}

// TrainTestSplit shuffles rows with rng and holds out ceil(testSize*n) of them.
// Rows are shared with x, not copied.
func TrainTestSplit[T any](x []T, y []int, testSize float64, rng *rand.Rand) (Split[T], error) {
	var s Split[T]
	n := len(x)
	if n != len(y) {
		return s, fmt.Errorf("%d rows but %d labels", n, len(y))
	}
	if testSize <= 0 || testSize >= 1 {
		return s, fmt.Errorf("test size must be within (0, 1), got %f", testSize)
	}
	nTest := int(math.Ceil(testSize * float64(n)))
	if nTest < 1 || n-nTest < 1 {
		return s, fmt.Errorf("cannot split %d rows with test size %.2f", n, testSize)
	}

	perm := rng.Perm(n)
	s.XTest, s.YTest = make([]T, 0, nTest), make([]int, 0, nTest)
	s.XTrain, s.YTrain = make([]T, 0, n-nTest), make([]int, 0, n-nTest)
	for k, i := range perm {
		if k < nTest {
			s.XTest = append(s.XTest, x[i])
			s.YTest = append(s.YTest, y[i])
		} else {
			s.XTrain = append(s.XTrain, x[i])
			s.YTrain = append(s.YTrain, y[i])
		}
	}
	return s, nil
}
