package ml

import (
	"fmt"
	"math"
	"math/rand/v2"
	"runtime"

	"coldchain-risk/internal/features"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// ForestConfig controls random forest training.
type ForestConfig struct {
	NumTrees       int    `json:"num_trees"`
	MaxDepth       int    `json:"max_depth"` // 0 grows until leaves are pure
	MinSamplesLeaf int    `json:"min_samples_leaf"`
	MaxFeatures    int    `json:"max_features"` // 0 means floor(sqrt(features))
	Seed           uint64 `json:"seed"`
	Workers        int    `json:"-"`
}

// DefaultForestConfig returns 300 unbounded trees.
func DefaultForestConfig() ForestConfig {
	return ForestConfig{
		NumTrees:       300,
		MinSamplesLeaf: 1,
		Seed:           42,
	}
}

// RandomForest is a bagged ensemble of CART trees for binary labels.
type RandomForest struct {
	cfg         ForestConfig
	trees       []*decisionTree
	nFeatures   int
	importances []float64
}

type forestState struct {
	Config      ForestConfig    `json:"config"`
	NumFeatures int             `json:"num_features"`
	Importances []float64       `json:"importances"`
	Trees       []*decisionTree `json:"trees"`
}

// NewRandomForest returns an unfitted forest.
func NewRandomForest(cfg ForestConfig) *RandomForest {
	return &RandomForest{cfg: cfg}
}

// Fit grows every tree on its own bootstrap sample. Trees are built
// concurrently, each from a seed drawn up front so the result does not depend
// on scheduling.
func (f *RandomForest) Fit(x [][]float64, y []int) error {
	if f.nFeatures > 0 {
		return ErrAlreadyFitted
	}
	if err := checkTrainingSet(x, y); err != nil {
		return err
	}
	cfg := f.cfg
	if cfg.NumTrees < 1 {
		return fmt.Errorf("forest needs at least one tree, got %d", cfg.NumTrees)
	}
	width := len(x[0])
	params := treeParams{
		maxDepth:       cfg.MaxDepth,
		minSamplesLeaf: max(cfg.MinSamplesLeaf, 1),
		maxFeatures:    cfg.MaxFeatures,
	}
	if params.maxFeatures <= 0 || params.maxFeatures > width {
		params.maxFeatures = max(1, int(math.Sqrt(float64(width))))
	}

	master := rand.New(rand.NewPCG(cfg.Seed, cfg.Seed^0x5eed))
	seeds := make([]uint64, cfg.NumTrees)
	for i := range seeds {
		seeds[i] = master.Uint64()
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	log.Debug().
		Int("trees", cfg.NumTrees).
		Int("rows", len(x)).
		Int("max_features", params.maxFeatures).
		Int("workers", workers).
		Msg("Growing random forest")

	trees := make([]*decisionTree, cfg.NumTrees)
	perTree := make([][]float64, cfg.NumTrees)
	var g errgroup.Group
	g.SetLimit(workers)
	for i, seed := range seeds {
		g.Go(func() error {
			rng := rand.New(rand.NewPCG(seed, uint64(i)))
			idx := make([]int, len(x))
			for k := range idx {
				idx[k] = rng.IntN(len(x))
			}
			b := newTreeBuilder(x, y, params, rng)
			trees[i] = b.fit(idx)
			perTree[i] = b.importances
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	f.trees = trees
	f.nFeatures = width
	f.importances = averageImportances(perTree, width)
	return nil
}

// PredictProba averages the leaf class fractions of every tree.
func (f *RandomForest) PredictProba(x [][]float64) ([][2]float64, error) {
	if f.nFeatures == 0 {
		return nil, ErrNotFitted
	}
	out := make([][2]float64, len(x))
	inv := 1 / float64(len(f.trees))
	for i, row := range x {
		if len(row) != f.nFeatures {
			return nil, fmt.Errorf("row %d: %w", i, &features.ShapeError{Op: "predict", Got: len(row), Want: f.nFeatures})
		}
		var sum [2]float64
		for _, t := range f.trees {
			p := t.predictProba(row)
			sum[0] += p[0]
			sum[1] += p[1]
		}
		out[i] = [2]float64{sum[0] * inv, sum[1] * inv}
	}
	return out, nil
}

// Predict returns the class with the larger averaged probability; ties go to 0.
func (f *RandomForest) Predict(x [][]float64) ([]int, error) {
	proba, err := f.PredictProba(x)
	if err != nil {
		return nil, err
	}
	labels := make([]int, len(proba))
	for i, p := range proba {
		if p[1] > p[0] {
			labels[i] = 1
		}
	}
	return labels, nil
}

// NumFeatures returns the fitted row width.
func (f *RandomForest) NumFeatures() int {
	return f.nFeatures
}

// NumTrees returns the number of fitted trees.
func (f *RandomForest) NumTrees() int {
	return len(f.trees)
}

// Config returns the training configuration.
func (f *RandomForest) Config() ForestConfig {
	return f.cfg
}

func (f *RandomForest) MarshalJSON() ([]byte, error) {
	return json.Marshal(forestState{
		Config:      f.cfg,
		NumFeatures: f.nFeatures,
		Importances: f.importances,
		Trees:       f.trees,
	})
}

func (f *RandomForest) UnmarshalJSON(data []byte) error {
	var st forestState
	if err := json.Unmarshal(data, &st); err != nil {
		return err
	}
	if st.NumFeatures < 1 || len(st.Trees) == 0 {
		return fmt.Errorf("random forest: empty model")
	}
	for ti, t := range st.Trees {
		if err := validateTree(t, st.NumFeatures); err != nil {
			return fmt.Errorf("random forest: tree %d: %w", ti, err)
		}
	}
	f.cfg = st.Config
	f.nFeatures = st.NumFeatures
	f.importances = st.Importances
	f.trees = st.Trees
	return nil
}

// validateTree rejects trees whose child links could loop or run out of range.
func validateTree(t *decisionTree, width int) error {
	if t == nil || len(t.Nodes) == 0 {
		return fmt.Errorf("no nodes")
	}
	for i, n := range t.Nodes {
		if n.Leaf {
			continue
		}
		if n.Feature < 0 || n.Feature >= width {
			return fmt.Errorf("node %d splits on feature %d", i, n.Feature)
		}
		if n.Left <= i || n.Right <= i || n.Left >= len(t.Nodes) || n.Right >= len(t.Nodes) {
			return fmt.Errorf("node %d has invalid children", i)
		}
	}
	return nil
}

func checkTrainingSet(x [][]float64, y []int) error {
	if len(x) == 0 {
		return fmt.Errorf("cannot fit on empty data")
	}
	if len(x) != len(y) {
		return fmt.Errorf("%d rows but %d labels", len(x), len(y))
	}
	width := len(x[0])
	for i, row := range x {
		if len(row) != width {
			return fmt.Errorf("row %d: %w", i, &features.ShapeError{Op: "fit", Got: len(row), Want: width})
		}
		for j, v := range row {
			if math.IsNaN(v) {
				return fmt.Errorf("row %d column %d is missing, impute before fitting", i, j)
			}
		}
	}
	for i, label := range y {
		if label != 0 && label != 1 {
			return fmt.Errorf("label %d at row %d is not binary", label, i)
		}
	}
	return nil
}
