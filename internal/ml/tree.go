package ml

import (
	"math/rand/v2"
	"sort"
)

// treeNode is one node of a flattened CART tree. Internal nodes send rows with
// x[Feature] <= Threshold to Left. Leaves carry the class fractions of the
// training rows that reached them.
type treeNode struct {
	Feature   int        `json:"f"`
	Threshold float64    `json:"t"`
	Left      int        `json:"l"`
	Right     int        `json:"r"`
	Leaf      bool       `json:"leaf,omitempty"`
	Proba     [2]float64 `json:"p"`
}

type decisionTree struct {
	Nodes []treeNode `json:"nodes"`
}

func (t *decisionTree) predictProba(row []float64) [2]float64 {
	i := 0
	for {
		n := &t.Nodes[i]
		if n.Leaf {
			return n.Proba
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

type treeParams struct {
	maxDepth       int
	minSamplesLeaf int
	maxFeatures    int
}

// treeBuilder grows one tree by greedy Gini splits and records the weighted
// impurity decrease of every split per feature.
type treeBuilder struct {
	x           [][]float64
	y           []int
	params      treeParams
	rng         *rand.Rand
	tree        *decisionTree
	importances []float64
	total       float64
}

type split struct {
	feature   int
	threshold float64
	impurity  float64
	ok        bool
}

func newTreeBuilder(x [][]float64, y []int, params treeParams, rng *rand.Rand) *treeBuilder {
	return &treeBuilder{
		x:           x,
		y:           y,
		params:      params,
		rng:         rng,
		tree:        &decisionTree{},
		importances: make([]float64, len(x[0])),
	}
}

func (b *treeBuilder) fit(idx []int) *decisionTree {
	b.total = float64(len(idx))
	b.grow(idx, 0)
	return b.tree
}

func (b *treeBuilder) grow(idx []int, depth int) int {
	counts := b.counts(idx)
	node := len(b.tree.Nodes)
	n := float64(len(idx))
	b.tree.Nodes = append(b.tree.Nodes, treeNode{
		Leaf:  true,
		Proba: [2]float64{float64(counts[0]) / n, float64(counts[1]) / n},
	})

	if counts[0] == 0 || counts[1] == 0 ||
		len(idx) < 2*b.params.minSamplesLeaf ||
		(b.params.maxDepth > 0 && depth >= b.params.maxDepth) {
		return node
	}

	s := b.bestSplit(idx, counts)
	if !s.ok {
		return node
	}

	var left, right []int
	for _, i := range idx {
		if b.x[i][s.feature] <= s.threshold {
			left = append(left, i)
		} else {
			right = append(right, i)
		}
	}

	b.importances[s.feature] += n / b.total * (gini(counts[0], counts[1]) - s.impurity)

	l := b.grow(left, depth+1)
	r := b.grow(right, depth+1)
	b.tree.Nodes[node] = treeNode{Feature: s.feature, Threshold: s.threshold, Left: l, Right: r}
	return node
}

// bestSplit scans candidate features in random order until maxFeatures
// non-constant ones have been evaluated.
func (b *treeBuilder) bestSplit(idx []int, counts [2]int) split {
	best := split{impurity: gini(counts[0], counts[1])}
	n := len(idx)
	sorted := make([]int, n)
	visited := 0

	for _, f := range b.rng.Perm(len(b.importances)) {
		if visited >= b.params.maxFeatures {
			break
		}
		copy(sorted, idx)
		sort.Slice(sorted, func(a, c int) bool { return b.x[sorted[a]][f] < b.x[sorted[c]][f] })
		if b.x[sorted[0]][f] == b.x[sorted[n-1]][f] {
			continue
		}
		visited++

		var left [2]int
		for k := 0; k < n-1; k++ {
			left[b.y[sorted[k]]]++
			lo, hi := b.x[sorted[k]][f], b.x[sorted[k+1]][f]
			if lo == hi {
				continue
			}
			nl := k + 1
			nr := n - nl
			if nl < b.params.minSamplesLeaf || nr < b.params.minSamplesLeaf {
				continue
			}
			imp := (float64(nl)*gini(left[0], left[1]) +
				float64(nr)*gini(counts[0]-left[0], counts[1]-left[1])) / float64(n)
			if imp < best.impurity {
				thr := lo + (hi-lo)/2
				if thr >= hi {
					thr = lo
				}
				best = split{feature: f, threshold: thr, impurity: imp, ok: true}
			}
		}
	}
	return best
}

func (b *treeBuilder) counts(idx []int) [2]int {
	var c [2]int
	for _, i := range idx {
		c[b.y[i]]++
	}
	return c
}

func gini(c0, c1 int) float64 {
	n := float64(c0 + c1)
	if n == 0 {
		return 0
	}
	p0, p1 := float64(c0)/n, float64(c1)/n
	return 1 - p0*p0 - p1*p1
}
