package ml

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/goccy/go-json"
)

// FeatureStats is the importance of a single feature in a fitted forest.
type FeatureStats struct {
	Name            string  `json:"name"`
	ImportanceScore float64 `json:"importance_score"`
	Rank            int     `json:"rank"`
}

// FeatureImportances returns the mean decrease in Gini impurity per feature,
// normalized to sum to 1. Nil before Fit.
func (f *RandomForest) FeatureImportances() []float64 {
	if f.importances == nil {
		return nil
	}
	return append([]float64(nil), f.importances...)
}

// RankFeatures pairs importances with names and orders them most important first.
func RankFeatures(names []string, importances []float64) ([]FeatureStats, error) {
	if len(names) != len(importances) {
		return nil, fmt.Errorf("%d feature names for %d importances", len(names), len(importances))
	}
	stats := make([]FeatureStats, len(names))
	for i, name := range names {
		stats[i] = FeatureStats{Name: name, ImportanceScore: importances[i]}
	}
	sort.SliceStable(stats, func(a, b int) bool {
		return stats[a].ImportanceScore > stats[b].ImportanceScore
	})
	for i := range stats {
		stats[i].Rank = i + 1
	}
	return stats, nil
}

// SaveFeatureImportance writes ranked importances as indented JSON.
func SaveFeatureImportance(path string, stats []FeatureStats) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(stats, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// averageImportances normalizes each tree's impurity decreases to sum to 1,
// averages them across trees and renormalizes.
func averageImportances(perTree [][]float64, width int) []float64 {
	out := make([]float64, width)
	for _, imp := range perTree {
		var sum float64
		for _, v := range imp {
			sum += v
		}
		if sum == 0 {
			continue
		}
		for j, v := range imp {
			out[j] += v / sum
		}
	}
	var total float64
	for _, v := range out {
		total += v
	}
	if total > 0 {
		for j := range out {
			out[j] /= total
		}
	}
	return out
}
