package storage

import (
	"errors"
	"fmt"
	"time"

	"coldchain-risk/internal/ml"

	"github.com/goccy/go-json"
)

// RunRecord is the registry entry written after a training run.
type RunRecord struct {
	RunID       string            `json:"run_id"`
	Pipeline    string            `json:"pipeline"`
	CreatedAt   time.Time         `json:"created_at"`
	ScalerPath  string            `json:"scaler_path"`
	ModelPath   string            `json:"model_path"`
	DatasetRows int               `json:"dataset_rows"`
	TrainRows   int               `json:"train_rows"`
	TestRows    int               `json:"test_rows"`
	Params      map[string]any    `json:"params,omitempty"`
	Report      ml.Report         `json:"report"`
	Importances []ml.FeatureStats `json:"importances,omitempty"`
}

// SaveRun records a completed training run.
func (s *Store) SaveRun(run RunRecord) error {
	if run.RunID == "" || run.Pipeline == "" {
		return fmt.Errorf("run record needs a run id and pipeline")
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("marshal run: %w", err)
	}
	return s.put(runsBucket, run.Pipeline, run.CreatedAt, data)
}

// LatestRun returns the newest run of pipeline, or ErrNotFound.
func (s *Store) LatestRun(pipeline string) (*RunRecord, error) {
	data, err := s.last(runsBucket, pipeline)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, fmt.Errorf("no %s runs: %w", pipeline, ErrNotFound)
		}
		return nil, err
	}
	var run RunRecord
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("unmarshal run: %w", err)
	}
	return &run, nil
}

// ListRuns returns every run of pipeline, oldest first. Malformed records are skipped.
func (s *Store) ListRuns(pipeline string) ([]RunRecord, error) {
	var runs []RunRecord
	err := s.scanRange(runsBucket, pipeline, time.Unix(0, 0), maxTime, func(v []byte) error {
		var run RunRecord
		if err := json.Unmarshal(v, &run); err != nil {
			return nil
		}
		runs = append(runs, run)
		return nil
	})
	return runs, err
}

// FindRun looks a run up by id across the registry.
func (s *Store) FindRun(pipeline, runID string) (*RunRecord, error) {
	runs, err := s.ListRuns(pipeline)
	if err != nil {
		return nil, err
	}
	for i := len(runs) - 1; i >= 0; i-- {
		if runs[i].RunID == runID {
			return &runs[i], nil
		}
	}
	return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
}

// maxTime is the latest instant representable as unix nanoseconds.
var maxTime = time.Unix(0, 1<<63-1)
