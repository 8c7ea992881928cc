package ml

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
)

// ArtifactSchema tags every artifact file written by this package.
const ArtifactSchema = "coldchain-risk/artifact/v1"

// ArtifactKind identifies the payload stored in an artifact.
type ArtifactKind string

const (
	KindStandardScaler ArtifactKind = "standard_scaler"
	KindMinMaxScaler   ArtifactKind = "minmax_scaler"
	KindRandomForest   ArtifactKind = "random_forest"
	KindLSTM           ArtifactKind = "lstm"
)

var (
	// ErrArtifactMismatch reports a scaler and model from different training runs.
	ErrArtifactMismatch = errors.New("scaler and model were not produced by the same training run")
	// ErrArtifactMissing reports an artifact file that does not exist.
	ErrArtifactMissing = errors.New("artifact not found")
)

// ArtifactMeta identifies the training run that produced an artifact. A
// scaler and model are a valid pair only when Pipeline and RunID match.
type ArtifactMeta struct {
	Schema      string       `json:"schema"`
	Kind        ArtifactKind `json:"kind"`
	Pipeline    string       `json:"pipeline"`
	RunID       string       `json:"run_id"`
	CreatedAt   time.Time    `json:"created_at"`
	NumFeatures int          `json:"num_features"`
	SeqLen      int          `json:"seq_len,omitempty"`
}

// NewRunMeta stamps a fresh run identity for pipeline.
func NewRunMeta(pipeline string) ArtifactMeta {
	return ArtifactMeta{
		Schema:    ArtifactSchema,
		Pipeline:  pipeline,
		RunID:     uuid.NewString(),
		CreatedAt: time.Now().UTC(),
	}
}

// Age returns how long ago the artifact was produced.
func (m ArtifactMeta) Age() time.Duration {
	return time.Since(m.CreatedAt)
}

type artifactFile struct {
	Meta    ArtifactMeta    `json:"meta"`
	Payload json.RawMessage `json:"payload"`
}

// ArtifactError describes why an artifact could not be loaded.
type ArtifactError struct {
	Path   string
	Reason string
	Err    error
}

func (e *ArtifactError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("artifact %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("artifact %s: %s", e.Path, e.Reason)
}

func (e *ArtifactError) Unwrap() error {
	return e.Err
}

// SaveArtifact writes v with its metadata to path. The file is written to a
// temporary name first and renamed into place.
func SaveArtifact(path string, meta ArtifactMeta, kind ArtifactKind, v any) error {
	tmp, err := stageArtifact(path, meta, kind, v)
	if err != nil {
		return err
	}
	return installArtifact(tmp, path)
}

// Artifact is one file of a scaler/model pair.
type Artifact struct {
	Path  string
	Kind  ArtifactKind
	Value any
}

// SaveArtifactPair writes a scaler and its model under the same run metadata.
// Both files are staged before either is installed, and the model is installed
// first, so a failed save leaves the previous pair on disk.
func SaveArtifactPair(meta ArtifactMeta, scaler, model Artifact) error {
	scalerTmp, err := stageArtifact(scaler.Path, meta, scaler.Kind, scaler.Value)
	if err != nil {
		return err
	}
	modelTmp, err := stageArtifact(model.Path, meta, model.Kind, model.Value)
	if err != nil {
		os.Remove(scalerTmp)
		return err
	}
	if err := installArtifact(modelTmp, model.Path); err != nil {
		os.Remove(scalerTmp)
		return err
	}
	return installArtifact(scalerTmp, scaler.Path)
}

func stageArtifact(path string, meta ArtifactMeta, kind ArtifactKind, v any) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode %s: %w", kind, err)
	}
	meta.Schema = ArtifactSchema
	meta.Kind = kind
	data, err := json.Marshal(artifactFile{Meta: meta, Payload: payload})
	if err != nil {
		return "", fmt.Errorf("encode artifact: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return "", fmt.Errorf("create artifact dir: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		os.Remove(tmp)
		return "", fmt.Errorf("write artifact: %w", err)
	}
	return tmp, nil
}

func installArtifact(tmp, path string) error {
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("install artifact: %w", err)
	}
	return nil
}

// ReadArtifactMeta returns only the metadata of an artifact.
func ReadArtifactMeta(path string) (ArtifactMeta, error) {
	f, err := readArtifact(path)
	if err != nil {
		return ArtifactMeta{}, err
	}
	return f.Meta, nil
}

// LoadArtifact decodes the payload at path into v after checking its kind.
func LoadArtifact(path string, kind ArtifactKind, v any) (ArtifactMeta, error) {
	f, err := readArtifact(path)
	if err != nil {
		return ArtifactMeta{}, err
	}
	if f.Meta.Kind != kind {
		return f.Meta, &ArtifactError{Path: path, Reason: fmt.Sprintf("expected %s, found %s", kind, f.Meta.Kind)}
	}
	if err := json.Unmarshal(f.Payload, v); err != nil {
		return f.Meta, &ArtifactError{Path: path, Reason: "corrupt payload", Err: err}
	}
	return f.Meta, nil
}

// LoadScaler loads either scaler kind.
func LoadScaler(path string) (Scaler, ArtifactMeta, error) {
	f, err := readArtifact(path)
	if err != nil {
		return nil, ArtifactMeta{}, err
	}
	var s Scaler
	switch f.Meta.Kind {
	case KindStandardScaler:
		s = NewStandardScaler()
	case KindMinMaxScaler:
		s = NewMinMaxScaler()
	default:
		return nil, f.Meta, &ArtifactError{Path: path, Reason: fmt.Sprintf("%s is not a scaler", f.Meta.Kind)}
	}
	if err := json.Unmarshal(f.Payload, s); err != nil {
		return nil, f.Meta, &ArtifactError{Path: path, Reason: "corrupt payload", Err: err}
	}
	return s, f.Meta, nil
}

// CheckPair verifies that a scaler and model belong to the same training run.
func CheckPair(scaler, model ArtifactMeta) error {
	if scaler.Pipeline != model.Pipeline || scaler.RunID != model.RunID {
		return fmt.Errorf("%w: scaler %s/%s, model %s/%s", ErrArtifactMismatch,
			scaler.Pipeline, scaler.RunID, model.Pipeline, model.RunID)
	}
	return nil
}

func readArtifact(path string) (artifactFile, error) {
	var f artifactFile
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return f, &ArtifactError{Path: path, Reason: "missing", Err: ErrArtifactMissing}
		}
		return f, &ArtifactError{Path: path, Reason: "unreadable", Err: err}
	}
	if err := json.Unmarshal(data, &f); err != nil {
		return f, &ArtifactError{Path: path, Reason: "corrupt", Err: err}
	}
	if f.Meta.Schema != ArtifactSchema {
		return f, &ArtifactError{Path: path, Reason: fmt.Sprintf("unsupported schema %q", f.Meta.Schema)}
	}
	if len(f.Payload) == 0 {
		return f, &ArtifactError{Path: path, Reason: "empty payload"}
	}
	return f, nil
}
