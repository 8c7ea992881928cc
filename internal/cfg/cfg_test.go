package cfg

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadFromEnv(t *testing.T) {
	tests := []struct {
		name     string
		envVars  map[string]string
		wantErr  bool
		validate func(t *testing.T, settings Settings)
	}{
		{
			name:    "defaults",
			envVars: map[string]string{},
			validate: func(t *testing.T, settings Settings) {
				if settings.Addr() != "0.0.0.0:8000" {
					t.Errorf("expected default address 0.0.0.0:8000, got %s", settings.Addr())
				}
				if settings.TabularModelPath != "artifacts/rf_model_6features.json" {
					t.Errorf("unexpected default model path %s", settings.TabularModelPath)
				}
				if settings.Training.Seed != 42 {
					t.Errorf("expected default seed 42, got %d", settings.Training.Seed)
				}
				if settings.Training.FlipRate != 0.08 {
					t.Errorf("expected default flip rate 0.08, got %f", settings.Training.FlipRate)
				}
				if settings.Training.TemporalPreset != "stable" {
					t.Errorf("expected stable preset, got %s", settings.Training.TemporalPreset)
				}
				if settings.DataPath != "" {
					t.Errorf("expected storage disabled by default, got %s", settings.DataPath)
				}
			},
		},
		{
			name: "overrides",
			envVars: map[string]string{
				"PORT":                  "9001",
				"DATA_PATH":             "/tmp/coldchain",
				"SEED":                  "7",
				"TREES":                 "50",
				"EPOCHS":                "3",
				"LEARNING_RATE":         "0.01",
				"FLIP_RATE":             "0",
				"TEMPORAL_PRESET":       "legacy",
				"REQUEST_TIMEOUT":       "2s",
				"RATE_LIMIT_PER_MINUTE": "0",
			},
			validate: func(t *testing.T, settings Settings) {
				if settings.Port != 9001 {
					t.Errorf("expected port 9001, got %d", settings.Port)
				}
				if settings.DataPath != "/tmp/coldchain" {
					t.Errorf("expected data path override, got %s", settings.DataPath)
				}
				if settings.Training.Seed != 7 || settings.Training.Trees != 50 || settings.Training.Epochs != 3 {
					t.Errorf("unexpected training overrides %+v", settings.Training)
				}
				if settings.Training.LearningRate != 0.01 {
					t.Errorf("expected learning rate 0.01, got %f", settings.Training.LearningRate)
				}
				if settings.Training.FlipRate != 0 {
					t.Errorf("expected flip rate 0, got %f", settings.Training.FlipRate)
				}
				if settings.Training.TemporalPreset != "legacy" {
					t.Errorf("expected legacy preset, got %s", settings.Training.TemporalPreset)
				}
				if settings.RequestTimeout != 2*time.Second {
					t.Errorf("expected 2s timeout, got %v", settings.RequestTimeout)
				}
				if settings.RateLimit != 0 {
					t.Errorf("expected rate limiting disabled, got %d", settings.RateLimit)
				}
			},
		},
		{
			name:    "malformed port",
			envVars: map[string]string{"PORT": "eighty"},
			wantErr: true,
		},
		{
			name:    "port out of range",
			envVars: map[string]string{"PORT": "70000"},
			wantErr: true,
		},
		{
			name:    "unknown preset",
			envVars: map[string]string{"TEMPORAL_PRESET": "chaotic"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearTestEnv(t)
			for k, v := range tt.envVars {
				t.Setenv(k, v)
			}

			settings, err := Load()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Load() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && tt.validate != nil {
				tt.validate(t, settings)
			}
		})
	}
}

func TestLoadArtifactDir(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("ARTIFACT_DIR", "/srv/models")
	t.Setenv("SEQUENCE_MODEL_PATH", "/opt/lstm.json")

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	want := map[string]string{
		"tabular scaler":  filepath.Join("/srv/models", "scaler_6features.json"),
		"tabular model":   filepath.Join("/srv/models", "rf_model_6features.json"),
		"sequence scaler": filepath.Join("/srv/models", "scaler_multi.json"),
		"sequence model":  "/opt/lstm.json",
	}
	got := map[string]string{
		"tabular scaler":  settings.TabularScalerPath,
		"tabular model":   settings.TabularModelPath,
		"sequence scaler": settings.SequenceScalerPath,
		"sequence model":  settings.SequenceModelPath,
	}
	for name, path := range want {
		if got[name] != path {
			t.Errorf("%s path: expected %s, got %s", name, path, got[name])
		}
	}
}

func TestLoadArtifactDirFromYAML(t *testing.T) {
	clearTestEnv(t)
	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte("artifacts:\n  dir: build/models\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("CONFIG_FILE", configPath)

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if want := filepath.Join("build/models", "rf_model_6features.json"); settings.TabularModelPath != want {
		t.Errorf("expected %s, got %s", want, settings.TabularModelPath)
	}
}

func TestLoadModelShapeFromEnv(t *testing.T) {
	clearTestEnv(t)
	t.Setenv("MIN_SAMPLES_LEAF", "4")
	t.Setenv("SMOTE_NEIGHBORS", "3")
	t.Setenv("HIDDEN_UNITS", "16")
	t.Setenv("DENSE_UNITS", "8")

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	tr := settings.Training
	if tr.MinSamplesLeaf != 4 || tr.SMOTENeighbors != 3 || tr.HiddenUnits != 16 || tr.DenseUnits != 8 {
		t.Errorf("unexpected overrides %+v", tr)
	}

	t.Setenv("HIDDEN_UNITS", "0")
	if _, err := Load(); err == nil {
		t.Error("expected zero hidden units to fail validation")
	}
}

func TestLoadFromYAML(t *testing.T) {
	clearTestEnv(t)

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	configContent := `
server:
  host: 127.0.0.1
  port: 8100
  requestTimeout: 5s
artifacts:
  tabularModel: models/rf.json
  sequenceModel: models/lstm.json
training:
  seed: 0
  trees: 120
  flipRate: 0
  smoteNeighbors: 3
  temporalPreset: legacy
system:
  dataPath: ./data
  logLevel: debug
  logFormat: json
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
	t.Setenv("CONFIG_FILE", configPath)
	t.Setenv("TREES", "80")

	settings, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}

	if settings.Addr() != "127.0.0.1:8100" {
		t.Errorf("expected 127.0.0.1:8100, got %s", settings.Addr())
	}
	if settings.RequestTimeout != 5*time.Second {
		t.Errorf("expected 5s timeout, got %v", settings.RequestTimeout)
	}
	if settings.TabularModelPath != "models/rf.json" || settings.SequenceModelPath != "models/lstm.json" {
		t.Errorf("artifact paths not applied: %s %s", settings.TabularModelPath, settings.SequenceModelPath)
	}
	if settings.TabularScalerPath != "artifacts/scaler_6features.json" {
		t.Errorf("expected default scaler path to survive, got %s", settings.TabularScalerPath)
	}
	if settings.Training.Seed != 0 {
		t.Errorf("expected explicit zero seed, got %d", settings.Training.Seed)
	}
	if settings.Training.FlipRate != 0 {
		t.Errorf("expected explicit zero flip rate, got %f", settings.Training.FlipRate)
	}
	if settings.Training.Trees != 80 {
		t.Errorf("expected env to win over YAML, got %d trees", settings.Training.Trees)
	}
	if settings.Training.SMOTENeighbors != 3 {
		t.Errorf("expected 3 SMOTE neighbours, got %d", settings.Training.SMOTENeighbors)
	}
	if settings.LogFormat != "json" || settings.LogLevel != "debug" {
		t.Errorf("unexpected logging settings %s/%s", settings.LogLevel, settings.LogFormat)
	}
	if settings.DataPath != "./data" {
		t.Errorf("expected data path ./data, got %s", settings.DataPath)
	}
}

func TestLoad(t *testing.T) {
	t.Run("missing config file", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("CONFIG_FILE", filepath.Join(t.TempDir(), "nope.yaml"))
		if _, err := Load(); err == nil {
			t.Error("expected error for missing config file")
		}
	})

	t.Run("malformed yaml", func(t *testing.T) {
		clearTestEnv(t)
		configPath := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(configPath, []byte("server: [unclosed"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("CONFIG_FILE", configPath)
		if _, err := Load(); err == nil {
			t.Error("expected error for malformed yaml")
		}
	})

	t.Run("bad duration in yaml", func(t *testing.T) {
		clearTestEnv(t)
		configPath := filepath.Join(t.TempDir(), "config.yaml")
		if err := os.WriteFile(configPath, []byte("server:\n  requestTimeout: soon\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		t.Setenv("CONFIG_FILE", configPath)
		if _, err := Load(); err == nil {
			t.Error("expected error for bad duration")
		}
	})

	t.Run("all env errors reported", func(t *testing.T) {
		clearTestEnv(t)
		t.Setenv("SEED", "-1")
		t.Setenv("EPOCHS", "many")
		_, err := Load()
		if err == nil {
			t.Fatal("expected error")
		}
		if !strings.Contains(err.Error(), "SEED") || !strings.Contains(err.Error(), "EPOCHS") {
			t.Errorf("expected both keys in error, got %v", err)
		}
	})
}

func clearTestEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"CONFIG_FILE", "HOST", "PORT", "DATA_PATH", "ARTIFACT_DIR", "DATASET_PATH",
		"TABULAR_SCALER_PATH", "TABULAR_MODEL_PATH", "SEQUENCE_SCALER_PATH", "SEQUENCE_MODEL_PATH",
		"LOG_LEVEL", "LOG_FORMAT", "RATE_LIMIT_PER_MINUTE", "SEED", "SAMPLES", "SEQUENCES",
		"FLIP_RATE", "TEST_SIZE", "TREES", "MAX_DEPTH", "EPOCHS", "BATCH_SIZE", "LEARNING_RATE",
		"TEMPORAL_PRESET", "REQUEST_TIMEOUT", "MIN_SAMPLES_LEAF", "SMOTE_NEIGHBORS",
		"HIDDEN_UNITS", "DENSE_UNITS",
	} {
		t.Setenv(key, "")
	}
}
