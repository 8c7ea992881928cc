package cfg

import (
	"testing"
	"time"
)

// createValidSettings creates a valid Settings struct for testing
func createValidSettings() *Settings {
	s := defaults()
	s.resolveArtifactPaths()
	return &s
}

func TestValidateSettings_ValidConfig(t *testing.T) {
	settings := createValidSettings()

	if err := validateSettings(settings); err != nil {
		t.Errorf("Expected valid config to pass, got error: %v", err)
	}
}

func TestValidateSettings_Server(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(s *Settings)
	}{
		{"empty host", func(s *Settings) { s.Host = "" }},
		{"zero port", func(s *Settings) { s.Port = 0 }},
		{"port too high", func(s *Settings) { s.Port = 65536 }},
		{"negative rate limit", func(s *Settings) { s.RateLimit = -1 }},
		{"timeout too short", func(s *Settings) { s.RequestTimeout = time.Millisecond }},
		{"timeout too long", func(s *Settings) { s.RequestTimeout = time.Hour }},
		{"bad log level", func(s *Settings) { s.LogLevel = "loud" }},
		{"bad log format", func(s *Settings) { s.LogFormat = "xml" }},
		{"empty model path", func(s *Settings) { s.SequenceModelPath = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(settings)
			if err := validateSettings(settings); err == nil {
				t.Errorf("Expected validation error for %s", tt.name)
			}
		})
	}
}

func TestValidateSettings_Training(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(s *TrainingSettings)
		wantErr bool
	}{
		{"zero samples", func(s *TrainingSettings) { s.Samples = 0 }, true},
		{"too many samples", func(s *TrainingSettings) { s.Samples = 10_000_000 }, true},
		{"zero sequences", func(s *TrainingSettings) { s.Sequences = 0 }, true},
		{"negative flip rate", func(s *TrainingSettings) { s.FlipRate = -0.1 }, true},
		{"flip rate half", func(s *TrainingSettings) { s.FlipRate = 0.5 }, true},
		{"no flips", func(s *TrainingSettings) { s.FlipRate = 0 }, false},
		{"zero test size", func(s *TrainingSettings) { s.TestSize = 0 }, true},
		{"full test size", func(s *TrainingSettings) { s.TestSize = 1 }, true},
		{"zero trees", func(s *TrainingSettings) { s.Trees = 0 }, true},
		{"too many trees", func(s *TrainingSettings) { s.Trees = 5000 }, true},
		{"negative depth", func(s *TrainingSettings) { s.MaxDepth = -1 }, true},
		{"bounded depth", func(s *TrainingSettings) { s.MaxDepth = 12 }, false},
		{"zero leaf size", func(s *TrainingSettings) { s.MinSamplesLeaf = 0 }, true},
		{"zero smote neighbours", func(s *TrainingSettings) { s.SMOTENeighbors = 0 }, true},
		{"zero epochs", func(s *TrainingSettings) { s.Epochs = 0 }, true},
		{"too many epochs", func(s *TrainingSettings) { s.Epochs = 501 }, true},
		{"zero batch", func(s *TrainingSettings) { s.BatchSize = 0 }, true},
		{"huge batch", func(s *TrainingSettings) { s.BatchSize = 10000 }, true},
		{"zero hidden", func(s *TrainingSettings) { s.HiddenUnits = 0 }, true},
		{"zero learning rate", func(s *TrainingSettings) { s.LearningRate = 0 }, true},
		{"mixed case preset", func(s *TrainingSettings) { s.TemporalPreset = "Legacy" }, false},
		{"unknown preset", func(s *TrainingSettings) { s.TemporalPreset = "wild" }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			settings := createValidSettings()
			tt.mutate(&settings.Training)
			err := validateSettings(settings)
			if (err != nil) != tt.wantErr {
				t.Errorf("validateSettings() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}
