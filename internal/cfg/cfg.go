package cfg

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"coldchain-risk/internal/common"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Settings is the resolved configuration shared by every command.
type Settings struct {
	Host           string
	Port           int
	DataPath       string // bbolt directory; empty disables the run registry and audit log
	ArtifactDir    string
	DatasetPath    string
	LogLevel       string
	LogFormat      string
	RateLimit      int // requests per minute per client IP on predict routes
	RequestTimeout time.Duration

	TabularScalerPath  string
	TabularModelPath   string
	SequenceScalerPath string
	SequenceModelPath  string

	Training TrainingSettings
}

// TrainingSettings drives data synthesis and model fitting.
type TrainingSettings struct {
	Seed           uint64
	Samples        int
	Sequences      int
	FlipRate       float64
	TestSize       float64
	Trees          int
	MaxDepth       int
	MinSamplesLeaf int
	SMOTENeighbors int
	Epochs         int
	BatchSize      int
	HiddenUnits    int
	DenseUnits     int
	LearningRate   float64
	TemporalPreset string
}

// Addr is the listen address.
func (s Settings) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type ConfigFile struct {
	Server struct {
		Host           string `yaml:"host"`
		Port           int    `yaml:"port"`
		RateLimit      int    `yaml:"rateLimit"`
		RequestTimeout string `yaml:"requestTimeout"`
	} `yaml:"server"`

	Artifacts struct {
		Dir                string `yaml:"dir"`
		TabularScalerPath  string `yaml:"tabularScaler"`
		TabularModelPath   string `yaml:"tabularModel"`
		SequenceScalerPath string `yaml:"sequenceScaler"`
		SequenceModelPath  string `yaml:"sequenceModel"`
	} `yaml:"artifacts"`

	Training struct {
		Seed           *uint64  `yaml:"seed"`
		Samples        int      `yaml:"samples"`
		Sequences      int      `yaml:"sequences"`
		FlipRate       *float64 `yaml:"flipRate"`
		TestSize       float64  `yaml:"testSize"`
		Trees          int      `yaml:"trees"`
		MaxDepth       int      `yaml:"maxDepth"`
		MinSamplesLeaf int      `yaml:"minSamplesLeaf"`
		SMOTENeighbors int      `yaml:"smoteNeighbors"`
		Epochs         int      `yaml:"epochs"`
		BatchSize      int      `yaml:"batchSize"`
		HiddenUnits    int      `yaml:"hiddenUnits"`
		DenseUnits     int      `yaml:"denseUnits"`
		LearningRate   float64  `yaml:"learningRate"`
		TemporalPreset string   `yaml:"temporalPreset"`
	} `yaml:"training"`

	System struct {
		DataPath    string `yaml:"dataPath"`
		DatasetPath string `yaml:"datasetPath"`
		LogLevel    string `yaml:"logLevel"`
		LogFormat   string `yaml:"logFormat"`
	} `yaml:"system"`
}

// Load resolves settings from defaults, an optional YAML file named by
// CONFIG_FILE and environment variables, in increasing precedence. A .env file
// in the working directory is loaded first when present.
func Load() (Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Settings{}, fmt.Errorf("failed to load .env: %w", err)
	}

	settings := defaults()
	if configPath := os.Getenv(common.EnvConfigFile); configPath != "" {
		if err := applyYAML(&settings, configPath); err != nil {
			return Settings{}, err
		}
	}
	if err := applyEnv(&settings); err != nil {
		return Settings{}, err
	}
	settings.resolveArtifactPaths()

	if err := validateSettings(&settings); err != nil {
		return Settings{}, fmt.Errorf("configuration validation failed: %w", err)
	}
	return settings, nil
}

func defaults() Settings {
	return Settings{
		Host:           common.DefaultHost,
		Port:           common.DefaultPort,
		ArtifactDir:    common.DefaultArtifactDir,
		DatasetPath:    common.DefaultDatasetPath,
		LogLevel:       common.DefaultLogLevel,
		LogFormat:      common.DefaultLogFormat,
		RateLimit:      common.DefaultRateLimit,
		RequestTimeout: 10 * time.Second,
		Training: TrainingSettings{
			Seed:           common.DefaultSeed,
			Samples:        common.DefaultSamples,
			Sequences:      common.DefaultSequences,
			FlipRate:       common.DefaultFlipRate,
			TestSize:       common.DefaultTestSize,
			Trees:          common.DefaultTrees,
			MaxDepth:       common.DefaultMaxDepth,
			MinSamplesLeaf: common.DefaultMinSamplesLeaf,
			SMOTENeighbors: common.DefaultSMOTENeighbors,
			Epochs:         common.DefaultEpochs,
			BatchSize:      common.DefaultBatchSize,
			HiddenUnits:    common.DefaultHiddenUnits,
			DenseUnits:     common.DefaultDenseUnits,
			LearningRate:   common.DefaultLearningRate,
			TemporalPreset: common.DefaultTemporalPreset,
		},
	}
}

// resolveArtifactPaths places every artifact path left unset under ArtifactDir.
func (s *Settings) resolveArtifactPaths() {
	for _, p := range []struct {
		dst  *string
		file string
	}{
		{&s.TabularScalerPath, common.TabularScalerFile},
		{&s.TabularModelPath, common.TabularModelFile},
		{&s.SequenceScalerPath, common.SequenceScalerFile},
		{&s.SequenceModelPath, common.SequenceModelFile},
	} {
		if *p.dst == "" {
			*p.dst = filepath.Join(s.ArtifactDir, p.file)
		}
	}
}

func applyYAML(s *Settings, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config ConfigFile
	if err := yaml.Unmarshal(data, &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	setString(&s.Host, config.Server.Host)
	setInt(&s.Port, config.Server.Port)
	setInt(&s.RateLimit, config.Server.RateLimit)
	if config.Server.RequestTimeout != "" {
		d, err := time.ParseDuration(config.Server.RequestTimeout)
		if err != nil {
			return fmt.Errorf("invalid server.requestTimeout: %w", err)
		}
		s.RequestTimeout = d
	}

	setString(&s.ArtifactDir, config.Artifacts.Dir)
	setString(&s.TabularScalerPath, config.Artifacts.TabularScalerPath)
	setString(&s.TabularModelPath, config.Artifacts.TabularModelPath)
	setString(&s.SequenceScalerPath, config.Artifacts.SequenceScalerPath)
	setString(&s.SequenceModelPath, config.Artifacts.SequenceModelPath)

	t := &s.Training
	if config.Training.Seed != nil {
		t.Seed = *config.Training.Seed
	}
	if config.Training.FlipRate != nil {
		t.FlipRate = *config.Training.FlipRate
	}
	setInt(&t.Samples, config.Training.Samples)
	setInt(&t.Sequences, config.Training.Sequences)
	setFloat(&t.TestSize, config.Training.TestSize)
	setInt(&t.Trees, config.Training.Trees)
	setInt(&t.MaxDepth, config.Training.MaxDepth)
	setInt(&t.MinSamplesLeaf, config.Training.MinSamplesLeaf)
	setInt(&t.SMOTENeighbors, config.Training.SMOTENeighbors)
	setInt(&t.Epochs, config.Training.Epochs)
	setInt(&t.BatchSize, config.Training.BatchSize)
	setInt(&t.HiddenUnits, config.Training.HiddenUnits)
	setInt(&t.DenseUnits, config.Training.DenseUnits)
	setFloat(&t.LearningRate, config.Training.LearningRate)
	setString(&t.TemporalPreset, config.Training.TemporalPreset)

	setString(&s.DataPath, config.System.DataPath)
	setString(&s.DatasetPath, config.System.DatasetPath)
	setString(&s.LogLevel, config.System.LogLevel)
	setString(&s.LogFormat, config.System.LogFormat)
	return nil
}

func applyEnv(s *Settings) error {
	s.Host = getEnvOrDefault(common.EnvHost, s.Host)
	s.DataPath = getEnvOrDefault(common.EnvDataPath, s.DataPath)
	s.ArtifactDir = getEnvOrDefault(common.EnvArtifactDir, s.ArtifactDir)
	s.DatasetPath = getEnvOrDefault(common.EnvDatasetPath, s.DatasetPath)
	s.LogLevel = getEnvOrDefault(common.EnvLogLevel, s.LogLevel)
	s.LogFormat = getEnvOrDefault(common.EnvLogFormat, s.LogFormat)
	s.TabularScalerPath = getEnvOrDefault(common.EnvTabularScalerPath, s.TabularScalerPath)
	s.TabularModelPath = getEnvOrDefault(common.EnvTabularModelPath, s.TabularModelPath)
	s.SequenceScalerPath = getEnvOrDefault(common.EnvSequenceScalerPath, s.SequenceScalerPath)
	s.SequenceModelPath = getEnvOrDefault(common.EnvSequenceModelPath, s.SequenceModelPath)

	t := &s.Training
	t.TemporalPreset = getEnvOrDefault(common.EnvTemporalPreset, t.TemporalPreset)

	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	collect(envInt(common.EnvPort, &s.Port))
	collect(envInt(common.EnvRateLimit, &s.RateLimit))
	collect(envDuration(common.EnvRequestTimeout, &s.RequestTimeout))
	collect(envUint(common.EnvSeed, &t.Seed))
	collect(envInt(common.EnvSamples, &t.Samples))
	collect(envInt(common.EnvSequences, &t.Sequences))
	collect(envFloat(common.EnvFlipRate, &t.FlipRate))
	collect(envFloat(common.EnvTestSize, &t.TestSize))
	collect(envInt(common.EnvTrees, &t.Trees))
	collect(envInt(common.EnvMaxDepth, &t.MaxDepth))
	collect(envInt(common.EnvMinSamplesLeaf, &t.MinSamplesLeaf))
	collect(envInt(common.EnvSMOTENeighbors, &t.SMOTENeighbors))
	collect(envInt(common.EnvEpochs, &t.Epochs))
	collect(envInt(common.EnvBatchSize, &t.BatchSize))
	collect(envInt(common.EnvHiddenUnits, &t.HiddenUnits))
	collect(envInt(common.EnvDenseUnits, &t.DenseUnits))
	collect(envFloat(common.EnvLearningRate, &t.LearningRate))
	return errors.Join(errs...)
}

func getEnvOrDefault(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: invalid integer %q", key, v)
	}
	*dst = i
	return nil
}

func envUint(key string, dst *uint64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	u, err := strconv.ParseUint(v, 10, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid unsigned integer %q", key, v)
	}
	*dst = u
	return nil
}

func envFloat(key string, dst *float64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return fmt.Errorf("%s: invalid number %q", key, v)
	}
	*dst = f
	return nil
}

func envDuration(key string, dst *time.Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: invalid duration %q", key, v)
	}
	*dst = d
	return nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

func setInt(dst *int, v int) {
	if v != 0 {
		*dst = v
	}
}

func setFloat(dst *float64, v float64) {
	if v != 0 {
		*dst = v
	}
}

// validateSettings performs range validation of configuration values
func validateSettings(settings *Settings) error {
	if settings.Host == "" {
		return fmt.Errorf("host cannot be empty")
	}
	if settings.Port < common.MinPort || settings.Port > common.MaxPort {
		return fmt.Errorf("port must be between %d and %d, got %d", common.MinPort, common.MaxPort, settings.Port)
	}
	if settings.RateLimit < 0 {
		return fmt.Errorf("rate limit cannot be negative, got %d", settings.RateLimit)
	}
	if settings.RequestTimeout < 100*time.Millisecond || settings.RequestTimeout > 5*time.Minute {
		return fmt.Errorf("request timeout must be between 100ms and 5m, got %v", settings.RequestTimeout)
	}

	if _, err := zerolog.ParseLevel(strings.ToLower(settings.LogLevel)); err != nil {
		return fmt.Errorf("invalid log level %q", settings.LogLevel)
	}
	switch strings.ToLower(settings.LogFormat) {
	case "console", "json":
	default:
		return fmt.Errorf("log format must be console or json, got %q", settings.LogFormat)
	}

	for name, path := range map[string]string{
		"tabular scaler":  settings.TabularScalerPath,
		"tabular model":   settings.TabularModelPath,
		"sequence scaler": settings.SequenceScalerPath,
		"sequence model":  settings.SequenceModelPath,
	} {
		if path == "" {
			return fmt.Errorf("%s path cannot be empty", name)
		}
	}

	t := settings.Training
	if t.Samples < 1 || t.Samples > common.MaxSamples {
		return fmt.Errorf("samples must be between 1 and %d, got %d", common.MaxSamples, t.Samples)
	}
	if t.Sequences < 1 || t.Sequences > common.MaxSamples {
		return fmt.Errorf("sequences must be between 1 and %d, got %d", common.MaxSamples, t.Sequences)
	}
	if t.FlipRate < 0 || t.FlipRate >= 0.5 {
		return fmt.Errorf("flip rate must be within [0, 0.5), got %f", t.FlipRate)
	}
	if t.TestSize <= 0 || t.TestSize >= 1 {
		return fmt.Errorf("test size must be within (0, 1), got %f", t.TestSize)
	}
	if t.Trees < 1 || t.Trees > common.MaxTrees {
		return fmt.Errorf("trees must be between 1 and %d, got %d", common.MaxTrees, t.Trees)
	}
	if t.MaxDepth < 0 {
		return fmt.Errorf("max depth cannot be negative, got %d", t.MaxDepth)
	}
	if t.MinSamplesLeaf < 1 {
		return fmt.Errorf("min samples per leaf must be positive, got %d", t.MinSamplesLeaf)
	}
	if t.SMOTENeighbors < 1 {
		return fmt.Errorf("SMOTE neighbours must be positive, got %d", t.SMOTENeighbors)
	}
	if t.Epochs < 1 || t.Epochs > common.MaxEpochs {
		return fmt.Errorf("epochs must be between 1 and %d, got %d", common.MaxEpochs, t.Epochs)
	}
	if t.BatchSize < 1 || t.BatchSize > common.MaxBatchSize {
		return fmt.Errorf("batch size must be between 1 and %d, got %d", common.MaxBatchSize, t.BatchSize)
	}
	if t.HiddenUnits < 1 || t.DenseUnits < 1 {
		return fmt.Errorf("layer sizes must be positive, got hidden=%d dense=%d", t.HiddenUnits, t.DenseUnits)
	}
	if t.LearningRate <= 0 || t.LearningRate > 1 {
		return fmt.Errorf("learning rate must be within (0, 1], got %f", t.LearningRate)
	}
	switch strings.ToLower(t.TemporalPreset) {
	case "stable", "legacy":
	default:
		return fmt.Errorf("temporal preset must be stable or legacy, got %q", t.TemporalPreset)
	}

	return nil
}
