package common

// Pipeline names
const (
	PipelineTabular  = "tabular"
	PipelineSequence = "sequence"
)

// Environment variable keys
const (
	EnvConfigFile         = "CONFIG_FILE"
	EnvHost               = "HOST"
	EnvPort               = "PORT"
	EnvDataPath           = "DATA_PATH"
	EnvArtifactDir        = "ARTIFACT_DIR"
	EnvDatasetPath        = "DATASET_PATH"
	EnvTabularScalerPath  = "TABULAR_SCALER_PATH"
	EnvTabularModelPath   = "TABULAR_MODEL_PATH"
	EnvSequenceScalerPath = "SEQUENCE_SCALER_PATH"
	EnvSequenceModelPath  = "SEQUENCE_MODEL_PATH"
	EnvLogLevel           = "LOG_LEVEL"
	EnvLogFormat          = "LOG_FORMAT"
	EnvRateLimit          = "RATE_LIMIT_PER_MINUTE"
	EnvSeed               = "SEED"
	EnvSamples            = "SAMPLES"
	EnvSequences          = "SEQUENCES"
	EnvFlipRate           = "FLIP_RATE"
	EnvTestSize           = "TEST_SIZE"
	EnvTrees              = "TREES"
	EnvMaxDepth           = "MAX_DEPTH"
	EnvMinSamplesLeaf     = "MIN_SAMPLES_LEAF"
	EnvSMOTENeighbors     = "SMOTE_NEIGHBORS"
	EnvEpochs             = "EPOCHS"
	EnvBatchSize          = "BATCH_SIZE"
	EnvHiddenUnits        = "HIDDEN_UNITS"
	EnvDenseUnits         = "DENSE_UNITS"
	EnvLearningRate       = "LEARNING_RATE"
	EnvTemporalPreset     = "TEMPORAL_PRESET"
	EnvRequestTimeout     = "REQUEST_TIMEOUT"
)

// Configuration defaults
const (
	DefaultHost           = "0.0.0.0"
	DefaultPort           = 8000
	DefaultArtifactDir    = "artifacts"
	DefaultDatasetPath    = "cold_logistics_dataset.csv"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "console"
	DefaultRateLimit      = 600
	DefaultSeed           = 42
	DefaultSamples        = 30000
	DefaultSequences      = 20000
	DefaultFlipRate       = 0.08
	DefaultTestSize       = 0.2
	DefaultTrees          = 300
	DefaultMaxDepth       = 0 // unlimited
	DefaultMinSamplesLeaf = 1
	DefaultSMOTENeighbors = 5
	DefaultEpochs         = 12
	DefaultBatchSize      = 32
	DefaultHiddenUnits    = 64
	DefaultDenseUnits     = 32
	DefaultLearningRate   = 0.001
	DefaultTemporalPreset = "stable"
)

// Artifact file names, resolved under the artifact directory unless a path is
// configured explicitly
const (
	TabularScalerFile  = "scaler_6features.json"
	TabularModelFile   = "rf_model_6features.json"
	SequenceScalerFile = "scaler_multi.json"
	SequenceModelFile  = "lstm_multivariate.json"
)

// Liveness messages returned by GET /
const (
	TabularLivenessMessage  = "Spoilage API Running"
	SequenceLivenessMessage = "Dynamic LSTM API running successfully!"
)

// Error messages
const (
	ErrMsgSequenceTooShort = "Need at least 5 readings to run LSTM sliding window."
)

// Validation constants
const (
	MinPort      = 1
	MaxPort      = 65535
	MaxTrees     = 2000
	MaxEpochs    = 500
	MaxBatchSize = 4096
	MaxSamples   = 5_000_000
)
