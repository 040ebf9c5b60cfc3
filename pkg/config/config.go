package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"audiopipe-server/pkg/errors"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config represents the complete application configuration
type Config struct {
	HTTP       HTTPConfig       `json:"http"`
	Ingest     IngestConfig     `json:"ingest"`
	STT        STTConfig        `json:"stt"`
	Confidence ConfidenceConfig `json:"confidence"`
	Redaction  RedactionConfig  `json:"redaction"`
	Summary    SummaryConfig    `json:"summary"`
	TTS        TTSConfig        `json:"tts"`
	Storage    StorageConfig    `json:"storage"`
	Pipeline   PipelineConfig   `json:"pipeline"`
	Messaging  MessagingConfig  `json:"messaging"`
	Logging    LoggingConfig    `json:"logging"`
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	BindAddress   string        `json:"bind_address" env:"HTTP_BIND_ADDRESS" default:"0.0.0.0"`
	Port          int           `json:"port" env:"HTTP_PORT" default:"8080"`
	ReadTimeout   time.Duration `json:"read_timeout" env:"HTTP_READ_TIMEOUT" default:"120s"`
	WriteTimeout  time.Duration `json:"write_timeout" env:"HTTP_WRITE_TIMEOUT" default:"300s"`
	EnableMetrics bool          `json:"enable_metrics" env:"HTTP_ENABLE_METRICS" default:"true"`
}

// IngestConfig holds upload validation configuration
type IngestConfig struct {
	// MaxFileSize caps the raw upload size in bytes
	MaxFileSize int64 `json:"max_file_size" env:"INGEST_MAX_FILE_SIZE" default:"26214400"`

	// MaxDuration caps the decoded audio duration
	MaxDuration time.Duration `json:"max_duration" env:"INGEST_MAX_DURATION" default:"15m"`

	// SupportedFormats lists accepted source codecs
	SupportedFormats []string `json:"supported_formats" env:"INGEST_SUPPORTED_FORMATS" default:"wav,mp3"`
}

// STTConfig holds transcription engine configuration
type STTConfig struct {
	// Provider selects the transcription backend: google, amazon, mock
	Provider string `json:"provider" env:"STT_PROVIDER" default:"mock"`

	Language string `json:"language" env:"STT_LANGUAGE" default:"en-US"`

	Google GoogleSTTConfig `json:"google"`
	Amazon AmazonSTTConfig `json:"amazon"`
}

// GoogleSTTConfig holds Google Speech-to-Text configuration
type GoogleSTTConfig struct {
	Enabled                    bool   `json:"enabled" env:"GOOGLE_STT_ENABLED" default:"false"`
	APIKey                     string `json:"-" env:"GOOGLE_STT_API_KEY"`
	CredentialsFile            string `json:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
	Model                      string `json:"model" env:"GOOGLE_STT_MODEL" default:"latest_long"`
	EnableAutomaticPunctuation bool   `json:"enable_automatic_punctuation" env:"GOOGLE_STT_AUTO_PUNCTUATION" default:"true"`
}

// AmazonSTTConfig holds Amazon Transcribe configuration
type AmazonSTTConfig struct {
	Enabled         bool   `json:"enabled" env:"AMAZON_STT_ENABLED" default:"false"`
	Region          string `json:"region" env:"AWS_REGION" default:"us-east-1"`
	AccessKeyID     string `json:"-" env:"AWS_ACCESS_KEY_ID"`
	SecretAccessKey string `json:"-" env:"AWS_SECRET_ACCESS_KEY"`
}

// ConfidenceConfig holds confidence aggregation thresholds
type ConfidenceConfig struct {
	// HighThreshold is the minimum score classified as High
	HighThreshold float64 `json:"high_threshold" env:"CONFIDENCE_HIGH_THRESHOLD" default:"0.85"`

	// MediumThreshold is the minimum score classified as Medium
	MediumThreshold float64 `json:"medium_threshold" env:"CONFIDENCE_MEDIUM_THRESHOLD" default:"0.6"`
}

// RedactionConfig holds PII redaction configuration
type RedactionConfig struct {
	// Detectors lists active detector strategies: pattern, ner
	Detectors []string `json:"detectors" env:"REDACTION_DETECTORS" default:"pattern,ner"`

	// FailClosed controls the policy on detector-infrastructure failure.
	// When true (default) the whole job fails; when false the pipeline
	// degrades by passing unredacted text forward with a warning.
	FailClosed bool `json:"fail_closed" env:"REDACTION_FAIL_CLOSED" default:"true"`

	// NEREndpoint is the model-backed named-entity service URL; empty
	// selects the local heuristic detector
	NEREndpoint string `json:"ner_endpoint" env:"REDACTION_NER_ENDPOINT"`
}

// SummaryConfig holds summarizer configuration
type SummaryConfig struct {
	// Provider selects the summarization backend: openai, extractive, mock
	Provider string `json:"provider" env:"SUMMARY_PROVIDER" default:"extractive"`

	// MinInputLength is the minimum character count for abstractive
	// summarization; shorter inputs are returned verbatim
	MinInputLength int `json:"min_input_length" env:"SUMMARY_MIN_INPUT_LENGTH" default:"200"`

	// MaxSentences bounds the extractive summarizer output
	MaxSentences int `json:"max_sentences" env:"SUMMARY_MAX_SENTENCES" default:"3"`

	OpenAIAPIKey string `json:"-" env:"OPENAI_API_KEY"`
	OpenAIModel  string `json:"openai_model" env:"SUMMARY_OPENAI_MODEL" default:"gpt-4o-mini"`
}

// TTSConfig holds speech synthesis configuration
type TTSConfig struct {
	// Provider selects the synthesis backend: google, mock, none
	Provider string `json:"provider" env:"TTS_PROVIDER" default:"mock"`

	LanguageCode    string `json:"language_code" env:"TTS_LANGUAGE_CODE" default:"en-US"`
	Voice           string `json:"voice" env:"TTS_VOICE" default:"en-US-Neural2-A"`
	CredentialsFile string `json:"credentials_file" env:"GOOGLE_APPLICATION_CREDENTIALS"`
}

// StorageConfig holds artifact store configuration
type StorageConfig struct {
	// Backend selects the artifact store: local, noop
	Backend string `json:"backend" env:"STORAGE_BACKEND" default:"local"`

	// OutputDir is where the local backend writes synthesized audio
	OutputDir string `json:"output_dir" env:"STORAGE_OUTPUT_DIR" default:"./outputs"`

	// PublicBaseURL prefixes artifact references returned to clients
	PublicBaseURL string `json:"public_base_url" env:"STORAGE_PUBLIC_BASE_URL" default:"/outputs"`
}

// StagePolicyConfig holds per-stage timeout and retry configuration
type StagePolicyConfig struct {
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	Backoff    time.Duration `json:"backoff"`
}

// PipelineConfig holds orchestrator configuration
type PipelineConfig struct {
	WorkerCount   int           `json:"worker_count" env:"PIPELINE_WORKER_COUNT" default:"4"`
	QueueSize     int           `json:"queue_size" env:"PIPELINE_QUEUE_SIZE" default:"64"`
	JobRetention  time.Duration `json:"job_retention" env:"PIPELINE_JOB_RETENTION" default:"1h"`
	AuditLogPath  string        `json:"audit_log_path" env:"PIPELINE_AUDIT_LOG_PATH"`

	Transcription StagePolicyConfig `json:"transcription"`
	Redaction     StagePolicyConfig `json:"redaction"`
	Summarization StagePolicyConfig `json:"summarization"`
	Synthesis     StagePolicyConfig `json:"synthesis"`
}

// MessagingConfig holds AMQP event publishing configuration
type MessagingConfig struct {
	// AMQPUrl enables job lifecycle event publishing when non-empty
	AMQPUrl   string `json:"-" env:"AMQP_URL"`
	QueueName string `json:"queue_name" env:"AMQP_QUEUE_NAME" default:"pipeline_events"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `json:"level" env:"LOG_LEVEL" default:"info"`
	Format string `json:"format" env:"LOG_FORMAT" default:"json"`
}

// Load reads configuration from .env files and environment variables
func Load(logger *logrus.Logger) (*Config, error) {
	wd, err := os.Getwd()
	if err != nil {
		logger.WithError(err).Warn("Failed to get current working directory")
		wd = "unknown"
	}

	possibleEnvFiles := []string{
		".env",
		"../.env",
		filepath.Join(wd, ".env"),
	}

	var loadedFrom string
	for _, envFile := range possibleEnvFiles {
		if _, statErr := os.Stat(envFile); statErr == nil {
			if loadErr := godotenv.Load(envFile); loadErr == nil {
				loadedFrom, _ = filepath.Abs(envFile)
				break
			}
		}
	}

	if loadedFrom != "" {
		logger.WithFields(logrus.Fields{
			"working_dir": wd,
			"path":        loadedFrom,
		}).Info("Successfully loaded .env file")
	} else {
		logger.WithField("working_dir", wd).Debug("No .env file found, using environment variables only")
	}

	config := &Config{}

	loadHTTPConfig(&config.HTTP)
	loadIngestConfig(&config.Ingest)
	loadSTTConfig(&config.STT)
	loadConfidenceConfig(&config.Confidence)
	loadRedactionConfig(&config.Redaction)
	loadSummaryConfig(&config.Summary)
	loadTTSConfig(&config.TTS)
	loadStorageConfig(&config.Storage)
	loadPipelineConfig(&config.Pipeline)
	loadMessagingConfig(&config.Messaging)
	loadLoggingConfig(&config.Logging)

	if err := config.Validate(); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}

	return config, nil
}

func loadHTTPConfig(c *HTTPConfig) {
	c.BindAddress = getEnv("HTTP_BIND_ADDRESS", "0.0.0.0")
	c.Port = getEnvInt("HTTP_PORT", 8080)
	c.ReadTimeout = getEnvDuration("HTTP_READ_TIMEOUT", 120*time.Second)
	c.WriteTimeout = getEnvDuration("HTTP_WRITE_TIMEOUT", 300*time.Second)
	c.EnableMetrics = getEnvBool("HTTP_ENABLE_METRICS", true)
}

func loadIngestConfig(c *IngestConfig) {
	c.MaxFileSize = int64(getEnvInt("INGEST_MAX_FILE_SIZE", 25*1024*1024))
	c.MaxDuration = getEnvDuration("INGEST_MAX_DURATION", 15*time.Minute)
	c.SupportedFormats = getEnvList("INGEST_SUPPORTED_FORMATS", []string{"wav", "mp3"})
}

func loadSTTConfig(c *STTConfig) {
	c.Provider = getEnv("STT_PROVIDER", "mock")
	c.Language = getEnv("STT_LANGUAGE", "en-US")

	c.Google.Enabled = getEnvBool("GOOGLE_STT_ENABLED", false)
	c.Google.APIKey = getEnv("GOOGLE_STT_API_KEY", "")
	c.Google.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")
	c.Google.Model = getEnv("GOOGLE_STT_MODEL", "latest_long")
	c.Google.EnableAutomaticPunctuation = getEnvBool("GOOGLE_STT_AUTO_PUNCTUATION", true)

	c.Amazon.Enabled = getEnvBool("AMAZON_STT_ENABLED", false)
	c.Amazon.Region = getEnv("AWS_REGION", "us-east-1")
	c.Amazon.AccessKeyID = getEnv("AWS_ACCESS_KEY_ID", "")
	c.Amazon.SecretAccessKey = getEnv("AWS_SECRET_ACCESS_KEY", "")
}

func loadConfidenceConfig(c *ConfidenceConfig) {
	c.HighThreshold = getEnvFloat("CONFIDENCE_HIGH_THRESHOLD", 0.85)
	c.MediumThreshold = getEnvFloat("CONFIDENCE_MEDIUM_THRESHOLD", 0.6)
}

func loadRedactionConfig(c *RedactionConfig) {
	c.Detectors = getEnvList("REDACTION_DETECTORS", []string{"pattern", "ner"})
	c.FailClosed = getEnvBool("REDACTION_FAIL_CLOSED", true)
	c.NEREndpoint = getEnv("REDACTION_NER_ENDPOINT", "")
}

func loadSummaryConfig(c *SummaryConfig) {
	c.Provider = getEnv("SUMMARY_PROVIDER", "extractive")
	c.MinInputLength = getEnvInt("SUMMARY_MIN_INPUT_LENGTH", 200)
	c.MaxSentences = getEnvInt("SUMMARY_MAX_SENTENCES", 3)
	c.OpenAIAPIKey = getEnv("OPENAI_API_KEY", "")
	c.OpenAIModel = getEnv("SUMMARY_OPENAI_MODEL", "gpt-4o-mini")
}

func loadTTSConfig(c *TTSConfig) {
	c.Provider = getEnv("TTS_PROVIDER", "mock")
	c.LanguageCode = getEnv("TTS_LANGUAGE_CODE", "en-US")
	c.Voice = getEnv("TTS_VOICE", "en-US-Neural2-A")
	c.CredentialsFile = getEnv("GOOGLE_APPLICATION_CREDENTIALS", "")
}

func loadStorageConfig(c *StorageConfig) {
	c.Backend = getEnv("STORAGE_BACKEND", "local")
	c.OutputDir = getEnv("STORAGE_OUTPUT_DIR", "./outputs")
	c.PublicBaseURL = getEnv("STORAGE_PUBLIC_BASE_URL", "/outputs")
}

func loadPipelineConfig(c *PipelineConfig) {
	c.WorkerCount = getEnvInt("PIPELINE_WORKER_COUNT", 4)
	c.QueueSize = getEnvInt("PIPELINE_QUEUE_SIZE", 64)
	c.JobRetention = getEnvDuration("PIPELINE_JOB_RETENTION", time.Hour)
	c.AuditLogPath = getEnv("PIPELINE_AUDIT_LOG_PATH", "")

	c.Transcription = loadStagePolicy("TRANSCRIPTION", 120*time.Second, 2, 2*time.Second)
	c.Redaction = loadStagePolicy("REDACTION", 30*time.Second, 2, time.Second)
	c.Summarization = loadStagePolicy("SUMMARIZATION", 60*time.Second, 2, 2*time.Second)
	c.Synthesis = loadStagePolicy("SYNTHESIS", 60*time.Second, 1, 2*time.Second)
}

func loadStagePolicy(stage string, timeout time.Duration, retries int, backoff time.Duration) StagePolicyConfig {
	prefix := "PIPELINE_" + stage
	return StagePolicyConfig{
		Timeout:    getEnvDuration(prefix+"_TIMEOUT", timeout),
		MaxRetries: getEnvInt(prefix+"_MAX_RETRIES", retries),
		Backoff:    getEnvDuration(prefix+"_RETRY_BACKOFF", backoff),
	}
}

func loadMessagingConfig(c *MessagingConfig) {
	c.AMQPUrl = getEnv("AMQP_URL", "")
	c.QueueName = getEnv("AMQP_QUEUE_NAME", "pipeline_events")
}

func loadLoggingConfig(c *LoggingConfig) {
	c.Level = getEnv("LOG_LEVEL", "info")
	c.Format = getEnv("LOG_FORMAT", "json")
}

// Validate checks the configuration for inconsistent values
func (c *Config) Validate() error {
	if c.HTTP.Port <= 0 || c.HTTP.Port > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTP.Port)
	}

	if c.Ingest.MaxFileSize <= 0 {
		return fmt.Errorf("max file size must be positive, got %d", c.Ingest.MaxFileSize)
	}

	if len(c.Ingest.SupportedFormats) == 0 {
		return fmt.Errorf("at least one supported audio format is required")
	}

	if c.Confidence.HighThreshold < c.Confidence.MediumThreshold {
		return fmt.Errorf("confidence high threshold (%.2f) must be >= medium threshold (%.2f)",
			c.Confidence.HighThreshold, c.Confidence.MediumThreshold)
	}

	if c.Confidence.HighThreshold > 1 || c.Confidence.MediumThreshold < 0 {
		return fmt.Errorf("confidence thresholds must lie in [0,1]")
	}

	if c.Pipeline.WorkerCount <= 0 {
		return fmt.Errorf("pipeline worker count must be positive, got %d", c.Pipeline.WorkerCount)
	}

	if len(c.Redaction.Detectors) == 0 {
		return fmt.Errorf("at least one PII detector is required")
	}

	switch c.Storage.Backend {
	case "local", "noop":
	default:
		return fmt.Errorf("unknown storage backend: %s", c.Storage.Backend)
	}

	return nil
}

// SupportsFormat reports whether the given source format is accepted
func (c *IngestConfig) SupportsFormat(format string) bool {
	format = strings.ToLower(strings.TrimSpace(format))
	for _, f := range c.SupportedFormats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

// Helper function to get an environment variable with a default value
func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

// Helper function to get a boolean environment variable with a default value
func getEnvBool(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	switch strings.ToLower(value) {
	case "true", "yes", "1", "on":
		return true
	case "false", "no", "0", "off":
		return false
	default:
		return defaultValue
	}
}

// Helper function to get an integer environment variable with a default value
func getEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return intValue
}

// Helper function to get a duration environment variable with a default value
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	duration, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return duration
}

// getEnvFloat retrieves an environment variable and converts it to float64
func getEnvFloat(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	floatValue, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}

	return floatValue
}

// getEnvList retrieves a comma-separated environment variable as a slice
func getEnvList(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	if len(result) == 0 {
		return defaultValue
	}
	return result
}
