package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Logging  LoggingConfig
	Metrics  MetricsConfig
	Queue    QueueConfig
	Storage  StorageConfig
	Redis    RedisConfig
	Gemini   GeminiConfig
	Pipeline PipelineConfig
	Tracing  TracingConfig
	API      APIConfig
	Webhooks []WebhookConfig
}

// APIConfig holds the HTTP API configuration
type APIConfig struct {
	Port           int
	JWTSecret      string
	RateLimitRPS   int
	RateLimitBurst int
}

// WebhookConfig holds one webhook notification endpoint
type WebhookConfig struct {
	URL    string
	Secret string
}

// TracingConfig holds distributed tracing configuration
type TracingConfig struct {
	Enabled  bool
	Endpoint string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
	Output string
}

// MetricsConfig holds the Prometheus metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool
	Port    int
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// StorageConfig holds object storage configuration
type StorageConfig struct {
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	UploadTimeout   time.Duration
}

// RedisConfig holds Redis configuration for the progress sink
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// GeminiConfig holds captioning model configuration
type GeminiConfig struct {
	APIKey        string
	Model         string
	FallbackModel string
	BaseURL       string
	MaxRetries    int
}

// PipelineConfig holds caption pipeline configuration
type PipelineConfig struct {
	TempDir     string
	FFmpegPath  string
	FFprobePath string

	// Segmentation
	ChunkSeconds          float64
	MaxDetectionWindow    float64 // silence analysis limited to this many leading seconds
	DirectSegmentCutoff   float64 // videos longer than this skip silence analysis
	SilenceNoiseDB        float64
	SilenceMinDuration    float64
	BreakpointThreshold   float64 // fraction of ChunkSeconds a segment must reach before a silence cut
	MaxConcurrentCuts     int
	MaxConcurrentSegments int

	// Size thresholds
	PreprocessThresholdMB int64 // inputs above this are re-encoded first
	StreamEncodeThreshold int64 // bytes; payload encoding switches to the chunked path
	SegmentPayloadMaxMB   int64 // oversized segments get only a leading extract captioned
	ShortVideoSeconds     float64

	// Memory pressure check between caption batches
	MemoryThreshold float64

	// Preprocess targets. The named quality and resolution tiers take
	// precedence over the explicit values when set.
	MaxWidth             int
	MaxHeight            int
	TargetBitrate        string
	PreprocessQuality    string // low, medium, high
	PreprocessResolution string // 480p, 720p, 1080p

	// Render
	EnableHWAccel   bool
	PreserveQuality bool
}

// Load reads configuration from file and environment variables
func Load(configPath string) (*Config, error) {
	viper.SetConfigFile(configPath)
	viper.SetConfigType("yaml")
	viper.AutomaticEnv()

	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

// Defaults returns a configuration built purely from defaults and
// environment variables, for runs without a config file.
func Defaults() (*Config, error) {
	viper.AutomaticEnv()
	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	// Logging defaults
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")
	viper.SetDefault("logging.output", "stdout")

	// Metrics defaults
	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.port", 9091)

	// Queue defaults
	viper.SetDefault("queue.host", "localhost")
	viper.SetDefault("queue.port", 5672)
	viper.SetDefault("queue.user", "guest")
	viper.SetDefault("queue.password", "guest")
	viper.SetDefault("queue.vhost", "/")

	// Storage defaults
	viper.SetDefault("storage.endpoint", "localhost:9000")
	viper.SetDefault("storage.accessKeyID", "minioadmin")
	viper.SetDefault("storage.secretAccessKey", "minioadmin")
	viper.SetDefault("storage.bucketName", "videos")
	viper.SetDefault("storage.region", "us-east-1")
	viper.SetDefault("storage.useSSL", false)
	viper.SetDefault("storage.uploadTimeout", "10m")

	// Redis defaults
	viper.SetDefault("redis.host", "localhost")
	viper.SetDefault("redis.port", 6379)
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)

	// Gemini defaults
	viper.SetDefault("gemini.model", "gemini-2.5-pro")
	viper.SetDefault("gemini.fallbackModel", "gemini-1.5-flash")
	viper.SetDefault("gemini.baseURL", "https://generativelanguage.googleapis.com/v1beta")
	viper.SetDefault("gemini.maxRetries", 3)

	// API defaults
	viper.SetDefault("api.port", 8080)
	viper.SetDefault("api.rateLimitRPS", 10)
	viper.SetDefault("api.rateLimitBurst", 20)

	// Tracing defaults
	viper.SetDefault("tracing.enabled", false)
	viper.SetDefault("tracing.endpoint", "http://localhost:14268/api/traces")

	// Pipeline defaults. The segmentation constants are empirical tuning
	// values; configurable, not known to be optimal.
	viper.SetDefault("pipeline.tempDir", "/tmp/captionburn")
	viper.SetDefault("pipeline.ffmpegPath", "ffmpeg")
	viper.SetDefault("pipeline.ffprobePath", "ffprobe")
	viper.SetDefault("pipeline.chunkSeconds", 600.0)
	viper.SetDefault("pipeline.maxDetectionWindow", 3600.0)
	viper.SetDefault("pipeline.directSegmentCutoff", 7200.0)
	viper.SetDefault("pipeline.silenceNoiseDB", -30.0)
	viper.SetDefault("pipeline.silenceMinDuration", 1.0)
	viper.SetDefault("pipeline.breakpointThreshold", 0.9)
	viper.SetDefault("pipeline.maxConcurrentCuts", 2)
	viper.SetDefault("pipeline.maxConcurrentSegments", 3)
	viper.SetDefault("pipeline.preprocessThresholdMB", 200)
	viper.SetDefault("pipeline.streamEncodeThreshold", 50*1024*1024)
	viper.SetDefault("pipeline.segmentPayloadMaxMB", 100)
	viper.SetDefault("pipeline.shortVideoSeconds", 600.0)
	viper.SetDefault("pipeline.memoryThreshold", 0.7)
	viper.SetDefault("pipeline.maxWidth", 1280)
	viper.SetDefault("pipeline.maxHeight", 720)
	viper.SetDefault("pipeline.targetBitrate", "2500k")
	viper.SetDefault("pipeline.preprocessQuality", "")
	viper.SetDefault("pipeline.preprocessResolution", "")
	viper.SetDefault("pipeline.enableHWAccel", true)
	viper.SetDefault("pipeline.preserveQuality", true)
}
