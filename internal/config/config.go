package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"

	"github.com/videoflix/streamcore/pkg/models"
)

// Config holds all configuration for the application. It is loaded once at
// startup and passed explicitly into constructors; nothing reads it through
// globals at call time.
type Config struct {
	Server     ServerConfig
	Database   DatabaseConfig
	Redis      RedisConfig
	Storage    StorageConfig
	Queue      QueueConfig
	Transcoder TranscoderConfig
	Pipeline   PipelineConfig
	Auth       AuthConfig
	Log        LogConfig
	Tracing    TracingConfig
	Metrics    MetricsConfig
	Profiles   models.Ladder
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	// Per-caller request rate limit. Zero disables limiting.
	RateLimitRPS   int
	RateLimitBurst int
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string
	MaxConns int
	MinConns int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
	// TTL for cached job status records. Short by design: status polling is
	// the only way clients observe completion.
	StatusTTL time.Duration
}

// StorageConfig holds content store configuration
type StorageConfig struct {
	// Backend selects the content store: "minio" or "fs".
	Backend         string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	Region          string
	UseSSL          bool
	// Root directory for the fs backend.
	Root string
}

// QueueConfig holds message queue configuration
type QueueConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Vhost    string
}

// TranscoderConfig holds encoder configuration
type TranscoderConfig struct {
	FFmpegPath     string
	FFprobePath    string
	TempDir        string
	SegmentSeconds int
}

// PipelineConfig holds job queue tuning knobs.
type PipelineConfig struct {
	WorkerCount  int
	MaxAttempts  int
	BackoffBase  time.Duration
	BackoffCap   time.Duration
	LeaseTimeout time.Duration
	JobTimeout   time.Duration
}

// AuthConfig holds the caller-identity surface. Token issuance and refresh
// live in the external auth service; this core only verifies signatures to
// extract a caller id.
type AuthConfig struct {
	JWTSecret string
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string
	Format string
}

// TracingConfig holds distributed tracing configuration. An empty endpoint
// disables tracing.
type TracingConfig struct {
	JaegerEndpoint string
}

// MetricsConfig holds the Prometheus scrape endpoint configuration.
type MetricsConfig struct {
	Port int
}

// Load reads configuration from file and environment variables.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("yaml")
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if len(config.Profiles) == 0 {
		config.Profiles = models.DefaultLadder()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	return &config, nil
}

// Validate checks the invariants the components rely on.
func (c *Config) Validate() error {
	if err := c.Profiles.Validate(); err != nil {
		return fmt.Errorf("invalid profile ladder: %w", err)
	}
	if c.Pipeline.WorkerCount <= 0 {
		return fmt.Errorf("pipeline.workerCount must be positive")
	}
	if c.Pipeline.MaxAttempts <= 0 {
		return fmt.Errorf("pipeline.maxAttempts must be positive")
	}
	if c.Pipeline.LeaseTimeout <= 0 {
		return fmt.Errorf("pipeline.leaseTimeout must be positive")
	}
	if c.Transcoder.SegmentSeconds <= 0 {
		return fmt.Errorf("transcoder.segmentSeconds must be positive")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.readTimeout", "30s")
	v.SetDefault("server.writeTimeout", "30s")
	v.SetDefault("server.shutdownTimeout", "10s")
	v.SetDefault("server.rateLimitRPS", 0)
	v.SetDefault("server.rateLimitBurst", 0)

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.dbname", "streamcore")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.maxConns", 25)
	v.SetDefault("database.minConns", 5)

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.statusTTL", "2s")

	// Storage defaults
	v.SetDefault("storage.backend", "minio")
	v.SetDefault("storage.endpoint", "localhost:9000")
	v.SetDefault("storage.accessKeyID", "minioadmin")
	v.SetDefault("storage.secretAccessKey", "minioadmin")
	v.SetDefault("storage.bucketName", "videos")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.useSSL", false)
	v.SetDefault("storage.root", "/var/lib/streamcore/media")

	// Queue defaults
	v.SetDefault("queue.host", "localhost")
	v.SetDefault("queue.port", 5672)
	v.SetDefault("queue.user", "guest")
	v.SetDefault("queue.password", "guest")
	v.SetDefault("queue.vhost", "/")

	// Transcoder defaults
	v.SetDefault("transcoder.ffmpegPath", "ffmpeg")
	v.SetDefault("transcoder.ffprobePath", "ffprobe")
	v.SetDefault("transcoder.tempDir", "/tmp/streamcore")
	v.SetDefault("transcoder.segmentSeconds", 10)

	// Pipeline defaults
	v.SetDefault("pipeline.workerCount", 2)
	v.SetDefault("pipeline.maxAttempts", 3)
	v.SetDefault("pipeline.backoffBase", "5s")
	v.SetDefault("pipeline.backoffCap", "2m")
	v.SetDefault("pipeline.leaseTimeout", "15m")
	v.SetDefault("pipeline.jobTimeout", "30m")

	// Auth defaults
	v.SetDefault("auth.jwtSecret", "")

	// Logging defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

	// Observability defaults
	v.SetDefault("tracing.jaegerEndpoint", "")
	v.SetDefault("metrics.port", 9090)
}
