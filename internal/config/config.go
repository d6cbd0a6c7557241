package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the inference worker.
type Config struct {
	Server    ServerConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Blob      BlobConfig
	Model     ModelConfig
	Worker    WorkerConfig
	Pipeline  PipelineConfig
	Notify    NotifyConfig
	OpsAPIKey string // bcrypt hash; empty disables write routes
}

type ServerConfig struct {
	Port int
	Env  string
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	AutoMigrate     bool
}

type RedisConfig struct {
	URL string
}

type BlobConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Timeout  time.Duration
}

type ModelConfig struct {
	URL     string
	Name    string
	Timeout time.Duration
}

type WorkerConfig struct {
	PollInterval   time.Duration
	ClaimMode      string
	MaxAttempts    int
	StaleLease     time.Duration
	ReapInterval   time.Duration
	CounterBackend string
	StatusRetries  int
}

type PipelineConfig struct {
	FrameSize int
	MaxFrames int
}

type NotifyConfig struct {
	Channel string
	List    string
}

const (
	ClaimModeAtomic = "atomic"
	ClaimModeRead   = "read"

	CounterBackendPostgres = "postgres"
	CounterBackendRedis    = "redis"
)

// Load reads configuration from environment variables and returns a validated Config.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port: envInt("HTTP_PORT", 8080),
			Env:  envString("WORKER_ENV", "development"),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 2),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			AutoMigrate:     envBool("DATABASE_AUTO_MIGRATE", true),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		Blob: BlobConfig{
			Bucket:   os.Getenv("S3_BUCKET"),
			Region:   envString("AWS_REGION", "ap-northeast-2"),
			Endpoint: os.Getenv("S3_ENDPOINT"),
			Timeout:  envDuration("BLOB_TIMEOUT", 30*time.Second),
		},
		Model: ModelConfig{
			URL:     os.Getenv("MODEL_URL"),
			Name:    envString("MODEL_NAME", "reader"),
			Timeout: envDuration("INFERENCE_TIMEOUT", 2*time.Minute),
		},
		Worker: WorkerConfig{
			PollInterval:   envDuration("POLL_INTERVAL", 5*time.Second),
			ClaimMode:      envString("CLAIM_MODE", ClaimModeAtomic),
			MaxAttempts:    envInt("MAX_ATTEMPTS", 5),
			StaleLease:     envDuration("STALE_LEASE", 10*time.Minute),
			ReapInterval:   envDuration("REAP_INTERVAL", 30*time.Second),
			CounterBackend: envString("COUNTER_BACKEND", CounterBackendPostgres),
			StatusRetries:  envInt("STATUS_RETRIES", 3),
		},
		Pipeline: PipelineConfig{
			FrameSize: envInt("FRAME_SIZE", 224),
			MaxFrames: envInt("MAX_FRAMES", 500),
		},
		Notify: NotifyConfig{
			Channel: envString("NOTIFY_CHANNEL", "reader-tests:done"),
			List:    envString("NOTIFY_LIST", "reader-tests:done:list"),
		},
		OpsAPIKey: os.Getenv("OPS_API_KEY_HASH"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}
	if c.Blob.Bucket == "" {
		return fmt.Errorf("S3_BUCKET is required")
	}

	if c.Model.URL == "" {
		return fmt.Errorf("MODEL_URL is required")
	}
	if !strings.HasPrefix(c.Model.URL, "http://") && !strings.HasPrefix(c.Model.URL, "https://") {
		return fmt.Errorf("MODEL_URL must start with http:// or https://, got %q", c.Model.URL)
	}

	switch c.Worker.ClaimMode {
	case ClaimModeAtomic, ClaimModeRead:
	default:
		return fmt.Errorf("CLAIM_MODE must be one of atomic, read; got %q", c.Worker.ClaimMode)
	}

	switch c.Worker.CounterBackend {
	case CounterBackendPostgres, CounterBackendRedis:
	default:
		return fmt.Errorf("COUNTER_BACKEND must be one of postgres, redis; got %q", c.Worker.CounterBackend)
	}

	if c.Worker.MaxAttempts < 0 {
		return fmt.Errorf("MAX_ATTEMPTS must be >= 0, got %d", c.Worker.MaxAttempts)
	}
	if c.Worker.StatusRetries < 0 {
		return fmt.Errorf("STATUS_RETRIES must be >= 0, got %d", c.Worker.StatusRetries)
	}
	if c.Worker.StaleLease <= c.Blob.Timeout+c.Model.Timeout {
		return fmt.Errorf("STALE_LEASE (%s) must exceed BLOB_TIMEOUT + INFERENCE_TIMEOUT (%s)",
			c.Worker.StaleLease, c.Blob.Timeout+c.Model.Timeout)
	}
	if c.Pipeline.FrameSize <= 0 {
		return fmt.Errorf("FRAME_SIZE must be positive, got %d", c.Pipeline.FrameSize)
	}

	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
