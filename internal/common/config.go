package common

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

// Config holds all application configuration
type Config struct {
	Database DatabaseConfig
	Blob     BlobConfig
	Redis    RedisConfig
	Stages   StageConfig
	Pipeline PipelineConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds database-related configuration
type DatabaseConfig struct {
	DSN              string
	MaxConns         int32
	MinConns         int32
	MaxConnLifetime  time.Duration
	MaxConnIdleTime  time.Duration
	DialTimeout      time.Duration
	StatementTimeout time.Duration
}

// BlobConfig holds blob-store configuration. When RoleARN is set the
// gateway uses STS assume-role so the worker only ever holds short-lived
// delegated credentials; the static key pair is the local/dev path.
type BlobConfig struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseTLS    bool
	RoleARN   string
	STSHost   string
}

// RedisConfig holds the optional status-cache configuration. An empty Addr
// disables the cache.
type RedisConfig struct {
	Addr     string
	DB       int
	CacheTTL time.Duration
}

// StageConfig holds the endpoints of the two external processing stages.
type StageConfig struct {
	ExtractionURL     string
	ExtractionTimeout time.Duration
	AnalysisURL       string
	AnalysisTimeout   time.Duration
}

// PipelineConfig holds the worker's retry/lease/batch knobs.
type PipelineConfig struct {
	MaxRetries      int
	VisibilityLease time.Duration
	BatchSize       int
	PollInterval    time.Duration
	URLTTL          time.Duration
	WorkerCount     int
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	File  string
	Level slog.Level
}

// LoadConfig loads configuration from environment variables
func LoadConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			DSN:              getEnv("DB_URL", ""),
			MaxConns:         getEnvAsInt32("DB_MAX_CONNS", 20),
			MinConns:         getEnvAsInt32("DB_MIN_CONNS", 5),
			MaxConnLifetime:  getEnvAsDuration("DB_MAX_CONN_LIFETIME", 30*time.Minute),
			MaxConnIdleTime:  getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 5*time.Minute),
			DialTimeout:      getEnvAsDuration("DB_DIAL_TIMEOUT", 3*time.Second),
			StatementTimeout: getEnvAsDuration("DB_STATEMENT_TIMEOUT", 0),
		},
		Blob: BlobConfig{
			Endpoint:  getEnv("S3_ENDPOINT", ""),
			AccessKey: getEnv("S3_ACCESS_KEY", ""),
			SecretKey: getEnv("S3_SECRET_KEY", ""),
			Bucket:    getEnv("S3_BUCKET", "resumes"),
			UseTLS:    getEnv("S3_USE_TLS", "true") == "true",
			RoleARN:   getEnv("S3_ROLE_ARN", ""),
			STSHost:   getEnv("S3_STS_ENDPOINT", ""),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", ""),
			DB:       getEnvAsInt("REDIS_DB", 0),
			CacheTTL: getEnvAsDuration("STATUS_CACHE_TTL", 2*time.Second),
		},
		Stages: StageConfig{
			ExtractionURL:     getEnv("EXTRACTION_URL", ""),
			ExtractionTimeout: time.Duration(getEnvAsInt("EXTRACTION_TIMEOUT_SECONDS", 60)) * time.Second,
			AnalysisURL:       getEnv("ANALYSIS_URL", ""),
			AnalysisTimeout:   time.Duration(getEnvAsInt("ANALYSIS_TIMEOUT_SECONDS", 60)) * time.Second,
		},
		Pipeline: PipelineConfig{
			MaxRetries:      getEnvAsInt("MAX_RETRIES", 5),
			VisibilityLease: time.Duration(getEnvAsInt("VISIBILITY_LEASE_SECONDS", 300)) * time.Second,
			BatchSize:       getEnvAsInt("BATCH_SIZE", 10),
			PollInterval:    time.Duration(getEnvAsInt("POLL_INTERVAL_SECONDS", 2)) * time.Second,
			URLTTL:          time.Duration(getEnvAsInt("URL_TTL_HOURS", 24)) * time.Hour,
			WorkerCount:     getEnvAsInt("WORKER_COUNT", 2),
		},
		Logging: LoggingConfig{
			File:  getEnv("LOG_FILE", ""),
			Level: ParseLogLevel(getEnv("LOG_LEVEL", "INFO")),
		},
	}
}

// Validate checks that everything the worker needs at startup is present.
// Missing credentials or endpoints are fatal here, never per-message.
func (c *Config) Validate() error {
	if c.Database.DSN == "" {
		return NewAppError("CONFIG_ERROR", "DB_URL is required", ErrConfiguration)
	}
	if c.Blob.Endpoint == "" {
		return NewAppError("CONFIG_ERROR", "S3_ENDPOINT is required", ErrConfiguration)
	}
	if c.Blob.AccessKey == "" || c.Blob.SecretKey == "" {
		return NewAppError("CONFIG_ERROR", "S3_ACCESS_KEY and S3_SECRET_KEY are required", ErrConfiguration)
	}
	if c.Stages.ExtractionURL == "" {
		return NewAppError("CONFIG_ERROR", "EXTRACTION_URL is required", ErrConfiguration)
	}
	if c.Stages.AnalysisURL == "" {
		return NewAppError("CONFIG_ERROR", "ANALYSIS_URL is required", ErrConfiguration)
	}
	if c.Pipeline.MaxRetries < 1 {
		return NewAppError("CONFIG_ERROR", "MAX_RETRIES must be at least 1", ErrConfiguration)
	}
	if c.Pipeline.BatchSize < 1 {
		return NewAppError("CONFIG_ERROR", "BATCH_SIZE must be at least 1", ErrConfiguration)
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvAsInt32(key string, defaultValue int32) int32 {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.ParseInt(value, 10, 32); err == nil {
			return int32(intVal)
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
