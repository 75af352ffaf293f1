// Package config loads assemblycore runtime configuration from an optional YAML
// file with environment variable overrides.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

// Config holds all configuration for assemblycore.
// Environment variables always override YAML values.
type Config struct {
	HTTPAddr string `yaml:"http_addr" env:"ASSEMBLYCORE_HTTP_ADDR" env-default:":8080"`
	LogLevel string `yaml:"log_level" env:"ASSEMBLYCORE_LOG_LEVEL" env-default:"info"`

	Storage StorageConfig `yaml:"storage"`
	Lease   LeaseConfig   `yaml:"lease"`
	Blob    BlobConfig    `yaml:"blob"`
}

// StorageConfig selects and configures the entity store backend.
type StorageConfig struct {
	Driver      string `yaml:"driver" env:"ASSEMBLYCORE_STORAGE_DRIVER" env-default:"sqlite"`
	SQLitePath  string `yaml:"sqlite_path" env:"ASSEMBLYCORE_SQLITE_PATH" env-default:"assemblycore.db"`
	PostgresDSN string `yaml:"-" env:"ASSEMBLYCORE_POSTGRES_DSN"` // may carry credentials
}

// LeaseConfig configures the optional allocation admission lease.
// An empty RedisURL selects the in-process lease.
type LeaseConfig struct {
	RedisURL string        `yaml:"-" env:"ASSEMBLYCORE_REDIS_URL"`
	TTL      time.Duration `yaml:"ttl" env:"ASSEMBLYCORE_LEASE_TTL" env-default:"5s"`
}

// BlobConfig configures the history archive blob store.
type BlobConfig struct {
	Driver      string `yaml:"driver" env:"ASSEMBLYCORE_BLOB_DRIVER" env-default:"none"`
	S3Bucket    string `yaml:"s3_bucket" env:"ASSEMBLYCORE_BLOB_S3_BUCKET"`
	S3Region    string `yaml:"s3_region" env:"ASSEMBLYCORE_BLOB_S3_REGION" env-default:"us-east-1"`
	S3Endpoint  string `yaml:"s3_endpoint" env:"ASSEMBLYCORE_BLOB_S3_ENDPOINT"`
	S3PathStyle bool   `yaml:"s3_path_style" env:"ASSEMBLYCORE_BLOB_S3_PATH_STYLE" env-default:"false"`
}

var (
	storageDrivers = []string{"memory", "sqlite", "postgres"}
	blobDrivers    = []string{"none", "memory", "s3"}
	logLevels      = []string{"debug", "info", "warn", "error"}
)

// Load reads configuration from path (when non-empty) and the environment.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if path != "" {
		if err := cleanenv.ReadConfig(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
	} else if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks enumerated settings and cross-field requirements.
func (c *Config) Validate() error {
	c.Storage.Driver = strings.ToLower(c.Storage.Driver)
	c.Blob.Driver = strings.ToLower(c.Blob.Driver)
	c.LogLevel = strings.ToLower(c.LogLevel)
	if !oneOf(c.Storage.Driver, storageDrivers) {
		return fmt.Errorf("unknown storage driver %q", c.Storage.Driver)
	}
	if c.Storage.Driver == "postgres" && c.Storage.PostgresDSN == "" {
		return fmt.Errorf("ASSEMBLYCORE_POSTGRES_DSN is required for the postgres driver")
	}
	if !oneOf(c.Blob.Driver, blobDrivers) {
		return fmt.Errorf("unknown blob driver %q", c.Blob.Driver)
	}
	if c.Blob.Driver == "s3" && c.Blob.S3Bucket == "" {
		return fmt.Errorf("ASSEMBLYCORE_BLOB_S3_BUCKET is required for the s3 blob driver")
	}
	if !oneOf(c.LogLevel, logLevels) {
		return fmt.Errorf("unknown log level %q", c.LogLevel)
	}
	if c.Lease.TTL <= 0 {
		return fmt.Errorf("lease ttl must be positive")
	}
	return nil
}

func oneOf(v string, allowed []string) bool {
	for _, a := range allowed {
		if v == a {
			return true
		}
	}
	return false
}
