// Package config loads omegraph settings.
//
// Values are resolved in order: built-in defaults, then an optional YAML file,
// then OMEGRAPH_* environment variables.
//
//	OMEGRAPH_STORAGE_DRIVER: memory|sqlite|postgres (default sqlite)
//	OMEGRAPH_SQLITE_PATH: sqlite file (default ./omegraph.db)
//	OMEGRAPH_POSTGRES_DSN: postgres DSN when driver=postgres
//	OMEGRAPH_BLOB_DRIVER: none|memory|fs|s3 (default none)
//	OMEGRAPH_BLOB_FS_ROOT, OMEGRAPH_BLOB_S3_BUCKET, OMEGRAPH_BLOB_S3_REGION,
//	OMEGRAPH_BLOB_S3_ENDPOINT, OMEGRAPH_BLOB_S3_PREFIX,
//	OMEGRAPH_BLOB_S3_ACCESS_KEY_ID, OMEGRAPH_BLOB_S3_SECRET_ACCESS_KEY,
//	OMEGRAPH_BLOB_S3_PATH_STYLE
//	OMEGRAPH_BATCH_SIZE: maximum records per remote call (default 500)
//	OMEGRAPH_COMPARATOR: hierarchy|length (default hierarchy)
//	OMEGRAPH_LOG_LEVEL, OMEGRAPH_LOG_FORMAT: slog level and text|json
//	OMEGRAPH_METRICS: none|expvar|prometheus, OMEGRAPH_METRICS_ADDR
//	OMEGRAPH_KEEPALIVE: store ping interval, e.g. 30s (0 disables)
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Storage drivers.
const (
	StorageMemory   = "memory"
	StorageSQLite   = "sqlite"
	StoragePostgres = "postgres"
)

// Blob drivers.
const (
	BlobNone   = "none"
	BlobMemory = "memory"
	BlobFS     = "fs"
	BlobS3     = "s3"
)

// Metrics exporters.
const (
	MetricsNone       = "none"
	MetricsExpvar     = "expvar"
	MetricsPrometheus = "prometheus"
)

// DefaultBatchSize bounds remote calls when nothing else is configured.
const DefaultBatchSize = 500

// Config is the complete runtime configuration.
type Config struct {
	Storage    StorageConfig `yaml:"storage"`
	Blob       BlobConfig    `yaml:"blob"`
	BatchSize  int           `yaml:"batch_size"`
	Comparator string        `yaml:"comparator"`
	Log        LogConfig     `yaml:"log"`
	Metrics    MetricsConfig `yaml:"metrics"`
	KeepAlive  Duration      `yaml:"keepalive,omitempty"`
}

// StorageConfig selects the remote store backend.
type StorageConfig struct {
	Driver      string `yaml:"driver"`
	SQLitePath  string `yaml:"sqlite_path"`
	PostgresDSN string `yaml:"postgres_dsn,omitempty"`
}

// BlobConfig selects where import manifests are archived.
type BlobConfig struct {
	Driver string   `yaml:"driver"`
	FSRoot string   `yaml:"fs_root,omitempty"`
	S3     S3Config `yaml:"s3,omitempty"`
}

// S3Config configures the S3 manifest archive.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	Prefix          string `yaml:"prefix,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	UsePathStyle    bool   `yaml:"use_path_style,omitempty"`
}

// LogConfig configures the CLI logger.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig selects the metrics exporter.
type MetricsConfig struct {
	Exporter string `yaml:"exporter"`
	Addr     string `yaml:"addr,omitempty"`
}

// Duration wraps time.Duration for YAML unmarshaling
type Duration time.Duration

// UnmarshalYAML parses strings such as "30s".
func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration as a string.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Storage:    StorageConfig{Driver: StorageSQLite, SQLitePath: "./omegraph.db"},
		Blob:       BlobConfig{Driver: BlobNone},
		BatchSize:  DefaultBatchSize,
		Comparator: "hierarchy",
		Log:        LogConfig{Level: "info", Format: "text"},
		Metrics:    MetricsConfig{Exporter: MetricsNone, Addr: ":9090"},
	}
}

// Load resolves the configuration. An empty path skips the file layer.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyDefaults fills in values a partial file left empty.
func (c *Config) applyDefaults() {
	def := Default()
	if c.Storage.Driver == "" {
		c.Storage.Driver = def.Storage.Driver
	}
	if c.Storage.SQLitePath == "" {
		c.Storage.SQLitePath = def.Storage.SQLitePath
	}
	if c.Blob.Driver == "" {
		c.Blob.Driver = def.Blob.Driver
	}
	if c.Comparator == "" {
		c.Comparator = def.Comparator
	}
	if c.Log.Level == "" {
		c.Log.Level = def.Log.Level
	}
	if c.Log.Format == "" {
		c.Log.Format = def.Log.Format
	}
	if c.Metrics.Exporter == "" {
		c.Metrics.Exporter = def.Metrics.Exporter
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = def.Metrics.Addr
	}
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	str("OMEGRAPH_STORAGE_DRIVER", &c.Storage.Driver)
	str("OMEGRAPH_SQLITE_PATH", &c.Storage.SQLitePath)
	str("OMEGRAPH_POSTGRES_DSN", &c.Storage.PostgresDSN)
	str("OMEGRAPH_BLOB_DRIVER", &c.Blob.Driver)
	str("OMEGRAPH_BLOB_FS_ROOT", &c.Blob.FSRoot)
	str("OMEGRAPH_BLOB_S3_BUCKET", &c.Blob.S3.Bucket)
	str("OMEGRAPH_BLOB_S3_REGION", &c.Blob.S3.Region)
	str("OMEGRAPH_BLOB_S3_ENDPOINT", &c.Blob.S3.Endpoint)
	str("OMEGRAPH_BLOB_S3_PREFIX", &c.Blob.S3.Prefix)
	str("OMEGRAPH_BLOB_S3_ACCESS_KEY_ID", &c.Blob.S3.AccessKeyID)
	str("OMEGRAPH_BLOB_S3_SECRET_ACCESS_KEY", &c.Blob.S3.SecretAccessKey)
	str("OMEGRAPH_COMPARATOR", &c.Comparator)
	str("OMEGRAPH_LOG_LEVEL", &c.Log.Level)
	str("OMEGRAPH_LOG_FORMAT", &c.Log.Format)
	str("OMEGRAPH_METRICS", &c.Metrics.Exporter)
	str("OMEGRAPH_METRICS_ADDR", &c.Metrics.Addr)

	if v, ok := lookup("OMEGRAPH_BLOB_S3_PATH_STYLE"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("OMEGRAPH_BLOB_S3_PATH_STYLE: %w", err)
		}
		c.Blob.S3.UsePathStyle = b
	}
	if v, ok := lookup("OMEGRAPH_BATCH_SIZE"); ok && v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("OMEGRAPH_BATCH_SIZE: %w", err)
		}
		c.BatchSize = n
	}
	if v, ok := lookup("OMEGRAPH_KEEPALIVE"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("OMEGRAPH_KEEPALIVE: %w", err)
		}
		c.KeepAlive = Duration(d)
	}
	return nil
}

// Validate rejects values the importer cannot run with.
func (c *Config) Validate() error {
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be positive, got %d", c.BatchSize)
	}
	switch c.Storage.Driver {
	case StorageMemory, StorageSQLite:
	case StoragePostgres:
		if c.Storage.PostgresDSN == "" {
			return fmt.Errorf("postgres driver requires a DSN")
		}
	default:
		return fmt.Errorf("unknown storage driver %s", c.Storage.Driver)
	}
	switch c.Blob.Driver {
	case BlobNone, BlobMemory:
	case BlobFS:
		if c.Blob.FSRoot == "" {
			return fmt.Errorf("fs blob driver requires a root directory")
		}
	case BlobS3:
		if c.Blob.S3.Bucket == "" {
			return fmt.Errorf("s3 blob driver requires a bucket")
		}
	default:
		return fmt.Errorf("unknown blob driver %s", c.Blob.Driver)
	}
	switch strings.ToLower(c.Comparator) {
	case "hierarchy", "length":
	default:
		return fmt.Errorf("unknown comparator %s", c.Comparator)
	}
	switch c.Metrics.Exporter {
	case MetricsNone, MetricsExpvar, MetricsPrometheus:
	default:
		return fmt.Errorf("unknown metrics exporter %s", c.Metrics.Exporter)
	}
	if c.KeepAlive < 0 {
		return fmt.Errorf("keepalive must not be negative")
	}
	return nil
}

// Save writes the configuration as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}
