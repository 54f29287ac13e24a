package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures every setting needed to boot the self-heal service.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Dataset       DatasetConfig       `yaml:"dataset"`
	Models        ModelsConfig        `yaml:"models"`
	Store         StoreConfig         `yaml:"store"`
	KnowledgeBase KnowledgeBaseConfig `yaml:"knowledgeBase"`
	Logging       LoggingConfig       `yaml:"logging"`
}

// ServerConfig controls the HTTP, gRPC and metrics listeners.
type ServerConfig struct {
	HTTPAddress     string          `yaml:"httpAddress"`
	GRPCAddress     string          `yaml:"grpcAddress"`
	MetricsAddress  string          `yaml:"metricsAddress"`
	GracefulTimeout time.Duration   `yaml:"gracefulTimeout"`
	RateLimit       RateLimitConfig `yaml:"rateLimit"`
}

// RateLimitConfig enables per-client token buckets on the HTTP API.
type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	QPS     float64 `yaml:"qps"`
	Burst   int     `yaml:"burst"`
}

// DatasetConfig points at the historical training CSV.
type DatasetConfig struct {
	Path string `yaml:"path"`
}

// ModelsConfig holds training and detection parameters.
type ModelsConfig struct {
	SeqLen         int     `yaml:"seqLen"`
	ErrorThreshold float64 `yaml:"errorThreshold"`
	Contamination  float64 `yaml:"contamination"`
	Trees          int     `yaml:"trees"`
	Seed           int64   `yaml:"seed"`
}

// StoreConfig selects where trained artifacts are persisted.
type StoreConfig struct {
	Backend string       `yaml:"backend"`
	Dir     string       `yaml:"dir"`
	Valkey  ValkeyConfig `yaml:"valkey"`
	SQL     SQLConfig    `yaml:"sql"`
	S3      S3Config     `yaml:"s3"`
}

// ValkeyConfig configures the Valkey/Redis artifact backend.
type ValkeyConfig struct {
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	KeyPrefix    string        `yaml:"keyPrefix"`
}

// SQLConfig configures the sqlite/postgres artifact backends.
type SQLConfig struct {
	DSN   string `yaml:"dsn"`
	Table string `yaml:"table"`
}

// S3Config configures the S3 artifact backend.
type S3Config struct {
	Bucket   string `yaml:"bucket"`
	Prefix   string `yaml:"prefix"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"`
}

// KnowledgeBaseConfig points at an optional remediation override file.
type KnowledgeBaseConfig struct {
	Path string `yaml:"path"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level    string         `yaml:"level"`
	JSON     bool           `yaml:"json"`
	File     string         `yaml:"file"`
	Rotation RotationConfig `yaml:"rotation"`
}

// RotationConfig controls size-based rotation of the log file.
type RotationConfig struct {
	MaxSizeMB  int  `yaml:"maxSizeMB"`
	MaxBackups int  `yaml:"maxBackups"`
	MaxAgeDays int  `yaml:"maxAgeDays"`
	Compress   bool `yaml:"compress"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("SELFHEAL_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot start with.
func (c *Config) Validate() error {
	if c.Models.SeqLen <= 0 {
		return fmt.Errorf("models.seqLen must be positive, got %d", c.Models.SeqLen)
	}
	if c.Models.ErrorThreshold <= 0 {
		return fmt.Errorf("models.errorThreshold must be positive, got %v", c.Models.ErrorThreshold)
	}
	if c.Models.Contamination <= 0 || c.Models.Contamination >= 0.5 {
		return fmt.Errorf("models.contamination must be in (0, 0.5), got %v", c.Models.Contamination)
	}
	if c.Models.Trees <= 0 {
		return fmt.Errorf("models.trees must be positive, got %d", c.Models.Trees)
	}
	if c.Server.HTTPAddress == "" && c.Server.GRPCAddress == "" {
		return errors.New("at least one of server.httpAddress or server.grpcAddress is required")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			HTTPAddress:     ":5000",
			GRPCAddress:     ":50051",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
			RateLimit:       RateLimitConfig{Enabled: false, QPS: 20, Burst: 40},
		},
		Dataset: DatasetConfig{Path: "data/pod_metrics.csv"},
		Models: ModelsConfig{
			SeqLen:         10,
			ErrorThreshold: 2000,
			Contamination:  0.01,
			Trees:          100,
			Seed:           42,
		},
		Store: StoreConfig{
			Backend: "file",
			Dir:     "models",
			Valkey: ValkeyConfig{
				DialTimeout:  2 * time.Second,
				ReadTimeout:  2 * time.Second,
				WriteTimeout: 2 * time.Second,
				MaxRetries:   2,
				KeyPrefix:    "selfheal:models:",
			},
			SQL: SQLConfig{Table: "model_artifacts"},
			S3:  S3Config{Prefix: "selfheal/models"},
		},
		KnowledgeBase: KnowledgeBaseConfig{Path: "configs/knowledge.yaml"},
		Logging: LoggingConfig{
			Level: "info",
			JSON:  false,
			Rotation: RotationConfig{
				MaxSizeMB:  100,
				MaxBackups: 5,
				MaxAgeDays: 28,
				Compress:   true,
			},
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SELFHEAL_HTTP_ADDRESS"); v != "" {
		cfg.Server.HTTPAddress = v
	}
	if v := os.Getenv("SELFHEAL_GRPC_ADDRESS"); v != "" {
		cfg.Server.GRPCAddress = v
	}
	if v := os.Getenv("SELFHEAL_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("SELFHEAL_GRACEFUL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.GracefulTimeout = d
		}
	}
	if v := os.Getenv("SELFHEAL_RATE_LIMIT_ENABLED"); v != "" {
		cfg.Server.RateLimit.Enabled = parseBool(v)
	}
	if v := os.Getenv("SELFHEAL_RATE_LIMIT_QPS"); v != "" {
		if qps, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Server.RateLimit.QPS = qps
		}
	}
	if v := os.Getenv("SELFHEAL_RATE_LIMIT_BURST"); v != "" {
		if burst, err := strconv.Atoi(v); err == nil {
			cfg.Server.RateLimit.Burst = burst
		}
	}
	if v := os.Getenv("SELFHEAL_DATASET_PATH"); v != "" {
		cfg.Dataset.Path = v
	}
	if v := os.Getenv("SELFHEAL_SEQ_LEN"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Models.SeqLen = n
		}
	}
	if v := os.Getenv("SELFHEAL_ERROR_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Models.ErrorThreshold = f
		}
	}
	if v := os.Getenv("SELFHEAL_STORE_BACKEND"); v != "" {
		cfg.Store.Backend = v
	}
	if v := os.Getenv("SELFHEAL_STORE_DIR"); v != "" {
		cfg.Store.Dir = v
	}
	if v := os.Getenv("SELFHEAL_VALKEY_ADDR"); v != "" {
		cfg.Store.Valkey.Addr = v
	}
	if v := os.Getenv("SELFHEAL_VALKEY_USERNAME"); v != "" {
		cfg.Store.Valkey.Username = v
	}
	if v := os.Getenv("SELFHEAL_VALKEY_PASSWORD"); v != "" {
		cfg.Store.Valkey.Password = v
	}
	if v := os.Getenv("SELFHEAL_VALKEY_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Store.Valkey.DB = db
		}
	}
	if v := os.Getenv("SELFHEAL_VALKEY_TLS"); v != "" {
		cfg.Store.Valkey.TLS = parseBool(v)
	}
	if v := os.Getenv("SELFHEAL_SQL_DSN"); v != "" {
		cfg.Store.SQL.DSN = v
	}
	if v := os.Getenv("SELFHEAL_S3_BUCKET"); v != "" {
		cfg.Store.S3.Bucket = v
	}
	if v := os.Getenv("SELFHEAL_S3_PREFIX"); v != "" {
		cfg.Store.S3.Prefix = v
	}
	if v := os.Getenv("SELFHEAL_S3_REGION"); v != "" {
		cfg.Store.S3.Region = v
	}
	if v := os.Getenv("SELFHEAL_S3_ENDPOINT"); v != "" {
		cfg.Store.S3.Endpoint = v
	}
	if v := os.Getenv("SELFHEAL_KNOWLEDGE_BASE_PATH"); v != "" {
		cfg.KnowledgeBase.Path = v
	}
	if v := os.Getenv("SELFHEAL_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("SELFHEAL_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("SELFHEAL_LOG_FILE"); v != "" {
		cfg.Logging.File = v
	}
}

func parseBool(v string) bool {
	return strings.EqualFold(v, "true") || v == "1"
}
