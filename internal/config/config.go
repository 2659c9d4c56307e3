// Package config defines the configuration structures for LiveCare. Parsing
// lives in loader.go and defaults in defaults.go; this file holds plain data
// types and validation only.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
)

// DatabaseConfig holds PostgreSQL connection parameters.
type DatabaseConfig struct {
	Host             string        `mapstructure:"host"`
	Port             int           `mapstructure:"port"`
	User             string        `mapstructure:"user"`
	Password         string        `mapstructure:"password"`
	DBName           string        `mapstructure:"db_name"`
	SSLMode          string        `mapstructure:"ssl_mode"`
	MaxOpenConns     int           `mapstructure:"max_open_conns"`
	MaxIdleConns     int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime  time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime  time.Duration `mapstructure:"conn_max_idle_time"`
	StatementTimeout time.Duration `mapstructure:"statement_timeout"`
	AutoMigrate      bool          `mapstructure:"auto_migrate"`
}

// RedisConfig holds the projection-cache and lock backend parameters.
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"pool_size"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	KeyPrefix    string        `mapstructure:"key_prefix"`
	LockTTL      time.Duration `mapstructure:"lock_ttl"`
}

// MinIOConfig holds the S3-compatible archive parameters.
type MinIOConfig struct {
	Enabled       bool   `mapstructure:"enabled"`
	Endpoint      string `mapstructure:"endpoint"`
	AccessKey     string `mapstructure:"access_key"`
	SecretKey     string `mapstructure:"secret_key"`
	UseSSL        bool   `mapstructure:"use_ssl"`
	Region        string `mapstructure:"region"`
	Bucket        string `mapstructure:"bucket"`
	PublicBaseURL string `mapstructure:"public_base_url"`
}

// KafkaConfig holds chart event publishing parameters.
type KafkaConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Brokers      []string      `mapstructure:"brokers"`
	ChartTopic   string        `mapstructure:"chart_topic"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	RequiredAcks int           `mapstructure:"required_acks"`
}

// MetricsConfig controls the Prometheus registry.
type MetricsConfig struct {
	Namespace            string `mapstructure:"namespace"`
	EnableGoMetrics      bool   `mapstructure:"enable_go_metrics"`
	EnableProcessMetrics bool   `mapstructure:"enable_process_metrics"`
}

// OpenDataConfig holds the data.go.kr drug registry parameters shared by the
// pill-identification, product-detail and DUR services.
type OpenDataConfig struct {
	BaseURL        string        `mapstructure:"base_url"`
	ServiceKey     string        `mapstructure:"service_key"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
	RateLimit      float64       `mapstructure:"rate_limit"`
	Burst          int           `mapstructure:"burst"`
	GrainRows      int           `mapstructure:"grain_rows"`
	DetailRows     int           `mapstructure:"detail_rows"`
	DURRows        int           `mapstructure:"dur_rows"`
}

// OCRConfig holds the document OCR endpoint parameters.
type OCRConfig struct {
	Endpoint string        `mapstructure:"endpoint"`
	APIKey   string        `mapstructure:"api_key"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

// SpeechConfig holds the speech recognition parameters.
type SpeechConfig struct {
	InvokeURL string        `mapstructure:"invoke_url"`
	SecretKey string        `mapstructure:"secret_key"`
	Language  string        `mapstructure:"language"`
	Timeout   time.Duration `mapstructure:"timeout"`
}

// LLMConfig holds the chat-completion model parameters.
type LLMConfig struct {
	BaseURL         string        `mapstructure:"base_url"`
	APIKey          string        `mapstructure:"api_key"`
	Model           string        `mapstructure:"model"`
	Temperature     float64       `mapstructure:"temperature"`
	MaxTokens       int           `mapstructure:"max_tokens"`
	Timeout         time.Duration `mapstructure:"timeout"`
	PromptDir       string        `mapstructure:"prompt_dir"`
	BreakerFailures uint32        `mapstructure:"breaker_failures"`
	BreakerCooldown time.Duration `mapstructure:"breaker_cooldown"`
}

// PipelineConfig tunes the prescription pipeline fan-outs.
type PipelineConfig struct {
	UnitTimeout  time.Duration `mapstructure:"unit_timeout"`
	Concurrency  int           `mapstructure:"concurrency"`   // negative starts every unit at once
	CacheBackend string        `mapstructure:"cache_backend"` // "redis" | "memory" | "none"
}

// Config is the root configuration object.
type Config struct {
	Database DatabaseConfig    `mapstructure:"database"`
	Redis    RedisConfig       `mapstructure:"redis"`
	MinIO    MinIOConfig       `mapstructure:"minio"`
	Kafka    KafkaConfig       `mapstructure:"kafka"`
	Log      logging.LogConfig `mapstructure:"log"`
	Metrics  MetricsConfig     `mapstructure:"metrics"`
	OpenData OpenDataConfig    `mapstructure:"opendata"`
	OCR      OCRConfig         `mapstructure:"ocr"`
	Speech   SpeechConfig      `mapstructure:"speech"`
	LLM      LLMConfig         `mapstructure:"llm"`
	Pipeline PipelineConfig    `mapstructure:"pipeline"`
}

// Validate performs semantic validation of a Config after ApplyDefaults.
// Credentials are not checked here; each client rejects a missing key when it
// is constructed so that commands like `migrate` run without API keys.
func (c *Config) Validate() error {
	if c.Database.Host == "" {
		return fmt.Errorf("config: database.host is required")
	}
	if c.Database.Port < 1 || c.Database.Port > 65535 {
		return fmt.Errorf("config: database.port %d is out of range [1, 65535]", c.Database.Port)
	}
	if c.Database.DBName == "" {
		return fmt.Errorf("config: database.db_name is required")
	}
	if c.Database.MaxOpenConns < 1 {
		return fmt.Errorf("config: database.max_open_conns must be >= 1, got %d", c.Database.MaxOpenConns)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("config: redis.addr is required when redis is enabled")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("config: redis.db must be >= 0, got %d", c.Redis.DB)
	}

	if c.MinIO.Enabled {
		if c.MinIO.Endpoint == "" {
			return fmt.Errorf("config: minio.endpoint is required when minio is enabled")
		}
		if c.MinIO.Bucket == "" {
			return fmt.Errorf("config: minio.bucket is required when minio is enabled")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("config: kafka.brokers must contain at least one broker when kafka is enabled")
		}
		if c.Kafka.ChartTopic == "" {
			return fmt.Errorf("config: kafka.chart_topic is required when kafka is enabled")
		}
	}

	if c.OpenData.RateLimit <= 0 {
		return fmt.Errorf("config: opendata.rate_limit must be > 0, got %v", c.OpenData.RateLimit)
	}
	if c.OpenData.GrainRows < 1 || c.OpenData.DetailRows < 1 || c.OpenData.DURRows < 1 {
		return fmt.Errorf("config: opendata row counts must be >= 1")
	}

	if c.LLM.Temperature < 0 || c.LLM.Temperature > 2 {
		return fmt.Errorf("config: llm.temperature %v is out of range [0, 2]", c.LLM.Temperature)
	}

	if c.Pipeline.Concurrency == 0 {
		return fmt.Errorf("config: pipeline.concurrency must be non-zero; use -1 for unbounded")
	}
	if c.Pipeline.UnitTimeout <= 0 {
		return fmt.Errorf("config: pipeline.unit_timeout must be > 0")
	}
	switch c.Pipeline.CacheBackend {
	case "redis":
		if !c.Redis.Enabled {
			return fmt.Errorf("config: pipeline.cache_backend is redis but redis is disabled")
		}
	case "memory", "none":
	default:
		return fmt.Errorf("config: pipeline.cache_backend %q is invalid; expected redis|memory|none", c.Pipeline.CacheBackend)
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("config: log.level %q is invalid; expected debug|info|warn|error", c.Log.Level)
	}
	switch c.Log.Format {
	case "json", "console":
	default:
		return fmt.Errorf("config: log.format %q is invalid; expected json|console", c.Log.Format)
	}

	return nil
}
