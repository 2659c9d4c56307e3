package config

import "time"

const (
	DefaultDBHost         = "localhost"
	DefaultDBPort         = 5432
	DefaultDBName         = "livecare"
	DefaultDBMaxOpenConns = 10
	DefaultDBMaxIdleConns = 5

	DefaultRedisAddr      = "localhost:6379"
	DefaultRedisKeyPrefix = "livecare:"
	DefaultRedisLockTTL   = 2 * time.Minute

	DefaultMinIOEndpoint      = "kr.object.ncloudstorage.com"
	DefaultMinIORegion        = "kr-standard"
	DefaultMinIOBucket        = "livecare"
	DefaultKafkaChartTopic    = "livecare.chart.created"
	DefaultKafkaWriteTimeout  = 10 * time.Second
	DefaultMetricsNamespace   = "livecare"
	DefaultOpenDataBaseURL    = "http://apis.data.go.kr/1471000"
	DefaultOpenDataTimeout    = 15 * time.Second
	DefaultOpenDataRateLimit  = 20
	DefaultOpenDataBurst      = 10
	DefaultGrainRows          = 30
	DefaultDetailRows         = 10
	DefaultDURRows            = 10
	DefaultOCREndpoint        = "https://api.upstage.ai/v1/document-ai/ocr"
	DefaultOCRTimeout         = 60 * time.Second
	DefaultSpeechLanguage     = "ko-KR"
	DefaultSpeechTimeout      = 5 * time.Minute
	DefaultLLMBaseURL         = "https://api.openai.com/v1"
	DefaultLLMModel           = "gpt-4o-mini"
	DefaultLLMTimeout         = 90 * time.Second
	DefaultLLMPromptDir       = "prompts"
	DefaultLLMBreakerFailures = 5
	DefaultLLMBreakerCooldown = 30 * time.Second

	DefaultPipelineUnitTimeout = 20 * time.Second
	DefaultPipelineConcurrency = 8
	DefaultPipelineCache       = "memory"

	DefaultLogLevel  = "info"
	DefaultLogFormat = "json"
)

// ApplyDefaults fills every zero-value field in cfg with its default.
// Explicitly configured values are left unchanged.
func ApplyDefaults(cfg *Config) {
	if cfg == nil {
		return
	}

	// Database
	if cfg.Database.Host == "" {
		cfg.Database.Host = DefaultDBHost
	}
	if cfg.Database.Port == 0 {
		cfg.Database.Port = DefaultDBPort
	}
	if cfg.Database.DBName == "" {
		cfg.Database.DBName = DefaultDBName
	}
	if cfg.Database.SSLMode == "" {
		cfg.Database.SSLMode = "disable"
	}
	if cfg.Database.MaxOpenConns == 0 {
		cfg.Database.MaxOpenConns = DefaultDBMaxOpenConns
	}
	if cfg.Database.MaxIdleConns == 0 {
		cfg.Database.MaxIdleConns = DefaultDBMaxIdleConns
	}
	if cfg.Database.ConnMaxLifetime == 0 {
		cfg.Database.ConnMaxLifetime = 30 * time.Minute
	}
	if cfg.Database.ConnMaxIdleTime == 0 {
		cfg.Database.ConnMaxIdleTime = 5 * time.Minute
	}
	if cfg.Database.StatementTimeout == 0 {
		cfg.Database.StatementTimeout = 30 * time.Second
	}

	// Redis
	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = DefaultRedisAddr
	}
	if cfg.Redis.PoolSize == 0 {
		cfg.Redis.PoolSize = 10
	}
	if cfg.Redis.DialTimeout == 0 {
		cfg.Redis.DialTimeout = 5 * time.Second
	}
	if cfg.Redis.ReadTimeout == 0 {
		cfg.Redis.ReadTimeout = 3 * time.Second
	}
	if cfg.Redis.WriteTimeout == 0 {
		cfg.Redis.WriteTimeout = 3 * time.Second
	}
	if cfg.Redis.KeyPrefix == "" {
		cfg.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Redis.LockTTL == 0 {
		cfg.Redis.LockTTL = DefaultRedisLockTTL
	}

	// MinIO
	if cfg.MinIO.Endpoint == "" {
		cfg.MinIO.Endpoint = DefaultMinIOEndpoint
	}
	if cfg.MinIO.Region == "" {
		cfg.MinIO.Region = DefaultMinIORegion
	}
	if cfg.MinIO.Bucket == "" {
		cfg.MinIO.Bucket = DefaultMinIOBucket
	}

	// Kafka
	if cfg.Kafka.ChartTopic == "" {
		cfg.Kafka.ChartTopic = DefaultKafkaChartTopic
	}
	if cfg.Kafka.WriteTimeout == 0 {
		cfg.Kafka.WriteTimeout = DefaultKafkaWriteTimeout
	}
	if cfg.Kafka.RequiredAcks == 0 {
		cfg.Kafka.RequiredAcks = -1
	}

	// Metrics
	if cfg.Metrics.Namespace == "" {
		cfg.Metrics.Namespace = DefaultMetricsNamespace
	}

	// Open data
	if cfg.OpenData.BaseURL == "" {
		cfg.OpenData.BaseURL = DefaultOpenDataBaseURL
	}
	if cfg.OpenData.RequestTimeout == 0 {
		cfg.OpenData.RequestTimeout = DefaultOpenDataTimeout
	}
	if cfg.OpenData.RateLimit == 0 {
		cfg.OpenData.RateLimit = DefaultOpenDataRateLimit
	}
	if cfg.OpenData.Burst == 0 {
		cfg.OpenData.Burst = DefaultOpenDataBurst
	}
	if cfg.OpenData.GrainRows == 0 {
		cfg.OpenData.GrainRows = DefaultGrainRows
	}
	if cfg.OpenData.DetailRows == 0 {
		cfg.OpenData.DetailRows = DefaultDetailRows
	}
	if cfg.OpenData.DURRows == 0 {
		cfg.OpenData.DURRows = DefaultDURRows
	}

	// OCR / speech / LLM
	if cfg.OCR.Endpoint == "" {
		cfg.OCR.Endpoint = DefaultOCREndpoint
	}
	if cfg.OCR.Timeout == 0 {
		cfg.OCR.Timeout = DefaultOCRTimeout
	}
	if cfg.Speech.Language == "" {
		cfg.Speech.Language = DefaultSpeechLanguage
	}
	if cfg.Speech.Timeout == 0 {
		cfg.Speech.Timeout = DefaultSpeechTimeout
	}
	if cfg.LLM.BaseURL == "" {
		cfg.LLM.BaseURL = DefaultLLMBaseURL
	}
	if cfg.LLM.Model == "" {
		cfg.LLM.Model = DefaultLLMModel
	}
	if cfg.LLM.Timeout == 0 {
		cfg.LLM.Timeout = DefaultLLMTimeout
	}
	if cfg.LLM.PromptDir == "" {
		cfg.LLM.PromptDir = DefaultLLMPromptDir
	}
	if cfg.LLM.BreakerFailures == 0 {
		cfg.LLM.BreakerFailures = DefaultLLMBreakerFailures
	}
	if cfg.LLM.BreakerCooldown == 0 {
		cfg.LLM.BreakerCooldown = DefaultLLMBreakerCooldown
	}

	// Pipeline
	if cfg.Pipeline.UnitTimeout == 0 {
		cfg.Pipeline.UnitTimeout = DefaultPipelineUnitTimeout
	}
	if cfg.Pipeline.Concurrency == 0 {
		cfg.Pipeline.Concurrency = DefaultPipelineConcurrency
	}
	if cfg.Pipeline.CacheBackend == "" {
		cfg.Pipeline.CacheBackend = DefaultPipelineCache
		if cfg.Redis.Enabled {
			cfg.Pipeline.CacheBackend = "redis"
		}
	}

	// Log
	if cfg.Log.Level == "" {
		cfg.Log.Level = DefaultLogLevel
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = DefaultLogFormat
	}
}

// NewDefaultConfig returns a Config populated only with defaults.
func NewDefaultConfig() *Config {
	cfg := &Config{}
	ApplyDefaults(cfg)
	return cfg
}
