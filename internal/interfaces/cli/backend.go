package cli

import (
	"context"
	"time"

	"github.com/turtacn/livecare/internal/application/encounter"
	"github.com/turtacn/livecare/internal/application/enrichment"
	"github.com/turtacn/livecare/internal/application/prescription"
	"github.com/turtacn/livecare/internal/application/safety"
	"github.com/turtacn/livecare/internal/config"
	"github.com/turtacn/livecare/internal/domain/chart"
	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/domain/patient"
	"github.com/turtacn/livecare/internal/infrastructure/database/memory"
	"github.com/turtacn/livecare/internal/infrastructure/database/postgres"
	"github.com/turtacn/livecare/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/livecare/internal/infrastructure/database/redis"
	"github.com/turtacn/livecare/internal/infrastructure/llm"
	"github.com/turtacn/livecare/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/internal/infrastructure/ocr"
	"github.com/turtacn/livecare/internal/infrastructure/opendata"
	"github.com/turtacn/livecare/internal/infrastructure/speech"
	"github.com/turtacn/livecare/internal/infrastructure/storage/minio"
	"github.com/turtacn/livecare/internal/intelligence/drug_extractor"
)

// memoryCacheSweep is the purge interval of the in-process projection cache.
const memoryCacheSweep = 10 * time.Minute

// CandidateResolver extracts and resolves registry item names without
// writing anything. *drug_extractor.Resolver satisfies it.
type CandidateResolver interface {
	Resolve(ctx context.Context, text string) *drug_extractor.Resolution
}

// SafetyReporter builds DUR reports. *safety.Service satisfies it.
type SafetyReporter interface {
	Report(ctx context.Context, itemName string) (*safety.Report, error)
}

// SchemaMigrator is the subset of *postgres.Migrator the migrate command uses.
type SchemaMigrator interface {
	Up() error
	Down(steps int) error
	Status() (version uint, dirty bool, err error)
	Close() error
}

// Backend builds the services behind the commands. Collaborators are built
// on first use, so commands that never reach an external API do not need
// its credentials.
type Backend interface {
	Prescription() (prescription.Service, error)
	Encounter() (encounter.Service, error)
	Enrichment() (enrichment.Service, error)
	Resolver() (CandidateResolver, error)
	Safety() (SafetyReporter, error)
	Patients() (patient.Repository, error)
	Migrator() (SchemaMigrator, error)
	Metrics() prometheus.MetricsCollector
	Close() error
}

// BackendFactory builds a Backend once configuration and logging are ready.
type BackendFactory func(cfg *config.Config, logger logging.Logger) (Backend, error)

type appBackend struct {
	cfg       *config.Config
	logger    logging.Logger
	collector prometheus.MetricsCollector
	metrics   *prometheus.PipelineMetrics

	conn         *postgres.Connection
	redisClient  *redis.Client
	producer     *kafka.Producer
	registry     *opendata.Client
	llmClient    *llm.Client
	enrichment   enrichment.Service
	prescription prescription.Service
	encounter    encounter.Service

	closers []func() error
}

// NewBackend is the production BackendFactory.
func NewBackend(cfg *config.Config, logger logging.Logger) (Backend, error) {
	collector, err := prometheus.NewMetricsCollector(prometheus.CollectorConfig{
		Namespace:            cfg.Metrics.Namespace,
		EnableGoMetrics:      cfg.Metrics.EnableGoMetrics,
		EnableProcessMetrics: cfg.Metrics.EnableProcessMetrics,
	}, logger)
	if err != nil {
		return nil, err
	}
	return &appBackend{
		cfg:       cfg,
		logger:    logger,
		collector: collector,
		metrics:   prometheus.NewPipelineMetrics(collector),
	}, nil
}

func (b *appBackend) Metrics() prometheus.MetricsCollector { return b.collector }

func (b *appBackend) connection() (*postgres.Connection, error) {
	if b.conn != nil {
		return b.conn, nil
	}
	db := b.cfg.Database
	conn, err := postgres.NewConnection(postgres.PostgresConfig{
		Host:             db.Host,
		Port:             db.Port,
		Database:         db.DBName,
		Username:         db.User,
		Password:         db.Password,
		SSLMode:          db.SSLMode,
		MaxOpenConns:     db.MaxOpenConns,
		MaxIdleConns:     db.MaxIdleConns,
		ConnMaxLifetime:  db.ConnMaxLifetime,
		ConnMaxIdleTime:  db.ConnMaxIdleTime,
		StatementTimeout: db.StatementTimeout,
	}, b.logger)
	if err != nil {
		return nil, err
	}
	b.conn = conn
	b.closers = append(b.closers, conn.Close)

	if db.AutoMigrate {
		mg, err := postgres.NewMigrator(conn, b.logger)
		if err != nil {
			return nil, err
		}
		defer mg.Close()
		if err := mg.Up(); err != nil {
			return nil, err
		}
	}
	return conn, nil
}

func (b *appBackend) Migrator() (SchemaMigrator, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	return postgres.NewMigrator(conn, b.logger)
}

func (b *appBackend) Patients() (patient.Repository, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	return repositories.NewPostgresPatientRepo(conn, b.logger), nil
}

func (b *appBackend) charts() (chart.Repository, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	return repositories.NewPostgresChartRepo(conn, b.logger), nil
}

func (b *appBackend) drugs() (drug.Repository, error) {
	conn, err := b.connection()
	if err != nil {
		return nil, err
	}
	return repositories.NewPostgresDrugRepo(conn, b.logger), nil
}

func (b *appBackend) openData() (*opendata.Client, error) {
	if b.registry != nil {
		return b.registry, nil
	}
	od := b.cfg.OpenData
	client, err := opendata.NewClient(opendata.Config{
		BaseURL:    od.BaseURL,
		ServiceKey: od.ServiceKey,
		Timeout:    od.RequestTimeout,
		RateLimit:  od.RateLimit,
		Burst:      od.Burst,
		GrainRows:  od.GrainRows,
		DetailRows: od.DetailRows,
		DURRows:    od.DURRows,
	}, b.logger, opendata.WithMetrics(b.metrics))
	if err != nil {
		return nil, err
	}
	b.registry = client
	return client, nil
}

func (b *appBackend) languageModel() (*llm.Client, error) {
	if b.llmClient != nil {
		return b.llmClient, nil
	}
	c := b.cfg.LLM
	client, err := llm.NewClient(llm.Config{
		BaseURL:         c.BaseURL,
		APIKey:          c.APIKey,
		Model:           c.Model,
		Temperature:     c.Temperature,
		MaxTokens:       c.MaxTokens,
		Timeout:         c.Timeout,
		PromptDir:       c.PromptDir,
		BreakerFailures: c.BreakerFailures,
		BreakerCooldown: c.BreakerCooldown,
	}, b.logger, llm.WithMetrics(b.metrics))
	if err != nil {
		return nil, err
	}
	b.llmClient = client
	return client, nil
}

func (b *appBackend) redisConn() (*redis.Client, error) {
	if b.redisClient != nil {
		return b.redisClient, nil
	}
	r := b.cfg.Redis
	client, err := redis.NewClient(&redis.ClientConfig{
		Addr:         r.Addr,
		Password:     r.Password,
		DB:           r.DB,
		PoolSize:     r.PoolSize,
		DialTimeout:  r.DialTimeout,
		ReadTimeout:  r.ReadTimeout,
		WriteTimeout: r.WriteTimeout,
		KeyPrefix:    r.KeyPrefix,
	}, b.logger)
	if err != nil {
		return nil, err
	}
	b.redisClient = client
	b.closers = append(b.closers, client.Close)
	return client, nil
}

func (b *appBackend) chartEvents() (*kafka.ChartEventPublisher, error) {
	k := b.cfg.Kafka
	if b.producer == nil {
		p, err := kafka.NewProducer(kafka.ProducerConfig{
			Brokers:      k.Brokers,
			RequiredAcks: k.RequiredAcks,
			WriteTimeout: k.WriteTimeout,
		}, b.logger)
		if err != nil {
			return nil, err
		}
		b.producer = p
		b.closers = append(b.closers, p.Close)
	}
	return kafka.NewChartEventPublisher(b.producer, k.ChartTopic, b.logger), nil
}

func (b *appBackend) archive() (*minio.Archive, error) {
	m := b.cfg.MinIO
	client, err := minio.NewMinIOClient(&minio.MinIOConfig{
		Endpoint:        m.Endpoint,
		AccessKeyID:     m.AccessKey,
		SecretAccessKey: m.SecretKey,
		UseSSL:          m.UseSSL,
		Region:          m.Region,
		Bucket:          m.Bucket,
		PublicBaseURL:   m.PublicBaseURL,
	}, b.logger)
	if err != nil {
		return nil, err
	}
	b.closers = append(b.closers, client.Close)
	return minio.NewArchive(client, b.logger), nil
}

func (b *appBackend) Enrichment() (enrichment.Service, error) {
	if b.enrichment != nil {
		return b.enrichment, nil
	}
	repo, err := b.drugs()
	if err != nil {
		return nil, err
	}

	var details enrichment.DetailFetcher
	if od, err := b.openData(); err != nil {
		b.logger.Warn("drug registry unavailable, enrichment will produce no records", logging.Err(err))
		details = unavailable{err}
	} else {
		details = od.Detail()
	}
	var summarizer enrichment.Summarizer
	if model, err := b.languageModel(); err != nil {
		b.logger.Warn("language model unavailable, enrichment will produce no records", logging.Err(err))
		summarizer = unavailable{err}
	} else {
		summarizer = model
	}

	opts := []enrichment.Option{
		enrichment.WithMetrics(b.metrics),
		enrichment.WithConcurrency(b.cfg.Pipeline.Concurrency),
		enrichment.WithUnitTimeout(b.cfg.Pipeline.UnitTimeout),
	}
	switch b.cfg.Pipeline.CacheBackend {
	case "redis":
		client, err := b.redisConn()
		if err != nil {
			return nil, err
		}
		opts = append(opts,
			enrichment.WithCache(redis.NewRedisCache(client, b.logger)),
			enrichment.WithLocks(redis.NewLockFactory(client, b.logger, b.cfg.Redis.LockTTL), b.cfg.Redis.LockTTL),
		)
	case "memory":
		opts = append(opts, enrichment.WithCache(memory.NewCache(memoryCacheSweep)))
	}

	b.enrichment = enrichment.NewService(repo, details, summarizer, b.logger, opts...)
	return b.enrichment, nil
}

func (b *appBackend) Resolver() (CandidateResolver, error) {
	od, err := b.openData()
	if err != nil {
		return nil, err
	}
	return b.resolver(od), nil
}

func (b *appBackend) resolver(od *opendata.Client) *drug_extractor.Resolver {
	return drug_extractor.NewResolver(od.Grain(), b.logger,
		drug_extractor.WithConcurrency(b.cfg.Pipeline.Concurrency),
		drug_extractor.WithUnitTimeout(b.cfg.Pipeline.UnitTimeout),
		drug_extractor.WithMetrics(b.metrics),
	)
}

func (b *appBackend) Safety() (SafetyReporter, error) {
	od, err := b.openData()
	if err != nil {
		return nil, err
	}
	return safety.NewService(od.DUR(), b.logger, b.metrics), nil
}

func (b *appBackend) Prescription() (prescription.Service, error) {
	if b.prescription != nil {
		return b.prescription, nil
	}
	patients, err := b.Patients()
	if err != nil {
		return nil, err
	}
	charts, err := b.charts()
	if err != nil {
		return nil, err
	}
	enrich, err := b.Enrichment()
	if err != nil {
		return nil, err
	}
	od, err := b.openData()
	if err != nil {
		return nil, err
	}
	model, err := b.languageModel()
	if err != nil {
		return nil, err
	}
	recognizer, err := ocr.NewClient(ocr.Config{
		Endpoint: b.cfg.OCR.Endpoint,
		APIKey:   b.cfg.OCR.APIKey,
		Timeout:  b.cfg.OCR.Timeout,
	}, b.logger, ocr.WithMetrics(b.metrics))
	if err != nil {
		return nil, err
	}

	deps := prescription.Deps{
		OCR:        recognizer,
		Resolver:   b.resolver(od),
		Assistant:  model,
		Enrichment: enrich,
		Patients:   patients,
		Charts:     charts,
		Metrics:    b.metrics,
	}
	if b.cfg.MinIO.Enabled {
		if archive, err := b.archive(); err != nil {
			b.logger.Warn("document archive disabled", logging.Err(err))
		} else {
			deps.Archive = archive
		}
	}
	if b.cfg.Kafka.Enabled {
		if events, err := b.chartEvents(); err != nil {
			b.logger.Warn("chart events disabled", logging.Err(err))
		} else {
			deps.Events = events
		}
	}

	b.prescription = prescription.NewService(deps, b.logger)
	return b.prescription, nil
}

// Encounter also serves chart show and update, so missing speech or model
// credentials only fail Transcribe.
func (b *appBackend) Encounter() (encounter.Service, error) {
	if b.encounter != nil {
		return b.encounter, nil
	}
	charts, err := b.charts()
	if err != nil {
		return nil, err
	}

	var transcriber speech.Transcriber
	if sc, err := speech.NewClient(speech.Config{
		InvokeURL: b.cfg.Speech.InvokeURL,
		SecretKey: b.cfg.Speech.SecretKey,
		Language:  b.cfg.Speech.Language,
		Timeout:   b.cfg.Speech.Timeout,
	}, b.logger, speech.WithMetrics(b.metrics)); err != nil {
		transcriber = unavailable{err}
	} else {
		transcriber = sc
	}
	var composer encounter.ChartComposer
	if model, err := b.languageModel(); err != nil {
		composer = unavailable{err}
	} else {
		composer = model
	}

	opts := []encounter.Option{encounter.WithMetrics(b.metrics)}
	if b.cfg.Kafka.Enabled {
		if events, err := b.chartEvents(); err != nil {
			b.logger.Warn("chart events disabled", logging.Err(err))
		} else {
			opts = append(opts, encounter.WithEvents(events))
		}
	}
	b.encounter = encounter.NewService(charts, transcriber, composer, b.logger, opts...)
	return b.encounter, nil
}

// Close waits for background uploads, then releases clients in reverse
// order of construction.
func (b *appBackend) Close() error {
	if b.prescription != nil {
		b.prescription.Drain()
	}
	var first error
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	b.closers = nil
	return first
}

// unavailable stands in for a collaborator whose construction failed and
// returns that error from every call.
type unavailable struct{ err error }

func (u unavailable) Fetch(context.Context, string) (*opendata.ProductDetail, error) {
	return nil, u.err
}

func (u unavailable) Summarize(context.Context, string, string) (string, error) {
	return "", u.err
}

func (u unavailable) ComposeEncounterChart(context.Context, string) (string, error) {
	return "", u.err
}

func (u unavailable) Transcribe(context.Context, string, []byte) (*speech.Transcript, error) {
	return nil, u.err
}
