// Package enrichment turns registry item names into stored Drug Records.
// A name is enriched at most once: the record store, a projection cache,
// an in-process single flight and a cross-process lock all sit in front of
// the permit detail fetch and the summarization call.
package enrichment

import (
	"context"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/turtacn/livecare/internal/domain/drug"
	"github.com/turtacn/livecare/internal/infrastructure/database/redis"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/internal/infrastructure/opendata"
	"github.com/turtacn/livecare/internal/intelligence/common"
	"github.com/turtacn/livecare/internal/intelligence/drug_extractor"
	"github.com/turtacn/livecare/pkg/errors"
)

const (
	cacheKeyPrefix     = "drug:projection:"
	lockKeyPrefix      = "enrich:"
	DefaultLockTTL     = 2 * time.Minute
	defaultLockRetries = 50
)

// DetailFetcher returns the permit detail for an item name, or nil when the
// registry has none. *opendata.DetailService satisfies it.
type DetailFetcher interface {
	Fetch(ctx context.Context, itemName string) (*opendata.ProductDetail, error)
}

// Summarizer condenses a cleaned document. *llm.Client satisfies it.
type Summarizer interface {
	Summarize(ctx context.Context, document, reference string) (string, error)
}

// ProjectionCache is the subset of the Redis and in-memory caches the
// service uses. Entries are written without expiry.
type ProjectionCache interface {
	Get(ctx context.Context, key string, dest interface{}) error
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
}

// Service is the drug enrichment application service.
type Service interface {
	// Enrich returns the projection for itemName. A nil projection with a nil
	// error means no record could be produced.
	Enrich(ctx context.Context, itemName string) (*drug.Projection, error)

	// EnrichBatch enriches every name concurrently. Results are index-aligned
	// with itemNames.
	EnrichBatch(ctx context.Context, itemNames []string) []common.Result[*drug.Projection]

	// Filter drops empty and failed slots, logging each missing item.
	Filter(itemNames []string, results []common.Result[*drug.Projection]) []*drug.Projection

	// FindDrug looks a record up by numeric id or by item name.
	FindDrug(ctx context.Context, ref string) (*drug.Drug, error)

	// UpdateDrug overwrites record id and evicts its cached projection.
	UpdateDrug(ctx context.Context, id int64, d *drug.Drug) (*drug.Drug, error)
}

// Option configures the service.
type Option func(*serviceImpl)

func WithCache(c ProjectionCache) Option {
	return func(s *serviceImpl) {
		if c != nil {
			s.cache = c
		}
	}
}

// WithLocks enables the cross-process enrichment lock.
func WithLocks(f redis.LockFactory, ttl time.Duration) Option {
	return func(s *serviceImpl) {
		s.locks = f
		if ttl > 0 {
			s.lockTTL = ttl
		}
	}
}

func WithMetrics(m *prometheus.PipelineMetrics) Option {
	return func(s *serviceImpl) { s.metrics = m }
}

func WithConcurrency(n int) Option {
	return func(s *serviceImpl) { s.concurrency = n }
}

func WithUnitTimeout(d time.Duration) Option {
	return func(s *serviceImpl) { s.unitTimeout = d }
}

type serviceImpl struct {
	repo        drug.Repository
	details     DetailFetcher
	summarizer  Summarizer
	cache       ProjectionCache
	locks       redis.LockFactory
	lockTTL     time.Duration
	flight      singleflight.Group
	metrics     *prometheus.PipelineMetrics
	logger      logging.Logger
	concurrency int
	unitTimeout time.Duration
}

// NewService wires the enrichment service.
func NewService(repo drug.Repository, details DetailFetcher, summarizer Summarizer, logger logging.Logger, opts ...Option) Service {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		repo:        repo,
		details:     details,
		summarizer:  summarizer,
		cache:       nopCache{},
		lockTTL:     DefaultLockTTL,
		logger:      logger.Named("enrichment"),
		concurrency: common.DefaultConcurrency,
		unitTimeout: common.DefaultUnitTimeout,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func cacheKey(itemName string) string { return cacheKeyPrefix + itemName }

func (s *serviceImpl) Enrich(ctx context.Context, itemName string) (*drug.Projection, error) {
	itemName = strings.TrimSpace(itemName)
	if itemName == "" {
		return nil, nil
	}
	started := time.Now()

	var cached drug.Projection
	err := s.cache.Get(ctx, cacheKey(itemName), &cached)
	if err == nil && cached.Summary != "" {
		s.metrics.RecordEnrichment(prometheus.SourceCache, time.Since(started))
		return &cached, nil
	}
	if err != nil && !errors.IsCode(err, errors.ErrCodeCacheMiss) {
		s.logger.Warn("projection cache unavailable", logging.String("item_name", itemName), logging.Err(err))
	}

	v, err, shared := s.flight.Do(itemName, func() (interface{}, error) {
		return s.enrich(ctx, itemName, started)
	})
	if shared {
		s.logger.Debug("joined in-flight enrichment", logging.String("item_name", itemName))
	}
	if err != nil {
		return nil, err
	}
	p, _ := v.(*drug.Projection)
	if p == nil {
		return nil, nil
	}
	out := *p
	return &out, nil
}

func (s *serviceImpl) enrich(ctx context.Context, itemName string, started time.Time) (*drug.Projection, error) {
	existing, err := s.findByName(ctx, itemName)
	if err != nil {
		return nil, err
	}
	if existing.IsEnriched() {
		return s.finish(ctx, existing, prometheus.SourceStore, started), nil
	}

	if s.locks != nil {
		mu := s.locks.NewMutex(lockKeyPrefix+itemName,
			redis.WithLockTTL(s.lockTTL),
			redis.WithRetryCount(defaultLockRetries),
			redis.WithWatchdog(true))
		if lerr := mu.Lock(ctx); lerr != nil {
			s.logger.Warn("enrichment lock not acquired, continuing unlocked",
				logging.String("item_name", itemName), logging.Err(lerr))
		} else {
			defer func() {
				if uerr := mu.Unlock(context.WithoutCancel(ctx)); uerr != nil {
					s.logger.Warn("enrichment lock release failed", logging.String("item_name", itemName), logging.Err(uerr))
				}
			}()
			// Another process may have finished while we waited.
			if existing, err = s.findByName(ctx, itemName); err != nil {
				return nil, err
			}
			if existing.IsEnriched() {
				return s.finish(ctx, existing, prometheus.SourceStore, started), nil
			}
		}
	}

	detail, err := s.details.Fetch(ctx, itemName)
	if err != nil {
		s.logger.Warn("permit detail fetch failed", logging.String("item_name", itemName), logging.Err(err))
		s.metrics.RecordEnrichment(prometheus.SourceFailed, time.Since(started))
		return nil, nil
	}
	if detail == nil || strings.TrimSpace(detail.ItemName) == "" {
		s.logger.Info("no permit detail for item", logging.String("item_name", itemName))
		s.metrics.RecordEnrichment(prometheus.SourceFailed, time.Since(started))
		return nil, nil
	}

	record := BuildDrug(detail)

	// The registry may spell the product differently from the query.
	if existing == nil && record.ItemName != itemName {
		canonical, err := s.findByName(ctx, record.ItemName)
		if err != nil {
			return nil, err
		}
		if canonical.IsEnriched() {
			return s.finish(ctx, canonical, prometheus.SourceStore, started), nil
		}
		existing = canonical
	}

	reference, err := referenceData(record)
	if err != nil {
		return nil, err
	}
	summary, err := s.summarizer.Summarize(ctx, drug_extractor.CleanDocument(detail.AdverseDoc), reference)
	if err != nil {
		s.logger.Warn("summarization failed", logging.String("item_name", record.ItemName), logging.Err(err))
		s.metrics.RecordEnrichment(prometheus.SourceFailed, time.Since(started))
		return nil, nil
	}
	record.Summary = summary

	if existing != nil {
		ok, err := s.repo.Update(ctx, existing.ID, record)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, errors.New(errors.ErrCodeDatabaseError, "drug record vanished during re-enrichment").
				WithDetail(strconv.FormatInt(existing.ID, 10))
		}
		record.ID = existing.ID
		s.logger.Info("drug record re-enriched", logging.String("item_name", record.ItemName), logging.Int64("drug_id", record.ID))
		return s.finish(ctx, record, prometheus.SourceEnriched, started), nil
	}

	inserted, err := s.repo.InsertIfAbsent(ctx, record)
	if err != nil {
		return nil, err
	}
	if !inserted {
		winner, err := s.findByName(ctx, record.ItemName)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			return nil, errors.New(errors.ErrCodeDatabaseError, "conflicting drug record not readable").
				WithDetail(record.ItemName)
		}
		s.logger.Info("concurrent enrichment won, using stored record", logging.String("item_name", record.ItemName))
		return s.finish(ctx, winner, prometheus.SourceStore, started), nil
	}

	s.logger.Info("drug record stored",
		logging.String("item_name", record.ItemName),
		logging.Int64("drug_id", record.ID),
		logging.Int("ingredient_layers", len(record.Ingredients)))
	return s.finish(ctx, record, prometheus.SourceEnriched, started), nil
}

// findByName maps a not-found result to nil.
func (s *serviceImpl) findByName(ctx context.Context, name string) (*drug.Drug, error) {
	d, err := s.repo.FindByName(ctx, name)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return d, nil
}

func (s *serviceImpl) finish(ctx context.Context, d *drug.Drug, source string, started time.Time) *drug.Projection {
	p := d.Projection()
	if p.Summary != "" {
		if err := s.cache.Set(ctx, cacheKey(p.ItemName), p, 0); err != nil {
			s.logger.Warn("projection cache write failed", logging.String("item_name", p.ItemName), logging.Err(err))
		}
	}
	s.metrics.RecordEnrichment(source, time.Since(started))
	return p
}

func (s *serviceImpl) EnrichBatch(ctx context.Context, itemNames []string) []common.Result[*drug.Projection] {
	return common.Run(ctx, itemNames, s.Enrich,
		common.WithStage("enrich"),
		common.WithConcurrency(s.concurrency),
		common.WithUnitTimeout(s.unitTimeout),
		common.WithLogger(s.logger),
		common.WithMetrics(s.metrics))
}

func (s *serviceImpl) Filter(itemNames []string, results []common.Result[*drug.Projection]) []*drug.Projection {
	out := make([]*drug.Projection, 0, len(results))
	for i, r := range results {
		if r.OK() && r.Value != nil {
			out = append(out, r.Value)
			continue
		}
		name := ""
		if i < len(itemNames) {
			name = itemNames[i]
		}
		fields := []logging.Field{logging.String("item_name", name), logging.String("status", r.Status.String())}
		if r.Err != nil {
			fields = append(fields, logging.Err(r.Err))
		}
		s.logger.Warn("drug information not found", fields...)
	}
	return out
}

func (s *serviceImpl) FindDrug(ctx context.Context, ref string) (*drug.Drug, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, errors.InvalidParam("drug id or item name is required")
	}
	if id, err := strconv.ParseInt(ref, 10, 64); err == nil {
		return s.repo.FindByID(ctx, id)
	}
	return s.repo.FindByName(ctx, ref)
}

func (s *serviceImpl) UpdateDrug(ctx context.Context, id int64, d *drug.Drug) (*drug.Drug, error) {
	if d == nil || strings.TrimSpace(d.ItemName) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "drug record must carry an item name")
	}
	current, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	ok, err := s.repo.Update(ctx, id, d)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, errors.New(errors.ErrCodeDrugNotFound, "drug record not found").WithDetail(strconv.FormatInt(id, 10))
	}
	keys := []string{cacheKey(d.ItemName)}
	if current.ItemName != d.ItemName {
		keys = append(keys, cacheKey(current.ItemName))
	}
	if err := s.cache.Delete(ctx, keys...); err != nil {
		s.logger.Warn("projection cache eviction failed", logging.Int64("drug_id", id), logging.Err(err))
	}
	d.ID = id
	s.logger.Info("drug record updated", logging.Int64("drug_id", id), logging.String("item_name", d.ItemName))
	return d, nil
}

type nopCache struct{}

func (nopCache) Get(context.Context, string, interface{}) error {
	return errors.New(errors.ErrCodeCacheMiss, "cache disabled")
}
func (nopCache) Set(context.Context, string, interface{}, time.Duration) error { return nil }
func (nopCache) Delete(context.Context, ...string) error                       { return nil }
