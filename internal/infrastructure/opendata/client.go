// Package opendata is the client for the data.go.kr drug registry services:
// pill identification, product permit detail and DUR safety information.
// Every service answers keyed GET requests with a JSON envelope whose
// body.items field lists the result rows.
package opendata

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/pkg/errors"
)

const (
	DefaultBaseURL   = "http://apis.data.go.kr/1471000"
	DefaultTimeout   = 15 * time.Second
	DefaultRateLimit = 20
	DefaultBurst     = 10

	maxBodyBytes = 16 << 20
)

// Config holds the shared parameters of every registry service.
type Config struct {
	BaseURL    string
	ServiceKey string
	Timeout    time.Duration
	RateLimit  float64
	Burst      int
	GrainRows  int
	DetailRows int
	DURRows    int
}

// Client issues registry requests through one token-bucket limiter.
type Client struct {
	baseURL    string
	serviceKey string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     logging.Logger
	metrics    *prometheus.PipelineMetrics
	cfg        Config

	grain      *GrainService
	grainOnce  sync.Once
	detail     *DetailService
	detailOnce sync.Once
	dur        *DURService
	durOnce    sync.Once
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			c.httpClient = hc
		}
	}
}

func WithMetrics(m *prometheus.PipelineMetrics) Option {
	return func(c *Client) { c.metrics = m }
}

// NewClient validates cfg and returns a Client. No request is made.
func NewClient(cfg Config, logger logging.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.ServiceKey) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "opendata: service key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	parsed, err := url.Parse(cfg.BaseURL)
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, errors.Newf(errors.ErrCodeValidation, "opendata: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = DefaultRateLimit
	}
	if cfg.Burst <= 0 {
		cfg.Burst = DefaultBurst
	}
	if cfg.GrainRows <= 0 {
		cfg.GrainRows = 30
	}
	if cfg.DetailRows <= 0 {
		cfg.DetailRows = 10
	}
	if cfg.DURRows <= 0 {
		cfg.DURRows = 10
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}

	c := &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		serviceKey: cfg.ServiceKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst),
		logger:     logger.Named("opendata"),
		cfg:        cfg,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Grain returns the pill identification service.
func (c *Client) Grain() *GrainService {
	c.grainOnce.Do(func() {
		c.grain = &GrainService{client: c, rows: c.cfg.GrainRows}
	})
	return c.grain
}

// Detail returns the product permit detail service.
func (c *Client) Detail() *DetailService {
	c.detailOnce.Do(func() {
		c.detail = &DetailService{client: c, rows: c.cfg.DetailRows}
	})
	return c.detail
}

// DUR returns the DUR safety information service.
func (c *Client) DUR() *DURService {
	c.durOnce.Do(func() {
		c.dur = &DURService{client: c, rows: c.cfg.DURRows}
	})
	return c.dur
}

// getItems performs one GET against service/operation and decodes body.items.
// A well-formed envelope without items yields an empty slice and no error.
func (c *Client) getItems(ctx context.Context, metric, path string, params url.Values) (items []Item, err error) {
	started := time.Now()
	defer func() { c.metrics.ObserveExternal(metric, started, err) }()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTimeout, "opendata: rate limiter wait aborted")
	}

	q := url.Values{}
	for k, v := range params {
		q[k] = v
	}
	q.Set("serviceKey", c.serviceKey)
	q.Set("pageNo", "1")
	q.Set("type", "json")

	fullURL := c.baseURL + "/" + strings.TrimPrefix(path, "/") + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "opendata: failed to create request")
	}
	requestID := uuid.New().String()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, errors.Wrap(err, errors.ErrCodeTimeout, "opendata: request deadline exceeded")
		}
		return nil, errors.Wrap(err, errors.ErrCodeRegistryUnavailable, "opendata: request failed")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeRegistryUnavailable, "opendata: failed to read response body")
	}

	c.logger.Debug("registry response",
		logging.String("path", path),
		logging.Int("status", resp.StatusCode),
		logging.String("request_id", requestID),
		logging.Duration("elapsed", time.Since(started)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New(errors.ErrCodeExternalService, "opendata: unexpected status").
			WithDetail(fmt.Sprintf("%s returned HTTP %d", path, resp.StatusCode))
	}

	return decodeItems(body)
}
