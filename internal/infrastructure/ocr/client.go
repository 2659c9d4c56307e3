// Package ocr is the document OCR client (Upstage document-ai).
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/pkg/errors"
)

const (
	DefaultEndpoint = "https://api.upstage.ai/v1/document-ai/ocr"
	DefaultTimeout  = 60 * time.Second
)

// Config holds the OCR endpoint parameters.
type Config struct {
	Endpoint string
	APIKey   string
	Timeout  time.Duration
}

// Page is one recognised page.
type Page struct {
	ID     int     `json:"id"`
	Text   string  `json:"text"`
	Width  int     `json:"width"`
	Height int     `json:"height"`
	Score  float64 `json:"confidence"`
}

// Result is the recognised document.
type Result struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
	Pages      []Page  `json:"pages"`
	NumPages   int     `json:"numBilledPages"`
	ModelVer   string  `json:"modelVersion"`
}

// Recognizer is what the workflows depend on.
type Recognizer interface {
	Recognize(ctx context.Context, fileName string, data []byte) (*Result, error)
}

// Client calls the OCR endpoint.
type Client struct {
	endpoint   string
	apiKey     string
	httpClient *http.Client
	logger     logging.Logger
	metrics    *prometheus.PipelineMetrics
}

// Option configures a Client.
type Option func(*Client)

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

// NewClient validates cfg and returns a Client.
func NewClient(cfg Config, logger logging.Logger, opts ...Option) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "ocr: api key is required")
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if u, err := url.Parse(cfg.Endpoint); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.Newf(errors.ErrCodeValidation, "ocr: invalid endpoint %q", cfg.Endpoint)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Client{
		endpoint:   cfg.Endpoint,
		apiKey:     cfg.APIKey,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("ocr"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Recognize uploads data as the multipart field "document" and returns the
// recognised text. Any non-2xx answer is an error.
func (c *Client) Recognize(ctx context.Context, fileName string, data []byte) (res *Result, err error) {
	started := time.Now()
	defer func() { c.metrics.ObserveExternal("ocr", started, err) }()

	if len(data) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "ocr: document is empty")
	}
	if fileName == "" {
		fileName = "document"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("document", fileName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "ocr: failed to build form")
	}
	if _, err := part.Write(data); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "ocr: failed to build form")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "ocr: failed to build form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "ocr: failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOCRFailed, "ocr: request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeOCRFailed, "ocr: failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New(errors.ErrCodeOCRFailed, "ocr: unexpected status").
			WithDetail(fmt.Sprintf("HTTP %d: %s", resp.StatusCode, snippet(payload)))
	}

	res = &Result{}
	if err := json.Unmarshal(payload, res); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "ocr: malformed response")
	}
	c.logger.Info("document recognised",
		logging.String("file", fileName),
		logging.Int("bytes", len(data)),
		logging.Int("text_runes", len([]rune(res.Text))),
		logging.Int("pages", len(res.Pages)),
		logging.Duration("elapsed", time.Since(started)))
	return res, nil
}

func snippet(b []byte) string {
	const max = 200
	if len(b) > max {
		return string(b[:max]) + "..."
	}
	return string(b)
}
