// Package speech is the speech recognition client (Clova Speech long
// sentence recognition, synchronous upload mode).
package speech

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/pkg/errors"
)

const (
	DefaultLanguage = "ko-KR"
	DefaultTimeout  = 5 * time.Minute
	uploadPath      = "/recognizer/upload"
)

// Config holds the recognizer parameters.
type Config struct {
	InvokeURL string
	SecretKey string
	Language  string
	Timeout   time.Duration
}

// Diarization toggles speaker separation.
type Diarization struct {
	Enable bool `json:"enable"`
}

// requestParams is the JSON sent in the "params" form part.
type requestParams struct {
	Language      string      `json:"language"`
	Completion    string      `json:"completion"`
	WordAlignment bool        `json:"wordAlignment"`
	FullText      bool        `json:"fullText"`
	Diarization   Diarization `json:"diarization"`
}

// Segment is one recognised utterance. Times are milliseconds.
type Segment struct {
	Start      int64   `json:"start"`
	End        int64   `json:"end"`
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

// Transcript is the recognition result.
type Transcript struct {
	Result     string    `json:"result"`
	Message    string    `json:"message"`
	Text       string    `json:"text"`
	Confidence float64   `json:"confidence"`
	Segments   []Segment `json:"segments"`
}

// Transcriber is what the encounter workflow depends on.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, data []byte) (*Transcript, error)
}

// Client calls the recognizer.
type Client struct {
	invokeURL  string
	secretKey  string
	language   string
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
	if strings.TrimSpace(cfg.SecretKey) == "" {
		return nil, errors.New(errors.ErrCodeValidation, "speech: secret key is required")
	}
	u, err := url.Parse(cfg.InvokeURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.Newf(errors.ErrCodeValidation, "speech: invalid invoke url %q", cfg.InvokeURL)
	}
	if cfg.Language == "" {
		cfg.Language = DefaultLanguage
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	c := &Client{
		invokeURL:  strings.TrimSuffix(cfg.InvokeURL, "/"),
		secretKey:  cfg.SecretKey,
		language:   cfg.Language,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.Named("speech"),
	}
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Transcribe uploads the audio and waits for the synchronous result.
func (c *Client) Transcribe(ctx context.Context, fileName string, data []byte) (tr *Transcript, err error) {
	started := time.Now()
	defer func() { c.metrics.ObserveExternal("speech", started, err) }()

	if len(data) == 0 {
		return nil, errors.New(errors.ErrCodeValidation, "speech: media is empty")
	}
	if fileName == "" {
		fileName = "media"
	}

	params, err := json.Marshal(requestParams{
		Language:      c.language,
		Completion:    "sync",
		WordAlignment: true,
		FullText:      true,
		Diarization:   Diarization{Enable: false},
	})
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "speech: failed to encode params")
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	media, err := mw.CreateFormFile("media", fileName)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "speech: failed to build form")
	}
	if _, err := media.Write(data); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "speech: failed to build form")
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", `form-data; name="params"`)
	h.Set("Content-Type", "application/json")
	pp, err := mw.CreatePart(h)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "speech: failed to build form")
	}
	if _, err := pp.Write(params); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "speech: failed to build form")
	}
	if err := mw.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "speech: failed to build form")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.invokeURL+uploadPath, &body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeInternal, "speech: failed to create request")
	}
	req.Header.Set("Accept", "application/json;UTF-8")
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("X-CLOVASPEECH-API-KEY", c.secretKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error("speech request failed", logging.String("file", fileName), logging.Err(err))
		return nil, errors.Wrap(err, errors.ErrCodeTranscriptionFailed, "speech: request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeTranscriptionFailed, "speech: failed to read response")
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, errors.New(errors.ErrCodeTranscriptionFailed, "speech: unexpected status").
			WithDetail(fmt.Sprintf("HTTP %d", resp.StatusCode))
	}

	tr = &Transcript{}
	if err := json.Unmarshal(payload, tr); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "speech: malformed response")
	}
	if tr.Result != "" && !strings.EqualFold(tr.Result, "COMPLETED") {
		return nil, errors.New(errors.ErrCodeTranscriptionFailed, "speech: recognition did not complete").
			WithDetail(tr.Result + ": " + tr.Message)
	}

	c.logger.Info("audio transcribed",
		logging.String("file", fileName),
		logging.Int("bytes", len(data)),
		logging.Int("segments", len(tr.Segments)),
		logging.Duration("elapsed", time.Since(started)))
	return tr, nil
}
