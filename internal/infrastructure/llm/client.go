// Package llm is the chat-completion client used for metadata extraction,
// drug document summarisation and chart composition. It speaks the
// OpenAI-compatible /chat/completions protocol and guards every call with a
// circuit breaker.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"

	"github.com/turtacn/livecare/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/livecare/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/livecare/pkg/errors"
)

const (
	DefaultBaseURL         = "https://api.openai.com/v1"
	DefaultModel           = "gpt-4o-mini"
	DefaultTimeout         = 90 * time.Second
	DefaultBreakerFailures = 5
	DefaultBreakerCooldown = 30 * time.Second
)

// Config holds the model parameters.
type Config struct {
	BaseURL         string
	APIKey          string
	Model           string
	Temperature     float64
	MaxTokens       int
	Timeout         time.Duration
	PromptDir       string
	BreakerFailures uint32
	BreakerCooldown time.Duration
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type string `json:"type"`
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	Temperature    float64         `json:"temperature"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Message      chatMessage `json:"message"`
		FinishReason string      `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// Client calls the chat-completion endpoint with rendered prompts.
type Client struct {
	baseURL     string
	apiKey      string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	prompts     *PromptLoader
	breaker     *gobreaker.CircuitBreaker
	validate    *validator.Validate
	logger      logging.Logger
	metrics     *prometheus.PipelineMetrics
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
		return nil, errors.New(errors.ErrCodeValidation, "llm: api key is required")
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if u, err := url.Parse(cfg.BaseURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, errors.Newf(errors.ErrCodeValidation, "llm: invalid base url %q", cfg.BaseURL)
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.PromptDir == "" {
		cfg.PromptDir = "prompts"
	}
	if cfg.BreakerFailures == 0 {
		cfg.BreakerFailures = DefaultBreakerFailures
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	log := logger.Named("llm")

	c := &Client{
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		apiKey:      cfg.APIKey,
		model:       cfg.Model,
		temperature: cfg.Temperature,
		maxTokens:   cfg.MaxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout},
		prompts:     NewPromptLoader(cfg.PromptDir),
		validate:    validator.New(),
		logger:      log,
	}
	failures := cfg.BreakerFailures
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "llm",
		MaxRequests: 1,
		Timeout:     cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			log.Warn("circuit breaker state changed",
				logging.String("breaker", name),
				logging.String("from", from.String()),
				logging.String("to", to.String()))
		},
	})
	for _, o := range opts {
		o(c)
	}
	return c, nil
}

// Complete renders the named prompt with vars and returns the model's reply.
// jsonMode asks the server for a JSON object reply.
func (c *Client) Complete(ctx context.Context, promptName string, vars map[string]string, jsonMode bool) (string, error) {
	prompt, err := c.prompts.Load(promptName)
	if err != nil {
		return "", err
	}
	system, user := prompt.Render(vars)

	started := time.Now()
	out, err := c.breaker.Execute(func() (interface{}, error) {
		return c.chat(ctx, system, user, jsonMode)
	})
	c.metrics.RecordLLMCall(promptName, time.Since(started), err)
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			return "", errors.Wrap(err, errors.ErrCodeLLMFailed, "llm: circuit open")
		}
		return "", err
	}

	reply := out.(string)
	c.logger.Debug("completion received",
		logging.String("prompt", promptName),
		logging.Int("reply_runes", len([]rune(reply))),
		logging.Duration("elapsed", time.Since(started)))
	return reply, nil
}

func (c *Client) chat(ctx context.Context, system, user string, jsonMode bool) (string, error) {
	msgs := make([]chatMessage, 0, 2)
	if system != "" {
		msgs = append(msgs, chatMessage{Role: "system", Content: system})
	}
	msgs = append(msgs, chatMessage{Role: "user", Content: user})

	reqBody := chatRequest{
		Model:       c.model,
		Messages:    msgs,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	}
	if jsonMode {
		reqBody.ResponseFormat = &responseFormat{Type: "json_object"}
	}
	encoded, err := json.Marshal(reqBody)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeSerialization, "llm: failed to encode request")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(encoded))
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "llm: failed to create request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Request-ID", uuid.New().String())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMFailed, "llm: request failed")
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeLLMFailed, "llm: failed to read response")
	}

	var cr chatResponse
	decodeErr := json.Unmarshal(payload, &cr)
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		detail := fmt.Sprintf("HTTP %d", resp.StatusCode)
		if decodeErr == nil && cr.Error != nil {
			detail += ": " + cr.Error.Message
		}
		return "", errors.New(errors.ErrCodeLLMFailed, "llm: unexpected status").WithDetail(detail)
	}
	if decodeErr != nil {
		return "", errors.Wrap(decodeErr, errors.ErrCodeSerialization, "llm: malformed response")
	}
	if len(cr.Choices) == 0 {
		return "", errors.New(errors.ErrCodeLLMFailed, "llm: response has no choices")
	}
	return strings.TrimSpace(cr.Choices[0].Message.Content), nil
}
