package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/sorgu/sorgu/internal/failure"
	"github.com/sorgu/sorgu/internal/observability"
)

type RetryConfig struct {
	Attempts int
	MinWait  time.Duration
	MaxWait  time.Duration
}

type ClientConfig struct {
	BaseURL   string
	APIKey    string
	Model     string
	MaxTokens int
	Timeout   time.Duration
	Referer   string
	Title     string
	Retry     RetryConfig
	Logger    *slog.Logger
}

// Client is an OpenAI-compatible chat completion client. It is safe for
// concurrent use.
type Client struct {
	baseURL   string
	apiKey    string
	model     string
	maxTokens int
	referer   string
	title     string
	retry     RetryConfig
	logger    *slog.Logger
	client    *http.Client

	// set once the provider rejected max_tokens; never cleared
	omitMaxTokens atomic.Bool
}

func NewClient(cfg ClientConfig) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("base URL is required")
	}
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(cfg.Model)
	if model == "" {
		model = "deepseek/deepseek-chat"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	retry := cfg.Retry
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}
	if retry.MinWait <= 0 {
		retry.MinWait = time.Second
	}
	if retry.MaxWait < retry.MinWait {
		retry.MaxWait = retry.MinWait
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Client{
		baseURL:   strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"),
		apiKey:    strings.TrimSpace(cfg.APIKey),
		model:     model,
		maxTokens: cfg.MaxTokens,
		referer:   strings.TrimSpace(cfg.Referer),
		title:     strings.TrimSpace(cfg.Title),
		retry:     retry,
		logger:    logger,
		client:    &http.Client{Timeout: timeout},
	}, nil
}

// Complete sends req and returns the first choice's content. Transport
// errors, 429 and 5xx responses are retried with exponential backoff up to
// the configured number of attempts.
func (c *Client) Complete(ctx context.Context, req Request) (string, error) {
	var content string
	op := func() error {
		out, err := c.completeOnce(ctx, req)
		if err != nil {
			return err
		}
		content = out
		return nil
	}
	notify := func(err error, wait time.Duration) {
		c.logger.WarnContext(ctx, "completion_retry",
			slog.String("purpose", req.Purpose),
			slog.String("wait", wait.String()),
			slog.String("error", observability.Redact(err.Error())),
		)
	}
	err := backoff.RetryNotify(op, backoff.WithContext(c.newBackOff(), ctx), notify)
	observability.ObserveCompletion(req.Purpose, err)
	if err != nil {
		return "", failure.Wrap(failure.CompletionService, "completion request failed", err)
	}
	return content, nil
}

func (c *Client) newBackOff() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.retry.MinWait
	b.MaxInterval = c.retry.MaxWait
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(c.retry.Attempts-1))
}

func (c *Client) completeOnce(ctx context.Context, req Request) (string, error) {
	withMaxTokens := c.maxTokens > 0 && !c.omitMaxTokens.Load()
	status, body, err := c.post(ctx, req, withMaxTokens)
	if err != nil {
		return "", err
	}
	if status == http.StatusBadRequest && withMaxTokens && rejectsMaxTokens(body) {
		c.omitMaxTokens.Store(true)
		c.logger.InfoContext(ctx, "completion_max_tokens_disabled", slog.String("model", c.model))
		status, body, err = c.post(ctx, req, false)
		if err != nil {
			return "", err
		}
	}
	if status >= 400 {
		statusErr := &StatusError{Code: status, Body: truncate(string(body), 512)}
		if status == http.StatusTooManyRequests || status >= 500 {
			return "", statusErr
		}
		return "", backoff.Permanent(statusErr)
	}

	var parsed struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(body, &parsed); err != nil {
		return "", fmt.Errorf("decode chat completion response: %w", err)
	}
	if len(parsed.Choices) == 0 {
		return "", errors.New("empty chat completion choices")
	}
	return strings.TrimSpace(parsed.Choices[0].Message.Content), nil
}

func (c *Client) post(ctx context.Context, req Request, withMaxTokens bool) (int, []byte, error) {
	body, err := json.Marshal(c.buildPayload(req, withMaxTokens))
	if err != nil {
		return 0, nil, backoff.Permanent(fmt.Errorf("marshal chat payload: %w", err))
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return 0, nil, backoff.Permanent(fmt.Errorf("build chat request: %w", err))
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
	if c.referer != "" {
		httpReq.Header.Set("HTTP-Referer", c.referer)
	}
	if c.title != "" {
		httpReq.Header.Set("X-Title", c.title)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return 0, nil, fmt.Errorf("request chat completion: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, nil, fmt.Errorf("read chat response body: %w", err)
	}
	return resp.StatusCode, raw, nil
}

func (c *Client) buildPayload(req Request, withMaxTokens bool) map[string]any {
	payload := map[string]any{
		"model":       c.model,
		"messages":    req.Messages,
		"temperature": req.Temperature,
	}
	if withMaxTokens {
		payload["max_tokens"] = c.maxTokens
	}
	return payload
}

// StatusError is a non-2xx completion response.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("chat completion failed status=%d body=%s", e.Code, e.Body)
}

func rejectsMaxTokens(body []byte) bool {
	lower := strings.ToLower(string(body))
	return strings.Contains(lower, "max_tokens") || strings.Contains(lower, "max tokens")
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
