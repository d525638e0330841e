// Package apiclient wraps HTTP access to the backend service groups with
// bearer auth, timeouts and retry with exponential backoff.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/meridian-data/governance-gateway/internal/metrics"
)

// Config configures the client.
type Config struct {
	BaseURL      string
	Token        string
	Timeout      time.Duration
	MaxRetries   int
	RetryBackoff time.Duration
	MaxBackoff   time.Duration
	HTTPClient   *http.Client
	Logger       *log.Logger
}

// Client issues authenticated JSON requests against a backend base URL.
type Client struct {
	baseURL      string
	token        string
	maxRetries   int
	retryBackoff time.Duration
	maxBackoff   time.Duration
	httpClient   *http.Client
	logger       *log.Logger
}

// APIError is returned when the backend responds with a non-success status
// after all retries are exhausted.
type APIError struct {
	StatusCode int    `json:"statusCode"`
	Code       string `json:"code,omitempty"`
	Message    string `json:"message,omitempty"`
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend returned %d (%s): %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend returned %d: %s", e.StatusCode, e.Message)
}

// New creates a client. Zero-valued fields fall back to defaults.
func New(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	if cfg.MaxRetries < 0 {
		cfg.MaxRetries = 0
	} else if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = 10 * time.Second
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{
		baseURL:      strings.TrimRight(cfg.BaseURL, "/"),
		token:        cfg.Token,
		maxRetries:   cfg.MaxRetries,
		retryBackoff: cfg.RetryBackoff,
		maxBackoff:   cfg.MaxBackoff,
		httpClient:   httpClient,
		logger:       cfg.Logger,
	}
}

// GetJSON issues a GET and decodes the response into target.
func (c *Client) GetJSON(ctx context.Context, path string, target interface{}) error {
	return c.do(ctx, http.MethodGet, path, nil, target)
}

// PostJSON issues a POST with a JSON payload and decodes the response.
func (c *Client) PostJSON(ctx context.Context, path string, payload interface{}, target interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPost, path, body, target)
}

// PutJSON issues a PUT with a JSON payload and decodes the response.
func (c *Client) PutJSON(ctx context.Context, path string, payload interface{}, target interface{}) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request body: %w", err)
	}
	return c.do(ctx, http.MethodPut, path, body, target)
}

// DeleteJSON issues a DELETE and decodes the response into target.
func (c *Client) DeleteJSON(ctx context.Context, path string, target interface{}) error {
	return c.do(ctx, http.MethodDelete, path, nil, target)
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, target interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay(attempt)
			metrics.ObserveClientRetry(method)
			if c.logger != nil {
				c.logger.Printf("apiclient: retrying %s %s in %s (attempt %d/%d)", method, path, delay, attempt, c.maxRetries)
			}
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.attempt(ctx, method, path, body, target)
		if err == nil {
			return nil
		}
		lastErr = err

		if !retryableError(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return lastErr
}

// attempt issues a single request.
func (c *Client) attempt(ctx context.Context, method, path string, body []byte, target interface{}) error {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return parseAPIError(resp)
	}
	if target == nil {
		io.Copy(io.Discard, resp.Body)
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

// Probe issues a single unretried request and reports the raw outcome.
// Used by the health validator, which categorizes failures instead of
// retrying them.
func (c *Client) Probe(ctx context.Context, method, path string) ProbeResult {
	start := time.Now()
	if method == "" {
		method = http.MethodGet
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return ProbeResult{Err: err, Latency: time.Since(start)}
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return ProbeResult{Err: err, Latency: time.Since(start)}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	latency := time.Since(start)
	if err != nil {
		return ProbeResult{StatusCode: resp.StatusCode, Latency: latency, Err: err}
	}
	return ProbeResult{StatusCode: resp.StatusCode, Body: body, Latency: latency}
}

// ProbeResult is the raw outcome of a single probe request.
type ProbeResult struct {
	StatusCode int
	Body       []byte
	Latency    time.Duration
	Err        error
}

// retryDelay returns the pause before retry number attempt (1-based): the
// doubled base plus up to 20% jitter, never above the configured ceiling.
// The cap keeps observed delays non-decreasing; once the base pins at the
// ceiling every delay equals it.
func (c *Client) retryDelay(attempt int) time.Duration {
	delay := c.backoffDelay(attempt - 1)
	delay += time.Duration(rand.Int63n(int64(delay)/5 + 1))
	if delay > c.maxBackoff {
		delay = c.maxBackoff
	}
	return delay
}

// backoffDelay returns the base delay before retry number attempt (0-based),
// doubling each time up to the configured ceiling.
func (c *Client) backoffDelay(attempt int) time.Duration {
	delay := c.retryBackoff
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= c.maxBackoff {
			return c.maxBackoff
		}
	}
	if delay > c.maxBackoff {
		delay = c.maxBackoff
	}
	return delay
}

func parseAPIError(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Message: resp.Status}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil || len(body) == 0 {
		return apiErr
	}

	var nested struct {
		Error struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
		Code    string `json:"code"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &nested); err == nil {
		switch {
		case nested.Error.Code != "" || nested.Error.Message != "":
			apiErr.Code = nested.Error.Code
			apiErr.Message = nested.Error.Message
		case nested.Code != "" || nested.Message != "":
			apiErr.Code = nested.Code
			apiErr.Message = nested.Message
		}
	}
	return apiErr
}

func retryableStatus(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// retryableError reports whether the call should be attempted again:
// transport errors and retryable statuses qualify; other API errors and
// decode failures do not.
func retryableError(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return retryableStatus(apiErr.StatusCode)
	}
	var urlErr *url.Error
	return errors.As(err, &urlErr)
}
