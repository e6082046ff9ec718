// Package fetch is the I/O layer for pulling index pages and feed files
// from the chain portals. Every GET is timeout-bounded, throttled by a
// shared politeness limiter, and retried on transient failures; compressed
// payloads come back expanded.
package fetch

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/zolsal/price-service/internal/ingestion/compress"
)

// Config controls fetch behavior.
type Config struct {
	Timeout           time.Duration `json:"timeout"`
	RequestsPerSecond float64       `json:"requestsPerSecond"`
	Burst             int           `json:"burst"`
	UserAgent         string        `json:"userAgent"`
	// MaxRetries bounds retry attempts after the first failure. Zero
	// disables retries.
	MaxRetries     int           `json:"maxRetries"`
	InitialBackoff time.Duration `json:"initialBackoff"`
	MaxBackoff     time.Duration `json:"maxBackoff"`
}

// DefaultConfig returns the default fetch settings: a 30s request timeout,
// a polite 4 req/s ceiling against the portals, and three retries backed
// off exponentially.
func DefaultConfig() Config {
	return Config{
		Timeout:           30 * time.Second,
		RequestsPerSecond: 4,
		Burst:             2,
		UserAgent:         "zolsal-price-service/1.0",
		MaxRetries:        3,
		InitialBackoff:    100 * time.Millisecond,
		MaxBackoff:        30 * time.Second,
	}
}

// StatusError reports a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	// RetryAfter carries the Retry-After header when the server sent one.
	RetryAfter string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d fetching %s", e.StatusCode, e.URL)
}

// Client fetches URLs with a shared politeness limiter. Redirects are
// followed (default client policy); gzip and single-document zip payloads
// are expanded.
type Client struct {
	httpClient     *http.Client
	limiter        *rate.Limiter
	userAgent      string
	maxRetries     int
	initialBackoff time.Duration
	maxBackoff     time.Duration
}

// NewClient creates a fetch client from config.
func NewClient(cfg Config) *Client {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		burst := cfg.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), burst)
	}
	ua := cfg.UserAgent
	if ua == "" {
		ua = DefaultConfig().UserAgent
	}
	if cfg.InitialBackoff <= 0 {
		cfg.InitialBackoff = DefaultConfig().InitialBackoff
	}
	if cfg.MaxBackoff <= 0 {
		cfg.MaxBackoff = DefaultConfig().MaxBackoff
	}
	return &Client{
		httpClient:     &http.Client{Timeout: cfg.Timeout},
		limiter:        limiter,
		userAgent:      ua,
		maxRetries:     cfg.MaxRetries,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
	}
}

// GetBytes issues a GET for url and returns the expanded response body.
// Transient failures (connect errors, 429, 500-504) are retried with
// exponential backoff up to MaxRetries; non-2xx statuses come back as
// StatusError, exhausted retries as RetryError wrapping the last failure.
func (c *Client) GetBytes(ctx context.Context, url string) ([]byte, error) {
	attempts := 0
	var lastErr error
	for {
		attempts++
		body, err := c.fetchAndExpand(ctx, url)
		if err == nil {
			return body, nil
		}
		lastErr = err
		if !isRetryable(err) || attempts > c.maxRetries {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.backoff(attempts-1, err)):
		}
	}
	if attempts > 1 {
		return nil, &RetryError{URL: url, Attempts: attempts, Last: lastErr}
	}
	return nil, lastErr
}

// GetString fetches url and returns the body as a string. Used for the HTML
// index pages.
func (c *Client) GetString(ctx context.Context, url string) (string, error) {
	b, err := c.GetBytes(ctx, url)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) fetchAndExpand(ctx context.Context, url string) ([]byte, error) {
	body, err := c.getOnce(ctx, url)
	if err != nil {
		return nil, err
	}
	expanded, err := compress.Expand(body)
	if err != nil {
		return nil, fmt.Errorf("expand %s: %w", url, err)
	}
	return expanded, nil
}

func (c *Client) getOnce(ctx context.Context, url string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("throttle wait: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		// Drain so the connection can be reused.
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{
			URL:        url,
			StatusCode: resp.StatusCode,
			RetryAfter: resp.Header.Get("Retry-After"),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body of %s: %w", url, err)
	}
	return body, nil
}
