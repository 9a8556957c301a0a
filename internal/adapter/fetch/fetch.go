// Package fetch is the shared HTTP layer for upstream data APIs: one client
// per source with a rate limiter, a request timeout, and bounded retries with
// exponential backoff.
package fetch

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/nyc-traffic-weather-etl/internal/observability"
	"golang.org/x/time/rate"
)

const (
	initialBackoff = 500 * time.Millisecond
	maxBackoff     = 8 * time.Second
)

// Options configures a Client.
type Options struct {
	Source     string // metric and log label, e.g. "open-meteo"
	Timeout    time.Duration
	MaxRetries int
	RateLimit  float64 // requests per second
	UserAgent  string
}

// StatusError is returned for responses that will not succeed on retry.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d: %s", e.Code, e.Body)
}

// Client issues GET requests against one upstream API.
type Client struct {
	httpClient *http.Client
	limiter    *rate.Limiter
	source     string
	userAgent  string
	maxRetries int
	backoff    time.Duration
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// New creates a Client from opts.
func New(opts Options, metrics *observability.Metrics, logger *slog.Logger) *Client {
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = 3
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 5
	}
	if opts.UserAgent == "" {
		opts.UserAgent = "nyc-traffic-weather-etl/1.0"
	}
	return &Client{
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(rate.Limit(opts.RateLimit), 1),
		source:     opts.Source,
		userAgent:  opts.UserAgent,
		maxRetries: opts.MaxRetries,
		backoff:    initialBackoff,
		metrics:    metrics,
		logger:     logger.With("source", opts.Source),
	}
}

// GetJSON fetches fullURL and decodes the JSON body into out. Transport
// errors, 429, and 5xx responses are retried up to the configured limit.
func (c *Client) GetJSON(ctx context.Context, fullURL string, header http.Header, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fullURL, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")

	backoff := c.backoff
	var lastErr error

	for attempt := 1; attempt <= c.maxRetries; attempt++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("rate limiter wait: %w", err)
		}

		err := c.do(req.Clone(ctx), out)
		if err == nil {
			c.metrics.APIRequests.WithLabelValues(c.source, "success").Inc()
			return nil
		}
		lastErr = err

		var se *StatusError
		if errors.As(err, &se) && !retryable(se.Code) {
			c.metrics.APIRequests.WithLabelValues(c.source, "error").Inc()
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if attempt == c.maxRetries {
			break
		}

		c.metrics.APIRequests.WithLabelValues(c.source, "retry").Inc()
		c.logger.Warn("request failed, retrying", "attempt", attempt, "backoff", backoff, "error", err)
		if !sleepWithContext(ctx, backoff) {
			return ctx.Err()
		}
		backoff = nextBackoff(backoff, maxBackoff)
	}

	c.metrics.APIRequests.WithLabelValues(c.source, "error").Inc()
	return fmt.Errorf("%s: giving up after %d attempts: %w", c.source, c.maxRetries, lastErr)
}

func (c *Client) do(req *http.Request, out any) error {
	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.APIDuration.WithLabelValues(c.source).Observe(time.Since(start).Seconds())
	if err != nil {
		return fmt.Errorf("%s request: %w", c.source, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{Code: resp.StatusCode, Body: string(body)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", c.source, err)
	}
	return nil
}

func retryable(code int) bool {
	return code == http.StatusTooManyRequests || code >= 500
}

func nextBackoff(current, limit time.Duration) time.Duration {
	next := current * 2
	if next > limit {
		return limit
	}
	return next
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}

	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
