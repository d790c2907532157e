// Package fetch is the network boundary shared by every price provider: an
// HTTP GET that decodes JSON and retries transient failures with exponential
// backoff.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"
)

const (
	DefaultMaxRetries   = 3
	DefaultInitialDelay = time.Second
	// MaxBackoff caps a single retry delay.
	MaxBackoff = 5 * time.Minute
)

// Sleeper waits for d or until ctx is done.
type Sleeper func(ctx context.Context, d time.Duration) error

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type Client struct {
	httpClient   *http.Client
	maxRetries   int
	initialDelay time.Duration
	sleep        Sleeper
	logger       *zap.Logger
	userAgent    string
	headers      http.Header
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
	return func(cl *Client) { cl.httpClient = c }
}

// WithRetries sets the number of retries after the first attempt and the
// delay before the first retry.
func WithRetries(maxRetries int, initialDelay time.Duration) Option {
	return func(cl *Client) {
		if maxRetries >= 0 {
			cl.maxRetries = maxRetries
		}
		if initialDelay > 0 {
			cl.initialDelay = initialDelay
		}
	}
}

func WithSleeper(s Sleeper) Option {
	return func(cl *Client) { cl.sleep = s }
}

func WithLogger(l *zap.Logger) Option {
	return func(cl *Client) { cl.logger = l }
}

// WithHeader adds a header to every request, such as an API token that must
// stay out of URLs and error messages.
func WithHeader(key, value string) Option {
	return func(cl *Client) {
		if cl.headers == nil {
			cl.headers = make(http.Header)
		}
		cl.headers.Set(key, value)
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:   &http.Client{Timeout: 15 * time.Second},
		maxRetries:   DefaultMaxRetries,
		initialDelay: DefaultInitialDelay,
		sleep:        sleep,
		logger:       zap.NewNop(),
		userAgent:    "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Backoff returns the delay before retry number attempt (1-based), doubling
// from initial up to MaxBackoff.
func Backoff(initial time.Duration, attempt int) time.Duration {
	if attempt < 1 || initial <= 0 {
		return 0
	}
	d := initial
	for i := 1; i < attempt && d < MaxBackoff; i++ {
		d *= 2
	}
	return min(d, MaxBackoff)
}

// GetJSON performs a GET on url and decodes the JSON body into v.
//
// Transport errors, non-2xx statuses and undecodable bodies are retried up to
// maxRetries times, doubling the delay each time. HTTP 429 is returned at once.
// When retries are exhausted the last error is returned wrapped.
func (c *Client) GetJSON(ctx context.Context, url string, v any) error {
	var lastErr error
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			delay := Backoff(c.initialDelay, attempt)
			c.logger.Debug("retrying request",
				zap.String("url", url),
				zap.Int("attempt", attempt),
				zap.Duration("delay", delay),
				zap.Error(lastErr))
			if err := c.sleep(ctx, delay); err != nil {
				return fmt.Errorf("GET %s: %w (last error: %v)", url, err, lastErr)
			}
		}

		err := c.get(ctx, url, v)
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) || ctx.Err() != nil {
			return err
		}
	}
	return fmt.Errorf("GET %s failed after %d attempts: %w", url, c.maxRetries+1, lastErr)
}

func (c *Client) get(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", c.userAgent)
	req.Header.Set("Accept", "application/json")
	for k, vs := range c.headers {
		req.Header[k] = vs
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &NetworkError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &StatusError{URL: url, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return &DecodeError{URL: url, Err: err}
	}
	return nil
}
