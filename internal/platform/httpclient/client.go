// Package httpclient is a small JSON-over-HTTP client with logging and
// retries on transient failures.
package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	stdhttp "net/http"
	"strings"
	"time"

	"hotcron/pkg/retry"
)

// StatusError is returned for non-2xx responses.
type StatusError struct {
	Method string
	URL    string
	Code   int
	Body   string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s %s: %d %s", e.Method, e.URL, e.Code, stdhttp.StatusText(e.Code))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

// Temporary reports statuses worth retrying.
func (e *StatusError) Temporary() bool {
	return e.Code == stdhttp.StatusTooManyRequests || e.Code >= 500
}

// Client wraps http.Client with logging and retries.
type Client struct {
	hc       *stdhttp.Client
	log      *slog.Logger
	baseURL  string
	headers  map[string]string
	retry    retry.Config
	retryAll bool
}

// Option configures Client.
type Option func(*Client)

// WithTimeout sets the per-attempt timeout.
func WithTimeout(t time.Duration) Option {
	return func(c *Client) { c.hc.Timeout = t }
}

// WithLogger sets logger used by client.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.log = l
		}
	}
}

// WithRetries sets the number of attempts after the first and the initial backoff.
func WithRetries(n int, backoff time.Duration) Option {
	return func(c *Client) {
		c.retry.MaxAttempts = n + 1
		if backoff > 0 {
			c.retry.InitialDelay = backoff
		}
	}
}

// WithRetryNonIdempotent allows retrying POST and PATCH.
func WithRetryNonIdempotent(v bool) Option {
	return func(c *Client) { c.retryAll = v }
}

// WithHeaders adds default headers to each request.
func WithHeaders(h map[string]string) Option {
	return func(c *Client) {
		for k, v := range h {
			c.headers[k] = v
		}
	}
}

// WithBaseURL prefixes relative request paths.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTransport sets custom transport.
func WithTransport(rt stdhttp.RoundTripper) Option {
	return func(c *Client) {
		if rt != nil {
			c.hc.Transport = rt
		}
	}
}

// New creates configured Client.
func New(opts ...Option) *Client {
	c := &Client{
		hc:      &stdhttp.Client{Timeout: 15 * time.Second},
		log:     slog.Default(),
		headers: map[string]string{"User-Agent": "hotcron"},
		retry:   retry.Config{MaxAttempts: 1, InitialDelay: 200 * time.Millisecond, MaxDelay: 5 * time.Second, Jitter: true},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// DoJSON sends in (when non-nil) as JSON and decodes the response into out
// (when non-nil). path may be absolute or relative to the base URL.
func (c *Client) DoJSON(ctx context.Context, method, path string, in, out any) error {
	var body []byte
	if in != nil {
		var err error
		if body, err = json.Marshal(in); err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
	}
	url := path
	if c.baseURL != "" && strings.HasPrefix(path, "/") {
		url = c.baseURL + path
	}

	idempotent := method == stdhttp.MethodGet || method == stdhttp.MethodHead ||
		method == stdhttp.MethodPut || method == stdhttp.MethodDelete
	cfg := c.retry
	cfg.Retryable = func(err error) bool {
		if !idempotent && !c.retryAll {
			return false
		}
		var se *StatusError
		if errors.As(err, &se) {
			return se.Temporary()
		}
		return true
	}
	cfg.OnRetry = func(attempt int, err error, wait time.Duration) {
		c.log.Warn("http retry", "method", method, "url", url, "attempt", attempt, "wait", wait, "err", err)
	}

	return retry.Do(ctx, cfg, func(ctx context.Context) error {
		var rd io.Reader
		if body != nil {
			rd = bytes.NewReader(body)
		}
		req, err := stdhttp.NewRequestWithContext(ctx, method, url, rd)
		if err != nil {
			return retry.Permanent(err)
		}
		for k, v := range c.headers {
			req.Header.Set(k, v)
		}
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.hc.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()
		c.log.Debug("http request", "method", method, "url", url, "status", resp.StatusCode, "duration", time.Since(start))

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			return &StatusError{Method: method, URL: url, Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
		}
		if out == nil {
			_, _ = io.Copy(io.Discard, resp.Body)
			return nil
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return retry.Permanent(fmt.Errorf("decode response: %w", err))
		}
		return nil
	})
}
