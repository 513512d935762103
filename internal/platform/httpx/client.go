// Package httpx is the retrying HTTP transport shared by every venue client.
// Responses outside 2xx are handed back to the caller unless their status is
// configured as retryable; only network failures and retryable statuses are
// retried. Request construction and certificate failures abort at once.
package httpx

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"net/http"
	"net/url"
	"time"

	"github.com/sethvargo/go-retry"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/candlesync/internal/metrics"
)

// Options configures a Client.
type Options struct {
	Timeout           time.Duration
	RequestsPerSecond float64 // 0 disables client-side throttling
	Burst             int
	Header            http.Header // sent with every request
	Retry             RetryConfig
}

// Request describes one logical call. Retry, when set, replaces the client's
// retry configuration for this call only.
type Request struct {
	Method string
	URL    string
	Query  url.Values
	Header http.Header
	// Body is re-sent on every attempt. A non-empty body defaults the
	// Content-Type to application/json.
	Body  []byte
	Retry *RetryConfig
}

// Response is a fully read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client is safe for concurrent use.
type Client struct {
	httpClient *http.Client
	retry      RetryConfig
	limiter    *rate.Limiter
	header     http.Header
	jitter     func() float64
	logger     *slog.Logger
}

// New creates a Client. A zero Timeout defaults to 30s.
func New(opts Options, logger *slog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := opts.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		retry:      opts.Retry.withDefaults(),
		limiter:    limiter,
		header:     opts.Header.Clone(),
		jitter:     rand.Float64,
		logger:     logger.With(slog.String("component", "httpx")),
	}
}

// WithHTTPClient swaps the underlying *http.Client, e.g. for a custom TLS root.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Get is shorthand for a GET Do.
func (c *Client) Get(ctx context.Context, rawURL string, query url.Values) (*Response, error) {
	return c.Do(ctx, Request{Method: http.MethodGet, URL: rawURL, Query: query})
}

// PostJSON marshals v and POSTs it.
func (c *Client) PostJSON(ctx context.Context, rawURL string, v any) (*Response, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("httpx: marshal body: %w", err)
	}
	return c.Do(ctx, Request{Method: http.MethodPost, URL: rawURL, Body: body})
}

// Do performs req with exponential backoff. Non-retryable statuses, including
// most 4xx, come back as a Response with a nil error.
func (c *Client) Do(ctx context.Context, req Request) (*Response, error) {
	rc := c.retry
	if req.Retry != nil {
		rc = req.Retry.withDefaults()
	}
	if req.Method == "" {
		req.Method = http.MethodGet
	}
	target, err := buildURL(req.URL, req.Query)
	if err != nil {
		return nil, fmt.Errorf("httpx: build url: %w", err)
	}

	var (
		resp      *Response
		lastErr   error
		attempts  int
		retryable bool
		retryN    int
	)

	backoff := retry.WithMaxRetries(uint64(rc.MaxRetries), retry.BackoffFunc(func() (time.Duration, bool) {
		delay := rc.Delay(retryN, c.jitter())
		retryN++
		metrics.TransportRetries.WithLabelValues(target.Host).Inc()
		c.logger.WarnContext(ctx, "retrying request",
			slog.String("method", req.Method),
			slog.String("url", target.Redacted()),
			slog.Int("attempt", attempts),
			slog.Int("max_retries", rc.MaxRetries),
			slog.Duration("delay", delay),
			slog.String("error", lastErr.Error()),
		)
		return delay, false
	}))

	err = retry.Do(ctx, backoff, func(ctx context.Context) error {
		attempts++
		r, err := c.once(ctx, req, target)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil || !transient(err) {
				retryable = false
				return err
			}
			retryable = true
			return retry.RetryableError(err)
		}
		if rc.retryable(r.StatusCode) {
			lastErr = &StatusError{StatusCode: r.StatusCode, Body: r.Body}
			retryable = true
			return retry.RetryableError(lastErr)
		}
		resp = r
		return nil
	})
	if err == nil {
		return resp, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, fmt.Errorf("httpx: %s %s: %w", req.Method, target.Redacted(), ctxErr)
	}
	if retryable {
		return nil, &RetryError{Attempts: attempts, Last: lastErr}
	}
	return nil, fmt.Errorf("httpx: %s %s: %w", req.Method, target.Redacted(), err)
}

func (c *Client) once(ctx context.Context, req Request, target *url.URL) (*Response, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}

	var body io.Reader
	if len(req.Body) > 0 {
		body = bytes.NewReader(req.Body)
	}
	httpReq, err := http.NewRequestWithContext(ctx, req.Method, target.String(), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Accept", "application/json")
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	for k, vs := range c.header {
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}
	for k, vs := range req.Header {
		httpReq.Header.Del(k)
		for _, v := range vs {
			httpReq.Header.Add(k, v)
		}
	}

	httpResp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	return &Response{
		StatusCode: httpResp.StatusCode,
		Header:     httpResp.Header,
		Body:       data,
	}, nil
}

func buildURL(raw string, query url.Values) (*url.URL, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, errors.New("url must be absolute: " + raw)
	}
	if len(query) > 0 {
		q := u.Query()
		for k, vs := range query {
			for _, v := range vs {
				q.Add(k, v)
			}
		}
		u.RawQuery = q.Encode()
	}
	return u, nil
}
