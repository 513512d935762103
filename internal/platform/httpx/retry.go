package httpx

import (
	"fmt"
	"math"
	"slices"
	"time"
)

// RetryConfig enumerates every retry option of the transport. Zero values
// are replaced by the defaults in DefaultRetryConfig, except MaxRetries where
// zero means "no retries".
type RetryConfig struct {
	MaxRetries           int
	InitialDelay         time.Duration
	MaxDelay             time.Duration
	BackoffFactor        float64
	MaxJitter            time.Duration
	RetryableStatusCodes []int
}

// DefaultRetryConfig returns 3 retries, 1s initial delay doubling up to 30s,
// up to 1s of jitter, and retries on 408, 429, 500, 502, 503 and 504.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:           3,
		InitialDelay:         time.Second,
		MaxDelay:             30 * time.Second,
		BackoffFactor:        2,
		MaxJitter:            time.Second,
		RetryableStatusCodes: []int{408, 429, 500, 502, 503, 504},
	}
}

func (c RetryConfig) withDefaults() RetryConfig {
	d := DefaultRetryConfig()
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.InitialDelay <= 0 {
		c.InitialDelay = d.InitialDelay
	}
	if c.MaxDelay <= 0 {
		c.MaxDelay = d.MaxDelay
	}
	if c.BackoffFactor <= 0 {
		c.BackoffFactor = d.BackoffFactor
	}
	if c.MaxJitter < 0 {
		c.MaxJitter = 0
	}
	if len(c.RetryableStatusCodes) == 0 {
		c.RetryableStatusCodes = d.RetryableStatusCodes
	}
	return c
}

// Delay returns the wait before retry number attempt (0-based):
// min(InitialDelay*BackoffFactor^attempt, MaxDelay) + u*MaxJitter, u in [0,1).
func (c RetryConfig) Delay(attempt int, u float64) time.Duration {
	base := float64(c.InitialDelay) * math.Pow(c.BackoffFactor, float64(attempt))
	if base > float64(c.MaxDelay) || math.IsInf(base, 1) {
		base = float64(c.MaxDelay)
	}
	return time.Duration(base) + time.Duration(u*float64(c.MaxJitter))
}

func (c RetryConfig) retryable(status int) bool {
	return slices.Contains(c.RetryableStatusCodes, status)
}

// StatusError reports a retryable HTTP status that was still failing when
// retries ran out.
type StatusError struct {
	StatusCode int
	Body       []byte
}

func (e *StatusError) Error() string {
	body := string(e.Body)
	if len(body) > 256 {
		body = body[:256] + "..."
	}
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, body)
}

// RetryError is returned once every attempt failed with a retryable cause.
type RetryError struct {
	Attempts int
	Last     error
}

func (e *RetryError) Error() string {
	return fmt.Sprintf("httpx: failed after %d attempts: last error: %v", e.Attempts, e.Last)
}

func (e *RetryError) Unwrap() error {
	return e.Last
}
