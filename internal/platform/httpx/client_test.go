package httpx

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func fastRetry() RetryConfig {
	return RetryConfig{
		MaxRetries:    3,
		InitialDelay:  2 * time.Millisecond,
		MaxDelay:      50 * time.Millisecond,
		BackoffFactor: 2,
		MaxJitter:     time.Millisecond,
	}
}

func TestDefaultRetryConfig(t *testing.T) {
	c := DefaultRetryConfig()
	assert.Equal(t, 3, c.MaxRetries)
	assert.Equal(t, time.Second, c.InitialDelay)
	assert.Equal(t, 30*time.Second, c.MaxDelay)
	assert.Equal(t, 2.0, c.BackoffFactor)
	assert.ElementsMatch(t, []int{408, 429, 500, 502, 503, 504}, c.RetryableStatusCodes)
}

func TestDelay(t *testing.T) {
	c := DefaultRetryConfig()

	assert.Equal(t, time.Second, c.Delay(0, 0))
	assert.Equal(t, 2*time.Second, c.Delay(1, 0))
	assert.Equal(t, 4*time.Second, c.Delay(2, 0))
	assert.Equal(t, 30*time.Second, c.Delay(10, 0), "capped at MaxDelay")
	assert.Equal(t, 1500*time.Millisecond, c.Delay(0, 0.5), "jitter added on top")
	assert.Equal(t, 30*time.Second+999*time.Millisecond, c.Delay(10, 0.999))
}

func TestDo_AlwaysUnavailable(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("down"))
	}))
	defer srv.Close()

	rc := fastRetry()
	c := New(Options{Retry: rc}, testLogger())

	start := time.Now()
	resp, err := c.Get(context.Background(), srv.URL, nil)
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.Nil(t, resp)
	assert.EqualValues(t, 4, hits.Load(), "1 initial + 3 retries")

	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 4, retryErr.Attempts)
	assert.Contains(t, err.Error(), "failed after 4 attempts")

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, http.StatusServiceUnavailable, statusErr.StatusCode)

	bound := rc.InitialDelay*(1+2+4) + rc.MaxJitter*3
	assert.Less(t, elapsed, bound+500*time.Millisecond)
}

func TestDo_RecoversAfterTransientStatus(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Options{Retry: fastRetry()}, testLogger())
	resp, err := c.Get(context.Background(), srv.URL, nil)

	require.NoError(t, err)
	assert.True(t, resp.OK())
	assert.JSONEq(t, `{"ok":true}`, string(resp.Body))
	assert.EqualValues(t, 3, hits.Load())
}

func TestDo_NonRetryableStatusPassesThrough(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	c := New(Options{Retry: fastRetry()}, testLogger())
	resp, err := c.Get(context.Background(), srv.URL, nil)

	require.NoError(t, err, "4xx is a valid response for the caller to interpret")
	assert.False(t, resp.OK())
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.EqualValues(t, 1, hits.Load())
}

func TestDo_NetworkErrorIsRetried(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := srv.URL
	srv.Close()

	rc := fastRetry()
	rc.MaxRetries = 2
	c := New(Options{Retry: rc}, testLogger())
	_, err := c.Get(context.Background(), addr, nil)

	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.Equal(t, 3, retryErr.Attempts)
}

func TestDo_PerRequestOverride(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusTeapot)
	}))
	defer srv.Close()

	c := New(Options{Retry: fastRetry()}, testLogger())
	override := fastRetry()
	override.MaxRetries = 1
	override.RetryableStatusCodes = []int{http.StatusTeapot}

	_, err := c.Do(context.Background(), Request{URL: srv.URL, Retry: &override})

	var retryErr *RetryError
	require.ErrorAs(t, err, &retryErr)
	assert.EqualValues(t, 2, hits.Load())
}

func TestDo_ContextCancelStopsRetrying(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	rc := fastRetry()
	rc.InitialDelay = time.Second
	c := New(Options{Retry: rc}, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := c.Get(ctx, srv.URL, nil)

	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestDo_QueryAndHeaders(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "BTCUSDC", r.URL.Query().Get("symbol"))
		assert.Equal(t, "secret", r.Header.Get("X-MBX-APIKEY"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := New(Options{
		Retry:  fastRetry(),
		Header: http.Header{"X-Mbx-Apikey": []string{"secret"}},
	}, testLogger())
	resp, err := c.Get(context.Background(), srv.URL+"/api/v3/klines", url.Values{"symbol": {"BTCUSDC"}})

	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestDo_RejectsRelativeURL(t *testing.T) {
	c := New(Options{}, testLogger())
	_, err := c.Get(context.Background(), "/api/v3/klines", nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "build url")
}

func TestPostJSON_ResendsBodyOnRetry(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		body, _ := io.ReadAll(r.Body)
		assert.JSONEq(t, `{"text":"hi"}`, string(body))
		if hits.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(Options{Retry: fastRetry()}, testLogger())
	resp, err := c.PostJSON(context.Background(), srv.URL, map[string]string{"text": "hi"})
	require.NoError(t, err)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, int32(2), hits.Load())
}

func TestDo_UntrustedCertificateIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	c := New(Options{Retry: fastRetry()}, testLogger())
	_, err := c.Get(context.Background(), srv.URL, nil)

	require.Error(t, err)
	var retryErr *RetryError
	assert.False(t, errors.As(err, &retryErr), "certificate failures abort after one attempt")
	assert.Contains(t, err.Error(), "certificate")
	assert.Zero(t, hits.Load())
}

func TestDo_TrustedCertificateViaHTTPClient(t *testing.T) {
	srv := httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer srv.Close()

	c := New(Options{Retry: fastRetry()}, testLogger()).WithHTTPClient(srv.Client())
	resp, err := c.Get(context.Background(), srv.URL, nil)

	require.NoError(t, err)
	assert.True(t, resp.OK())
}

func TestDo_InvalidMethodIsNotRetried(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
	}))
	defer srv.Close()

	var retries atomic.Int32
	c := New(Options{Retry: fastRetry()}, testLogger())
	c.jitter = func() float64 { retries.Add(1); return 0 }

	_, err := c.Do(context.Background(), Request{Method: "BAD METHOD", URL: srv.URL})

	require.Error(t, err)
	var retryErr *RetryError
	assert.False(t, errors.As(err, &retryErr))
	assert.Contains(t, err.Error(), "create request")
	assert.Zero(t, retries.Load(), "no backoff was scheduled")
	assert.Zero(t, hits.Load())
}

func TestTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"unexpected eof", fmt.Errorf("read response: %w", io.ErrUnexpectedEOF), true},
		{"connection refused", &net.OpError{Op: "dial", Net: "tcp", Err: syscall.ECONNREFUSED}, true},
		{"connection reset", fmt.Errorf("http request: %w", syscall.ECONNRESET), true},
		{"timeout", &url.Error{Op: "Get", URL: "https://x", Err: timeoutErr{}}, true},
		{"unknown authority", &url.Error{Op: "Get", URL: "https://x", Err: &tls.CertificateVerificationError{Err: x509.UnknownAuthorityError{}}}, false},
		{"hostname mismatch", x509.HostnameError{Host: "x"}, false},
		{"plain error", errors.New("net/http: invalid method"), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transient(tt.err))
		})
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }
