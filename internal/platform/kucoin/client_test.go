package kucoin

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/platform/httpx"
)

func testClient(baseURL string, now time.Time) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	transport := httpx.New(httpx.Options{
		Timeout: 2 * time.Second,
		Retry:   httpx.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, logger)
	c := NewClient(baseURL, transport)
	c.now = func() time.Time { return now }
	return c
}

var btcusdc = domain.Pair{Base: "BTC", Quote: "USDC"}

func TestFetchCandles(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 10, 42, 0, time.UTC)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "/api/v1/market/candles", r.URL.Path)
		assert.Equal(t, "BTC-USDC", q.Get("symbol"))
		assert.Equal(t, "1min", q.Get("type"))
		assert.Equal(t, "1704067680", q.Get("startAt"), "00:08")
		assert.Equal(t, "1704067800", q.Get("endAt"), "00:10")
		_, _ = w.Write([]byte(`{"code":"200000","data":[
			["1704067740","42010","42030","42050","42000","1.5","63000"],
			["1704067680","42000","42010","42020","41990","2","84000"]
		]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, now)
	candles, err := c.FetchCandles(context.Background(), btcusdc, "1m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.True(t, candles[0].OpenTime.Before(candles[1].OpenTime), "ascending")
	first := candles[0]
	assert.Equal(t, time.Unix(1704067680, 0).UTC(), first.OpenTime)
	assert.Equal(t, first.OpenTime.Add(time.Minute), first.CloseTime)
	assert.InDelta(t, 42000, first.Open, 1e-9)
	assert.InDelta(t, 42010, first.Close, 1e-9)
	assert.InDelta(t, 42020, first.High, 1e-9)
	assert.InDelta(t, 41990, first.Low, 1e-9)
	assert.InDelta(t, 2, first.Volume, 1e-9)
}

func TestFetchCandles_TrimsToLimit(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"200000","data":[
			["1704067800","1","1","1","1","1","1"],
			["1704067740","1","1","1","1","1","1"],
			["1704067680","1","1","1","1","1","1"]
		]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, time.Unix(1704067800, 0))
	candles, err := c.FetchCandles(context.Background(), btcusdc, "1m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, int64(1704067800), candles[1].OpenTime.Unix())
}

func TestFetchCandles_EnvelopeError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"400100","msg":"This pair is not provided at present"}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, time.Now())
	_, err := c.FetchCandles(context.Background(), btcusdc, "1m", 5)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVenueAPI)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, "400100", apiErr.Code)
	assert.Equal(t, http.StatusOK, apiErr.HTTPStatus)
}

func TestFetchCandles_HTTPErrorWithoutEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`not found`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, time.Now())
	_, err := c.FetchCandles(context.Background(), btcusdc, "1m", 5)
	assert.ErrorIs(t, err, domain.ErrVenueAPI)
}

func TestFetchCandles_EmptyData(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"200000","data":[]}`))
	}))
	defer srv.Close()

	c := testClient(srv.URL, time.Now())
	candles, err := c.FetchCandles(context.Background(), btcusdc, "1h", 5)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestFetchCandles_UnsupportedInterval(t *testing.T) {
	c := testClient("http://unused.invalid", time.Now())
	_, err := c.FetchCandles(context.Background(), btcusdc, "7m", 5)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{HTTPStatus: 200, Code: "400100", Msg: "bad pair"}
	assert.Equal(t, "kucoin: api error 400100: bad pair", err.Error())
}
