package binance

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

func testTransport() *httpx.Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return httpx.New(httpx.Options{
		Timeout: 2 * time.Second,
		Retry: httpx.RetryConfig{
			MaxRetries:   1,
			InitialDelay: time.Millisecond,
			MaxDelay:     time.Millisecond,
		},
	}, logger)
}

var solusdc = domain.Pair{Base: "SOL", Quote: "USDC"}

func TestFetchCandles(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/klines", r.URL.Path)
		assert.Equal(t, "SOLUSDC", r.URL.Query().Get("symbol"))
		assert.Equal(t, "1m", r.URL.Query().Get("interval"))
		assert.Equal(t, "2", r.URL.Query().Get("limit"))
		assert.Empty(t, r.URL.Query().Get("startTime"))
		_, _ = w.Write([]byte(`[
			[1700000000000,"100.1","101.0","99.5","100.7","12.5",1700000059999,"0",3,"0","0","0"],
			[1700000060000,"100.7","102.0","100.0","101.9","8",1700000119999,"0",2,"0","0","0"]
		]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", testTransport())
	candles, err := c.FetchCandles(context.Background(), solusdc, "1m", 2)
	require.NoError(t, err)
	require.Len(t, candles, 2)

	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), candles[0].OpenTime)
	assert.Equal(t, time.UnixMilli(1700000060000).UTC(), candles[0].CloseTime)
	assert.InDelta(t, 100.1, candles[0].Open, 1e-9)
	assert.InDelta(t, 101.9, candles[1].Close, 1e-9)
	assert.Equal(t, domain.VenueBinance, c.Venue())
}

func TestFetchCandlesWindow_Params(t *testing.T) {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	end := start.Add(time.Hour)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "1704067200000", r.URL.Query().Get("startTime"))
		assert.Equal(t, "1704070800000", r.URL.Query().Get("endTime"))
		_, _ = w.Write([]byte(`[]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", testTransport())
	candles, err := c.FetchCandlesWindow(context.Background(), solusdc, "1m", start, end, 60)
	require.NoError(t, err)
	assert.Empty(t, candles)
}

func TestFetchCandles_InvalidLimit(t *testing.T) {
	c := NewClient("http://unused.invalid", "", testTransport())
	for _, limit := range []int{0, -1, 1001} {
		_, err := c.FetchCandles(context.Background(), solusdc, "1m", limit)
		assert.ErrorIs(t, err, domain.ErrInvalidInput, "limit %d", limit)
	}
}

func TestFetchCandles_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":-1121,"msg":"Invalid symbol."}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", testTransport())
	_, err := c.FetchCandles(context.Background(), solusdc, "1m", 10)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVenueAPI)

	var apiErr *APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, -1121, apiErr.Code)
	assert.Equal(t, http.StatusBadRequest, apiErr.HTTPStatus)
	assert.Equal(t, "Invalid symbol.", apiErr.Msg)
}

func TestFetchCandles_MalformedRow(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`[[1700000000000,"abc","1","1","1","1"]]`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", testTransport())
	_, err := c.FetchCandles(context.Background(), solusdc, "1m", 1)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "open")
}

func TestTickerPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v3/ticker/price", r.URL.Path)
		_, _ = w.Write([]byte(`{"symbol":"SOLUSDC","price":"142.35000000"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "", testTransport())
	price, err := c.TickerPrice(context.Background(), solusdc)
	require.NoError(t, err)
	assert.InDelta(t, 142.35, price, 1e-9)
}

func TestTickerPrice_Fallback(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"code":0,"msg":"restricted location"}`))
	}))
	defer primary.Close()
	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"symbol":"SOLUSDC","price":"99.5"}`))
	}))
	defer fallback.Close()

	c := NewClient(primary.URL, fallback.URL, testTransport())
	price, err := c.TickerPrice(context.Background(), solusdc)
	require.NoError(t, err)
	assert.InDelta(t, 99.5, price, 1e-9)
}

func TestTickerPrice_BothFail(t *testing.T) {
	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer down.Close()

	c := NewClient(down.URL, down.URL, testTransport())
	_, err := c.TickerPrice(context.Background(), solusdc)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrVenueAPI)
	assert.Contains(t, err.Error(), "fallback")
}

func TestAPIError_Message(t *testing.T) {
	err := &APIError{HTTPStatus: 400, Code: -1121, Msg: "Invalid symbol."}
	assert.Equal(t, "binance: api error -1121: Invalid symbol.", err.Error())
}
