package openbook

import (
	"context"
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

const market = "8BnEgHoWFysVcuFFX7QztDmzuH8r5ZFvyP3sYwn1XTh6"

func testClient(baseURL string) *Client {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	transport := httpx.New(httpx.Options{
		Timeout: 2 * time.Second,
		Retry:   httpx.RetryConfig{MaxRetries: 1, InitialDelay: time.Millisecond, MaxDelay: time.Millisecond},
	}, logger)
	return NewClient(baseURL, 5, transport)
}

func bookServer(t *testing.T, body string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/orderbook/"+market, r.URL.Path)
		assert.Equal(t, "5", r.URL.Query().Get("depth"))
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestOrderBook(t *testing.T) {
	srv := bookServer(t, `{"market":"`+market+`",
		"bids":[["141.90","3.5"],[141.95,1]],
		"asks":[["142.10","2"],["142.05","0.5"]]}`)

	book, err := testClient(srv.URL).OrderBook(context.Background(), market)
	require.NoError(t, err)
	assert.Equal(t, market, book.Market)
	require.Len(t, book.Bids, 2)
	require.Len(t, book.Asks, 2)
	assert.InDelta(t, 141.95, book.Bids[1].Price, 1e-9)
	assert.False(t, book.Timestamp.IsZero())
}

func TestMidPrice(t *testing.T) {
	srv := bookServer(t, `{"bids":[["141.90","3.5"],["141.95","1"]],"asks":[["142.10","2"],["142.05","0.5"]]}`)

	mid, err := testClient(srv.URL).MidPrice(context.Background(), market)
	require.NoError(t, err)
	assert.InDelta(t, 142.0, mid, 1e-9)
}

func TestMidPrice_EmptySide(t *testing.T) {
	for name, body := range map[string]string{
		"no bids": `{"bids":[],"asks":[["142.10","2"]]}`,
		"no asks": `{"bids":[["141.90","1"]],"asks":[]}`,
		"empty":   `{}`,
	} {
		t.Run(name, func(t *testing.T) {
			srv := bookServer(t, body)
			_, err := testClient(srv.URL).MidPrice(context.Background(), market)
			assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
		})
	}
}

func TestOrderBook_BadLevel(t *testing.T) {
	srv := bookServer(t, `{"bids":[["x","1"]],"asks":[]}`)
	_, err := testClient(srv.URL).OrderBook(context.Background(), market)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bid.price")
}

func TestOrderBook_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":"unknown market"}`))
	}))
	defer srv.Close()

	_, err := testClient(srv.URL).OrderBook(context.Background(), market)
	assert.ErrorIs(t, err, domain.ErrVenueAPI)
	assert.Contains(t, err.Error(), "unknown market")
}

func TestOrderBook_EmptyMarket(t *testing.T) {
	_, err := testClient("http://unused.invalid").OrderBook(context.Background(), "")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
