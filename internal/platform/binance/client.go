// Package binance is the CEX-A client: spot klines and ticker prices from a
// Binance-compatible REST API.
package binance

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/candlesync/internal/candle"
	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/platform/httpx"
)

// maxLimit is the largest page the klines endpoint accepts.
const maxLimit = 1000

// Client talks to the public market-data endpoints.
type Client struct {
	baseURL     string
	fallbackURL string
	transport   *httpx.Client
}

// NewClient creates a client. fallbackURL may be empty; when set, ticker
// lookups that fail against baseURL are retried once against it.
func NewClient(baseURL, fallbackURL string, transport *httpx.Client) *Client {
	return &Client{
		baseURL:     strings.TrimRight(baseURL, "/"),
		fallbackURL: strings.TrimRight(fallbackURL, "/"),
		transport:   transport,
	}
}

// Venue implements pipeline.CandleSource.
func (c *Client) Venue() domain.Venue {
	return domain.VenueBinance
}

// FetchCandles returns the latest limit klines for pair.
func (c *Client) FetchCandles(ctx context.Context, pair domain.Pair, interval domain.Interval, limit int) ([]domain.Candle, error) {
	return c.FetchCandlesWindow(ctx, pair, interval, time.Time{}, time.Time{}, limit)
}

// FetchCandlesWindow returns klines whose open time lies in [start, end].
// Zero times leave the corresponding bound open.
func (c *Client) FetchCandlesWindow(ctx context.Context, pair domain.Pair, interval domain.Interval, start, end time.Time, limit int) ([]domain.Candle, error) {
	if limit <= 0 || limit > maxLimit {
		return nil, fmt.Errorf("binance: fetch klines: %w: limit %d out of range 1-%d", domain.ErrInvalidInput, limit, maxLimit)
	}

	params := url.Values{}
	params.Set("symbol", Symbol(pair))
	params.Set("interval", string(interval))
	params.Set("limit", strconv.Itoa(limit))
	if !start.IsZero() {
		params.Set("startTime", strconv.FormatInt(start.UnixMilli(), 10))
	}
	if !end.IsZero() {
		params.Set("endTime", strconv.FormatInt(end.UnixMilli(), 10))
	}

	body, err := c.get(ctx, c.baseURL, "/api/v3/klines", params)
	if err != nil {
		return nil, fmt.Errorf("binance: fetch klines %s: %w", Symbol(pair), err)
	}

	var rows [][]json.RawMessage
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("binance: decode klines: %w", err)
	}

	candles, err := candle.FromBinance(rows, interval)
	if err != nil {
		return nil, fmt.Errorf("binance: normalize klines %s: %w", Symbol(pair), err)
	}
	return candles, nil
}

// TickerPrice returns the last traded price for pair.
func (c *Client) TickerPrice(ctx context.Context, pair domain.Pair) (float64, error) {
	params := url.Values{}
	params.Set("symbol", Symbol(pair))

	price, err := c.tickerFrom(ctx, c.baseURL, params)
	if err == nil {
		return price, nil
	}
	if c.fallbackURL == "" || errors.Is(err, context.Canceled) {
		return 0, fmt.Errorf("binance: ticker price %s: %w", Symbol(pair), err)
	}

	price, fbErr := c.tickerFrom(ctx, c.fallbackURL, params)
	if fbErr != nil {
		return 0, fmt.Errorf("binance: ticker price %s: %w", Symbol(pair), errors.Join(err, fmt.Errorf("fallback: %w", fbErr)))
	}
	return price, nil
}

func (c *Client) tickerFrom(ctx context.Context, base string, params url.Values) (float64, error) {
	body, err := c.get(ctx, base, "/api/v3/ticker/price", params)
	if err != nil {
		return 0, err
	}

	var t tickerPrice
	if err := json.Unmarshal(body, &t); err != nil {
		return 0, fmt.Errorf("decode ticker: %w", err)
	}
	price, err := candle.ParseDecimal(domain.VenueBinance, 0, "price", t.Price)
	if err != nil {
		return 0, err
	}
	if price <= 0 {
		return 0, fmt.Errorf("%w: non-positive price %q", domain.ErrInvalidInput, t.Price)
	}
	return price, nil
}

func (c *Client) get(ctx context.Context, base, path string, params url.Values) ([]byte, error) {
	resp, err := c.transport.Get(ctx, base+path, params)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, newAPIError(resp.StatusCode, resp.Body)
	}
	return resp.Body, nil
}

// Symbol renders pair the way Binance expects it, e.g. "BTCUSDC".
func Symbol(pair domain.Pair) string {
	return pair.Base + pair.Quote
}
