// Package kucoin is the CEX-B client for KuCoin's public candle API.
package kucoin

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/candlesync/internal/candle"
	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/platform/httpx"
)

// codeSuccess is the envelope code of every successful response.
const codeSuccess = "200000"

// kucoinTypes maps canonical intervals to KuCoin's "type" parameter.
var kucoinTypes = map[domain.Interval]string{
	"1m":  "1min",
	"3m":  "3min",
	"5m":  "5min",
	"15m": "15min",
	"30m": "30min",
	"1h":  "1hour",
	"2h":  "2hour",
	"4h":  "4hour",
	"6h":  "6hour",
	"8h":  "8hour",
	"12h": "12hour",
	"1d":  "1day",
	"1w":  "1week",
}

// Client fetches candles from KuCoin.
type Client struct {
	baseURL   string
	transport *httpx.Client
	now       func() time.Time
}

// NewClient creates a client against baseURL, e.g. https://api.kucoin.com.
func NewClient(baseURL string, transport *httpx.Client) *Client {
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		transport: transport,
		now:       time.Now,
	}
}

// Venue implements pipeline.CandleSource.
func (c *Client) Venue() domain.Venue {
	return domain.VenueKucoin
}

// FetchCandles returns up to limit closed candles ending at the bucket
// boundary at or before now, oldest first. KuCoin has no limit parameter, so
// the window is derived from it.
func (c *Client) FetchCandles(ctx context.Context, pair domain.Pair, interval domain.Interval, limit int) ([]domain.Candle, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("kucoin: fetch candles: %w: limit %d", domain.ErrInvalidInput, limit)
	}
	start, end := candle.AlignedWindow(c.now(), interval, limit)
	candles, err := c.FetchCandlesWindow(ctx, pair, interval, start, end)
	if err != nil {
		return nil, err
	}
	return candle.Last(candles, limit), nil
}

// FetchCandlesWindow returns candles in [start, end], oldest first.
func (c *Client) FetchCandlesWindow(ctx context.Context, pair domain.Pair, interval domain.Interval, start, end time.Time) ([]domain.Candle, error) {
	typ, ok := kucoinTypes[interval]
	if !ok {
		return nil, fmt.Errorf("kucoin: fetch candles: %w: unsupported interval %q", domain.ErrInvalidInput, interval)
	}

	params := url.Values{}
	params.Set("symbol", Symbol(pair))
	params.Set("type", typ)
	if !start.IsZero() {
		params.Set("startAt", strconv.FormatInt(start.Unix(), 10))
	}
	if !end.IsZero() {
		params.Set("endAt", strconv.FormatInt(end.Unix(), 10))
	}

	resp, err := c.transport.Get(ctx, c.baseURL+"/api/v1/market/candles", params)
	if err != nil {
		return nil, fmt.Errorf("kucoin: fetch candles %s: %w", Symbol(pair), err)
	}

	var env envelope
	if err := json.Unmarshal(resp.Body, &env); err != nil {
		if !resp.OK() {
			return nil, fmt.Errorf("kucoin: fetch candles %s: %w", Symbol(pair),
				&APIError{HTTPStatus: resp.StatusCode, Msg: string(resp.Body)})
		}
		return nil, fmt.Errorf("kucoin: decode candles: %w", err)
	}
	if !resp.OK() || env.Code != codeSuccess {
		msg := env.Msg
		if msg == "" {
			msg = string(env.Data)
		}
		return nil, fmt.Errorf("kucoin: fetch candles %s: %w", Symbol(pair),
			&APIError{HTTPStatus: resp.StatusCode, Code: env.Code, Msg: msg})
	}

	var rows [][]string
	if len(env.Data) > 0 && string(env.Data) != "null" {
		if err := json.Unmarshal(env.Data, &rows); err != nil {
			return nil, fmt.Errorf("kucoin: decode candle rows: %w", err)
		}
	}

	candles, err := candle.FromKucoin(rows, interval)
	if err != nil {
		return nil, fmt.Errorf("kucoin: normalize candles %s: %w", Symbol(pair), err)
	}
	// KuCoin returns newest first.
	sort.Slice(candles, func(i, j int) bool { return candles[i].OpenTime.Before(candles[j].OpenTime) })
	return candles, nil
}

// Symbol renders pair the way KuCoin expects it, e.g. "BTC-USDC".
func Symbol(pair domain.Pair) string {
	return pair.Base + "-" + pair.Quote
}
