// Package openbook reads DEX order books from an OpenBook indexer.
package openbook

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/alanyoungcy/candlesync/internal/candle"
	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/platform/httpx"
)

// DefaultDepth is the number of levels requested per side.
const DefaultDepth = 20

// Client fetches order books for OpenBook markets.
type Client struct {
	baseURL   string
	depth     int
	transport *httpx.Client
	now       func() time.Time
}

// NewClient creates a client. A depth below 1 uses DefaultDepth.
func NewClient(baseURL string, depth int, transport *httpx.Client) *Client {
	if depth < 1 {
		depth = DefaultDepth
	}
	return &Client{
		baseURL:   strings.TrimRight(baseURL, "/"),
		depth:     depth,
		transport: transport,
		now:       time.Now,
	}
}

// Venue returns domain.VenueOpenbook.
func (c *Client) Venue() domain.Venue {
	return domain.VenueOpenbook
}

// OrderBook returns the current bids and asks of market.
func (c *Client) OrderBook(ctx context.Context, market string) (domain.OrderBook, error) {
	if market == "" {
		return domain.OrderBook{}, fmt.Errorf("openbook: order book: %w: empty market address", domain.ErrInvalidInput)
	}

	params := url.Values{}
	params.Set("depth", strconv.Itoa(c.depth))

	resp, err := c.transport.Get(ctx, c.baseURL+"/orderbook/"+url.PathEscape(market), params)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("openbook: order book %s: %w", market, err)
	}
	if !resp.OK() {
		return domain.OrderBook{}, fmt.Errorf("openbook: order book %s: %w", market, newAPIError(resp.StatusCode, resp.Body))
	}

	var raw bookResponse
	if err := json.Unmarshal(resp.Body, &raw); err != nil {
		return domain.OrderBook{}, fmt.Errorf("openbook: decode order book: %w", err)
	}

	bids, err := parseLevels("bid", raw.Bids)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("openbook: order book %s: %w", market, err)
	}
	asks, err := parseLevels("ask", raw.Asks)
	if err != nil {
		return domain.OrderBook{}, fmt.Errorf("openbook: order book %s: %w", market, err)
	}

	return domain.OrderBook{
		Market:    market,
		Bids:      bids,
		Asks:      asks,
		Timestamp: c.now().UTC(),
	}, nil
}

// MidPrice returns the midpoint of the best bid and best ask of market.
// An empty side yields domain.ErrInsufficientLiquidity.
func (c *Client) MidPrice(ctx context.Context, market string) (float64, error) {
	book, err := c.OrderBook(ctx, market)
	if err != nil {
		return 0, err
	}
	mid, err := book.MidPrice()
	if err != nil {
		return 0, fmt.Errorf("openbook: mid price %s: %w", market, err)
	}
	return mid, nil
}

func parseLevels(side string, rows [][]json.RawMessage) ([]domain.PriceLevel, error) {
	levels := make([]domain.PriceLevel, 0, len(rows))
	for i, row := range rows {
		if len(row) < 2 {
			return nil, fmt.Errorf("%s level %d: %w: want [price,size]", side, i, domain.ErrInvalidInput)
		}
		price, err := candle.ParseDecimal(domain.VenueOpenbook, i, side+".price", rawString(row[0]))
		if err != nil {
			return nil, err
		}
		size, err := candle.ParseDecimal(domain.VenueOpenbook, i, side+".size", rawString(row[1]))
		if err != nil {
			return nil, err
		}
		levels = append(levels, domain.PriceLevel{Price: price, Size: size})
	}
	return levels, nil
}

// rawString accepts both "1.5" and 1.5.
func rawString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
