package domain

import (
	"fmt"
	"strings"
	"time"
)

// Venue identifies a price source.
type Venue string

const (
	VenueBinance  Venue = "binance"
	VenueKucoin   Venue = "kucoin"
	VenueOpenbook Venue = "openbook"
)

// Candle is one OHLCV bucket for a (venue, symbol) pair.
type Candle struct {
	OpenTime  time.Time `json:"openTime"`
	CloseTime time.Time `json:"closeTime"`
	Open      float64   `json:"open"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Close     float64   `json:"close"`
	Volume    float64   `json:"volume"`
}

// Pair is a traded asset pair such as BTC/USDC.
type Pair struct {
	Base  string
	Quote string
}

// ParsePair parses "BTC-USDC" or "BTC/USDC" into a Pair.
func ParsePair(s string) (Pair, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	sep := strings.IndexAny(s, "-/")
	if sep <= 0 || sep == len(s)-1 {
		return Pair{}, fmt.Errorf("%w: pair %q must look like BASE-QUOTE", ErrInvalidInput, s)
	}
	return Pair{Base: s[:sep], Quote: s[sep+1:]}, nil
}

// Symbol returns the canonical concatenated symbol, e.g. "BTCUSDC".
func (p Pair) Symbol() string {
	return p.Base + p.Quote
}

// String returns "BASE-QUOTE".
func (p Pair) String() string {
	return p.Base + "-" + p.Quote
}

// Interval is a canonical candle granularity ("1m", "1h", ...).
type Interval string

var intervalDurations = map[Interval]time.Duration{
	"1m":  time.Minute,
	"3m":  3 * time.Minute,
	"5m":  5 * time.Minute,
	"15m": 15 * time.Minute,
	"30m": 30 * time.Minute,
	"1h":  time.Hour,
	"2h":  2 * time.Hour,
	"4h":  4 * time.Hour,
	"6h":  6 * time.Hour,
	"8h":  8 * time.Hour,
	"12h": 12 * time.Hour,
	"1d":  24 * time.Hour,
	"1w":  7 * 24 * time.Hour,
}

// ParseInterval validates s against the known granularities.
func ParseInterval(s string) (Interval, error) {
	iv := Interval(strings.TrimSpace(s))
	if _, ok := intervalDurations[iv]; !ok {
		return "", fmt.Errorf("%w: unknown interval %q", ErrInvalidInput, s)
	}
	return iv, nil
}

// Duration returns the bucket length, or 0 for an unknown interval.
func (i Interval) Duration() time.Duration {
	return intervalDurations[i]
}

func (i Interval) String() string {
	return string(i)
}

// CandleEvent is published on ChannelCandles after a venue routine stores
// its candles.
type CandleEvent struct {
	Venue    Venue    `json:"venue"`
	Symbol   string   `json:"symbol"`
	Interval Interval `json:"interval"`
	Candle   Candle   `json:"candle"`
}
