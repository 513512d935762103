// Package service holds the read-side queries and the on-demand arbitrage
// check exposed over HTTP.
package service

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/candlesync/internal/candle"
	"github.com/alanyoungcy/candlesync/internal/domain"
)

// Limits for ListCandles.
const (
	DefaultCandleLimit = 10
	MaxCandleLimit     = 1000
)

// Series is the candles of one venue.
type Series struct {
	Venue domain.Venue    `json:"venue"`
	Color string          `json:"color"`
	Data  []domain.Candle `json:"data"`
}

// CandleList is the listCandles response.
type CandleList struct {
	Total    int      `json:"total"`
	Symbol   string   `json:"symbol"`
	Interval string   `json:"interval"`
	Limit    int      `json:"limit"`
	Series   []Series `json:"series"`
}

// CandleService answers candle queries from the store.
type CandleService struct {
	store  domain.CandleStore
	base   domain.Interval
	logger *slog.Logger
}

// NewCandleService creates a CandleService. base is the ingested interval.
func NewCandleService(store domain.CandleStore, base domain.Interval, logger *slog.Logger) *CandleService {
	return &CandleService{
		store:  store,
		base:   base,
		logger: logger.With(slog.String("component", "candle_service")),
	}
}

// ListCandles returns the newest limit candles of every venue for symbol.
// An interval that is a whole multiple of the ingested one is rolled up; any
// other interval is domain.ErrInvalidInput. An unknown symbol is
// domain.ErrNotFound.
func (s *CandleService) ListCandles(ctx context.Context, symbol, interval string, limit int) (CandleList, error) {
	sym, err := NormalizeSymbol(symbol)
	if err != nil {
		return CandleList{}, err
	}
	limit = clampLimit(limit)

	target := s.base
	if interval != "" {
		if target, err = domain.ParseInterval(interval); err != nil {
			return CandleList{}, fmt.Errorf("service: list candles: %w", err)
		}
	}
	factor, err := candle.Factor(s.base, target)
	if err != nil {
		return CandleList{}, fmt.Errorf("service: list candles: %w", err)
	}

	if _, err := s.store.GetSymbol(ctx, sym); err != nil {
		return CandleList{}, fmt.Errorf("service: list candles %s: %w", sym, err)
	}
	recs, err := s.store.ListVenueRecords(ctx, sym)
	if err != nil {
		return CandleList{}, fmt.Errorf("service: list candles %s: %w", sym, err)
	}

	out := CandleList{
		Symbol:   sym,
		Interval: target.String(),
		Limit:    limit,
		Series:   make([]Series, 0, len(recs)),
	}
	for _, rec := range recs {
		data, err := s.venueCandles(ctx, rec, target, factor, limit)
		if err != nil {
			return CandleList{}, err
		}
		out.Series = append(out.Series, Series{Venue: rec.Venue, Color: rec.DisplayColor, Data: data})
		out.Total += len(data)
	}
	return out, nil
}

func (s *CandleService) venueCandles(ctx context.Context, rec domain.VenueRecord, target domain.Interval, factor, limit int) ([]domain.Candle, error) {
	if factor == 1 {
		data, err := s.store.ListLatest(ctx, rec.ID, limit)
		if err != nil {
			return nil, fmt.Errorf("service: list candles %s/%s: %w", rec.Venue, rec.Symbol, err)
		}
		return data, nil
	}

	// One extra target bucket covers a partially filled oldest bucket.
	base, err := s.store.ListLatest(ctx, rec.ID, (limit+1)*factor)
	if err != nil {
		return nil, fmt.Errorf("service: list candles %s/%s: %w", rec.Venue, rec.Symbol, err)
	}
	return candle.Last(candle.Rollup(base, target), limit), nil
}

// NormalizeSymbol accepts "BTCUSDC", "btc-usdc" or "BTC/USDC" and returns
// the stored form "BTCUSDC".
func NormalizeSymbol(symbol string) (string, error) {
	symbol = strings.TrimSpace(symbol)
	if symbol == "" {
		return "", fmt.Errorf("%w: symbol is required", domain.ErrInvalidInput)
	}
	if strings.ContainsAny(symbol, "-/") {
		pair, err := domain.ParsePair(symbol)
		if err != nil {
			return "", err
		}
		return pair.Symbol(), nil
	}
	return strings.ToUpper(symbol), nil
}

func clampLimit(limit int) int {
	switch {
	case limit == 0:
		return DefaultCandleLimit
	case limit < 1:
		return 1
	case limit > MaxCandleLimit:
		return MaxCandleLimit
	}
	return limit
}
