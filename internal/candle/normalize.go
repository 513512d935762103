// Package candle turns venue-native kline payloads into domain.Candle values
// and aggregates candles into coarser buckets. Everything here is pure.
package candle

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// ParseError names the venue, row and field that could not be normalized.
type ParseError struct {
	Venue domain.Venue
	Row   int
	Field string
	Value string
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("candle: %s row %d field %q: %v (value %q)", e.Venue, e.Row, e.Field, e.Err, e.Value)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	errInvalidDecimal = errors.New("invalid decimal")
	errNegative       = errors.New("negative value")
	errShortRow       = errors.New("row too short")
	errBadTimestamp   = errors.New("invalid timestamp")
)

// ParseDecimal parses a price or volume string exactly and converts it to
// float64. Negative values are rejected.
func ParseDecimal(venue domain.Venue, row int, field, value string) (float64, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return 0, &ParseError{Venue: venue, Row: row, Field: field, Value: value, Err: errInvalidDecimal}
	}
	if d.IsNegative() {
		return 0, &ParseError{Venue: venue, Row: row, Field: field, Value: value, Err: errNegative}
	}
	return d.InexactFloat64(), nil
}

// binanceFields maps kline array positions to field names.
var binanceFields = [...]string{"openTime", "open", "high", "low", "close", "volume"}

// FromBinance normalizes Binance klines:
// [openTimeMs, "open", "high", "low", "close", "volume", closeTimeMs, ...].
// CloseTime is derived from the interval rather than read from the row.
func FromBinance(rows [][]json.RawMessage, interval domain.Interval) ([]domain.Candle, error) {
	bucket := interval.Duration()
	if bucket <= 0 {
		return nil, fmt.Errorf("candle: %w: unknown interval %q", domain.ErrInvalidInput, interval)
	}

	out := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < len(binanceFields) {
			return nil, &ParseError{Venue: domain.VenueBinance, Row: i, Field: "row", Value: fmt.Sprint(len(row)), Err: errShortRow}
		}

		ms, err := strconv.ParseInt(unquote(row[0]), 10, 64)
		if err != nil || ms <= 0 {
			return nil, &ParseError{Venue: domain.VenueBinance, Row: i, Field: "openTime", Value: string(row[0]), Err: errBadTimestamp}
		}

		var vals [5]float64
		for j := range vals {
			v, err := ParseDecimal(domain.VenueBinance, i, binanceFields[j+1], unquote(row[j+1]))
			if err != nil {
				return nil, err
			}
			vals[j] = v
		}

		open := time.UnixMilli(ms).UTC()
		out = append(out, domain.Candle{
			OpenTime:  open,
			CloseTime: open.Add(bucket),
			Open:      vals[0],
			High:      vals[1],
			Low:       vals[2],
			Close:     vals[3],
			Volume:    vals[4],
		})
	}
	return out, nil
}

// FromKucoin normalizes KuCoin candles:
// [startSec, open, close, high, low, volume, turnover]. Note close precedes high.
func FromKucoin(rows [][]string, interval domain.Interval) ([]domain.Candle, error) {
	bucket := interval.Duration()
	if bucket <= 0 {
		return nil, fmt.Errorf("candle: %w: unknown interval %q", domain.ErrInvalidInput, interval)
	}

	out := make([]domain.Candle, 0, len(rows))
	for i, row := range rows {
		if len(row) < 6 {
			return nil, &ParseError{Venue: domain.VenueKucoin, Row: i, Field: "row", Value: fmt.Sprint(len(row)), Err: errShortRow}
		}

		sec, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil || sec <= 0 {
			return nil, &ParseError{Venue: domain.VenueKucoin, Row: i, Field: "openTime", Value: row[0], Err: errBadTimestamp}
		}

		var c domain.Candle
		fields := []struct {
			name string
			dst  *float64
			raw  string
		}{
			{"open", &c.Open, row[1]},
			{"close", &c.Close, row[2]},
			{"high", &c.High, row[3]},
			{"low", &c.Low, row[4]},
			{"volume", &c.Volume, row[5]},
		}
		for _, f := range fields {
			v, err := ParseDecimal(domain.VenueKucoin, i, f.name, f.raw)
			if err != nil {
				return nil, err
			}
			*f.dst = v
		}

		c.OpenTime = time.Unix(sec, 0).UTC()
		c.CloseTime = c.OpenTime.Add(bucket)
		out = append(out, c)
	}
	return out, nil
}

// unquote strips JSON string quotes; bare numbers are returned as-is.
func unquote(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) >= 2 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			return s
		}
	}
	return string(raw)
}
