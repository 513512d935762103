package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest prices per venue and symbol.
type PriceCache interface {
	SetPrice(ctx context.Context, key string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, key string) (float64, time.Time, error)
	GetPrices(ctx context.Context, keys []string) (map[string]float64, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// LockManager provides distributed locking.
type LockManager interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (unlock func(), err error)
}

// StreamMessage represents a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRevRange(ctx context.Context, stream string, count int) ([]StreamMessage, error)
}

// Signal bus channel and stream names.
const (
	ChannelCandles = "candles"
	ChannelArb     = "arb"
	StreamArb      = "stream:arb"
	// ChannelIngestTrigger asks every ingest poller for an immediate cycle.
	ChannelIngestTrigger = "ingest:trigger"
)

// PriceKey is the PriceCache key of a venue's latest price, e.g. "binance:SOLUSDC".
func PriceKey(venue Venue, symbol string) string {
	return string(venue) + ":" + symbol
}
