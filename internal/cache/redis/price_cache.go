package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// PriceCache implements domain.PriceCache using Redis hashes. Each entry is
// stored at "price:{key}" with fields "price" and "ts" (Unix nanoseconds),
// where key comes from domain.PriceKey.
type PriceCache struct {
	rdb *redis.Client
	ttl time.Duration
}

// NewPriceCache creates a PriceCache. A positive ttl expires entries that
// stop being refreshed.
func NewPriceCache(c *Client, ttl time.Duration) *PriceCache {
	return &PriceCache{rdb: c.Raw(), ttl: ttl}
}

func priceKey(key string) string {
	return "price:" + key
}

// SetPrice stores the latest price and its timestamp.
func (pc *PriceCache) SetPrice(ctx context.Context, key string, price float64, ts time.Time) error {
	k := priceKey(key)
	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, k, map[string]any{
		"price": strconv.FormatFloat(price, 'f', -1, 64),
		"ts":    strconv.FormatInt(ts.UnixNano(), 10),
	})
	if pc.ttl > 0 {
		pipe.Expire(ctx, k, pc.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", key, err)
	}
	return nil
}

// GetPrice returns the cached price and timestamp, or domain.ErrNotFound.
func (pc *PriceCache) GetPrice(ctx context.Context, key string) (float64, time.Time, error) {
	vals, err := pc.rdb.HGetAll(ctx, priceKey(key)).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	price, ts, ok, err := decodePrice(vals)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", key, err)
	}
	if !ok {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", key, domain.ErrNotFound)
	}
	return price, ts, nil
}

// GetPrices returns the cached prices for keys in one round trip. Missing or
// malformed entries are omitted.
func (pc *PriceCache) GetPrices(ctx context.Context, keys []string) (map[string]float64, error) {
	out := make(map[string]float64, len(keys))
	if len(keys) == 0 {
		return out, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(keys))
	for _, key := range keys {
		cmds[key] = pipe.HGetAll(ctx, priceKey(key))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, fmt.Errorf("redis: get prices: %w", err)
	}

	for key, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		if price, _, ok, err := decodePrice(vals); err == nil && ok {
			out[key] = price
		}
	}
	return out, nil
}

func decodePrice(vals map[string]string) (price float64, ts time.Time, ok bool, err error) {
	priceStr, hasPrice := vals["price"]
	tsStr, hasTS := vals["ts"]
	if !hasPrice || !hasTS {
		return 0, time.Time{}, false, nil
	}
	if price, err = strconv.ParseFloat(priceStr, 64); err != nil {
		return 0, time.Time{}, false, fmt.Errorf("parse price: %w", err)
	}
	nanos, err := strconv.ParseInt(tsStr, 10, 64)
	if err != nil {
		return 0, time.Time{}, false, fmt.Errorf("parse ts: %w", err)
	}
	return price, time.Unix(0, nanos).UTC(), true, nil
}

var _ domain.PriceCache = (*PriceCache)(nil)
