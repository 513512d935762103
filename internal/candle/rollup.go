package candle

import (
	"fmt"
	"sort"
	"time"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// Factor reports how many base buckets make one target bucket. It fails
// unless target is a whole multiple of base.
func Factor(base, target domain.Interval) (int, error) {
	b, t := base.Duration(), target.Duration()
	if b <= 0 || t <= 0 || t < b || t%b != 0 {
		return 0, fmt.Errorf("%w: interval %s is not a multiple of %s", domain.ErrInvalidInput, target, base)
	}
	return int(t / b), nil
}

// Rollup aggregates candles into target-interval buckets aligned by
// time.Truncate: first open, max high, min low, last close, summed volume. The input
// may be in any order; the output is ascending by OpenTime.
func Rollup(candles []domain.Candle, target domain.Interval) []domain.Candle {
	size := target.Duration()
	if size <= 0 || len(candles) == 0 {
		return nil
	}

	sorted := make([]domain.Candle, len(candles))
	copy(sorted, candles)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].OpenTime.Before(sorted[j].OpenTime) })

	var out []domain.Candle
	for _, c := range sorted {
		start := c.OpenTime.Truncate(size)
		if n := len(out); n > 0 && out[n-1].OpenTime.Equal(start) {
			agg := &out[n-1]
			agg.High = max(agg.High, c.High)
			agg.Low = min(agg.Low, c.Low)
			agg.Close = c.Close
			agg.Volume += c.Volume
			continue
		}
		out = append(out, domain.Candle{
			OpenTime:  start,
			CloseTime: start.Add(size),
			Open:      c.Open,
			High:      c.High,
			Low:       c.Low,
			Close:     c.Close,
			Volume:    c.Volume,
		})
	}
	return out
}

// Last returns at most n trailing candles.
func Last(candles []domain.Candle, n int) []domain.Candle {
	if n <= 0 || len(candles) <= n {
		return candles
	}
	return candles[len(candles)-n:]
}

// AlignedWindow returns [start, end) covering limit closed buckets that end
// at the bucket boundary at or before now.
func AlignedWindow(now time.Time, interval domain.Interval, limit int) (start, end time.Time) {
	size := interval.Duration()
	end = now.UTC().Truncate(size)
	start = end.Add(-time.Duration(limit) * size)
	return start, end
}
