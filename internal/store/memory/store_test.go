package memory

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

var base = time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

func candleAt(i int, close float64) domain.Candle {
	open := base.Add(time.Duration(i) * time.Minute)
	return domain.Candle{OpenTime: open, CloseTime: open.Add(time.Minute), Open: 1, High: 2, Low: 0.5, Close: close, Volume: 10}
}

func seeded(t *testing.T) (*Store, domain.VenueRecord) {
	t.Helper()
	s := New()
	ctx := context.Background()
	sym, err := s.FindOrCreateSymbol(ctx, "BTCUSDC", "BTC/USDC")
	require.NoError(t, err)
	rec, err := s.FindOrCreateVenueRecord(ctx, domain.VenueBinance, sym.ID, "#F0B90B")
	require.NoError(t, err)
	return s, rec
}

func TestFindOrCreate_ConcurrentCallersShareOneRecord(t *testing.T) {
	s := New()
	ctx := context.Background()

	const n = 32
	syms := make([]domain.SymbolRecord, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := s.FindOrCreateSymbol(ctx, "BTCUSDC", "BTC/USDC")
			assert.NoError(t, err)
			syms[i] = rec
		}(i)
	}
	wg.Wait()
	for _, rec := range syms {
		assert.Equal(t, syms[0].ID, rec.ID)
	}

	venues := make([]domain.VenueRecord, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			rec, err := s.FindOrCreateVenueRecord(ctx, domain.VenueKucoin, syms[0].ID, "#24AE8F")
			assert.NoError(t, err)
			venues[i] = rec
		}(i)
	}
	wg.Wait()
	for _, rec := range venues {
		assert.Equal(t, venues[0].ID, rec.ID)
	}

	list, err := s.ListVenueRecords(ctx, "BTCUSDC")
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFindOrCreateVenueRecord_UnknownSymbol(t *testing.T) {
	_, err := New().FindOrCreateVenueRecord(context.Background(), domain.VenueBinance, 99, "")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestGetSymbol_NotFound(t *testing.T) {
	_, err := New().GetSymbol(context.Background(), "ETHUSDC")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpsertCandle_OverwritesSameKey(t *testing.T) {
	s, rec := seeded(t)
	ctx := context.Background()

	require.NoError(t, s.UpsertCandle(ctx, rec.ID, candleAt(0, 1.5)))
	require.NoError(t, s.UpsertCandle(ctx, rec.ID, candleAt(0, 1.7)))

	got, err := s.ListLatest(ctx, rec.ID, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, 1.7, got[0].Close)
}

func TestUpsertCandle_UnknownVenueRecord(t *testing.T) {
	err := New().UpsertCandle(context.Background(), 7, candleAt(0, 1))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestListLatest_AscendingNewest(t *testing.T) {
	s, rec := seeded(t)
	ctx := context.Background()
	for _, i := range []int{3, 0, 4, 1, 2} {
		require.NoError(t, s.UpsertCandle(ctx, rec.ID, candleAt(i, float64(i))))
	}

	got, err := s.ListLatest(ctx, rec.ID, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, []float64{2, 3, 4}, []float64{got[0].Close, got[1].Close, got[2].Close})
}

func TestRetentionQueries(t *testing.T) {
	s, rec := seeded(t)
	ctx := context.Background()
	other, err := s.FindOrCreateVenueRecord(ctx, domain.VenueKucoin, rec.SymbolID, "#23AF91")
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		require.NoError(t, s.UpsertCandle(ctx, rec.ID, candleAt(i, 1)))
		require.NoError(t, s.UpsertCandle(ctx, other.ID, candleAt(i, 2)))
	}

	nth, err := s.NthNewestOpenTime(ctx, rec.ID, 2)
	require.NoError(t, err)
	assert.Equal(t, base.Add(3*time.Minute), nth)

	_, err = s.NthNewestOpenTime(ctx, rec.ID, 6)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	_, err = s.NthNewestOpenTime(ctx, rec.ID, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	before, err := s.ListBefore(ctx, rec.ID, base.Add(2*time.Minute))
	require.NoError(t, err)
	require.Len(t, before, 2)
	assert.Equal(t, base, before[0].Candle.OpenTime)

	n, err := s.DeleteOlderThan(ctx, rec.ID, base.Add(2*time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	left, err := s.ListLatest(ctx, rec.ID, 100)
	require.NoError(t, err)
	require.Len(t, left, 3)
	for _, c := range left {
		assert.False(t, c.OpenTime.Before(base.Add(2*time.Minute)))
	}

	untouched, err := s.ListLatest(ctx, other.ID, 100)
	require.NoError(t, err)
	assert.Len(t, untouched, 5, "other venue records keep their old snapshots")
	assert.Equal(t, base, untouched[0].OpenTime)
}
