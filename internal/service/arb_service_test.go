package service

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/candlesync/internal/arbitrage"
	"github.com/alanyoungcy/candlesync/internal/cache/redis"
	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/notify"
)

var sol = domain.Pair{Base: "SOL", Quote: "USDC"}

type fakeCEX struct {
	price float64
	err   error
}

func (f *fakeCEX) Venue() domain.Venue { return domain.VenueBinance }

func (f *fakeCEX) TickerPrice(context.Context, domain.Pair) (float64, error) {
	return f.price, f.err
}

type fakeDEX struct {
	price  float64
	err    error
	market string
}

func (f *fakeDEX) Venue() domain.Venue { return domain.VenueOpenbook }

func (f *fakeDEX) MidPrice(_ context.Context, market string) (float64, error) {
	f.market = market
	return f.price, f.err
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []string
}

func (n *recordingNotifier) Notify(_ context.Context, event, _, _ string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, event)
	return nil
}

func newRedis(t *testing.T) *redis.Client {
	t.Helper()
	mr := miniredis.RunT(t)
	return redis.Wrap(goredis.NewClient(&goredis.Options{Addr: mr.Addr()}))
}

func arbConfig() ArbConfig {
	return ArbConfig{
		Fees:    arbitrage.DefaultFees(),
		Markets: map[string]string{"SOLUSDC": "8BnEgHoWFysVcuFFX7QztDmzuH8r5ZFvyP3sYwn1XTh6"},
	}
}

func TestArbCheck_ProfitableFansOut(t *testing.T) {
	rc := newRedis(t)
	prices := redis.NewPriceCache(rc, time.Minute)
	bus := redis.NewSignalBus(rc)
	notifier := &recordingNotifier{}
	dex := &fakeDEX{price: 102}

	svc := NewArbService(&fakeCEX{price: 100}, dex, prices, bus, notifier, arbConfig(), discardLogger())
	ctx := context.Background()

	res, err := svc.Check(ctx, sol)
	require.NoError(t, err)

	assert.NotEmpty(t, res.ID)
	assert.Equal(t, domain.VenueBinance, res.VenueA)
	assert.Equal(t, domain.VenueOpenbook, res.VenueB)
	assert.Equal(t, "8BnEgHoWFysVcuFFX7QztDmzuH8r5ZFvyP3sYwn1XTh6", dex.market)
	assert.InDelta(t, 1.59399, res.NetProfit, 1e-9)
	assert.True(t, res.IsProfitable)
	assert.Equal(t, []string{notify.EventArbProfitable}, notifier.events)

	p, _, err := prices.GetPrice(ctx, domain.PriceKey(domain.VenueOpenbook, "SOLUSDC"))
	require.NoError(t, err)
	assert.Equal(t, 102.0, p)

	msgs, err := bus.StreamRevRange(ctx, domain.StreamArb, 1)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	var streamed domain.ArbitrageResult
	require.NoError(t, json.Unmarshal(msgs[0].Payload, &streamed))
	assert.Equal(t, res.ID, streamed.ID)
}

func TestArbCheck_NotProfitableSkipsNotify(t *testing.T) {
	notifier := &recordingNotifier{}
	svc := NewArbService(&fakeCEX{price: 100}, &fakeDEX{price: 100.1}, nil, nil, notifier, arbConfig(), discardLogger())

	res, err := svc.Check(context.Background(), sol)
	require.NoError(t, err)
	assert.False(t, res.IsProfitable)
	assert.Empty(t, notifier.events)
}

func TestArbCheck_LegFailure(t *testing.T) {
	boom := errors.New("boom")
	svc := NewArbService(&fakeCEX{price: 100}, &fakeDEX{err: boom}, nil, nil, nil, arbConfig(), discardLogger())

	_, err := svc.Check(context.Background(), sol)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "openbook price")
}

func TestArbCheck_UnknownMarket(t *testing.T) {
	svc := NewArbService(&fakeCEX{price: 100}, &fakeDEX{price: 100}, nil, nil, nil, arbConfig(), discardLogger())

	_, err := svc.Check(context.Background(), domain.Pair{Base: "ETH", Quote: "USDC"})
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestArbLatest(t *testing.T) {
	rc := newRedis(t)
	prices := redis.NewPriceCache(rc, time.Minute)
	bus := redis.NewSignalBus(rc)
	ctx := context.Background()

	writer := NewArbService(&fakeCEX{price: 100}, &fakeDEX{price: 102}, prices, bus, nil, arbConfig(), discardLogger())
	_, err := writer.Latest(ctx, sol)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	res, err := writer.Check(ctx, sol)
	require.NoError(t, err)

	// A second replica with no local state reads the shared stream.
	reader := NewArbService(&fakeCEX{}, &fakeDEX{}, prices, bus, nil, arbConfig(), discardLogger())
	got, err := reader.Latest(ctx, sol)
	require.NoError(t, err)
	require.NotNil(t, got.Result)
	assert.Equal(t, res.ID, got.Result.ID)
	assert.Equal(t, 100.0, got.Prices["binance:SOLUSDC"])
	assert.Equal(t, 102.0, got.Prices["openbook:SOLUSDC"])
}
