package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePair(t *testing.T) {
	p, err := ParsePair("btc-usdc")
	require.NoError(t, err)
	assert.Equal(t, Pair{Base: "BTC", Quote: "USDC"}, p)
	assert.Equal(t, "BTCUSDC", p.Symbol())
	assert.Equal(t, "BTC-USDC", p.String())

	p, err = ParsePair("SOL/USDC")
	require.NoError(t, err)
	assert.Equal(t, "SOLUSDC", p.Symbol())

	for _, bad := range []string{"", "BTCUSDC", "-USDC", "BTC-"} {
		_, err := ParsePair(bad)
		assert.True(t, errors.Is(err, ErrInvalidInput), bad)
	}
}

func TestParseInterval(t *testing.T) {
	iv, err := ParseInterval("15m")
	require.NoError(t, err)
	assert.Equal(t, 15*time.Minute, iv.Duration())

	_, err = ParseInterval("7m")
	assert.True(t, errors.Is(err, ErrInvalidInput))
	assert.Zero(t, Interval("7m").Duration())
}

func TestOrderBookMidPrice(t *testing.T) {
	book := OrderBook{
		Bids: []PriceLevel{{Price: 99.5, Size: 1}, {Price: 100, Size: 2}},
		Asks: []PriceLevel{{Price: 101, Size: 1}, {Price: 100.5, Size: 3}},
	}
	mid, err := book.MidPrice()
	require.NoError(t, err)
	assert.InDelta(t, 100.25, mid, 1e-12)

	_, err = OrderBook{Bids: book.Bids}.MidPrice()
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)

	_, err = OrderBook{Asks: book.Asks}.MidPrice()
	assert.ErrorIs(t, err, ErrInsufficientLiquidity)
}
