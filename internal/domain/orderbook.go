package domain

import "time"

// PriceLevel is a single price+size entry in an order book.
type PriceLevel struct {
	Price float64
	Size  float64
}

// OrderBook is a point-in-time view of one DEX market.
type OrderBook struct {
	Market    string
	Bids      []PriceLevel
	Asks      []PriceLevel
	Timestamp time.Time
}

// BestBid returns the highest bid. ok is false when there are no bids.
func (b OrderBook) BestBid() (price float64, ok bool) {
	for _, lvl := range b.Bids {
		if !ok || lvl.Price > price {
			price, ok = lvl.Price, true
		}
	}
	return price, ok
}

// BestAsk returns the lowest ask. ok is false when there are no asks.
func (b OrderBook) BestAsk() (price float64, ok bool) {
	for _, lvl := range b.Asks {
		if !ok || lvl.Price < price {
			price, ok = lvl.Price, true
		}
	}
	return price, ok
}

// MidPrice returns (bestBid+bestAsk)/2. An empty side yields
// ErrInsufficientLiquidity instead of a degraded price.
func (b OrderBook) MidPrice() (float64, error) {
	bid, okBid := b.BestBid()
	ask, okAsk := b.BestAsk()
	if !okBid || !okAsk {
		return 0, ErrInsufficientLiquidity
	}
	return (bid + ask) / 2, nil
}
