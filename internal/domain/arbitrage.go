package domain

import "time"

// ArbitrageResult is the verdict of one detector invocation. It is not
// persisted; it is cached and published for live consumers.
type ArbitrageResult struct {
	ID              string    `json:"id"`
	Symbol          string    `json:"symbol"`
	VenueA          Venue     `json:"venueA"`
	VenueB          Venue     `json:"venueB"`
	VenueAPrice     float64   `json:"venueAPrice"`
	VenueBPrice     float64   `json:"venueBPrice"`
	Fees            float64   `json:"fees"`
	PriceDifference float64   `json:"priceDifference"`
	NetProfit       float64   `json:"netProfit"`
	IsProfitable    bool      `json:"isProfitable"`
	Timestamp       time.Time `json:"timestamp"`
}
