package domain

import "time"

// SymbolRecord groups every venue record of one traded asset.
type SymbolRecord struct {
	ID          int64
	Symbol      string
	DisplayName string
	CreatedAt   time.Time
}

// VenueRecord is one row per (venue, symbol). Snapshots hang off it.
type VenueRecord struct {
	ID           int64
	Venue        Venue
	SymbolID     int64
	Symbol       string
	DisplayColor string
	CreatedAt    time.Time
}

// Snapshot is a stored candle, unique per (VenueRecordID, Candle.OpenTime).
type Snapshot struct {
	ID            int64     `json:"id"`
	VenueRecordID int64     `json:"venueRecordId"`
	Candle        Candle    `json:"candle"`
	UpdatedAt     time.Time `json:"updatedAt"`
}
