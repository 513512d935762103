package domain

import (
	"context"
	"time"
)

// SymbolStore persists symbol records.
type SymbolStore interface {
	// FindOrCreateSymbol atomically returns the record for symbol, inserting
	// it first when absent. Concurrent callers observe the same row.
	FindOrCreateSymbol(ctx context.Context, symbol, displayName string) (SymbolRecord, error)
	GetSymbol(ctx context.Context, symbol string) (SymbolRecord, error)
}

// VenueStore persists venue records.
type VenueStore interface {
	// FindOrCreateVenueRecord atomically returns the record for
	// (venue, symbolID), inserting it first when absent.
	FindOrCreateVenueRecord(ctx context.Context, venue Venue, symbolID int64, color string) (VenueRecord, error)
	ListVenueRecords(ctx context.Context, symbol string) ([]VenueRecord, error)
}

// SnapshotStore persists candles keyed by (venueRecordID, openTime).
type SnapshotStore interface {
	// UpsertCandle inserts c, or overwrites the OHLCV and close time of the
	// existing row with the same key.
	UpsertCandle(ctx context.Context, venueRecordID int64, c Candle) error
	// DeleteOlderThan removes snapshots of venueRecordID with openTime < cutoff.
	DeleteOlderThan(ctx context.Context, venueRecordID int64, cutoff time.Time) (int64, error)
	// NthNewestOpenTime returns the open time of the n-th newest snapshot
	// (1-based). ErrNotFound when fewer than n rows exist.
	NthNewestOpenTime(ctx context.Context, venueRecordID int64, n int) (time.Time, error)
	// ListBefore returns snapshots with openTime < cutoff, oldest first.
	ListBefore(ctx context.Context, venueRecordID int64, cutoff time.Time) ([]Snapshot, error)
	// ListLatest returns the newest limit candles in ascending openTime order.
	ListLatest(ctx context.Context, venueRecordID int64, limit int) ([]Candle, error)
}

// CandleStore is the full storage backend used by the pipeline and services.
type CandleStore interface {
	SymbolStore
	VenueStore
	SnapshotStore
}
