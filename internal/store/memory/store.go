// Package memory is an in-process domain.CandleStore. It backs the "memory"
// storage driver and the pipeline and service tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

type venueKey struct {
	venue    domain.Venue
	symbolID int64
}

// Store keeps every table in maps guarded by one mutex.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	nextID    int64
	symbols   map[string]domain.SymbolRecord
	venues    map[venueKey]domain.VenueRecord
	venueByID map[int64]domain.VenueRecord
	snapshots map[int64]map[int64]domain.Snapshot // venue record id -> open unix nano -> snapshot
}

// New returns an empty store.
func New() *Store {
	return &Store{
		now:       time.Now,
		symbols:   make(map[string]domain.SymbolRecord),
		venues:    make(map[venueKey]domain.VenueRecord),
		venueByID: make(map[int64]domain.VenueRecord),
		snapshots: make(map[int64]map[int64]domain.Snapshot),
	}
}

var _ domain.CandleStore = (*Store)(nil)

func (s *Store) id() int64 {
	s.nextID++
	return s.nextID
}

// FindOrCreateSymbol implements domain.SymbolStore.
func (s *Store) FindOrCreateSymbol(_ context.Context, symbol, displayName string) (domain.SymbolRecord, error) {
	if symbol == "" {
		return domain.SymbolRecord{}, fmt.Errorf("memory: find or create symbol: %w: empty symbol", domain.ErrInvalidInput)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec, ok := s.symbols[symbol]; ok {
		return rec, nil
	}
	rec := domain.SymbolRecord{ID: s.id(), Symbol: symbol, DisplayName: displayName, CreatedAt: s.now().UTC()}
	s.symbols[symbol] = rec
	return rec, nil
}

// GetSymbol implements domain.SymbolStore.
func (s *Store) GetSymbol(_ context.Context, symbol string) (domain.SymbolRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.symbols[symbol]
	if !ok {
		return domain.SymbolRecord{}, fmt.Errorf("memory: get symbol %s: %w", symbol, domain.ErrNotFound)
	}
	return rec, nil
}

// FindOrCreateVenueRecord implements domain.VenueStore.
func (s *Store) FindOrCreateVenueRecord(_ context.Context, venue domain.Venue, symbolID int64, color string) (domain.VenueRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := venueKey{venue: venue, symbolID: symbolID}
	if rec, ok := s.venues[key]; ok {
		return rec, nil
	}

	var symbol string
	for _, sym := range s.symbols {
		if sym.ID == symbolID {
			symbol = sym.Symbol
			break
		}
	}
	if symbol == "" {
		return domain.VenueRecord{}, fmt.Errorf("memory: find or create venue record %s/%d: %w", venue, symbolID, domain.ErrNotFound)
	}

	rec := domain.VenueRecord{
		ID:           s.id(),
		Venue:        venue,
		SymbolID:     symbolID,
		Symbol:       symbol,
		DisplayColor: color,
		CreatedAt:    s.now().UTC(),
	}
	s.venues[key] = rec
	s.venueByID[rec.ID] = rec
	return rec, nil
}

// ListVenueRecords implements domain.VenueStore.
func (s *Store) ListVenueRecords(_ context.Context, symbol string) ([]domain.VenueRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.VenueRecord
	for _, rec := range s.venues {
		if rec.Symbol == symbol {
			out = append(out, rec)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Venue < out[j].Venue })
	return out, nil
}

// UpsertCandle implements domain.SnapshotStore.
func (s *Store) UpsertCandle(_ context.Context, venueRecordID int64, c domain.Candle) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.venueByID[venueRecordID]; !ok {
		return fmt.Errorf("memory: upsert snapshot %d: %w", venueRecordID, domain.ErrNotFound)
	}
	rows := s.snapshots[venueRecordID]
	if rows == nil {
		rows = make(map[int64]domain.Snapshot)
		s.snapshots[venueRecordID] = rows
	}

	c.OpenTime, c.CloseTime = c.OpenTime.UTC(), c.CloseTime.UTC()
	key := c.OpenTime.UnixNano()
	snap, ok := rows[key]
	if !ok {
		snap = domain.Snapshot{ID: s.id(), VenueRecordID: venueRecordID}
	}
	snap.Candle = c
	snap.UpdatedAt = s.now().UTC()
	rows[key] = snap
	return nil
}

// DeleteOlderThan implements domain.SnapshotStore.
func (s *Store) DeleteOlderThan(_ context.Context, venueRecordID int64, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var n int64
	for key, snap := range s.snapshots[venueRecordID] {
		if snap.Candle.OpenTime.Before(cutoff) {
			delete(s.snapshots[venueRecordID], key)
			n++
		}
	}
	return n, nil
}

// NthNewestOpenTime implements domain.SnapshotStore.
func (s *Store) NthNewestOpenTime(_ context.Context, venueRecordID int64, n int) (time.Time, error) {
	if n < 1 {
		return time.Time{}, fmt.Errorf("memory: nth newest snapshot: %w: n=%d", domain.ErrInvalidInput, n)
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.sortedLocked(venueRecordID)
	if len(snaps) < n {
		return time.Time{}, fmt.Errorf("memory: nth newest snapshot of %d: %w", venueRecordID, domain.ErrNotFound)
	}
	return snaps[len(snaps)-n].Candle.OpenTime, nil
}

// ListBefore implements domain.SnapshotStore.
func (s *Store) ListBefore(_ context.Context, venueRecordID int64, cutoff time.Time) ([]domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []domain.Snapshot
	for _, snap := range s.sortedLocked(venueRecordID) {
		if !snap.Candle.OpenTime.Before(cutoff) {
			break
		}
		out = append(out, snap)
	}
	return out, nil
}

// ListLatest implements domain.SnapshotStore.
func (s *Store) ListLatest(_ context.Context, venueRecordID int64, limit int) ([]domain.Candle, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snaps := s.sortedLocked(venueRecordID)
	if limit >= 0 && len(snaps) > limit {
		snaps = snaps[len(snaps)-limit:]
	}
	out := make([]domain.Candle, len(snaps))
	for i, snap := range snaps {
		out[i] = snap.Candle
	}
	return out, nil
}

// sortedLocked returns the snapshots of a venue record, oldest first.
func (s *Store) sortedLocked(venueRecordID int64) []domain.Snapshot {
	rows := s.snapshots[venueRecordID]
	out := make([]domain.Snapshot, 0, len(rows))
	for _, snap := range rows {
		out = append(out, snap)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Candle.OpenTime.Before(out[j].Candle.OpenTime) })
	return out
}
