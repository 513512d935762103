package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// VenueStore implements domain.VenueStore using PostgreSQL.
type VenueStore struct {
	pool *pgxpool.Pool
}

// NewVenueStore creates a new VenueStore backed by the given connection pool.
func NewVenueStore(pool *pgxpool.Pool) *VenueStore {
	return &VenueStore{pool: pool}
}

// FindOrCreateVenueRecord inserts (venue, symbolID) if absent and returns the
// stored row. The display color of an existing row is left untouched.
func (s *VenueStore) FindOrCreateVenueRecord(ctx context.Context, venue domain.Venue, symbolID int64, color string) (domain.VenueRecord, error) {
	const query = `
		WITH upserted AS (
			INSERT INTO venue_records (venue, symbol_id, display_color)
			VALUES ($1, $2, $3)
			ON CONFLICT (venue, symbol_id) DO UPDATE SET
				venue = EXCLUDED.venue
			RETURNING id, venue, symbol_id, display_color, created_at
		)
		SELECT u.id, u.venue, u.symbol_id, s.symbol, u.display_color, u.created_at
		FROM upserted u
		JOIN symbols s ON s.id = u.symbol_id`

	rec, err := scanVenueRecord(s.pool.QueryRow(ctx, query, string(venue), symbolID, color))
	if err != nil {
		return domain.VenueRecord{}, fmt.Errorf("postgres: find or create venue record %s/%d: %w", venue, symbolID, err)
	}
	return rec, nil
}

// ListVenueRecords returns every venue record of symbol ordered by venue.
func (s *VenueStore) ListVenueRecords(ctx context.Context, symbol string) ([]domain.VenueRecord, error) {
	const query = `
		SELECT v.id, v.venue, v.symbol_id, s.symbol, v.display_color, v.created_at
		FROM venue_records v
		JOIN symbols s ON s.id = v.symbol_id
		WHERE s.symbol = $1
		ORDER BY v.venue`

	rows, err := s.pool.Query(ctx, query, symbol)
	if err != nil {
		return nil, fmt.Errorf("postgres: list venue records %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []domain.VenueRecord
	for rows.Next() {
		rec, err := scanVenueRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan venue record: %w", err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list venue records %s: %w", symbol, err)
	}
	return out, nil
}

func scanVenueRecord(row pgx.Row) (domain.VenueRecord, error) {
	var (
		rec   domain.VenueRecord
		venue string
	)
	err := row.Scan(&rec.ID, &venue, &rec.SymbolID, &rec.Symbol, &rec.DisplayColor, &rec.CreatedAt)
	rec.Venue = domain.Venue(venue)
	return rec, err
}
