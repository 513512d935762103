package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// SnapshotStore implements domain.SnapshotStore using PostgreSQL.
type SnapshotStore struct {
	pool *pgxpool.Pool
}

// NewSnapshotStore creates a new SnapshotStore backed by the given connection pool.
func NewSnapshotStore(pool *pgxpool.Pool) *SnapshotStore {
	return &SnapshotStore{pool: pool}
}

// UpsertCandle inserts c or overwrites the row with the same
// (venue_record_id, open_time).
func (s *SnapshotStore) UpsertCandle(ctx context.Context, venueRecordID int64, c domain.Candle) error {
	const query = `
		INSERT INTO snapshots (
			venue_record_id, open_time, close_time,
			open, high, low, close, volume, updated_at
		) VALUES (
			$1, $2, $3,
			$4, $5, $6, $7, $8, NOW()
		)
		ON CONFLICT (venue_record_id, open_time) DO UPDATE SET
			close_time = EXCLUDED.close_time,
			open       = EXCLUDED.open,
			high       = EXCLUDED.high,
			low        = EXCLUDED.low,
			close      = EXCLUDED.close,
			volume     = EXCLUDED.volume,
			updated_at = NOW()`

	_, err := s.pool.Exec(ctx, query,
		venueRecordID, c.OpenTime.UTC(), c.CloseTime.UTC(),
		c.Open, c.High, c.Low, c.Close, c.Volume,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert snapshot %d@%s: %w", venueRecordID, c.OpenTime.UTC().Format(time.RFC3339), err)
	}
	return nil
}

// DeleteOlderThan removes snapshots with open_time < cutoff.
func (s *SnapshotStore) DeleteOlderThan(ctx context.Context, venueRecordID int64, cutoff time.Time) (int64, error) {
	const query = `DELETE FROM snapshots WHERE venue_record_id = $1 AND open_time < $2`

	tag, err := s.pool.Exec(ctx, query, venueRecordID, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete snapshots of %d before %s: %w", venueRecordID, cutoff.UTC().Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// NthNewestOpenTime returns the open time of the n-th newest snapshot.
func (s *SnapshotStore) NthNewestOpenTime(ctx context.Context, venueRecordID int64, n int) (time.Time, error) {
	if n < 1 {
		return time.Time{}, fmt.Errorf("postgres: nth newest snapshot: %w: n=%d", domain.ErrInvalidInput, n)
	}
	const query = `
		SELECT open_time
		FROM snapshots
		WHERE venue_record_id = $1
		ORDER BY open_time DESC
		OFFSET $2 LIMIT 1`

	var t time.Time
	if err := s.pool.QueryRow(ctx, query, venueRecordID, n-1).Scan(&t); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, fmt.Errorf("postgres: nth newest snapshot of %d: %w", venueRecordID, domain.ErrNotFound)
		}
		return time.Time{}, fmt.Errorf("postgres: nth newest snapshot of %d: %w", venueRecordID, err)
	}
	return t.UTC(), nil
}

// ListBefore returns snapshots with open_time < cutoff, oldest first.
func (s *SnapshotStore) ListBefore(ctx context.Context, venueRecordID int64, cutoff time.Time) ([]domain.Snapshot, error) {
	const query = `
		SELECT id, venue_record_id, open_time, close_time,
		       open, high, low, close, volume, updated_at
		FROM snapshots
		WHERE venue_record_id = $1 AND open_time < $2
		ORDER BY open_time ASC`

	rows, err := s.pool.Query(ctx, query, venueRecordID, cutoff.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: list snapshots of %d: %w", venueRecordID, err)
	}
	defer rows.Close()

	var out []domain.Snapshot
	for rows.Next() {
		var snap domain.Snapshot
		c := &snap.Candle
		if err := rows.Scan(
			&snap.ID, &snap.VenueRecordID, &c.OpenTime, &c.CloseTime,
			&c.Open, &c.High, &c.Low, &c.Close, &c.Volume, &snap.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan snapshot: %w", err)
		}
		c.OpenTime, c.CloseTime = c.OpenTime.UTC(), c.CloseTime.UTC()
		out = append(out, snap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list snapshots of %d: %w", venueRecordID, err)
	}
	return out, nil
}

// ListLatest returns the newest limit candles in ascending open_time order.
func (s *SnapshotStore) ListLatest(ctx context.Context, venueRecordID int64, limit int) ([]domain.Candle, error) {
	const query = `
		SELECT open_time, close_time, open, high, low, close, volume
		FROM (
			SELECT open_time, close_time, open, high, low, close, volume
			FROM snapshots
			WHERE venue_record_id = $1
			ORDER BY open_time DESC
			LIMIT $2
		) latest
		ORDER BY open_time ASC`

	rows, err := s.pool.Query(ctx, query, venueRecordID, limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list latest candles of %d: %w", venueRecordID, err)
	}
	defer rows.Close()

	out := make([]domain.Candle, 0, limit)
	for rows.Next() {
		var c domain.Candle
		if err := rows.Scan(&c.OpenTime, &c.CloseTime, &c.Open, &c.High, &c.Low, &c.Close, &c.Volume); err != nil {
			return nil, fmt.Errorf("postgres: scan candle: %w", err)
		}
		c.OpenTime, c.CloseTime = c.OpenTime.UTC(), c.CloseTime.UTC()
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list latest candles of %d: %w", venueRecordID, err)
	}
	return out, nil
}
