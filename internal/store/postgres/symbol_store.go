package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// SymbolStore implements domain.SymbolStore using PostgreSQL.
type SymbolStore struct {
	pool *pgxpool.Pool
}

// NewSymbolStore creates a new SymbolStore backed by the given connection pool.
func NewSymbolStore(pool *pgxpool.Pool) *SymbolStore {
	return &SymbolStore{pool: pool}
}

// FindOrCreateSymbol inserts the symbol if absent and returns the stored row.
// The no-op update makes RETURNING yield the existing row on conflict, so
// concurrent callers never race between a read and an insert.
func (s *SymbolStore) FindOrCreateSymbol(ctx context.Context, symbol, displayName string) (domain.SymbolRecord, error) {
	const query = `
		INSERT INTO symbols (symbol, display_name)
		VALUES ($1, $2)
		ON CONFLICT (symbol) DO UPDATE SET
			symbol = EXCLUDED.symbol
		RETURNING id, symbol, display_name, created_at`

	rec, err := scanSymbol(s.pool.QueryRow(ctx, query, symbol, displayName))
	if err != nil {
		return domain.SymbolRecord{}, fmt.Errorf("postgres: find or create symbol %s: %w", symbol, err)
	}
	return rec, nil
}

// GetSymbol returns the record for symbol or domain.ErrNotFound.
func (s *SymbolStore) GetSymbol(ctx context.Context, symbol string) (domain.SymbolRecord, error) {
	const query = `
		SELECT id, symbol, display_name, created_at
		FROM symbols
		WHERE symbol = $1`

	rec, err := scanSymbol(s.pool.QueryRow(ctx, query, symbol))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.SymbolRecord{}, fmt.Errorf("postgres: get symbol %s: %w", symbol, domain.ErrNotFound)
		}
		return domain.SymbolRecord{}, fmt.Errorf("postgres: get symbol %s: %w", symbol, err)
	}
	return rec, nil
}

func scanSymbol(row pgx.Row) (domain.SymbolRecord, error) {
	var rec domain.SymbolRecord
	err := row.Scan(&rec.ID, &rec.Symbol, &rec.DisplayName, &rec.CreatedAt)
	return rec, err
}
