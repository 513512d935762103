package postgres

import "github.com/alanyoungcy/candlesync/internal/domain"

// Store composes the per-table stores into a domain.CandleStore.
type Store struct {
	*SymbolStore
	*VenueStore
	*SnapshotStore
}

// NewStore builds every table store on the client's pool.
func NewStore(c *Client) *Store {
	pool := c.Pool()
	return &Store{
		SymbolStore:   NewSymbolStore(pool),
		VenueStore:    NewVenueStore(pool),
		SnapshotStore: NewSnapshotStore(pool),
	}
}

var (
	_ domain.SymbolStore   = (*SymbolStore)(nil)
	_ domain.VenueStore    = (*VenueStore)(nil)
	_ domain.SnapshotStore = (*SnapshotStore)(nil)
	_ domain.CandleStore   = (*Store)(nil)
)
