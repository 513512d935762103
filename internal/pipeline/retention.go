package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/metrics"
)

// RetentionConfig controls the per-venue sweep.
type RetentionConfig struct {
	// Window is how long snapshots are kept.
	Window time.Duration
	// KeepLatest snapshots are kept regardless of age.
	KeepLatest int
}

// Retention deletes snapshots older than the window, optionally archiving
// them first.
type Retention struct {
	store    domain.SnapshotStore
	archiver domain.SnapshotArchiver
	cfg      RetentionConfig
	now      func() time.Time
	logger   *slog.Logger
}

// NewRetention creates a sweep. archiver may be nil.
func NewRetention(store domain.SnapshotStore, archiver domain.SnapshotArchiver, cfg RetentionConfig, logger *slog.Logger) *Retention {
	if cfg.KeepLatest < 1 {
		cfg.KeepLatest = 1
	}
	return &Retention{
		store:    store,
		archiver: archiver,
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With(slog.String("component", "retention")),
	}
}

// Cutoff returns the effective cutoff for rec: now minus the window, moved
// back to the KeepLatest-th newest snapshot when that one is older. ok is
// false when rec holds KeepLatest snapshots or fewer.
func (r *Retention) Cutoff(ctx context.Context, rec domain.VenueRecord) (cutoff time.Time, ok bool, err error) {
	cutoff = r.now().UTC().Add(-r.cfg.Window)

	nth, err := r.store.NthNewestOpenTime(ctx, rec.ID, r.cfg.KeepLatest)
	if errors.Is(err, domain.ErrNotFound) {
		return time.Time{}, false, nil
	}
	if err != nil {
		return time.Time{}, false, fmt.Errorf("retention: newest snapshots of %s/%s: %w", rec.Venue, rec.Symbol, err)
	}
	if nth.Before(cutoff) {
		cutoff = nth
	}
	return cutoff, true, nil
}

// Sweep removes the expired snapshots of rec and returns how many were
// deleted. When archiving is enabled and fails, nothing is deleted.
func (r *Retention) Sweep(ctx context.Context, rec domain.VenueRecord) (int64, error) {
	cutoff, ok, err := r.Cutoff(ctx, rec)
	if err != nil || !ok {
		return 0, err
	}

	if r.archiver != nil {
		snaps, err := r.store.ListBefore(ctx, rec.ID, cutoff)
		if err != nil {
			return 0, fmt.Errorf("retention: list expired snapshots of %s/%s: %w", rec.Venue, rec.Symbol, err)
		}
		if len(snaps) == 0 {
			return 0, nil
		}
		path, err := r.archiver.ArchiveSnapshots(ctx, rec.Venue, rec.Symbol, snaps)
		if err != nil {
			return 0, fmt.Errorf("retention: archive %s/%s, deletion skipped: %w", rec.Venue, rec.Symbol, err)
		}
		r.logger.InfoContext(ctx, "archived expired snapshots",
			slog.String("venue", string(rec.Venue)),
			slog.String("symbol", rec.Symbol),
			slog.Int("count", len(snaps)),
			slog.String("path", path),
		)
	}

	n, err := r.store.DeleteOlderThan(ctx, rec.ID, cutoff)
	if err != nil {
		return 0, fmt.Errorf("retention: delete %s/%s: %w", rec.Venue, rec.Symbol, err)
	}
	if n > 0 {
		metrics.SnapshotsDeleted.WithLabelValues(string(rec.Venue), rec.Symbol).Add(float64(n))
		r.logger.InfoContext(ctx, "deleted expired snapshots",
			slog.String("venue", string(rec.Venue)),
			slog.String("symbol", rec.Symbol),
			slog.Int64("count", n),
			slog.Time("cutoff", cutoff),
		)
	}
	return n, nil
}
