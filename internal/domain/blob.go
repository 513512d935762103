package domain

import (
	"context"
	"io"
)

// BlobWriter uploads data to object storage.
type BlobWriter interface {
	Put(ctx context.Context, path string, data io.Reader, contentType string) error
	PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error
}

// SnapshotArchiver copies snapshots to cold storage before they are deleted.
type SnapshotArchiver interface {
	ArchiveSnapshots(ctx context.Context, venue Venue, symbol string, snaps []Snapshot) (path string, err error)
}
