package s3blob

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// multipartThreshold is the archive size above which uploads go multipart.
const multipartThreshold = 16 * 1024 * 1024

// Archiver implements domain.SnapshotArchiver by writing snapshots as JSONL.
// It only uploads; deleting the archived rows is the caller's job.
type Archiver struct {
	writer domain.BlobWriter
	now    func() time.Time
}

// NewArchiver creates an Archiver on top of any BlobWriter.
func NewArchiver(writer domain.BlobWriter) *Archiver {
	return &Archiver{writer: writer, now: time.Now}
}

// archiveLine is one JSONL record.
type archiveLine struct {
	Venue  domain.Venue  `json:"venue"`
	Symbol string        `json:"symbol"`
	ID     int64         `json:"id"`
	Candle domain.Candle `json:"candle"`
	Stored time.Time     `json:"updatedAt"`
}

// ArchiveSnapshots uploads snaps and returns the object key. An empty slice
// uploads nothing and returns "".
func (a *Archiver) ArchiveSnapshots(ctx context.Context, venue domain.Venue, symbol string, snaps []domain.Snapshot) (string, error) {
	if len(snaps) == 0 {
		return "", nil
	}

	lines := make([]archiveLine, len(snaps))
	for i, s := range snaps {
		lines[i] = archiveLine{Venue: venue, Symbol: symbol, ID: s.ID, Candle: s.Candle, Stored: s.UpdatedAt}
	}
	buf, err := marshalJSONL(lines)
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshots marshal: %w", err)
	}

	path := ArchivePath(venue, symbol, a.now())
	if len(buf) > multipartThreshold {
		err = a.writer.PutMultipart(ctx, path, bytes.NewReader(buf), minPartSize)
	} else {
		err = a.writer.Put(ctx, path, bytes.NewReader(buf), "application/x-ndjson")
	}
	if err != nil {
		return "", fmt.Errorf("s3blob: archive snapshots upload: %w", err)
	}
	return path, nil
}

// ArchivePath builds the object key, partitioned by UTC day:
//
//	archive/snapshots/binance/BTCUSDC/2024-01-01/1704067200.jsonl
func ArchivePath(venue domain.Venue, symbol string, at time.Time) string {
	at = at.UTC()
	return fmt.Sprintf("archive/snapshots/%s/%s/%s/%d.jsonl", venue, symbol, at.Format("2006-01-02"), at.Unix())
}

// marshalJSONL encodes each record as one compact JSON line.
func marshalJSONL[T any](records []T) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for i, rec := range records {
		if err := enc.Encode(rec); err != nil {
			return nil, fmt.Errorf("jsonl encode record %d: %w", i, err)
		}
	}
	return buf.Bytes(), nil
}

var _ domain.SnapshotArchiver = (*Archiver)(nil)
