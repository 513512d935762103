package s3blob

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

type recordingWriter struct {
	path        string
	contentType string
	data        []byte
	multipart   bool
	err         error
}

func (w *recordingWriter) Put(_ context.Context, path string, data io.Reader, contentType string) error {
	if w.err != nil {
		return w.err
	}
	b, err := io.ReadAll(data)
	w.path, w.contentType, w.data = path, contentType, b
	return err
}

func (w *recordingWriter) PutMultipart(_ context.Context, path string, data io.Reader, _ int64) error {
	w.multipart = true
	return w.Put(context.Background(), path, data, "")
}

func TestArchiveSnapshots(t *testing.T) {
	w := &recordingWriter{}
	a := NewArchiver(w)
	at := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	a.now = func() time.Time { return at }

	open := time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC)
	snaps := []domain.Snapshot{
		{ID: 1, VenueRecordID: 7, Candle: domain.Candle{OpenTime: open, CloseTime: open.Add(time.Minute), Open: 1, High: 2, Low: 0.5, Close: 1.5, Volume: 3}},
		{ID: 2, VenueRecordID: 7, Candle: domain.Candle{OpenTime: open.Add(time.Minute), CloseTime: open.Add(2 * time.Minute), Open: 1.5, High: 2, Low: 1, Close: 1.8, Volume: 4}},
	}

	path, err := a.ArchiveSnapshots(context.Background(), domain.VenueBinance, "BTCUSDC", snaps)
	require.NoError(t, err)
	assert.Equal(t, "archive/snapshots/binance/BTCUSDC/2024-01-02/1704164645.jsonl", path)
	assert.Equal(t, path, w.path)
	assert.Equal(t, "application/x-ndjson", w.contentType)
	assert.False(t, w.multipart)

	sc := bufio.NewScanner(bytes.NewReader(w.data))
	var lines []archiveLine
	for sc.Scan() {
		var l archiveLine
		require.NoError(t, json.Unmarshal(sc.Bytes(), &l))
		lines = append(lines, l)
	}
	require.Len(t, lines, 2)
	assert.Equal(t, int64(2), lines[1].ID)
	assert.Equal(t, domain.VenueBinance, lines[1].Venue)
	assert.Equal(t, 1.8, lines[1].Candle.Close)
}

func TestArchiveSnapshots_Empty(t *testing.T) {
	w := &recordingWriter{}
	path, err := NewArchiver(w).ArchiveSnapshots(context.Background(), domain.VenueKucoin, "BTCUSDC", nil)
	require.NoError(t, err)
	assert.Empty(t, path)
	assert.Empty(t, w.path)
}

func TestArchiveSnapshots_UploadError(t *testing.T) {
	w := &recordingWriter{err: errors.New("access denied")}
	_, err := NewArchiver(w).ArchiveSnapshots(context.Background(), domain.VenueKucoin, "BTCUSDC",
		[]domain.Snapshot{{ID: 1}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "access denied")
}

func TestNormaliseEndpoint(t *testing.T) {
	assert.Equal(t, "https://s3.example.com", normaliseEndpoint("https://s3.example.com", false))
	assert.Equal(t, "https://minio:9000", normaliseEndpoint("minio:9000", true))
	assert.Equal(t, "http://minio:9000", normaliseEndpoint("minio:9000", false))
}
