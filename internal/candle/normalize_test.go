package candle

import (
	"encoding/json"
	"errors"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

func binanceRows(t *testing.T, payload string) [][]json.RawMessage {
	t.Helper()
	var rows [][]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(payload), &rows))
	return rows
}

func TestFromBinance(t *testing.T) {
	rows := binanceRows(t, `[
		[1700000000000,"37000.10","37050.00","36990.50","37020.25","12.345",1700000059999,"456789.1",120,"6.1","225000.0","0"],
		[1700000060000,"37020.25","37100.00","37010.00","37090.00","8.5",1700000119999,"315000.0",90,"4.0","148000.0","0"]
	]`)

	got, err := FromBinance(rows, "1m")
	require.NoError(t, err)
	require.Len(t, got, 2)

	first := got[0]
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), first.OpenTime)
	assert.Equal(t, first.OpenTime.Add(time.Minute), first.CloseTime)
	assert.Equal(t, 37000.10, first.Open)
	assert.Equal(t, 37050.00, first.High)
	assert.Equal(t, 36990.50, first.Low)
	assert.Equal(t, 37020.25, first.Close)
	assert.Equal(t, 12.345, first.Volume)
	assert.Equal(t, time.UTC, first.OpenTime.Location())
}

func TestFromBinance_RoundTrip(t *testing.T) {
	raw := [][]string{
		{"1700000000000", "0.01634790", "0.80000000", "0.01575800", "0.01577100", "148976.11427815"},
		{"1700000060000", "65432.1", "65500", "65400.99", "65480.5", "0.000123"},
	}
	rows := make([][]json.RawMessage, 0, len(raw))
	for _, r := range raw {
		row := []json.RawMessage{json.RawMessage(r[0])}
		for _, f := range r[1:] {
			row = append(row, json.RawMessage(strconv.Quote(f)))
		}
		rows = append(rows, row)
	}

	got, err := FromBinance(rows, "1m")
	require.NoError(t, err)

	for i, c := range got {
		back := []float64{c.Open, c.High, c.Low, c.Close, c.Volume}
		for j, v := range back {
			want, err := strconv.ParseFloat(raw[i][j+1], 64)
			require.NoError(t, err)
			assert.InEpsilon(t, want, v, 1e-9, "row %d field %d", i, j)
		}
		assert.Equal(t, raw[i][0], strconv.FormatInt(c.OpenTime.UnixMilli(), 10))
	}
}

func TestFromBinance_Errors(t *testing.T) {
	tests := []struct {
		name  string
		rows  string
		field string
	}{
		{"short row", `[[1700000000000,"1","2"]]`, "row"},
		{"bad decimal", `[[1700000000000,"1","abc","1","1","1"]]`, "high"},
		{"negative volume", `[[1700000000000,"1","2","1","1","-5"]]`, "volume"},
		{"bad timestamp", `[["x","1","2","1","1","1"]]`, "openTime"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := FromBinance(binanceRows(t, tt.rows), "1m")
			var pe *ParseError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, domain.VenueBinance, pe.Venue)
			assert.Equal(t, tt.field, pe.Field)
			assert.Contains(t, err.Error(), "binance")
		})
	}
}

func TestFromBinance_UnknownInterval(t *testing.T) {
	_, err := FromBinance(nil, "7m")
	assert.True(t, errors.Is(err, domain.ErrInvalidInput))
}

func TestFromKucoin(t *testing.T) {
	rows := [][]string{
		{"1700000060", "37020.25", "37090.00", "37100.00", "37010.00", "8.5", "315000.0"},
		{"1700000000", "37000.10", "37020.25", "37050.00", "36990.50", "12.345", "456789.1"},
	}

	got, err := FromKucoin(rows, "1m")
	require.NoError(t, err)
	require.Len(t, got, 2)

	c := got[1]
	assert.Equal(t, time.Unix(1700000000, 0).UTC(), c.OpenTime)
	assert.Equal(t, c.OpenTime.Add(time.Minute), c.CloseTime)
	assert.Equal(t, 37000.10, c.Open)
	assert.Equal(t, 37020.25, c.Close)
	assert.Equal(t, 37050.00, c.High)
	assert.Equal(t, 36990.50, c.Low)
	assert.Equal(t, 12.345, c.Volume)
}

func TestFromKucoin_ParseError(t *testing.T) {
	_, err := FromKucoin([][]string{{"1700000000", "1", "1", "NaN?", "1", "1"}}, "1m")

	var pe *ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, domain.VenueKucoin, pe.Venue)
	assert.Equal(t, "high", pe.Field)
	assert.Equal(t, 0, pe.Row)
}
