package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/candlesync/internal/service"
)

// CandleLister is the query side used by CandleHandler.
type CandleLister interface {
	ListCandles(ctx context.Context, symbol, interval string, limit int) (service.CandleList, error)
}

// CandleHandler serves candle queries.
type CandleHandler struct {
	candles CandleLister
	logger  *slog.Logger
}

// NewCandleHandler creates a CandleHandler.
func NewCandleHandler(candles CandleLister, logger *slog.Logger) *CandleHandler {
	return &CandleHandler{candles: candles, logger: logger}
}

// ListCandles returns the newest candles of every venue for a symbol.
// GET /api/candles?symbol=BTCUSDC&interval=1m&limit=10
func (h *CandleHandler) ListCandles(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	symbol := q.Get("symbol")
	if symbol == "" {
		writeError(w, r, http.StatusBadRequest, "symbol is required")
		return
	}
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "limit must be an integer")
		return
	}

	list, err := h.candles.ListCandles(r.Context(), symbol, q.Get("interval"), limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}
