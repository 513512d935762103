package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/service"
)

// ArbChecker defines the methods the arbitrage handler requires.
type ArbChecker interface {
	Check(ctx context.Context, pair domain.Pair) (domain.ArbitrageResult, error)
	Latest(ctx context.Context, pair domain.Pair) (service.LatestArb, error)
}

// ArbHandler serves arbitrage endpoints.
type ArbHandler struct {
	arb    ArbChecker
	logger *slog.Logger
}

// NewArbHandler creates an ArbHandler.
func NewArbHandler(arb ArbChecker, logger *slog.Logger) *ArbHandler {
	return &ArbHandler{arb: arb, logger: logger}
}

// Check runs an on-demand arbitrage check.
// GET /api/arbitrage/{symbol}
func (h *ArbHandler) Check(w http.ResponseWriter, r *http.Request) {
	pair, err := domain.ParsePair(r.PathValue("symbol"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	res, err := h.arb.Check(r.Context(), pair)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Latest returns the last known result and the cached leg prices.
// GET /api/arbitrage/{symbol}/latest
func (h *ArbHandler) Latest(w http.ResponseWriter, r *http.Request) {
	pair, err := domain.ParsePair(r.PathValue("symbol"))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	latest, err := h.arb.Latest(r.Context(), pair)
	if err != nil {
		writeServiceError(w, r, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, latest)
}
