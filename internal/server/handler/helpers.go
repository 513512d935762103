// Package handler implements the HTTP API handlers.
package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/alanyoungcy/candlesync/internal/domain"
	"github.com/alanyoungcy/candlesync/internal/server/respond"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	respond.JSON(w, status, v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, msg string) {
	respond.Error(w, r, status, msg)
}

// writeServiceError maps domain sentinels to a status. Unexpected errors are
// logged and reported as a generic 500 or 502.
func writeServiceError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidInput):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrRateLimited):
		writeError(w, r, http.StatusTooManyRequests, err.Error())
	case errors.Is(err, domain.ErrVenueAPI), errors.Is(err, domain.ErrInsufficientLiquidity):
		logger.WarnContext(r.Context(), "upstream venue error", slog.String("error", err.Error()))
		writeError(w, r, http.StatusBadGateway, err.Error())
	default:
		logger.ErrorContext(r.Context(), "request failed",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		writeError(w, r, http.StatusInternalServerError, "internal server error")
	}
}

// queryInt returns def when key is absent and an error when it is not an
// integer.
func queryInt(r *http.Request, key string, def int) (int, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return def, nil
	}
	return strconv.Atoi(v)
}
