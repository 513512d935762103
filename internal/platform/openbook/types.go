package openbook

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// bookResponse is the indexer's order book body. Levels are [price, size]
// with each element either a JSON number or a decimal string.
type bookResponse struct {
	Market string              `json:"market"`
	Bids   [][]json.RawMessage `json:"bids"`
	Asks   [][]json.RawMessage `json:"asks"`
}

// APIError is a non-2xx response from the indexer.
type APIError struct {
	HTTPStatus int
	Msg        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("openbook: api error (HTTP %d): %s", e.HTTPStatus, e.Msg)
}

func (e *APIError) Unwrap() error {
	return domain.ErrVenueAPI
}

func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Error string `json:"error"`
	}
	msg := string(body)
	if err := json.Unmarshal(body, &payload); err == nil && payload.Error != "" {
		msg = payload.Error
	}
	return &APIError{HTTPStatus: status, Msg: msg}
}
