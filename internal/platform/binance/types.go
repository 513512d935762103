package binance

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// tickerPrice is the body of /api/v3/ticker/price.
type tickerPrice struct {
	Symbol string `json:"symbol"`
	Price  string `json:"price"`
}

// APIError is an application-level error returned by Binance in a non-2xx
// body, e.g. {"code":-1121,"msg":"Invalid symbol."}.
type APIError struct {
	HTTPStatus int
	Code       int
	Msg        string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("binance: api error %d: %s", e.Code, e.Msg)
}

// Unwrap lets callers match any venue error with errors.Is(err, domain.ErrVenueAPI).
func (e *APIError) Unwrap() error {
	return domain.ErrVenueAPI
}

func newAPIError(status int, body []byte) *APIError {
	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(body, &payload); err != nil || payload.Msg == "" {
		payload.Msg = string(body)
	}
	return &APIError{HTTPStatus: status, Code: payload.Code, Msg: payload.Msg}
}
