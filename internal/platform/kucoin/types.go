package kucoin

import (
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/candlesync/internal/domain"
)

// envelope wraps every KuCoin REST response.
type envelope struct {
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
	Msg  string          `json:"msg"`
}

// APIError reports a non-success envelope code or a non-2xx status.
type APIError struct {
	HTTPStatus int
	Code       string
	Msg        string
}

func (e *APIError) Error() string {
	if e.Code == "" {
		return fmt.Sprintf("kucoin: api error (HTTP %d): %s", e.HTTPStatus, e.Msg)
	}
	return fmt.Sprintf("kucoin: api error %s: %s", e.Code, e.Msg)
}

func (e *APIError) Unwrap() error {
	return domain.ErrVenueAPI
}
