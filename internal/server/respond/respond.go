// Package respond writes JSON responses and the API error body.
package respond

import (
	"encoding/json"
	"net/http"
	"time"
)

// ErrorBody is the JSON body of every non-2xx API response.
type ErrorBody struct {
	StatusCode int    `json:"statusCode"`
	Message    string `json:"message"`
	Timestamp  string `json:"timestamp"`
	Path       string `json:"path"`
}

// JSON marshals v and writes it with status. A marshal failure becomes a 500.
func JSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		http.Error(w, `{"statusCode":500,"message":"internal server error"}`, http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	w.Write(data)
}

// Error writes an ErrorBody for r.
func Error(w http.ResponseWriter, r *http.Request, status int, msg string) {
	JSON(w, status, ErrorBody{
		StatusCode: status,
		Message:    msg,
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		Path:       r.URL.Path,
	})
}
