package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	errs "walkin-queue-coordinator/pkg/errors"
)

type errorBody struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Retryable bool           `json:"retryable"`
	Details   map[string]any `json:"details,omitempty"`
}

type errorResponse struct {
	Error errorBody `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps an application error to its HTTP response. Unknown errors
// surface as a generic internal message so internals never leak to clients.
func writeError(w http.ResponseWriter, err error) {
	status := errs.HTTPStatus(err)
	body := errorBody{
		Code:      string(errs.CodeOf(err)),
		Message:   "internal error",
		Retryable: errs.Retryable(err),
	}
	var appErr *errs.Error
	if errs.As(err, &appErr) {
		body.Message = appErr.UserMessage
		body.Details = appErr.Details
		if status == http.StatusTooManyRequests {
			if ra, ok := appErr.Details["retryAfter"].(int); ok && ra > 0 {
				w.Header().Set("Retry-After", strconv.Itoa(ra))
			}
		}
	}
	writeJSON(w, status, errorResponse{Error: body})
}
