package api

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
)

// Error codes carried in ErrorBody.Code.
const (
	ErrCodeBadRequest  = "bad_request"
	ErrCodeNotFound    = "not_found"
	ErrCodeInternal    = "internal_error"
	ErrCodeUnavailable = "unavailable"
)

// ErrorBody is the JSON envelope of every non-2xx response that is not a
// per-device result list.
type ErrorBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Target    string `json:"target,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusOf maps an error code to its HTTP status.
var statusOf = map[string]int{
	ErrCodeBadRequest:  http.StatusBadRequest,
	ErrCodeNotFound:    http.StatusNotFound,
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeUnavailable: http.StatusServiceUnavailable,
}

// writeJSON encodes v with status. Encoding errors are ignored since the
// header is already on the wire.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v == nil {
		return
	}
	_ = json.NewEncoder(w).Encode(v) //nolint:errcheck // Client may have gone away
}

// fail writes an ErrorBody for code, tagged with the request id.
func fail(w http.ResponseWriter, r *http.Request, code, message string) {
	status, ok := statusOf[code]
	if !ok {
		status = http.StatusInternalServerError
	}
	body := ErrorBody{Code: code, Message: message}
	if r != nil {
		body.Target = chi.URLParam(r, "target")
		if id, ok := r.Context().Value(ctxKeyRequestID).(string); ok {
			body.RequestID = id
		}
	}
	writeJSON(w, status, body)
}
