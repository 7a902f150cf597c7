package api

import (
	"encoding/json"
	"net/http"
)

// ErrorResponse is the body of every failed request. The status surface
// never changes bus state, so the vocabulary only covers lookups, tokens
// and the surface refusing anything but reads.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// Error codes reported in ErrorResponse.Code.
const (
	ErrCodeBadRequest   = "bad_request"
	ErrCodeNotFound     = "not_found"
	ErrCodeUnauthorized = "unauthorised"
	ErrCodeReadOnly     = "read_only"
	ErrCodeInternal     = "internal_error"
)

// errorCodes maps the statuses the surface replies with to their code.
var errorCodes = map[int]string{
	http.StatusBadRequest:          ErrCodeBadRequest,
	http.StatusNotFound:            ErrCodeNotFound,
	http.StatusUnauthorized:        ErrCodeUnauthorized,
	http.StatusMethodNotAllowed:    ErrCodeReadOnly,
	http.StatusInternalServerError: ErrCodeInternal,
}

// writeJSON writes a JSON response with the given status code and payload.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if v != nil {
		//nolint:errcheck // Best-effort write to response; connection may be closed
		json.NewEncoder(w).Encode(v)
	}
}

// writeError replies with status and message, tagged with the request ID so
// a client report can be matched to the server log. Statuses outside the
// vocabulary are reported as internal errors.
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	code, ok := errorCodes[status]
	if !ok {
		status, code = http.StatusInternalServerError, ErrCodeInternal
	}
	requestID, _ := r.Context().Value(ctxKeyRequestID).(string) //nolint:errcheck // empty outside the middleware chain
	writeJSON(w, status, ErrorResponse{
		Code:      code,
		Message:   message,
		RequestID: requestID,
	})
}

// handleNotFound replaces chi's plain-text 404.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeError(w, r, http.StatusNotFound, "no such endpoint: "+r.URL.Path)
}

// handleMethodNotAllowed rejects writes; every endpoint is read-only.
func handleMethodNotAllowed(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Allow", "GET, OPTIONS")
	writeError(w, r, http.StatusMethodNotAllowed, r.Method+" is not supported; the API is read-only")
}
