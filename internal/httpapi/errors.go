package httpapi

import (
	"encoding/json"
	"net/http"

	"rkllmd/internal/manager"
	"rkllmd/pkg/rkllm"
	"rkllmd/pkg/types"
)

// HTTPError allows services to provide an HTTP status code for an error.
type HTTPError interface {
	error
	StatusCode() int
}

// statusForError maps well-known manager and interop errors to HTTP status
// codes. Anything unrecognized is a 500.
func statusForError(err error) int {
	switch {
	case manager.IsModelNotFound(err):
		return http.StatusNotFound
	case manager.IsTooBusy(err):
		return http.StatusTooManyRequests
	case manager.IsDependencyUnavailable(err):
		return http.StatusServiceUnavailable
	case rkllm.IsCapability(err):
		return http.StatusServiceUnavailable
	case rkllm.IsContractViolation(err):
		return http.StatusBadRequest
	case rkllm.IsInvalidHandle(err):
		return http.StatusConflict
	}
	if he, ok := err.(HTTPError); ok {
		return he.StatusCode()
	}
	return http.StatusInternalServerError
}

// writeJSONError writes a consistent JSON error payload.
func writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(types.ErrorResponse{Error: msg, Code: status})
}
