package transport

import (
	"encoding/json"
	"net/http"

	"github.com/openconduit/conduit/pkg/api"
)

// statusByErrorType maps the APIError taxonomy onto HTTP status codes.
// Purely transport-level failures (oversized body, wrong content type)
// never become APIErrors; the HTTP adapter answers those directly.
var statusByErrorType = map[api.ErrorType]int{
	api.ErrorTypeInvalidRequest:  http.StatusBadRequest,
	api.ErrorTypeNotFound:        http.StatusNotFound,
	api.ErrorTypeAuthentication:  http.StatusUnauthorized,
	api.ErrorTypeTooManyRequests: http.StatusTooManyRequests,
	api.ErrorTypeModelError:      http.StatusInternalServerError,
	api.ErrorTypeServerError:     http.StatusInternalServerError,
}

// HTTPStatusFromError returns the HTTP status for an APIError. Unknown
// error types report as internal server errors.
func HTTPStatusFromError(err *api.APIError) int {
	if code, ok := statusByErrorType[err.Type]; ok {
		return code
	}
	return http.StatusInternalServerError
}

// WriteErrorResponse encodes apiErr in the standard error envelope with
// the given status code.
func WriteErrorResponse(w http.ResponseWriter, apiErr *api.APIError, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(api.ErrorResponse{Error: apiErr})
}

// WriteAPIError encodes apiErr with the status derived from its type.
func WriteAPIError(w http.ResponseWriter, apiErr *api.APIError) {
	WriteErrorResponse(w, apiErr, HTTPStatusFromError(apiErr))
}
