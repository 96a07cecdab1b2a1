package dto

import (
	"net/http"

	"github.com/erp/custody/internal/domain/shared"
)

// Transport-level error codes. Domain failures keep their shared.Code* value.
const (
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeInvalidJSON is used when the body cannot be decoded
	ErrCodeInvalidJSON = "INVALID_JSON"
	// ErrCodeInvalidScope is used when tenant, branch or user headers are missing or malformed
	ErrCodeInvalidScope = "INVALID_SCOPE"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeUnavailable is used when a health dependency is down
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	shared.CodeValidation:           http.StatusBadRequest,
	shared.CodeNotEligible:          http.StatusConflict,
	shared.CodeAmountExceedsBalance: http.StatusUnprocessableEntity,
	shared.CodeNotFound:             http.StatusNotFound,
	shared.CodeExternalDependency:   http.StatusBadGateway,
	shared.CodeConcurrencyConflict:  http.StatusConflict,

	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeInvalidJSON:     http.StatusBadRequest,
	ErrCodeInvalidScope:    http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
