package dto

import (
	"net/http"

	"github.com/erp/stockledger/internal/domain/shared"
)

// Transport-level error codes. Domain failures use the shared.Code* values.
const (
	// ErrCodeInternal is used for internal server errors
	ErrCodeInternal = "INTERNAL_ERROR"
	// ErrCodeBadRequest is used for malformed requests
	ErrCodeBadRequest = "BAD_REQUEST"
	// ErrCodeValidation is used when request binding fails field validation
	ErrCodeValidation = "VALIDATION_ERROR"
	// ErrCodeRequestTooLarge is used when the body exceeds the configured limit
	ErrCodeRequestTooLarge = "REQUEST_TOO_LARGE"
	// ErrCodeUnavailable is used when a dependency such as the database is down
	ErrCodeUnavailable = "SERVICE_UNAVAILABLE"
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:        http.StatusInternalServerError,
	ErrCodeBadRequest:      http.StatusBadRequest,
	ErrCodeValidation:      http.StatusBadRequest,
	ErrCodeRequestTooLarge: http.StatusRequestEntityTooLarge,
	ErrCodeUnavailable:     http.StatusServiceUnavailable,

	shared.CodeNotFound: http.StatusNotFound,

	shared.CodeInvalidInput:  http.StatusBadRequest,
	shared.CodeInvalidAmount: http.StatusBadRequest,

	// Business rule errors -> 422 Unprocessable Entity
	shared.CodeInsufficientQuantity: http.StatusUnprocessableEntity,

	shared.CodeDuplicateScanCode:   http.StatusConflict,
	shared.CodeNonDeletable:        http.StatusConflict,
	shared.CodeConcurrencyConflict: http.StatusConflict,

	shared.CodePersistenceFailure: http.StatusInternalServerError,
	shared.CodeCompensationFailed: http.StatusInternalServerError,
}

// GetHTTPStatus returns the HTTP status code for an error code
// Returns 500 Internal Server Error if the error code is not found
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
