package dto

import (
	"net/http"

	"github.com/labelops/backend/internal/domain/shared"
)

// Error codes returned in the error envelope. Ledger codes are the domain
// codes unchanged so clients can switch on a single vocabulary.
const (
	ErrCodeInternal    = "INTERNAL_ERROR"
	ErrCodeValidation  = "VALIDATION_ERROR"
	ErrCodeBadRequest  = "BAD_REQUEST"
	ErrCodeInvalidJSON = "INVALID_JSON"
	ErrCodeTimeout     = "REQUEST_TIMEOUT"
	ErrCodeTooLarge    = "REQUEST_TOO_LARGE"

	ErrCodeNotFound              = shared.CodeNotFound
	ErrCodeInvalidRequest        = shared.CodeInvalidRequest
	ErrCodeInsufficientInventory = shared.CodeInsufficientInventory
	ErrCodeDuplicateReference    = shared.CodeDuplicateReference
	ErrCodeConcurrencyConflict   = shared.CodeConcurrencyConflict
)

// ErrorCodeHTTPStatus maps error codes to HTTP status codes
var ErrorCodeHTTPStatus = map[string]int{
	ErrCodeInternal:    http.StatusInternalServerError,
	ErrCodeValidation:  http.StatusBadRequest,
	ErrCodeBadRequest:  http.StatusBadRequest,
	ErrCodeInvalidJSON: http.StatusBadRequest,
	ErrCodeTimeout:     http.StatusGatewayTimeout,
	ErrCodeTooLarge:    http.StatusRequestEntityTooLarge,

	ErrCodeInvalidRequest: http.StatusBadRequest,
	ErrCodeNotFound:       http.StatusNotFound,

	// A replayed reference and a lost optimistic-lock race are both conflicts
	ErrCodeDuplicateReference:  http.StatusConflict,
	ErrCodeConcurrencyConflict: http.StatusConflict,

	ErrCodeInsufficientInventory: http.StatusUnprocessableEntity,
}

// GetHTTPStatus returns the HTTP status code for an error code.
// Unknown codes map to 500.
func GetHTTPStatus(code string) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}
