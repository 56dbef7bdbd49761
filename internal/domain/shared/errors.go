package shared

import (
	"errors"
	"fmt"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the wrapped cause, if any
func (e *DomainError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a DomainError with the same code.
// This lets errors.Is(err, ErrInvalidRequest) match any INVALID_REQUEST error.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error carrying an underlying cause
func WrapDomainError(code, message string, err error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error codes
const (
	CodeNotFound              = "NOT_FOUND"
	CodeInvalidRequest        = "INVALID_REQUEST"
	CodeInsufficientInventory = "INSUFFICIENT_INVENTORY"
	CodeDuplicateReference    = "DUPLICATE_REFERENCE"
	CodeConcurrencyConflict   = "CONCURRENCY_CONFLICT"
)

// Common domain errors
var (
	ErrNotFound              = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidRequest        = NewDomainError(CodeInvalidRequest, "Invalid request")
	ErrInsufficientInventory = NewDomainError(CodeInsufficientInventory, "Insufficient inventory")
	ErrDuplicateReference    = NewDomainError(CodeDuplicateReference, "Reference has already been recorded")
	ErrConcurrencyConflict   = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
)

// NewInvalidRequest returns an INVALID_REQUEST error with a specific message
func NewInvalidRequest(format string, args ...any) *DomainError {
	return NewDomainError(CodeInvalidRequest, fmt.Sprintf(format, args...))
}

// NewNotFound returns a NOT_FOUND error naming the missing resource
func NewNotFound(resource string, id any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s %v not found", resource, id))
}

// InsufficientInventoryError is returned when a command asks for more units
// than the ledger can supply. It is a business rule failure and is never retried.
type InsufficientInventoryError struct {
	Requested int64 `json:"requested"`
	Available int64 `json:"available"`
}

// NewInsufficientInventory creates an InsufficientInventoryError
func NewInsufficientInventory(requested, available int64) *InsufficientInventoryError {
	if available < 0 {
		available = 0
	}
	return &InsufficientInventoryError{Requested: requested, Available: available}
}

// Error implements the error interface
func (e *InsufficientInventoryError) Error() string {
	return fmt.Sprintf("insufficient inventory: requested %d, available %d", e.Requested, e.Available)
}

// Code returns the error code used by transport adapters
func (e *InsufficientInventoryError) Code() string {
	return CodeInsufficientInventory
}

// Is matches ErrInsufficientInventory
func (e *InsufficientInventoryError) Is(target error) bool {
	var t *DomainError
	if errors.As(target, &t) {
		return t.Code == CodeInsufficientInventory
	}
	return false
}
