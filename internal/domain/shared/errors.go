package shared

import (
	"errors"
	"fmt"
)

// Error codes shared by every bounded context
const (
	CodeNotFound             = "NOT_FOUND"
	CodeInvalidInput         = "INVALID_INPUT"
	CodeConcurrencyConflict  = "CONCURRENCY_CONFLICT"
	CodeInsufficientQuantity = "INSUFFICIENT_QUANTITY"
	CodeInvalidAmount        = "INVALID_AMOUNT"
	CodeDuplicateScanCode    = "DUPLICATE_SCAN_CODE"
	CodeNonDeletable         = "NON_DELETABLE_RESOURCE"
	CodePersistenceFailure   = "PERSISTENCE_FAILURE"
	CodeCompensationFailed   = "COMPENSATION_FAILED"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string         `json:"code"`
	Message string         `json:"message"`
	Details map[string]any `json:"details,omitempty"`
}

// Error implements the error interface
func (e *DomainError) Error() string {
	return e.Message
}

// Is reports whether target is a DomainError carrying the same code, so
// errors.Is(err, shared.ErrNotFound) matches any not-found error.
func (e *DomainError) Is(target error) bool {
	var t *DomainError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

// WithDetail returns a copy of the error with an extra detail attached
func (e *DomainError) WithDetail(key string, value any) *DomainError {
	details := make(map[string]any, len(e.Details)+1)
	for k, v := range e.Details {
		details[k] = v
	}
	details[key] = value
	return &DomainError{Code: e.Code, Message: e.Message, Details: details}
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// NewDomainErrorf creates a new domain error with a formatted message
func NewDomainErrorf(code, format string, args ...any) *DomainError {
	return NewDomainError(code, fmt.Sprintf(format, args...))
}

// Common domain errors
var (
	ErrNotFound             = NewDomainError(CodeNotFound, "Resource not found")
	ErrInvalidInput         = NewDomainError(CodeInvalidInput, "Invalid input provided")
	ErrConcurrencyConflict  = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
	ErrInsufficientQuantity = NewDomainError(CodeInsufficientQuantity, "Insufficient quantity")
	ErrInvalidAmount        = NewDomainError(CodeInvalidAmount, "Amount must be a positive number")
	ErrDuplicateScanCode    = NewDomainError(CodeDuplicateScanCode, "Scan code already exists")
	ErrNonDeletable         = NewDomainError(CodeNonDeletable, "Resource cannot be deleted")
)

// PersistenceError reports a store-level failure together with the step of the
// unit of work that failed. When the compensating path also failed,
// CompensationErr is set and the record set may need manual reconciliation.
type PersistenceError struct {
	Step            string
	Err             error
	CompensationErr error
}

// NewPersistenceError wraps err with the failing step
func NewPersistenceError(step string, err error) *PersistenceError {
	return &PersistenceError{Step: step, Err: err}
}

// Error implements the error interface
func (e *PersistenceError) Error() string {
	if e.CompensationErr != nil {
		return fmt.Sprintf("persistence failure at step %q: %v; compensation failed: %v", e.Step, e.Err, e.CompensationErr)
	}
	return fmt.Sprintf("persistence failure at step %q: %v", e.Step, e.Err)
}

// Unwrap returns the underlying store error
func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// Code returns the error code reported to callers
func (e *PersistenceError) Code() string {
	if e.CompensationErr != nil {
		return CodeCompensationFailed
	}
	return CodePersistenceFailure
}

// IsPersistenceFailure reports whether err is (or wraps) a PersistenceError
func IsPersistenceFailure(err error) bool {
	var pe *PersistenceError
	return errors.As(err, &pe)
}

// ErrorCode returns the code callers see for err. Errors that carry no code
// are reported as persistence failures.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var pe *PersistenceError
	if errors.As(err, &pe) {
		return pe.Code()
	}
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return CodePersistenceFailure
}
