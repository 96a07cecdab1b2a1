package shared

import "fmt"

// Error codes surfaced by the custody engine. Callers match on these through
// errors.Is against the sentinel values below.
const (
	CodeValidation           = "VALIDATION_ERROR"
	CodeNotEligible          = "NOT_ELIGIBLE"
	CodeAmountExceedsBalance = "AMOUNT_EXCEEDS_BALANCE"
	CodeNotFound             = "NOT_FOUND"
	CodeExternalDependency   = "EXTERNAL_DEPENDENCY_FAILURE"
	CodeConcurrencyConflict  = "CONCURRENCY_CONFLICT"
)

// DomainError represents a domain-level error
type DomainError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface
func (e *DomainError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying cause, if any
func (e *DomainError) Unwrap() error {
	return e.cause
}

// Is reports whether target is a DomainError carrying the same code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// NewDomainError creates a new domain error
func NewDomainError(code, message string) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
	}
}

// WrapDomainError creates a domain error that keeps the underlying cause
func WrapDomainError(code, message string, cause error) *DomainError {
	return &DomainError{
		Code:    code,
		Message: message,
		cause:   cause,
	}
}

// Common domain errors
var (
	ErrValidation           = NewDomainError(CodeValidation, "Invalid input provided")
	ErrNotEligible          = NewDomainError(CodeNotEligible, "Advance is not eligible for this operation")
	ErrAmountExceedsBalance = NewDomainError(CodeAmountExceedsBalance, "Amount exceeds the remaining balance")
	ErrNotFound             = NewDomainError(CodeNotFound, "Resource not found")
	ErrExternalDependency   = NewDomainError(CodeExternalDependency, "External dependency failed")
	ErrConcurrencyConflict  = NewDomainError(CodeConcurrencyConflict, "Resource was modified by another process")
)

// NewValidationError is a shorthand for a VALIDATION_ERROR domain error
func NewValidationError(format string, args ...any) *DomainError {
	return NewDomainError(CodeValidation, fmt.Sprintf(format, args...))
}

// NewNotFoundError is a shorthand for a NOT_FOUND domain error naming the resource
func NewNotFoundError(resource string, id any) *DomainError {
	return NewDomainError(CodeNotFound, fmt.Sprintf("%s %v not found", resource, id))
}

// NewExternalDependencyError wraps a failure of a collaborating service
func NewExternalDependencyError(dependency string, cause error) *DomainError {
	return WrapDomainError(CodeExternalDependency, fmt.Sprintf("%s unavailable", dependency), cause)
}
