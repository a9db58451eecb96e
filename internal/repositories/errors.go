package repositories

import "fmt"

// ErrorCode enumerates machine readable repository failure causes.
type ErrorCode string

const (
	// ErrorUnknown represents an unspecified failure.
	ErrorUnknown ErrorCode = "unknown"
	// ErrorNotFound indicates the requested document is missing or soft-deleted.
	ErrorNotFound ErrorCode = "not_found"
	// ErrorConflict indicates a uniqueness or state conflict.
	ErrorConflict ErrorCode = "conflict"
	// ErrorInsufficientStock indicates requested quantity exceeds availability.
	ErrorInsufficientStock ErrorCode = "insufficient_stock"
	// ErrorPriceMismatch indicates the submitted unit price differs from the catalog price.
	ErrorPriceMismatch ErrorCode = "price_mismatch"
	// ErrorUnavailable indicates a transient backend outage.
	ErrorUnavailable ErrorCode = "unavailable"
)

// StoreError wraps persistence failures with categorisation used by services.
type StoreError struct {
	Op      string
	Code    ErrorCode
	Message string
	Err     error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e == nil {
		return ""
	}
	if e.Op != "" {
		return fmt.Sprintf("%s: %s", e.Op, e.Message)
	}
	return e.Message
}

// Unwrap exposes the underlying error, if any.
func (e *StoreError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// IsNotFound reports whether the error represents a missing document.
func (e *StoreError) IsNotFound() bool { return e != nil && e.Code == ErrorNotFound }

// IsConflict reports whether the error represents a conflicting state.
func (e *StoreError) IsConflict() bool { return e != nil && e.Code == ErrorConflict }

// IsInsufficientStock reports whether stock did not cover the requested quantity.
func (e *StoreError) IsInsufficientStock() bool {
	return e != nil && e.Code == ErrorInsufficientStock
}

// IsPriceMismatch reports whether a submitted price disagreed with the catalog.
func (e *StoreError) IsPriceMismatch() bool { return e != nil && e.Code == ErrorPriceMismatch }

// IsUnavailable reports whether the failure is transient.
func (e *StoreError) IsUnavailable() bool { return e != nil && e.Code == ErrorUnavailable }

// NewStoreError constructs a typed store error.
func NewStoreError(code ErrorCode, message string, err error) *StoreError {
	if message == "" {
		message = string(code)
	}
	return &StoreError{Code: code, Message: message, Err: err}
}
