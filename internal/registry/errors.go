package registry

import (
	"errors"
	"fmt"
)

// ErrorCategory is the normalized failure taxonomy for registry lookups.
type ErrorCategory string

const (
	// ErrorTimeout indicates the registry took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorProviderOutage indicates the registry is unreachable or answered 5xx
	ErrorProviderOutage ErrorCategory = "provider_outage"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorBadData indicates the registry returned a malformed payload or rejected the input
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorAuthentication indicates credential or permission issues
	ErrorAuthentication ErrorCategory = "authentication"

	// ErrorNotFound indicates the registry has no record for the CNPJ
	ErrorNotFound ErrorCategory = "not_found"

	// ErrorInternal indicates an unexpected internal error
	ErrorInternal ErrorCategory = "internal"
)

// LookupError wraps registry failures with normalized categorization.
type LookupError struct {
	Category   ErrorCategory
	Message    string
	Underlying error
	Retryable  bool
}

func (e *LookupError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("registry [%s]: %s: %v", e.Category, e.Message, e.Underlying)
	}
	return fmt.Sprintf("registry [%s]: %s", e.Category, e.Message)
}

func (e *LookupError) Unwrap() error {
	return e.Underlying
}

// NewLookupError creates a normalized lookup error. Only not_found is a
// definitive answer about the CNPJ; credential and payload faults are
// integration problems and are retried like outages.
func NewLookupError(category ErrorCategory, message string, underlying error) *LookupError {
	retryable := category != ErrorNotFound

	return &LookupError{
		Category:   category,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable reports whether err is worth another attempt. Errors that did not
// come from the registry client are treated as transient.
func IsRetryable(err error) bool {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Retryable
	}
	return true
}

// CategoryOf extracts the error category from an error.
func CategoryOf(err error) ErrorCategory {
	var le *LookupError
	if errors.As(err, &le) {
		return le.Category
	}
	return ErrorInternal
}
