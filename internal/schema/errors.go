package schema

import (
	"errors"
	"fmt"
)

// ErrorCategory defines the normalized registry failure taxonomy.
type ErrorCategory string

const (
	// ErrorTimeout indicates the registry took too long to respond
	ErrorTimeout ErrorCategory = "timeout"

	// ErrorBadData indicates the registry returned an unusable descriptor
	ErrorBadData ErrorCategory = "bad_data"

	// ErrorOutage indicates the registry is unavailable
	ErrorOutage ErrorCategory = "outage"

	// ErrorRateLimited indicates too many requests
	ErrorRateLimited ErrorCategory = "rate_limited"

	// ErrorInternal indicates an unexpected failure
	ErrorInternal ErrorCategory = "internal"
)

// RegistryError wraps registry failures with a normalized category.
type RegistryError struct {
	Category   ErrorCategory
	Key        Key
	Message    string
	Underlying error
	Retryable  bool
}

func (e *RegistryError) Error() string {
	if e.Underlying != nil {
		return fmt.Sprintf("schema registry [%s] %s: %s: %v", e.Category, e.Key, e.Message, e.Underlying)
	}
	return fmt.Sprintf("schema registry [%s] %s: %s", e.Category, e.Key, e.Message)
}

func (e *RegistryError) Unwrap() error {
	return e.Underlying
}

// NewRegistryError creates a categorized registry error.
func NewRegistryError(category ErrorCategory, key Key, message string, underlying error) *RegistryError {
	retryable := category == ErrorTimeout ||
		category == ErrorOutage ||
		category == ErrorRateLimited

	return &RegistryError{
		Category:   category,
		Key:        key,
		Message:    message,
		Underlying: underlying,
		Retryable:  retryable,
	}
}

// IsRetryable checks if an error is worth retrying.
func IsRetryable(err error) bool {
	var re *RegistryError
	if errors.As(err, &re) {
		return re.Retryable
	}
	return false
}

// GetCategory extracts the error category from an error.
func GetCategory(err error) ErrorCategory {
	var re *RegistryError
	if errors.As(err, &re) {
		return re.Category
	}
	return ErrorInternal
}
