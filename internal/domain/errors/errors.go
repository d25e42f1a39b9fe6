package errors

import (
	"errors"
	"fmt"
)

var (
	// Configuration errors
	ErrNoProcessorConfigured = errors.New("payment processor not configured")
	ErrCredentialsMissing    = errors.New("processor credentials missing")

	// Customer errors
	ErrCustomerLinkNotFound = errors.New("customer link not found")

	// Checkout errors
	ErrSessionNotFound = errors.New("checkout session not found")
	ErrInvalidAmount   = errors.New("invalid amount")
	ErrOrderNotFound   = errors.New("order not found")

	// Provider errors
	ErrProviderUnavailable = errors.New("payment provider unavailable")
	ErrProviderTimeout     = errors.New("provider request timeout")
	ErrVaultUnsupported    = errors.New("active processor does not support stored payment setup")

	// Webhook errors
	ErrVerificationFailed = errors.New("webhook verification failed")

	// Idempotency errors
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")

	// Lock errors
	ErrLockAcquisitionFailed = errors.New("failed to acquire lock")

	// Validation errors
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidInput     = errors.New("invalid input")
)

// ConfigurationError signals an inactive or misconfigured processor. It is an
// expected state and surfaces as a readable message, never a stack trace.
type ConfigurationError struct {
	Processor string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%s not configured: %s", e.Processor, e.Reason)
	}
	return fmt.Sprintf("%s not configured", e.Processor)
}

func (e *ConfigurationError) Unwrap() error {
	return ErrCredentialsMissing
}

// NewConfigurationError creates a configuration error for the named processor.
func NewConfigurationError(processor, reason string) *ConfigurationError {
	return &ConfigurationError{Processor: processor, Reason: reason}
}

// ValidationError represents an input error for a field a specific adapter mandates.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return fmt.Sprintf("validation failed for field %s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrValidationFailed
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Field: field, Message: message}
}

// ProviderError wraps a non-success HTTP response from a gateway. Message holds
// the text extracted from the provider's structured error body, falling back to
// the HTTP status text.
type ProviderError struct {
	Processor  string
	StatusCode int
	Message    string
}

func (e *ProviderError) Error() string {
	return e.Message
}

// NewProviderError creates a provider error.
func NewProviderError(processor string, statusCode int, message string) *ProviderError {
	return &ProviderError{Processor: processor, StatusCode: statusCode, Message: message}
}

// NetworkError wraps a transport-level failure on an outbound gateway call.
// Timeouts unwrap to ErrProviderTimeout so callers can match them distinctly.
type NetworkError struct {
	Processor string
	Timeout   bool
	Err       error
}

func (e *NetworkError) Error() string {
	if e.Timeout {
		return fmt.Sprintf("%s: request timed out: %v", e.Processor, e.Err)
	}
	return fmt.Sprintf("%s: network error: %v", e.Processor, e.Err)
}

func (e *NetworkError) Unwrap() error {
	if e.Timeout {
		return ErrProviderTimeout
	}
	return e.Err
}

// NewNetworkError creates a network error.
func NewNetworkError(processor string, timeout bool, err error) *NetworkError {
	return &NetworkError{Processor: processor, Timeout: timeout, Err: err}
}
