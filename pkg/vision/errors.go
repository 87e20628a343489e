package vision

import (
	"context"
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrNoAPIKey is returned when the provider credential is missing or blank.
	ErrNoAPIKey = errors.New("vision: API key required")

	// ErrEmptyImage is returned when there is nothing to analyze.
	ErrEmptyImage = errors.New("vision: empty image")

	// ErrProviderUnavailable is returned when a chain has no providers.
	ErrProviderUnavailable = errors.New("vision: provider unavailable")
)

// Kind classifies an analysis failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindConfig
	KindTransport
	KindAPI
	KindShape
	KindCanceled
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindConfig:
		return "config"
	case KindTransport:
		return "transport"
	case KindAPI:
		return "api"
	case KindShape:
		return "shape"
	case KindCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Recoverable reports whether the pipeline should keep going after this kind.
func (k Kind) Recoverable() bool {
	return k != KindConfig
}

// Classify maps an error to its Kind.
func Classify(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	if errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, ErrNoAPIKey) {
		return KindConfig
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return KindAPI
	}
	var shapeErr *ShapeError
	if errors.As(err, &shapeErr) {
		return KindShape
	}
	var transportErr *TransportError
	if errors.As(err, &transportErr) {
		return KindTransport
	}
	return KindUnknown
}

// APIError represents a non-2xx response from a vision API.
type APIError struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Message is the error message from the API, or the raw body.
	Message string

	// Body is the raw response body, kept for diagnostics.
	Body string

	// Provider identifies which provider returned the error.
	Provider string
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("vision [%s]: API error %d: %s", e.Provider, e.StatusCode, e.Message)
}

// IsRateLimited returns true if this is a rate limit error (HTTP 429).
func (e *APIError) IsRateLimited() bool {
	return e.StatusCode == 429
}

// IsUnauthorized returns true if this is an authentication error (HTTP 401/403).
func (e *APIError) IsUnauthorized() bool {
	return e.StatusCode == 401 || e.StatusCode == 403
}

// IsServerError returns true if this is a server-side error (HTTP 5xx).
func (e *APIError) IsServerError() bool {
	return e.StatusCode >= 500 && e.StatusCode < 600
}

// IsRetryable returns true if the request should be retried.
func (e *APIError) IsRetryable() bool {
	return e.IsRateLimited() || e.IsServerError()
}

// TransportError wraps a network-level failure.
type TransportError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *TransportError) Error() string {
	return fmt.Sprintf("vision [%s]: transport: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *TransportError) Unwrap() error {
	return e.Err
}

// ShapeError reports a response that could not be turned into a Result.
type ShapeError struct {
	Provider string
	Raw      string
	Err      error
}

// Error implements the error interface.
func (e *ShapeError) Error() string {
	return fmt.Sprintf("vision [%s]: bad response: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ShapeError) Unwrap() error {
	return e.Err
}

// ProviderError wraps an error with provider context.
type ProviderError struct {
	Provider string
	Err      error
}

// Error implements the error interface.
func (e *ProviderError) Error() string {
	return fmt.Sprintf("vision [%s]: %v", e.Provider, e.Err)
}

// Unwrap returns the underlying error.
func (e *ProviderError) Unwrap() error {
	return e.Err
}

// WrapError wraps an error with provider context.
func WrapError(provider string, err error) error {
	if err == nil {
		return nil
	}
	return &ProviderError{Provider: provider, Err: err}
}

// ChainError aggregates errors from all providers in a chain.
type ChainError struct {
	Errors []error
}

// Error implements the error interface.
func (e *ChainError) Error() string {
	if len(e.Errors) == 0 {
		return "vision chain: no errors recorded"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("vision chain: %v", e.Errors[0])
	}
	return fmt.Sprintf("vision chain: all %d providers failed, last error: %v",
		len(e.Errors), e.Errors[len(e.Errors)-1])
}

// Unwrap returns the last error in the chain.
func (e *ChainError) Unwrap() error {
	if len(e.Errors) == 0 {
		return nil
	}
	return e.Errors[len(e.Errors)-1]
}

// transportErr wraps err unless it is a cancellation, which passes through
// untouched so callers can tell it apart.
func transportErr(ctx context.Context, provider string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return &TransportError{Provider: provider, Err: err}
}
