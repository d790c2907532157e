package fetch

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrRateLimited matches any *StatusError carrying HTTP 429.
	ErrRateLimited = errors.New("API rate limit exceeded")
	// ErrInvalidProviderResponse is raised by providers when a decoded body lacks the expected field.
	ErrInvalidProviderResponse = errors.New("invalid provider response")
)

// NetworkError is a transport level failure.
type NetworkError struct {
	URL string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error fetching %s: %v", e.URL, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// StatusError is a non-2xx response.
type StatusError struct {
	URL        string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	msg := fmt.Sprintf("%s returned %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
	if e.Body != "" {
		msg += ": " + e.Body
	}
	return msg
}

func (e *StatusError) Is(target error) bool {
	return target == ErrRateLimited && e.StatusCode == http.StatusTooManyRequests
}

// DecodeError is a 2xx response whose body is not the expected JSON.
type DecodeError struct {
	URL string
	Err error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode response from %s: %v", e.URL, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// InvalidResponse wraps ErrInvalidProviderResponse with context.
func InvalidResponse(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidProviderResponse, fmt.Sprintf(format, args...))
}

func retryable(err error) bool {
	return !errors.Is(err, ErrRateLimited) && !errors.Is(err, ErrInvalidProviderResponse)
}
