package gateway

import (
	"errors"
	"fmt"
	"net/http"
)

// Category is the user-facing class of a remote failure.
type Category string

const (
	CategoryRateLimited     Category = "rate_limited"
	CategoryQuotaExhausted  Category = "quota_exhausted"
	CategoryOperationFailed Category = "operation_failed"
)

var (
	// ErrMalformedResponse is returned when a success response is not the
	// JSON the operation requires.
	ErrMalformedResponse = errors.New("malformed response")
	ErrNoImage           = errors.New("no image returned")
	ErrUnsupportedInput  = errors.New("input not supported by this provider")
)

// RemoteError represents a non-2xx response from an operation endpoint.
type RemoteError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("%s failed: HTTP %d: %s", e.Op, e.StatusCode, e.Body)
}

func (e *RemoteError) Category() Category {
	switch e.StatusCode {
	case http.StatusTooManyRequests:
		return CategoryRateLimited
	case http.StatusPaymentRequired:
		return CategoryQuotaExhausted
	default:
		return CategoryOperationFailed
	}
}

// IsRetryable returns true for rate limits and server errors (5xx).
// Other client errors are considered permanent.
func (e *RemoteError) IsRetryable() bool {
	return e.StatusCode == http.StatusTooManyRequests || e.StatusCode >= 500
}

// Retryable reports whether repeating the call that returned err may
// succeed.
func Retryable(err error) bool {
	var remote *RemoteError
	return errors.As(err, &remote) && remote.IsRetryable()
}

// CategoryOf classifies any error returned by a Gateway.
func CategoryOf(err error) Category {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Category()
	}
	return CategoryOperationFailed
}

// UserMessage renders err the way it is shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	switch CategoryOf(err) {
	case CategoryRateLimited:
		return "Rate limit reached. Please try again shortly."
	case CategoryQuotaExhausted:
		return "AI credits are exhausted. Please add credits to continue."
	}
	var remote *RemoteError
	if errors.As(err, &remote) {
		return fmt.Sprintf("The operation failed (HTTP %d). Please try again.", remote.StatusCode)
	}
	if errors.Is(err, ErrNoImage) {
		return "No image was returned. Please try again."
	}
	return "The operation failed. Please try again."
}
