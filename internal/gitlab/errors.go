package gitlab

import (
	"errors"
	"fmt"
)

// Sentinel errors returned by the client. Wrap-aware callers should use
// errors.Is to classify.
var (
	// ErrTimeout indicates the API did not respond within the configured timeout.
	ErrTimeout = errors.New("gitlab: request timed out")

	// ErrUnreachable indicates the API could not be reached at all.
	ErrUnreachable = errors.New("gitlab: api unreachable")
)

// APIError is a non-retryable HTTP failure from the API. It carries the
// status code and the raw response body for diagnostics.
type APIError struct {
	StatusCode   int
	Message      string
	ResponseData string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("gitlab: api error (status %d): %s", e.StatusCode, e.Message)
}

// IsNotFound reports whether err is an APIError with status 404.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 404
}

// IsForbidden reports whether err is an APIError with status 403.
func IsForbidden(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 403
}
