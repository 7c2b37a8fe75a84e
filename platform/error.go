package platform

import (
	"errors"
	"fmt"
)

// APIError is a failure returned by a platform's API. Adapters should
// wrap HTTP-level failures in an APIError so the retry subsystem can
// classify them by status code.
type APIError struct {
	// StatusCode is the HTTP status code returned by the platform.
	StatusCode int

	// Message is the platform's error description.
	Message string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return e.Message
	}
	return fmt.Sprintf("platform api error (status %d): %s", e.StatusCode, e.Message)
}

// StatusCode extracts the HTTP status code from an adapter error chain.
// Returns zero when no APIError is present.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.StatusCode
	}
	return 0
}
