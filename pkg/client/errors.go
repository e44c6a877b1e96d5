package client

import "fmt"

// UpstreamError is a non-auth upstream failure: network error, 5xx,
// unexpected status, or malformed response. It is surfaced once; the
// pipeline never retries it. Retry policy, if any, belongs to the
// caller.
type UpstreamError struct {
	// Endpoint is the logical endpoint identifier.
	Endpoint string

	// StatusCode is the upstream HTTP status (0 for network errors).
	StatusCode int

	// Message carries the upstream status line or error body excerpt.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *UpstreamError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("upstream %s: %v", e.Endpoint, e.Err)
	}
	return fmt.Sprintf("upstream %s: status %d: %s", e.Endpoint, e.StatusCode, e.Message)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *UpstreamError) Unwrap() error {
	return e.Err
}
