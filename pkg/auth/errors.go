package auth

import "fmt"

// Error is a fatal authentication failure: the credential exchange
// failed, or the upstream rejected a freshly refreshed credential.
// It is surfaced to the caller unmodified and never retried by the
// gateway beyond the single forced-refresh retry.
type Error struct {
	// Reason describes what failed ("credential exchange",
	// "credential rejected after refresh", ...).
	Reason string

	// StatusCode is the upstream HTTP status, if one was received.
	StatusCode int

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.StatusCode > 0:
		return fmt.Sprintf("auth: %s (status %d): %v", e.Reason, e.StatusCode, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("auth: %s: %v", e.Reason, e.Err)
	case e.StatusCode > 0:
		return fmt.Sprintf("auth: %s (status %d)", e.Reason, e.StatusCode)
	default:
		return fmt.Sprintf("auth: %s", e.Reason)
	}
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *Error) Unwrap() error {
	return e.Err
}
