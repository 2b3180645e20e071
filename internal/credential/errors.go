package credential

import (
	"errors"
	"fmt"
)

var (
	// ErrCredentialUnavailable is returned when a provider's static secret is
	// not configured. Callers treat it as "feature disabled".
	ErrCredentialUnavailable = errors.New("credential unavailable: provider secret not configured")

	// ErrCredentialFetchFailed is returned when the issuance endpoint rejects
	// a request or returns an unusable payload.
	ErrCredentialFetchFailed = errors.New("credential fetch failed")
)

// FetchError carries the upstream status and body of a failed issuance call.
type FetchError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

// Error implements the error interface.
func (e *FetchError) Error() string {
	msg := fmt.Sprintf("%s token issuance failed", e.Provider)
	if e.StatusCode != 0 {
		msg += fmt.Sprintf(" (status %d)", e.StatusCode)
	}
	if e.Body != "" {
		msg += ": " + e.Body
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying transport error, if any.
func (e *FetchError) Unwrap() error {
	return e.Err
}

// Is reports FetchError as ErrCredentialFetchFailed.
func (e *FetchError) Is(target error) bool {
	return target == ErrCredentialFetchFailed
}
