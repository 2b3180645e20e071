package generation

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstream is matched by every non-success answer from a model provider.
	ErrUpstream = errors.New("language model upstream error")

	// ErrEmptyOutput is returned when the model answers with no text.
	ErrEmptyOutput = errors.New("language model returned empty output")

	// ErrInvalidConfig is returned when a generator is constructed with an
	// unusable configuration.
	ErrInvalidConfig = errors.New("invalid generator configuration")
)

// UpstreamError carries the provider's status and body.
type UpstreamError struct {
	Provider   string
	StatusCode int
	Body       string
	Err        error
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s request failed: %d %s", e.Provider, e.StatusCode, e.Body)
	}
	if e.Err != nil {
		return fmt.Sprintf("%s request failed: %v", e.Provider, e.Err)
	}
	return fmt.Sprintf("%s request failed", e.Provider)
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// Is reports whether target is ErrUpstream.
func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }
