package gemini

import (
	"context"
	"errors"

	"github.com/phrazzld/haoping-api/internal/generation"
	"google.golang.org/genai"
)

const providerName = "gemini"

// mapError converts a genai error into a generation.UpstreamError.
// Context errors pass through untouched so callers can tell a deadline from an
// upstream refusal.
func mapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		return &generation.UpstreamError{
			Provider:   providerName,
			StatusCode: apiErr.Code,
			Body:       apiErr.Message,
			Err:        err,
		}
	}
	var apiErrPtr *genai.APIError
	if errors.As(err, &apiErrPtr) && apiErrPtr != nil {
		return &generation.UpstreamError{
			Provider:   providerName,
			StatusCode: apiErrPtr.Code,
			Body:       apiErrPtr.Message,
			Err:        err,
		}
	}
	return &generation.UpstreamError{Provider: providerName, Err: err}
}
