package generation

import "context"

// DefaultTemperature is the sampling temperature used for review text.
const DefaultTemperature = 0.85

// Request is a single completion request.
type Request struct {
	System      string
	User        string
	Temperature float64
	MaxTokens   int
}

// Generator produces text from a prompt.
type Generator interface {
	// Generate returns the model's text answer. Implementations must honor
	// ctx cancellation and report non-success answers as *UpstreamError.
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

// Generate calls f.
func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
