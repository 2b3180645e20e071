package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/generation"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"google.golang.org/genai"
)

// Generator implements generation.Generator using the Gemini API.
type Generator struct {
	logger      *slog.Logger
	client      *genai.Client
	model       string
	temperature float64
}

var _ generation.Generator = (*Generator)(nil)

// Option customizes a Generator.
type Option func(*genai.ClientConfig)

// WithBaseURL points the client at a different API endpoint.
func WithBaseURL(url string) Option {
	return func(c *genai.ClientConfig) {
		c.HTTPOptions.BaseURL = url
	}
}

// NewGenerator creates a Gemini-backed generator.
func NewGenerator(ctx context.Context, log *slog.Logger, cfg config.LLMConfig, opts ...Option) (*Generator, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if err := validateConfig(ctx, log, cfg); err != nil {
		return nil, err
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	}
	for _, opt := range opts {
		opt(clientConfig)
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", generation.ErrInvalidConfig, err)
	}

	temperature := cfg.Temperature
	if temperature <= 0 || temperature > 2 {
		temperature = generation.DefaultTemperature
	}

	return &Generator{
		logger:      log.With(slog.String("component", "gemini_generator")),
		client:      client,
		model:       cfg.GeminiModel,
		temperature: temperature,
	}, nil
}

// Generate sends req to Gemini and returns the trimmed candidate text.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (string, error) {
	log := logger.FromContextOrDefault(ctx, g.logger)

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = g.temperature
	}
	genConfig := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(float32(temperature)),
	}
	if req.MaxTokens > 0 {
		genConfig.MaxOutputTokens = int32(req.MaxTokens)
	}
	if strings.TrimSpace(req.System) != "" {
		genConfig.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}

	log.DebugContext(ctx, "Calling Gemini",
		"model", g.model,
		"prompt_length", len(req.User),
		"max_tokens", req.MaxTokens)

	resp, err := g.client.Models.GenerateContent(ctx, g.model, genai.Text(req.User), genConfig)
	if err != nil {
		mapped := mapError(err)
		log.ErrorContext(ctx, "Gemini call failed", "error", mapped)
		return "", mapped
	}
	if resp == nil {
		return "", fmt.Errorf("%w: nil response", generation.ErrEmptyOutput)
	}
	if len(resp.Candidates) > 0 && resp.Candidates[0].FinishReason == genai.FinishReasonSafety {
		return "", &generation.UpstreamError{Provider: providerName, Body: "content blocked by safety filters"}
	}

	text := strings.TrimSpace(resp.Text())
	log.InfoContext(ctx, "Gemini call succeeded", "model", g.model, "output_length", len(text))
	return text, nil
}
