// Package deepseek implements generation.Generator on DeepSeek's
// OpenAI-compatible chat completions API.
package deepseek

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/generation"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
)

const (
	providerName   = "deepseek"
	DefaultBaseURL = "https://api.deepseek.com/v1"
	DefaultModel   = "deepseek-chat"
)

// Generator calls a chat completions endpoint.
type Generator struct {
	client      openai.Client
	model       string
	temperature float64
	logger      *slog.Logger
}

var _ generation.Generator = (*Generator)(nil)

// NewGenerator builds a generator from cfg. SDK-level retries are disabled;
// the caller owns the deadline.
func NewGenerator(log *slog.Logger, cfg config.LLMConfig, opts ...option.RequestOption) (*Generator, error) {
	if log == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.DeepSeekAPIKey == "" {
		return nil, fmt.Errorf("%w: deepseek API key cannot be empty", generation.ErrInvalidConfig)
	}

	baseURL := cfg.DeepSeekBaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.DeepSeekModel
	if model == "" {
		model = DefaultModel
	}
	temperature := cfg.Temperature
	if temperature <= 0 || temperature > 2 {
		temperature = generation.DefaultTemperature
	}

	clientOpts := append([]option.RequestOption{
		option.WithAPIKey(cfg.DeepSeekAPIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}, opts...)

	return &Generator{
		client:      openai.NewClient(clientOpts...),
		model:       model,
		temperature: temperature,
		logger:      log.With(slog.String("component", "deepseek_generator")),
	}, nil
}

// Generate sends req and returns the trimmed first choice.
func (g *Generator) Generate(ctx context.Context, req generation.Request) (string, error) {
	log := logger.FromContextOrDefault(ctx, g.logger)

	var messages []openai.ChatCompletionMessageParamUnion
	if req.System != "" {
		messages = append(messages, openai.SystemMessage(req.System))
	}
	messages = append(messages, openai.UserMessage(req.User))

	temperature := req.Temperature
	if temperature <= 0 {
		temperature = g.temperature
	}
	params := openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(g.model),
		Messages:    messages,
		Temperature: openai.Float(temperature),
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}

	log.DebugContext(ctx, "Calling chat completions",
		"model", g.model,
		"prompt_length", len(req.User),
		"max_tokens", req.MaxTokens)

	completion, err := g.client.Chat.Completions.New(ctx, params)
	if err != nil {
		mapped := mapError(err)
		log.ErrorContext(ctx, "Chat completion failed", "error", mapped)
		return "", mapped
	}
	if len(completion.Choices) == 0 {
		return "", nil
	}

	text := strings.TrimSpace(completion.Choices[0].Message.Content)
	log.InfoContext(ctx, "Chat completion succeeded",
		"model", g.model,
		"output_length", len(text),
		"total_tokens", completion.Usage.TotalTokens)
	return text, nil
}

func mapError(err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		body := apiErr.RawJSON()
		if body == "" {
			body = apiErr.Message
		}
		return &generation.UpstreamError{
			Provider:   providerName,
			StatusCode: apiErr.StatusCode,
			Body:       body,
			Err:        err,
		}
	}
	return &generation.UpstreamError{Provider: providerName, Err: err}
}
