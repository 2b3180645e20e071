package gemini

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/generation"
)

// validateConfig checks the settings the Gemini adapter needs.
func validateConfig(ctx context.Context, logger *slog.Logger, cfg config.LLMConfig) error {
	if cfg.GeminiAPIKey == "" {
		logger.ErrorContext(ctx, "Missing Gemini API key")
		return fmt.Errorf("%w: gemini API key cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.GeminiModel == "" {
		logger.ErrorContext(ctx, "Missing Gemini model name")
		return fmt.Errorf("%w: model name cannot be empty", generation.ErrInvalidConfig)
	}
	if cfg.Temperature < 0 || cfg.Temperature > 2 {
		logger.WarnContext(ctx, "Temperature out of range, using default",
			"value", cfg.Temperature,
			"default", generation.DefaultTemperature)
	}
	return nil
}
