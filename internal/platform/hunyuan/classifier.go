// Package hunyuan recognizes dishes with Tencent Hunyuan's multimodal model
// through its OpenAI-compatible endpoint.
package hunyuan

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/credential"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/vision"
)

const (
	DefaultBaseURL = "https://api.hunyuan.cloud.tencent.com/v1"
	DefaultModel   = "hunyuan-vision"
)

const analysisPrompt = `你是一名大众点评美食图片分析助手。我会给你一张餐饮相关的图片，请你根据图片，严格输出一段 JSON，包含以下字段：

- dishName: 图片里最主要的菜品名称（例如"西红柿炒蛋"、"宫保鸡丁"、"寿司拼盘"等，若无法判断请填 null）
- envSummary: 用一两句话概括就餐环境和氛围
- scenes: 适合的人群或场景，比如"适合朋友聚餐"

要求：
1. 可以做合理推断，但不要凭空编造明显不存在的细节。
2. 严格输出 JSON，不要在 JSON 前后添加任何多余文字、注释或解释。
3. 字段名必须是 dishName、envSummary、scenes。`

// Analysis is the structured answer the model is asked for.
type Analysis struct {
	DishName   *string `json:"dishName"`
	EnvSummary string  `json:"envSummary"`
	Scenes     string  `json:"scenes"`
}

// Classifier implements vision.Classifier. The model reports no confidence,
// so candidates carry none.
type Classifier struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

var _ vision.Classifier = (*Classifier)(nil)

// NewClassifier builds a classifier. With no API key every call reports
// credential.ErrCredentialUnavailable.
func NewClassifier(cfg config.HunyuanConfig, log *slog.Logger, opts ...option.RequestOption) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	c := &Classifier{
		model:  cfg.Model,
		logger: log.With(slog.String("component", "hunyuan_classifier")),
	}
	if c.model == "" {
		c.model = DefaultModel
	}
	if cfg.APIKey == "" {
		return c
	}

	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	client := openai.NewClient(append([]option.RequestOption{
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(baseURL),
		option.WithMaxRetries(0),
	}, opts...)...)
	c.client = &client
	return c
}

// Classify asks the model for the main dish in image. The dining
// environment and suggested scenes ride along on the candidate.
func (c *Classifier) Classify(ctx context.Context, image []byte) ([]vision.Candidate, error) {
	analysis, err := c.Analyze(ctx, image)
	if err != nil {
		return nil, err
	}
	if analysis.DishName == nil || strings.TrimSpace(*analysis.DishName) == "" {
		return nil, nil
	}
	return []vision.Candidate{{
		Label:       strings.TrimSpace(*analysis.DishName),
		Environment: strings.TrimSpace(analysis.EnvSummary),
		Scenes:      strings.TrimSpace(analysis.Scenes),
	}}, nil
}

// Analyze returns the full structured analysis of image.
func (c *Classifier) Analyze(ctx context.Context, image []byte) (*Analysis, error) {
	if c.client == nil {
		return nil, fmt.Errorf("hunyuan: %w", credential.ErrCredentialUnavailable)
	}
	log := logger.FromContextOrDefault(ctx, c.logger)

	dataURL := fmt.Sprintf("data:%s;base64,%s", http.DetectContentType(image), base64.StdEncoding.EncodeToString(image))
	parts := []openai.ChatCompletionContentPartUnionParam{
		openai.TextContentPart(analysisPrompt),
		openai.ImageContentPart(openai.ChatCompletionContentPartImageImageURLParam{URL: dataURL}),
	}

	completion, err := c.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(c.model),
		Messages:    []openai.ChatCompletionMessageParamUnion{openai.UserMessage(parts)},
		Temperature: openai.Float(0.3),
		MaxTokens:   openai.Int(512),
	})
	if err != nil {
		var apiErr *openai.Error
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("hunyuan analysis failed: status %d: %w", apiErr.StatusCode, err)
		}
		return nil, fmt.Errorf("hunyuan analysis failed: %w", err)
	}
	if len(completion.Choices) == 0 {
		return &Analysis{}, nil
	}

	content := strings.TrimSpace(completion.Choices[0].Message.Content)
	analysis, err := parseAnalysis(content)
	if err != nil {
		log.WarnContext(ctx, "Hunyuan returned non-JSON analysis", "error", err, "content_length", len(content))
		return &Analysis{EnvSummary: content}, nil
	}
	return analysis, nil
}

// parseAnalysis tolerates a fenced code block around the JSON.
func parseAnalysis(content string) (*Analysis, error) {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")

	var a Analysis
	if err := json.Unmarshal([]byte(strings.TrimSpace(content)), &a); err != nil {
		return nil, err
	}
	return &a, nil
}
