package baidu

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/credential"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/vision"
	"resty.dev/v3"
)

const DefaultDishURL = "https://aip.baidubce.com/rest/2.0/image-classify/v2/dish"

// Error codes meaning the access token was rejected.
const (
	errCodeInvalidToken = 110
	errCodeExpiredToken = 111
)

// TokenSource supplies and invalidates access tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// ClassifierOptions tunes the request.
type ClassifierOptions struct {
	DishURL         string
	TopK            int
	FilterThreshold float64
	Timeout         time.Duration
}

// OptionsFromConfig extracts classifier options.
func OptionsFromConfig(b config.BaiduConfig, v config.VisionConfig) ClassifierOptions {
	return ClassifierOptions{
		DishURL:         b.DishURL,
		TopK:            v.TopK,
		FilterThreshold: v.FilterThreshold,
		Timeout:         v.FetchTimeout,
	}
}

// Classifier implements vision.Classifier with the dish endpoint.
type Classifier struct {
	client *resty.Client
	tokens TokenSource
	opts   ClassifierOptions
	logger *slog.Logger
}

var _ vision.Classifier = (*Classifier)(nil)

// NewClassifier creates the classifier.
func NewClassifier(tokens TokenSource, opts ClassifierOptions, log *slog.Logger) *Classifier {
	if log == nil {
		log = slog.Default()
	}
	if opts.DishURL == "" {
		opts.DishURL = DefaultDishURL
	}
	if opts.TopK <= 0 {
		opts.TopK = vision.DefaultTopK
	}
	client := resty.New()
	if opts.Timeout > 0 {
		client.SetTimeout(opts.Timeout)
	}
	return &Classifier{
		client: client,
		tokens: tokens,
		opts:   opts,
		logger: log.With(slog.String("component", "baidu_classifier")),
	}
}

// Close releases idle connections.
func (c *Classifier) Close() error {
	return c.client.Close()
}

type dishResponse struct {
	LogID     int64        `json:"log_id"`
	ErrorCode int          `json:"error_code"`
	ErrorMsg  string       `json:"error_msg"`
	Result    []dishResult `json:"result"`
}

type dishResult struct {
	Name        string     `json:"name"`
	Probability *flexFloat `json:"probability"`
}

// flexFloat accepts a JSON number or a numeric string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return fmt.Errorf("probability %q: %w", s, err)
	}
	*f = flexFloat(v)
	return nil
}

// Classify posts image to the dish endpoint and returns its ranked results.
func (c *Classifier) Classify(ctx context.Context, image []byte) ([]vision.Candidate, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		SetFormData(map[string]string{
			"image":            base64.StdEncoding.EncodeToString(image),
			"top_num":          strconv.Itoa(c.opts.TopK),
			"filter_threshold": strconv.FormatFloat(c.opts.FilterThreshold, 'f', -1, 64),
		}).
		Post(c.opts.DishURL)
	if err != nil {
		return nil, fmt.Errorf("baidu dish request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("baidu dish request failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	var payload dishResponse
	if err := json.Unmarshal(resp.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("decode baidu dish response: %w", err)
	}
	if payload.ErrorCode != 0 {
		if payload.ErrorCode == errCodeInvalidToken || payload.ErrorCode == errCodeExpiredToken {
			logger.FromContextOrDefault(ctx, c.logger).Warn("baidu rejected access token, invalidating",
				slog.Int("error_code", payload.ErrorCode))
			c.tokens.Invalidate()
		}
		return nil, fmt.Errorf("baidu dish error %d: %s", payload.ErrorCode, payload.ErrorMsg)
	}

	candidates := make([]vision.Candidate, 0, len(payload.Result))
	for _, r := range payload.Result {
		cand := vision.Candidate{Label: r.Name}
		if r.Probability != nil {
			p := float64(*r.Probability)
			cand.Confidence = &p
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

var _ TokenSource = (*credential.Cache)(nil)
