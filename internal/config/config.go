package config

import "time"

// Config holds all application configuration.
type Config struct {
	Server     ServerConfig     `mapstructure:"server" validate:"required"`
	Database   DatabaseConfig   `mapstructure:"database" validate:"required"`
	Auth       AuthConfig       `mapstructure:"auth" validate:"required"`
	LLM        LLMConfig        `mapstructure:"llm" validate:"required"`
	Vision     VisionConfig     `mapstructure:"vision" validate:"required"`
	Baidu      BaiduConfig      `mapstructure:"baidu"`
	Hunyuan    HunyuanConfig    `mapstructure:"hunyuan"`
	WeChat     WeChatConfig     `mapstructure:"wechat"`
	Generation GenerationConfig `mapstructure:"generation" validate:"required"`
}

// ServerConfig contains HTTP server and logging settings.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel        string        `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	LogFormat       string        `mapstructure:"log_format" validate:"required,oneof=json text"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	MaxUploadBytes  int64         `mapstructure:"max_upload_bytes" validate:"gt=0"`
}

// DatabaseConfig contains connection pool settings.
type DatabaseConfig struct {
	URL             string        `mapstructure:"url" validate:"required,url"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// AuthConfig contains bearer token verification settings.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"required,min=32"`
}

// LLMConfig selects and configures the review text model.
type LLMConfig struct {
	Provider    string  `mapstructure:"provider" validate:"required,oneof=deepseek gemini"`
	Temperature float64 `mapstructure:"temperature" validate:"gte=0,lte=2"`

	DeepSeekAPIKey  string `mapstructure:"deepseek_api_key" validate:"required_if=Provider deepseek"`
	DeepSeekBaseURL string `mapstructure:"deepseek_base_url" validate:"omitempty,url"`
	DeepSeekModel   string `mapstructure:"deepseek_model" validate:"required_if=Provider deepseek"`

	GeminiAPIKey string `mapstructure:"gemini_api_key" validate:"required_if=Provider gemini"`
	GeminiModel  string `mapstructure:"gemini_model" validate:"required_if=Provider gemini"`
}

// VisionConfig selects the recognition provider and its acceptance policy.
type VisionConfig struct {
	// Provider is empty or "none" to disable recognition.
	Provider        string        `mapstructure:"provider" validate:"omitempty,oneof=baidu hunyuan none"`
	TopK            int           `mapstructure:"top_k" validate:"gte=1,lte=10"`
	FilterThreshold float64       `mapstructure:"filter_threshold" validate:"gte=0,lte=1"`
	MinConfidence   float64       `mapstructure:"min_confidence" validate:"gte=0,lte=1"`
	NonSubjectLabel string        `mapstructure:"non_subject_label"`
	MemoTTL         time.Duration `mapstructure:"memo_ttl" validate:"gte=0"`
	MaxConcurrency  int           `mapstructure:"max_concurrency" validate:"gte=1"`
	FetchTimeout    time.Duration `mapstructure:"fetch_timeout" validate:"gt=0"`
	MaxImageBytes   int64         `mapstructure:"max_image_bytes" validate:"gt=0"`
}

// BaiduConfig holds the Baidu AI platform application keys. Missing keys leave
// the Baidu classifier unconfigured rather than failing startup.
type BaiduConfig struct {
	APIKey        string        `mapstructure:"api_key"`
	SecretKey     string        `mapstructure:"secret_key"`
	TokenURL      string        `mapstructure:"token_url" validate:"omitempty,url"`
	DishURL       string        `mapstructure:"dish_url" validate:"omitempty,url"`
	RefreshMargin time.Duration `mapstructure:"refresh_margin" validate:"gte=0"`
}

// HunyuanConfig configures the multimodal recognition model.
type HunyuanConfig struct {
	APIKey  string `mapstructure:"api_key"`
	BaseURL string `mapstructure:"base_url" validate:"omitempty,url"`
	Model   string `mapstructure:"model"`
}

// WeChatConfig holds the mini-program credentials used for phone binding.
type WeChatConfig struct {
	AppID         string        `mapstructure:"app_id"`
	AppSecret     string        `mapstructure:"app_secret"`
	BaseURL       string        `mapstructure:"base_url" validate:"omitempty,url"`
	RefreshMargin time.Duration `mapstructure:"refresh_margin" validate:"gte=0"`
}

// GenerationConfig tunes the review pipeline.
type GenerationConfig struct {
	Timeout          time.Duration `mapstructure:"timeout" validate:"gt=0"`
	DefaultCategory  string        `mapstructure:"default_category" validate:"required"`
	CategoryCacheTTL time.Duration `mapstructure:"category_cache_ttl" validate:"gte=0"`
	// DefaultWords replaces a requested length that is not a finite number.
	DefaultWords int `mapstructure:"default_words" validate:"gte=50,lte=800"`
}
