package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every configuration environment variable.
const EnvPrefix = "HAOPING"

// vendorEnv maps config keys to the vendor-native variable names deployments
// already use. The prefixed name still wins when both are set.
var vendorEnv = map[string]string{
	"database.url":         "DATABASE_URL",
	"auth.jwt_secret":      "JWT_SECRET",
	"llm.deepseek_api_key": "DEEPSEEK_API_KEY",
	"llm.gemini_api_key":   "GEMINI_API_KEY",
	"baidu.api_key":        "BAIDU_API_KEY",
	"baidu.secret_key":     "BAIDU_SECRET_KEY",
	"hunyuan.api_key":      "HUNYUAN_API_KEY",
	"wechat.app_id":        "WECHAT_APP_ID",
	"wechat.app_secret":    "WECHAT_APP_SECRET",
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", "10s")
	v.SetDefault("server.max_upload_bytes", 32<<20)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 25)
	v.SetDefault("database.conn_max_lifetime", "5m")

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("llm.provider", "deepseek")
	v.SetDefault("llm.temperature", 0.85)
	v.SetDefault("llm.deepseek_api_key", "")
	v.SetDefault("llm.deepseek_base_url", "https://api.deepseek.com/v1")
	v.SetDefault("llm.deepseek_model", "deepseek-chat")
	v.SetDefault("llm.gemini_api_key", "")
	v.SetDefault("llm.gemini_model", "gemini-2.0-flash")

	v.SetDefault("vision.provider", "baidu")
	v.SetDefault("vision.top_k", 3)
	v.SetDefault("vision.filter_threshold", 0.9)
	v.SetDefault("vision.min_confidence", 0.2)
	v.SetDefault("vision.non_subject_label", "非菜")
	v.SetDefault("vision.memo_ttl", "10m")
	v.SetDefault("vision.max_concurrency", 4)
	v.SetDefault("vision.fetch_timeout", "15s")
	v.SetDefault("vision.max_image_bytes", 8<<20)

	v.SetDefault("baidu.api_key", "")
	v.SetDefault("baidu.secret_key", "")
	v.SetDefault("baidu.token_url", "https://aip.baidubce.com/oauth/2.0/token")
	v.SetDefault("baidu.dish_url", "https://aip.baidubce.com/rest/2.0/image-classify/v2/dish")
	v.SetDefault("baidu.refresh_margin", "300s")

	v.SetDefault("hunyuan.api_key", "")
	v.SetDefault("hunyuan.base_url", "https://api.hunyuan.cloud.tencent.com/v1")
	v.SetDefault("hunyuan.model", "hunyuan-vision")

	v.SetDefault("wechat.app_id", "")
	v.SetDefault("wechat.app_secret", "")
	v.SetDefault("wechat.base_url", "https://api.weixin.qq.com")
	v.SetDefault("wechat.refresh_margin", "60s")

	v.SetDefault("generation.timeout", "30s")
	v.SetDefault("generation.default_category", "美食")
	v.SetDefault("generation.category_cache_ttl", "5m")
	v.SetDefault("generation.default_words", 120)
}

// Load reads configuration from defaults, an optional config.yaml, an
// optional .env file and the environment, in increasing precedence.
// The result is validated before it is returned.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile is Load with an explicit config file path. An empty path searches
// the working directory and ./config for config.yaml.
func LoadFile(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("failed to read .env file: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	for key, alias := range vendorEnv {
		if err := v.BindEnv(key, prefixedEnv(key), alias); err != nil {
			return nil, fmt.Errorf("failed to bind %s: %w", alias, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func prefixedEnv(key string) string {
	return EnvPrefix + "_" + strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	if err := validator.New().Struct(cfg); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	return nil
}

// Configured reports whether both Baidu keys are present.
func (c BaiduConfig) Configured() bool {
	return c.APIKey != "" && c.SecretKey != ""
}

// Configured reports whether both WeChat credentials are present.
func (c WeChatConfig) Configured() bool {
	return c.AppID != "" && c.AppSecret != ""
}
