// Package wechat talks to the WeChat mini-program server API: access token
// issuance and the phone-number exchange.
package wechat

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/credential"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"resty.dev/v3"
)

const (
	ProviderName   = "wechat"
	DefaultBaseURL = "https://api.weixin.qq.com"

	// defaultTokenTTL applies when the response omits expires_in.
	defaultTokenTTL = 7200 * time.Second
)

// Error codes meaning the access token was rejected.
const (
	errCodeInvalidToken = 40001
	errCodeExpiredToken = 42001
)

type apiError struct {
	ErrCode int    `json:"errcode"`
	ErrMsg  string `json:"errmsg"`
}

// Client is a resty-backed WeChat API client.
type Client struct {
	http      *resty.Client
	appID     string
	appSecret string
	logger    *slog.Logger
}

// NewClient creates a client for cfg.
func NewClient(cfg config.WeChatConfig, timeout time.Duration, log *slog.Logger) *Client {
	if log == nil {
		log = slog.Default()
	}
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := resty.New().SetBaseURL(baseURL)
	if timeout > 0 {
		hc.SetTimeout(timeout)
	}
	return &Client{
		http:      hc,
		appID:     cfg.AppID,
		appSecret: cfg.AppSecret,
		logger:    log.With(slog.String("component", "wechat_client")),
	}
}

// Close releases idle connections.
func (c *Client) Close() error {
	return c.http.Close()
}

type tokenResponse struct {
	apiError
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// Issue implements credential.Issuer.
func (c *Client) Issue(ctx context.Context) (credential.Token, error) {
	if c.appID == "" || c.appSecret == "" {
		return credential.Token{}, fmt.Errorf("wechat app id or secret missing: %w", credential.ErrCredentialUnavailable)
	}

	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"grant_type": "client_credential",
			"appid":      c.appID,
			"secret":     c.appSecret,
		}).
		Get("/cgi-bin/token")
	if err != nil {
		return credential.Token{}, &credential.FetchError{Provider: ProviderName, Err: err}
	}
	if resp.IsError() {
		return credential.Token{}, &credential.FetchError{
			Provider:   ProviderName,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
		}
	}

	var payload tokenResponse
	if err := json.Unmarshal(resp.Bytes(), &payload); err != nil {
		return credential.Token{}, &credential.FetchError{Provider: ProviderName, StatusCode: resp.StatusCode(), Body: resp.String(), Err: err}
	}
	if payload.AccessToken == "" {
		return credential.Token{}, &credential.FetchError{
			Provider:   ProviderName,
			StatusCode: resp.StatusCode(),
			Body:       resp.String(),
		}
	}

	ttl := defaultTokenTTL
	if payload.ExpiresIn > 0 {
		ttl = time.Duration(payload.ExpiresIn) * time.Second
	}
	return credential.Token{Value: payload.AccessToken, TTL: ttl}, nil
}

// TokenSource supplies and invalidates access tokens.
type TokenSource interface {
	Token(ctx context.Context) (string, error)
	Invalidate()
}

// PhoneInfo is the phone number bound to a WeChat account.
type PhoneInfo struct {
	PhoneNumber     string `json:"phoneNumber"`
	PurePhoneNumber string `json:"purePhoneNumber"`
	CountryCode     string `json:"countryCode"`
}

type phoneResponse struct {
	apiError
	PhoneInfo *PhoneInfo `json:"phone_info"`
}

// PhoneClient exchanges phone codes using tokens from a credential cache.
type PhoneClient struct {
	client *Client
	tokens TokenSource
}

// NewPhoneClient wires c with tokens.
func NewPhoneClient(c *Client, tokens TokenSource) *PhoneClient {
	return &PhoneClient{client: c, tokens: tokens}
}

// PhoneNumber exchanges a getPhoneNumber code for the user's phone number.
func (p *PhoneClient) PhoneNumber(ctx context.Context, code string) (*PhoneInfo, error) {
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}

	resp, err := p.client.http.R().
		SetContext(ctx).
		SetQueryParam("access_token", token).
		SetBody(map[string]string{"code": code}).
		Post("/wxa/business/getuserphonenumber")
	if err != nil {
		return nil, fmt.Errorf("wechat phone request: %w", err)
	}
	if resp.IsError() {
		return nil, fmt.Errorf("wechat phone request failed: status %d: %s", resp.StatusCode(), resp.String())
	}

	var payload phoneResponse
	if err := json.Unmarshal(resp.Bytes(), &payload); err != nil {
		return nil, fmt.Errorf("decode wechat phone response: %w", err)
	}
	if payload.ErrCode == errCodeInvalidToken || payload.ErrCode == errCodeExpiredToken {
		logger.FromContextOrDefault(ctx, p.client.logger).Warn("wechat rejected access token, invalidating",
			slog.Int("errcode", payload.ErrCode))
		p.tokens.Invalidate()
	}
	if payload.ErrCode != 0 || payload.PhoneInfo == nil || payload.PhoneInfo.PhoneNumber == "" {
		return nil, fmt.Errorf("wechat phone exchange failed: errcode %d: %s", payload.ErrCode, payload.ErrMsg)
	}
	return payload.PhoneInfo, nil
}
