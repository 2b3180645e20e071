package baidu

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/credential"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	ProviderName    = "baidu"
	DefaultTokenURL = "https://aip.baidubce.com/oauth/2.0/token"

	// defaultTokenTTL applies when the token response omits expires_in.
	defaultTokenTTL = 30 * 24 * time.Hour
)

// Issuer obtains access tokens with the client-credentials grant.
type Issuer struct {
	oauth    *clientcredentials.Config
	client   *http.Client
	disabled bool
}

var _ credential.Issuer = (*Issuer)(nil)

// NewIssuer builds an issuer. client may be nil to use http.DefaultClient.
func NewIssuer(cfg config.BaiduConfig, client *http.Client) *Issuer {
	tokenURL := cfg.TokenURL
	if tokenURL == "" {
		tokenURL = DefaultTokenURL
	}
	return &Issuer{
		oauth: &clientcredentials.Config{
			ClientID:     cfg.APIKey,
			ClientSecret: cfg.SecretKey,
			TokenURL:     tokenURL,
			AuthStyle:    oauth2.AuthStyleInParams,
		},
		client:   client,
		disabled: !cfg.Configured(),
	}
}

// Issue fetches a fresh token.
func (i *Issuer) Issue(ctx context.Context) (credential.Token, error) {
	if i.disabled {
		return credential.Token{}, fmt.Errorf("baidu api key or secret key missing: %w", credential.ErrCredentialUnavailable)
	}
	if i.client != nil {
		ctx = context.WithValue(ctx, oauth2.HTTPClient, i.client)
	}

	tok, err := i.oauth.Token(ctx)
	if err != nil {
		fetchErr := &credential.FetchError{Provider: ProviderName, Err: err}
		var re *oauth2.RetrieveError
		if errors.As(err, &re) {
			if re.Response != nil {
				fetchErr.StatusCode = re.Response.StatusCode
			}
			fetchErr.Body = string(re.Body)
		}
		return credential.Token{}, fetchErr
	}

	ttl := defaultTokenTTL
	switch {
	case tok.ExpiresIn > 0:
		ttl = time.Duration(tok.ExpiresIn) * time.Second
	case !tok.Expiry.IsZero():
		ttl = time.Until(tok.Expiry)
	}
	return credential.Token{Value: tok.AccessToken, TTL: ttl}, nil
}
