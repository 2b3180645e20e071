// Package credential caches short-lived upstream access tokens with
// refresh-ahead-of-expiry semantics.
package credential

import (
	"context"
	"log/slog"
	"time"

	"github.com/phrazzld/haoping-api/internal/cache"
	"github.com/phrazzld/haoping-api/internal/platform/logger"
	"github.com/phrazzld/haoping-api/internal/redact"
	"golang.org/x/sync/singleflight"
)

// RefreshTimeout bounds a shared issuance call. The call is detached from the
// caller that started it, so it needs its own deadline.
const RefreshTimeout = 15 * time.Second

// Token is what an issuance endpoint hands back.
type Token struct {
	Value string
	TTL   time.Duration
}

// Issuer obtains a fresh token from a provider.
type Issuer interface {
	Issue(ctx context.Context) (Token, error)
}

// IssuerFunc adapts a function to the Issuer interface.
type IssuerFunc func(ctx context.Context) (Token, error)

// Issue calls f(ctx).
func (f IssuerFunc) Issue(ctx context.Context) (Token, error) {
	return f(ctx)
}

// Credential is the cached value. It is replaced, never modified.
type Credential struct {
	Token     string
	ExpiresAt time.Time
}

// Cache holds at most one live credential for a single provider.
type Cache struct {
	provider string
	issuer   Issuer
	margin   time.Duration
	store    *cache.Store
	group    singleflight.Group
	logger   *slog.Logger
}

// NewCache creates a credential cache for provider backed by store. margin
// is the safety window before expiry inside which the token is refreshed.
func NewCache(provider string, issuer Issuer, margin time.Duration, store *cache.Store, logger *slog.Logger) *Cache {
	if issuer == nil {
		panic("issuer cannot be nil")
	}
	if store == nil {
		panic("store cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}
	if margin < 0 {
		margin = 0
	}
	return &Cache{
		provider: provider,
		issuer:   issuer,
		margin:   margin,
		store:    store,
		logger:   logger.With(slog.String("component", "credential_cache"), slog.String("provider", provider)),
	}
}

// Provider returns the provider name.
func (c *Cache) Provider() string {
	return c.provider
}

func (c *Cache) key() string {
	return "credential:" + c.provider
}

// Token returns a valid token, issuing a new one when the cached credential is
// missing or within the safety margin of its expiry. Concurrent refreshes are
// collapsed into a single issuance call, which keeps running when the caller
// that started it goes away; each caller stops waiting when its own ctx ends.
func (c *Cache) Token(ctx context.Context) (string, error) {
	if tok, ok := c.cached(); ok {
		return tok, nil
	}

	refreshCtx := context.WithoutCancel(ctx)
	ch := c.group.DoChan(c.key(), func() (any, error) {
		// A concurrent caller may have refreshed while we waited.
		if tok, ok := c.cached(); ok {
			return tok, nil
		}
		ctx, cancel := context.WithTimeout(refreshCtx, RefreshTimeout)
		defer cancel()
		return c.refresh(ctx)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		if res.Shared {
			logger.FromContextOrDefault(ctx, c.logger).Debug("reused in-flight credential refresh")
		}
		return res.Val.(string), nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Invalidate drops the cached credential so the next Token call re-issues.
func (c *Cache) Invalidate() {
	c.store.Delete(c.key())
}

func (c *Cache) cached() (string, bool) {
	cred, ok := cache.GetAs[Credential](c.store, c.key())
	if !ok {
		return "", false
	}
	if !c.store.Now().Add(c.margin).Before(cred.ExpiresAt) {
		return "", false
	}
	return cred.Token, true
}

func (c *Cache) refresh(ctx context.Context) (string, error) {
	log := logger.FromContextOrDefault(ctx, c.logger)

	tok, err := c.issuer.Issue(ctx)
	if err != nil {
		log.Warn("credential issuance failed", slog.String("error", redact.Error(err)))
		return "", err
	}
	if tok.Value == "" {
		return "", &FetchError{Provider: c.provider, Body: "empty access token"}
	}

	expiresAt := c.store.Now().Add(tok.TTL)
	c.store.SetUntil(c.key(), Credential{Token: tok.Value, ExpiresAt: expiresAt}, expiresAt)

	log.Info("credential refreshed",
		slog.Time("expires_at", expiresAt),
		slog.Duration("ttl", tok.TTL))
	return tok.Value, nil
}
