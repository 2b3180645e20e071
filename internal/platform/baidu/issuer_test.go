package baidu

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/phrazzld/haoping-api/internal/cache"
	"github.com/phrazzld/haoping-api/internal/config"
	"github.com/phrazzld/haoping-api/internal/credential"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_Unconfigured(t *testing.T) {
	t.Parallel()

	_, err := NewIssuer(config.BaiduConfig{APIKey: "only-half"}, nil).Issue(context.Background())
	assert.ErrorIs(t, err, credential.ErrCredentialUnavailable)
}

func TestIssuer_Issue(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "ak", r.PostForm.Get("client_id"))
		assert.Equal(t, "sk", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"24.abc","expires_in":2592000,"scope":"public"}`))
	}))
	defer srv.Close()

	issuer := NewIssuer(config.BaiduConfig{APIKey: "ak", SecretKey: "sk", TokenURL: srv.URL}, srv.Client())
	tok, err := issuer.Issue(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "24.abc", tok.Value)
	assert.InDelta(t, float64(30*24*time.Hour), float64(tok.TTL), float64(5*time.Second))
}

func TestIssuer_FetchFailure(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client","error_description":"unknown client id"}`))
	}))
	defer srv.Close()

	issuer := NewIssuer(config.BaiduConfig{APIKey: "ak", SecretKey: "bad", TokenURL: srv.URL}, nil)
	_, err := issuer.Issue(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, credential.ErrCredentialFetchFailed)

	var fetchErr *credential.FetchError
	require.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, http.StatusUnauthorized, fetchErr.StatusCode)
	assert.Contains(t, fetchErr.Body, "invalid_client")
}

func TestIssuer_CachedWithMargin(t *testing.T) {
	t.Parallel()

	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"tok","expires_in":600}`))
	}))
	defer srv.Close()

	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	store := cache.New(cache.WithClock(func() time.Time { return now }))
	tokens := credential.NewCache(ProviderName,
		NewIssuer(config.BaiduConfig{APIKey: "ak", SecretKey: "sk", TokenURL: srv.URL}, nil),
		300*time.Second, store, nil)

	_, err := tokens.Token(context.Background())
	require.NoError(t, err)
	_, err = tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls)

	now = now.Add(301 * time.Second)
	_, err = tokens.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, calls, "refreshed inside the 300s margin")
}
