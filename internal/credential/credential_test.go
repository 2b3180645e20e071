package credential

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/phrazzld/haoping-api/internal/cache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type countingIssuer struct {
	calls atomic.Int32
	ttl   time.Duration
	err   error
	delay time.Duration
}

func (i *countingIssuer) Issue(ctx context.Context) (Token, error) {
	n := i.calls.Add(1)
	if i.delay > 0 {
		time.Sleep(i.delay)
	}
	if i.err != nil {
		return Token{}, i.err
	}
	return Token{Value: "token-" + string(rune('0'+n)), TTL: i.ttl}, nil
}

func TestCache_RefreshAhead(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := &testClock{now: start}
	store := cache.New(cache.WithClock(clock.Now))
	issuer := &countingIssuer{ttl: 2 * time.Hour}
	margin := 300 * time.Second

	c := NewCache("baidu", issuer, margin, store, nil)

	tok, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok)
	assert.EqualValues(t, 1, issuer.calls.Load())

	expiresAt := start.Add(2 * time.Hour)

	clock.Set(expiresAt.Add(-margin - time.Second))
	tok, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-1", tok, "token outside the safety margin must be reused")
	assert.EqualValues(t, 1, issuer.calls.Load())

	clock.Set(expiresAt.Add(-margin + time.Second))
	tok, err = c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
	assert.EqualValues(t, 2, issuer.calls.Load(), "entering the safety margin must trigger exactly one issuance")
}

func TestCache_PerProviderMargin(t *testing.T) {
	t.Parallel()

	start := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	clock := &testClock{now: start}
	store := cache.New(cache.WithClock(clock.Now))

	baiduIssuer := &countingIssuer{ttl: time.Hour}
	wechatIssuer := &countingIssuer{ttl: time.Hour}
	baidu := NewCache("baidu", baiduIssuer, 300*time.Second, store, nil)
	wechat := NewCache("wechat", wechatIssuer, 60*time.Second, store, nil)

	_, err := baidu.Token(context.Background())
	require.NoError(t, err)
	_, err = wechat.Token(context.Background())
	require.NoError(t, err)

	// 2 minutes before expiry: inside baidu's margin, outside wechat's.
	clock.Set(start.Add(time.Hour - 2*time.Minute))
	_, err = baidu.Token(context.Background())
	require.NoError(t, err)
	_, err = wechat.Token(context.Background())
	require.NoError(t, err)

	assert.EqualValues(t, 2, baiduIssuer.calls.Load())
	assert.EqualValues(t, 1, wechatIssuer.calls.Load())
}

func TestCache_FailureNotCached(t *testing.T) {
	t.Parallel()

	store := cache.New()
	fetchErr := &FetchError{Provider: "baidu", StatusCode: 401, Body: `{"error":"invalid_client"}`}
	issuer := &countingIssuer{ttl: time.Hour, err: fetchErr}
	c := NewCache("baidu", issuer, time.Minute, store, nil)

	_, err := c.Token(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrCredentialFetchFailed)

	var fe *FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, 401, fe.StatusCode)
	assert.Contains(t, fe.Error(), "invalid_client")

	_, err = c.Token(context.Background())
	require.Error(t, err)
	assert.EqualValues(t, 2, issuer.calls.Load(), "a failed issuance must not be cached")
	assert.Equal(t, 0, store.Len())
}

func TestCache_Unavailable(t *testing.T) {
	t.Parallel()

	c := NewCache("wechat", IssuerFunc(func(ctx context.Context) (Token, error) {
		return Token{}, ErrCredentialUnavailable
	}), time.Minute, cache.New(), nil)

	_, err := c.Token(context.Background())
	assert.ErrorIs(t, err, ErrCredentialUnavailable)
}

func TestCache_EmptyTokenRejected(t *testing.T) {
	t.Parallel()

	c := NewCache("wechat", IssuerFunc(func(ctx context.Context) (Token, error) {
		return Token{TTL: time.Hour}, nil
	}), time.Minute, cache.New(), nil)

	_, err := c.Token(context.Background())
	assert.ErrorIs(t, err, ErrCredentialFetchFailed)
}

func TestCache_Invalidate(t *testing.T) {
	t.Parallel()

	issuer := &countingIssuer{ttl: time.Hour}
	c := NewCache("baidu", issuer, time.Minute, cache.New(), nil)

	_, err := c.Token(context.Background())
	require.NoError(t, err)
	c.Invalidate()

	tok, err := c.Token(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "token-2", tok)
}

func TestCache_ConcurrentRefreshIsCollapsed(t *testing.T) {
	t.Parallel()

	issuer := &countingIssuer{ttl: time.Hour, delay: 50 * time.Millisecond}
	c := NewCache("baidu", issuer, time.Minute, cache.New(), nil)

	var wg sync.WaitGroup
	tokens := make([]string, 10)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			tok, err := c.Token(context.Background())
			assert.NoError(t, err)
			tokens[i] = tok
		}(i)
	}
	wg.Wait()

	assert.EqualValues(t, 1, issuer.calls.Load())
	for _, tok := range tokens {
		assert.Equal(t, "token-1", tok)
	}
}

type gatedIssuer struct {
	calls   atomic.Int32
	started chan struct{}
	release chan struct{}
}

func (i *gatedIssuer) Issue(ctx context.Context) (Token, error) {
	i.calls.Add(1)
	close(i.started)
	select {
	case <-i.release:
	case <-ctx.Done():
		return Token{}, ctx.Err()
	}
	return Token{Value: "shared-token", TTL: time.Hour}, nil
}

func TestCache_CanceledCallerDoesNotAbortSharedRefresh(t *testing.T) {
	t.Parallel()

	issuer := &gatedIssuer{started: make(chan struct{}), release: make(chan struct{})}
	c := NewCache("baidu", issuer, time.Minute, cache.New(), nil)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Token(firstCtx)
		firstErr <- err
	}()
	<-issuer.started

	type result struct {
		tok string
		err error
	}
	second := make(chan result, 1)
	go func() {
		tok, err := c.Token(context.Background())
		second <- result{tok, err}
	}()

	cancelFirst()
	select {
	case err := <-firstErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("canceled caller should stop waiting")
	}

	close(issuer.release)
	select {
	case res := <-second:
		require.NoError(t, res.err)
		assert.Equal(t, "shared-token", res.tok)
	case <-time.After(time.Second):
		t.Fatal("second caller should receive the shared token")
	}
	assert.EqualValues(t, 1, issuer.calls.Load())
}
