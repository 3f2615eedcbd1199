package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/scrapemaster/sentinel/pkg/types"
	"github.com/scrapemaster/sentinel/pkg/window"
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.FatalLevel)
	return logger
}

func TestLimiterAllowsUnderLimit(t *testing.T) {
	limiter := NewLimiter([]types.RateLimitRule{{
		ID:            "ip_small",
		Scope:         types.ScopeIP,
		Limit:         5,
		WindowSeconds: 60,
	}}, window.NewMemoryStore(), testLogger())

	fp := &types.RequestFingerprint{SourceIP: "203.0.113.4", Path: "/x", Method: "GET"}
	for i := 0; i < 5; i++ {
		result, err := limiter.Check(context.Background(), fp)
		require.NoError(t, err)
		assert.True(t, result.Allowed, "request %d", i+1)
	}
}

func TestLimiterRejectsOverLimit(t *testing.T) {
	limiter := NewLimiter([]types.RateLimitRule{{
		ID:            "ip_100",
		Scope:         types.ScopeIP,
		Limit:         100,
		WindowSeconds: 60,
	}}, window.NewMemoryStore(), testLogger())

	fp := &types.RequestFingerprint{SourceIP: "203.0.113.4", Path: "/x", Method: "GET"}
	ctx := context.Background()
	for i := 0; i < 100; i++ {
		result, err := limiter.Check(ctx, fp)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}

	result, err := limiter.Check(ctx, fp)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
	assert.Equal(t, "ip_100", result.RuleID)
	assert.Greater(t, result.RetryAfter, time.Duration(0))
}

func TestLimiterWindowSlides(t *testing.T) {
	current := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	counters := window.NewMemoryStore().WithClock(func() time.Time { return current })
	limiter := NewLimiter([]types.RateLimitRule{{
		ID:            "ip_2",
		Scope:         types.ScopeIP,
		Limit:         2,
		WindowSeconds: 60,
	}}, counters, testLogger()).WithClock(func() time.Time { return current })

	fp := &types.RequestFingerprint{SourceIP: "203.0.113.4", Path: "/x", Method: "GET"}
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		result, err := limiter.Check(ctx, fp)
		require.NoError(t, err)
		require.True(t, result.Allowed)
	}
	result, err := limiter.Check(ctx, fp)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	// After the window passes, capacity is back.
	current = current.Add(61 * time.Second)
	result, err = limiter.Check(ctx, fp)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLimiterScopesAreIndependent(t *testing.T) {
	limiter := NewLimiter([]types.RateLimitRule{{
		ID:            "ip_1",
		Scope:         types.ScopeIP,
		Limit:         1,
		WindowSeconds: 60,
	}}, window.NewMemoryStore(), testLogger())
	ctx := context.Background()

	first := &types.RequestFingerprint{SourceIP: "203.0.113.4", Path: "/x", Method: "GET"}
	second := &types.RequestFingerprint{SourceIP: "198.51.100.1", Path: "/x", Method: "GET"}

	result, err := limiter.Check(ctx, first)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = limiter.Check(ctx, first)
	require.NoError(t, err)
	require.False(t, result.Allowed)

	result, err = limiter.Check(ctx, second)
	require.NoError(t, err)
	assert.True(t, result.Allowed)
}

func TestLimiterEndpointScoping(t *testing.T) {
	limiter := NewLimiter([]types.RateLimitRule{{
		ID:            "login_only",
		Scope:         types.ScopeIP,
		Limit:         1,
		WindowSeconds: 60,
		Endpoints:     []string{"/api/v1/auth/login"},
		Methods:       []string{"POST"},
	}}, window.NewMemoryStore(), testLogger())
	ctx := context.Background()

	login := &types.RequestFingerprint{SourceIP: "203.0.113.4", Path: "/api/v1/auth/login", Method: "POST"}
	other := &types.RequestFingerprint{SourceIP: "203.0.113.4", Path: "/api/v1/products", Method: "GET"}

	result, err := limiter.Check(ctx, login)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = limiter.Check(ctx, login)
	require.NoError(t, err)
	assert.False(t, result.Allowed)

	// The unscoped endpoint is untouched by the login rule.
	for i := 0; i < 5; i++ {
		result, err = limiter.Check(ctx, other)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestLimiterWildcardEndpoint(t *testing.T) {
	limiter := NewLimiter([]types.RateLimitRule{{
		ID:            "export_all",
		Scope:         types.ScopeUser,
		Limit:         1,
		WindowSeconds: 60,
		Endpoints:     []string{"/api/v1/export*"},
	}}, window.NewMemoryStore(), testLogger())
	ctx := context.Background()

	fp := &types.RequestFingerprint{SourceIP: "203.0.113.4", UserID: "u1", Path: "/api/v1/export/contacts", Method: "GET"}
	result, err := limiter.Check(ctx, fp)
	require.NoError(t, err)
	require.True(t, result.Allowed)

	result, err = limiter.Check(ctx, fp)
	require.NoError(t, err)
	assert.False(t, result.Allowed)
}

func TestLimiterExemption(t *testing.T) {
	limiter := NewLimiter([]types.RateLimitRule{{
		ID:            "user_1",
		Scope:         types.ScopeUser,
		Limit:         1,
		WindowSeconds: 60,
		Exempt:        []string{"trusted-service-account"},
	}}, window.NewMemoryStore(), testLogger())
	ctx := context.Background()

	trusted := &types.RequestFingerprint{SourceIP: "203.0.113.4", UserID: "trusted-service-account", Path: "/x", Method: "GET"}
	for i := 0; i < 10; i++ {
		result, err := limiter.Check(ctx, trusted)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestLimiterAnonymousSkipsUserRules(t *testing.T) {
	limiter := NewLimiter([]types.RateLimitRule{{
		ID:            "user_1",
		Scope:         types.ScopeUser,
		Limit:         1,
		WindowSeconds: 60,
	}}, window.NewMemoryStore(), testLogger())
	ctx := context.Background()

	anon := &types.RequestFingerprint{SourceIP: "203.0.113.4", Path: "/x", Method: "GET"}
	for i := 0; i < 5; i++ {
		result, err := limiter.Check(ctx, anon)
		require.NoError(t, err)
		assert.True(t, result.Allowed)
	}
}

func TestLimiterFailsClosedOnStoreError(t *testing.T) {
	limiter := NewLimiter([]types.RateLimitRule{{
		ID:            "ip_any",
		Scope:         types.ScopeIP,
		Limit:         100,
		WindowSeconds: 60,
	}}, failingStore{}, testLogger())

	fp := &types.RequestFingerprint{SourceIP: "203.0.113.4", Path: "/x", Method: "GET"}
	result, err := limiter.Check(context.Background(), fp)
	assert.Error(t, err)
	assert.False(t, result.Allowed)
}

type failingStore struct{}

func (failingStore) Increment(ctx context.Context, key string) (int, error) {
	return 0, window.ErrUnavailable
}

func (failingStore) Count(ctx context.Context, key string, windowDur time.Duration) (int, error) {
	return 0, window.ErrUnavailable
}

func (failingStore) Reset(ctx context.Context, key string) error { return window.ErrUnavailable }

func (failingStore) Ping(ctx context.Context) error { return window.ErrUnavailable }

func TestDefaultRulesAreValid(t *testing.T) {
	for _, rule := range DefaultRules() {
		assert.NotEmpty(t, rule.ID)
		assert.Greater(t, rule.Limit, 0)
		assert.Greater(t, rule.WindowSeconds, 0)
	}
}
