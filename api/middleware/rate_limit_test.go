package middleware

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/kofabeauty/storefront-backend/pkg/errors"
)

type fakeRateStore struct {
	mu     sync.Mutex
	counts map[string]int64
	err    error
}

func newFakeRateStore() *fakeRateStore {
	return &fakeRateStore{counts: map[string]int64{}}
}

func (f *fakeRateStore) IncrWithTTL(_ context.Context, key string, _ time.Duration) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	f.counts[key]++
	return f.counts[key], nil
}

func (f *fakeRateStore) RateLimitKey(scope string) string {
	return "test:" + scope
}

func checkoutRequest(email, addr string) *http.Request {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`{"email":"`+email+`","items":[]}`))
	req.RemoteAddr = addr
	return req
}

func TestRateLimitPreservesBody(t *testing.T) {
	policy := NewRateLimitPolicy("checkout", time.Minute, ByClientIP(2), ByJSONEmail(2))
	var seen string
	handler := RateLimit(policy, newFakeRateStore(), nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		seen = string(body)
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("tester@example.com", "1.2.3.4:5678"))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, `{"email":"tester@example.com","items":[]}`, seen)
}

func TestRateLimitEmailRuleNormalizesAndBlocks(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(NewRateLimitPolicy("checkout", time.Minute, ByJSONEmail(2)), store, nil)(okHandler())

	emails := []string{"blocked@example.com", " Blocked@Example.com", "BLOCKED@example.com"}
	for i, email := range emails {
		rec := httptest.NewRecorder()
		// a fresh address each time so only the email counter matters
		handler.ServeHTTP(rec, checkoutRequest(email, "10.0.0."+string(rune('1'+i))+":80"))
		if i < 2 {
			require.Equal(t, http.StatusOK, rec.Code, "request %d", i)
			continue
		}
		require.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "60", rec.Header().Get("Retry-After"))

		var payload struct {
			Error struct {
				Code string `json:"code"`
			} `json:"error"`
		}
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &payload))
		assert.Equal(t, string(pkgerrors.CodeRateLimit), payload.Error.Code)
	}

	for key := range store.counts {
		assert.NotContains(t, key, "blocked@example.com", "email stored in the clear")
	}
}

func TestRateLimitIPRuleUsesForwardedFor(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(NewRateLimitPolicy("checkout", time.Minute, ByClientIP(1)), store, nil)(okHandler())

	first := checkoutRequest("a@example.com", "5.6.7.8:1234")
	first.Header.Set("X-Forwarded-For", "9.9.9.9, 10.0.0.1")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, first)
	require.Equal(t, http.StatusOK, rec.Code)

	second := checkoutRequest("b@example.com", "5.6.7.9:1234")
	second.Header.Set("X-Forwarded-For", "9.9.9.9")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, second)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Contains(t, store.counts, "test:checkout:ip:9.9.9.9")
}

func TestRateLimitSkipsMissingKey(t *testing.T) {
	store := newFakeRateStore()
	handler := RateLimit(NewRateLimitPolicy("checkout", time.Minute, ByJSONEmail(1)), store, nil)(okHandler())

	for range 3 {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/v1/checkout", strings.NewReader(`not json`)))
		assert.Equal(t, http.StatusOK, rec.Code)
	}
	assert.Empty(t, store.counts)
}

func TestRateLimitStoreFailureIsDependencyError(t *testing.T) {
	store := newFakeRateStore()
	store.err = errors.New("redis down")
	handler := RateLimit(NewRateLimitPolicy("checkout", time.Minute, ByClientIP(5)), store, nil)(okHandler())

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, checkoutRequest("a@example.com", "1.1.1.1:1"))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestNewRateLimitPolicyDropsDisabledRules(t *testing.T) {
	policy := NewRateLimitPolicy("  ", time.Minute, ByClientIP(0), ByJSONEmail(3))
	assert.Equal(t, "public", policy.Name)
	require.Len(t, policy.Rules, 1)
	assert.Equal(t, "email", policy.Rules[0].Scope)

	// no rules left: the middleware is a pass-through
	passthrough := NewRateLimitPolicy("checkout", time.Minute, ByClientIP(0))
	store := newFakeRateStore()
	rec := httptest.NewRecorder()
	RateLimit(passthrough, store, nil)(okHandler()).ServeHTTP(rec, checkoutRequest("a@example.com", "1.1.1.1:1"))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, store.counts)
}
