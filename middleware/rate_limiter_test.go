package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func doRateLimited(t *testing.T, handler http.Handler, method, path, ip string) int {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	req.Header.Set("X-Forwarded-For", ip)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec.Code
}

func TestHeavyRoutesHaveSeparateBudget(t *testing.T) {
	handler := RateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ip := "10.9.8.7"

	// burn the heavy budget with captures
	for i := 0; i < heavyBurst; i++ {
		assert.Equal(t, http.StatusOK, doRateLimited(t, handler, http.MethodPost, "/api/v1/canvas/sess-1/capture", ip))
	}
	assert.Equal(t, http.StatusTooManyRequests,
		doRateLimited(t, handler, http.MethodPost, "/api/v1/canvas/sess-1/image", ip),
		"uploads and captures share the heavy budget")

	// catalog reads from the same IP still go through
	assert.Equal(t, http.StatusOK, doRateLimited(t, handler, http.MethodGet, "/api/v1/products", ip))
}

func TestReadsDoNotConsumeHeavyBudget(t *testing.T) {
	handler := RateLimitMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	ip := "10.9.8.8"

	for i := 0; i < readBurst; i++ {
		assert.Equal(t, http.StatusOK, doRateLimited(t, handler, http.MethodGet, "/api/v1/products", ip))
	}
	assert.Equal(t, http.StatusTooManyRequests, doRateLimited(t, handler, http.MethodGet, "/api/v1/products", ip))

	assert.Equal(t, http.StatusOK,
		doRateLimited(t, handler, http.MethodPost, "/api/v1/canvas/sess-2/order", ip),
		"order submission has its own budget")
}

func TestHeavyRequestClassification(t *testing.T) {
	assert.True(t, isHeavyRequest(httptest.NewRequest(http.MethodPost, "/api/v1/canvas/s/image", nil)))
	assert.True(t, isHeavyRequest(httptest.NewRequest(http.MethodPost, "/api/v1/canvas/s/capture", nil)))
	assert.True(t, isHeavyRequest(httptest.NewRequest(http.MethodPost, "/api/v1/canvas/s/order", nil)))
	assert.False(t, isHeavyRequest(httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)))
	assert.False(t, isHeavyRequest(httptest.NewRequest(http.MethodPost, "/api/v1/canvas/create", nil)))
}
