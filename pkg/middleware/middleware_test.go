package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"support-chat/backend/pkg/errors"
	"support-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func newEngine(mw ...gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler())
	r.Use(mw...)
	r.GET("/ping", func(c *gin.Context) { c.String(http.StatusOK, "pong") })
	return r
}

func get(r http.Handler, header map[string]string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRateLimiterRejectsBurstOverflow(t *testing.T) {
	rl := NewRateLimiter(logger.Discard(), RateLimiterOptions{
		Limit:          0.001,
		Burst:          2,
		ExpiryDuration: time.Hour,
	})
	defer rl.Stop()
	r := newEngine(rl.Middleware())

	assert.Equal(t, http.StatusOK, get(r, nil).Code)
	assert.Equal(t, http.StatusOK, get(r, nil).Code)

	w := get(r, nil)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "1", w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "RATE_LIMIT_EXCEEDED")
}

func TestRateLimiterEvictsIdleClients(t *testing.T) {
	rl := NewRateLimiter(logger.Discard(), RateLimiterOptions{Limit: 1, Burst: 1, ExpiryDuration: time.Nanosecond})
	defer rl.Stop()

	rl.getLimiter("10.0.0.1")
	time.Sleep(time.Millisecond)
	rl.evictIdle()

	rl.mu.Lock()
	defer rl.mu.Unlock()
	assert.Empty(t, rl.clients)
}

func TestOperatorKeyGuard(t *testing.T) {
	r := newEngine(RequireOperatorKey([]string{"secret-1", " secret-2 "}, logger.Discard()))

	assert.Equal(t, http.StatusForbidden, get(r, nil).Code)
	assert.Equal(t, http.StatusForbidden, get(r, map[string]string{OperatorKeyHeader: "nope"}).Code)
	assert.Equal(t, http.StatusOK, get(r, map[string]string{OperatorKeyHeader: "secret-2"}).Code)
}

func TestOperatorKeyGuardDisabledWithoutKeys(t *testing.T) {
	r := newEngine(RequireOperatorKey(nil, logger.Discard()))
	assert.Equal(t, http.StatusOK, get(r, nil).Code)
}
