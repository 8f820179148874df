package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"support-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func serve(c *Checker) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/health", c.Handler())

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/health", nil)
	r.ServeHTTP(w, req)
	return w
}

func TestHealthyWhenCriticalChecksPass(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })
	c.RegisterEphemeralStoreCheck(func(context.Context) error { return errors.New("redis down") })
	c.RunChecks(context.Background())

	assert.True(t, c.IsSystemHealthy())

	w := serve(c)
	assert.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Status     string                `json:"status"`
		Components map[string]*Component `json:"components"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "ok", body.Status)
	assert.Equal(t, StatusUp, body.Components["database"].Status)
	assert.Equal(t, StatusDegraded, body.Components["ephemeral_store"].Status)
	assert.Equal(t, "redis down", body.Components["ephemeral_store"].Error)
}

func TestUnhealthyWhenDatabaseDown(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return errors.New("connection refused") })
	c.RunChecks(context.Background())

	assert.False(t, c.IsSystemHealthy())
	assert.Equal(t, http.StatusServiceUnavailable, serve(c).Code)
}

func TestUncheckedCriticalComponentIsDown(t *testing.T) {
	c := NewChecker(logger.Discard(), time.Minute)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })

	assert.False(t, c.IsSystemHealthy())
}

func TestStartStopsWithContext(t *testing.T) {
	c := NewChecker(logger.Discard(), 5*time.Millisecond)
	c.RegisterDatabaseCheck(func(context.Context) error { return nil })

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)
	assert.Eventually(t, c.IsSystemHealthy, time.Second, 5*time.Millisecond)
	cancel()
}
