package validator

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"support-chat/backend/pkg/errors"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const schemaPath = "../../api/openapi.yaml"

func newEngine(t *testing.T) *gin.Engine {
	t.Helper()
	v, err := NewOpenAPIValidator(schemaPath)
	require.NoError(t, err)

	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(errors.ErrorHandler(), v.Middleware())
	ok := func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) }
	r.POST("/api/chat/:chat_id/typing", ok)
	r.GET("/internal/debug", ok)
	return r
}

func do(r http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestValidatorAcceptsDocumentedRequest(t *testing.T) {
	r := newEngine(t)
	w := do(r, http.MethodPost, "/api/chat/1/typing", `{"role":"visitor","is_typing":true}`)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestValidatorRejectsInvalidBody(t *testing.T) {
	r := newEngine(t)
	w := do(r, http.MethodPost, "/api/chat/1/typing", `{"role":"admin","is_typing":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "INVALID_REQUEST")
}

func TestValidatorRejectsInvalidPathParam(t *testing.T) {
	r := newEngine(t)
	w := do(r, http.MethodPost, "/api/chat/abc/typing", `{"role":"visitor","is_typing":true}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestValidatorPassesUndocumentedPaths(t *testing.T) {
	r := newEngine(t)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/internal/debug", "").Code)
}

func TestNewOpenAPIValidatorMissingFile(t *testing.T) {
	_, err := NewOpenAPIValidator("does-not-exist.yaml")
	assert.Error(t, err)
}
