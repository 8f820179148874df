package middleware

import (
	"crypto/subtle"
	"strings"

	"support-chat/backend/pkg/errors"
	"support-chat/backend/pkg/logger"

	"github.com/gin-gonic/gin"
)

// OperatorKeyHeader carries the operator API key
const OperatorKeyHeader = "X-API-Key"

// RequireOperatorKey answers 403 when X-API-Key is missing or not one of keys.
// With no keys configured every request passes.
func RequireOperatorKey(keys []string, log *logger.Logger) gin.HandlerFunc {
	var accepted [][]byte
	for _, k := range keys {
		if k = strings.TrimSpace(k); k != "" {
			accepted = append(accepted, []byte(k))
		}
	}

	return func(c *gin.Context) {
		if len(accepted) == 0 {
			c.Next()
			return
		}

		presented := []byte(c.GetHeader(OperatorKeyHeader))
		for _, k := range accepted {
			if subtle.ConstantTimeCompare(presented, k) == 1 {
				c.Next()
				return
			}
		}

		log.Warn("Rejected operator request", "path", c.Request.URL.Path, "client", c.ClientIP())
		_ = c.Error(errors.NewForbiddenError("INVALID_API_KEY", "Invalid API key"))
		c.Abort()
	}
}
