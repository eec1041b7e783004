package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"

	apperrors "budgetkit/internal/errors"
	"budgetkit/internal/logger"
)

// ServiceKeyAuth guards machine-to-machine endpoints (the period scheduler and
// the ledger importer) with a shared key sent in the X-API-Key header. An
// empty configured key disables the endpoints entirely.
func ServiceKeyAuth(apiKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if apiKey == "" {
			WriteError(c, apperrors.ErrServiceKeyMissing)
			c.Abort()
			return
		}
		key := c.GetHeader("X-API-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(apiKey)) != 1 {
			logger.Named("http").Warnw("rejected service request",
				"path", c.Request.URL.Path,
				"client_ip", c.ClientIP(),
			)
			WriteError(c, apperrors.ErrInvalidAPIKey)
			c.Abort()
			return
		}
		c.Next()
	}
}
