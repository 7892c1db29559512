package http

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// apiKeyMiddleware accepts "Authorization: <key>" or "Authorization: Bearer <key>".
// An empty key disables the check.
func apiKeyMiddleware(key string) gin.HandlerFunc {
	key = strings.TrimSpace(key)
	return func(c *gin.Context) {
		if key == "" {
			c.Next()
			return
		}
		header := strings.TrimSpace(c.GetHeader("Authorization"))
		if header == "" {
			abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing authorization header", nil))
			return
		}
		token := header
		if parts := strings.SplitN(header, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
			token = strings.TrimSpace(parts[1])
		}
		if subtle.ConstantTimeCompare([]byte(token), []byte(key)) != 1 {
			abortWithError(c, NewHTTPError(http.StatusForbidden, "invalid_api_key", "invalid API key", nil))
			return
		}
		c.Next()
	}
}
