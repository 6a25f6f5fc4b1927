package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// CtxKeyAPIKey is the gin context key holding the authenticated horde key.
const CtxKeyAPIKey = "apikey"

// APIKeyAuth returns a Gin middleware that validates the horde "apikey"
// header against keys and stores the accepted key in the context.
func APIKeyAuth(keys []string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(keys))
	for _, k := range keys {
		allowed[k] = struct{}{}
	}

	return func(c *gin.Context) {
		key := strings.TrimSpace(c.GetHeader("apikey"))
		if key == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "missing apikey header",
				"rc":      "MissingAPIKey",
			})
			return
		}

		if _, ok := allowed[key]; !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Wrong API Key",
				"rc":      "InvalidAPIKey",
			})
			return
		}

		c.Set(CtxKeyAPIKey, key)
		c.Next()
	}
}

// extractBearerToken gets the token from "Authorization: Bearer <token>".
func extractBearerToken(c *gin.Context) string {
	h := c.GetHeader("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// AdminTokenAuth returns a Gin middleware that validates the admin token
// from the Authorization header (format: "Bearer <admin-token>").
func AdminTokenAuth(adminToken string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminToken == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"message": "admin authentication not configured",
			})
			return
		}

		token := extractBearerToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "missing or malformed Authorization header (expected: Bearer <admin-token>)",
			})
			return
		}

		if subtle.ConstantTimeCompare([]byte(token), []byte(adminToken)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "invalid admin token",
			})
			return
		}

		c.Next()
	}
}
