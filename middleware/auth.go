package middleware

import (
	"net/http"
	"strings"

	"github.com/Victormzing/storefront-bff/auth"
	"github.com/Victormzing/storefront-bff/session"
	"github.com/gin-gonic/gin"
)

// AuthRequired verifies the bearer token and stores a session handle for
// downstream handlers. Upstream calls reuse the same token, so the raw
// token travels with the handle.
func AuthRequired(verifier *auth.Verifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Missing Authorization header"})
			return
		}
		token := strings.TrimPrefix(header, "Bearer ")
		if token == header || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid Authorization header format"})
			return
		}

		claims, err := verifier.ParseAndValidate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}
		userID, err := auth.Subject(claims)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Token has no subject"})
			return
		}

		session.Store(c, session.Handle{UserID: userID, Token: token})
		c.Next()
	}
}
