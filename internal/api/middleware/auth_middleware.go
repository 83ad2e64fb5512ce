package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"idcard/internal/auth"
)

const userIDKey = "userID"

// TokenValidator verifies bearer tokens.
type TokenValidator interface {
	ValidateToken(token string) (*auth.TokenClaims, error)
}

func abortUnauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}

// AuthMiddleware verifies the access token and stores the subject as userID.
// A nil validator disables authentication.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			c.Next()
			return
		}

		parts := strings.Fields(c.GetHeader("Authorization"))
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			abortUnauthorized(c)
			return
		}

		claims, err := validator.ValidateToken(parts[1])
		if err != nil || claims.TokenType != auth.TokenTypeAccess {
			abortUnauthorized(c)
			return
		}

		c.Set(userIDKey, claims.Subject)
		c.Next()
	}
}

// UserID returns the authenticated subject, empty when authentication is disabled.
func UserID(c *gin.Context) string {
	return c.GetString(userIDKey)
}
