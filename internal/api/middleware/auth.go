// internal/api/middleware/auth.go
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"shiptrack-api-server/internal/auth"
)

// Context keys set by Authenticate.
const (
	KeyUserID    = "user_id"
	KeyUserRole  = "user_role"
	KeyUserEmail = "user_email"
)

// Authenticate validates the bearer token and stores the caller's identity
// in the context. Websocket upgrades may pass the token as ?token= instead.
func Authenticate(tokens *auth.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, ok := bearer(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header is required"})
			return
		}

		claims, err := tokens.Parse(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		c.Set(KeyUserID, claims.UserID)
		c.Set(KeyUserRole, claims.Role)
		c.Set(KeyUserEmail, claims.Email)

		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	if h := c.GetHeader("Authorization"); h != "" {
		token := strings.TrimPrefix(h, "Bearer ")
		return token, token != h && token != ""
	}
	if token := c.Query("token"); token != "" {
		return token, true
	}
	return "", false
}

// Authorize only lets callers with one of allowedRoles through. It must run
// after Authenticate.
func Authorize(allowedRoles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole := c.GetString(KeyUserRole)
		if userRole == "" {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "User role not found in context"})
			return
		}

		for _, role := range allowedRoles {
			if role == userRole {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "You do not have permission to access this resource"})
	}
}
