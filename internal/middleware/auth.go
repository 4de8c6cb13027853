package middleware

import (
	"net/http"
	"strings"

	"github.com/01moynul/medbooks-golang/internal/auth"
	"github.com/01moynul/medbooks-golang/internal/authz"
	"github.com/01moynul/medbooks-golang/internal/models"
	"github.com/gin-gonic/gin"
)

// Context keys set by AuthMiddleware.
const (
	ContextUserID   = "userID"
	ContextUserRole = "userRole"
)

// AuthMiddleware creates a gin.HandlerFunc that acts as our "security guard".
// It accepts only Bearer tokens signed by iss.
func AuthMiddleware(iss *auth.Issuer) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. --- Get Authorization Header ---
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			return
		}

		parts := strings.Fields(authHeader)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid token format (must be Bearer)"})
			return
		}

		// 2. --- Validate Token ---
		claims, err := iss.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
			return
		}

		// 3. --- Success ---
		c.Set(ContextUserID, claims.Subject)
		c.Set(ContextUserRole, claims.Role)
		c.Next()
	}
}

// Principal returns the authenticated caller. It is the zero Principal when
// AuthMiddleware did not run.
func Principal(c *gin.Context) authz.Principal {
	var p authz.Principal
	if v, ok := c.Get(ContextUserID); ok {
		p.UserID, _ = v.(string)
	}
	if v, ok := c.Get(ContextUserRole); ok {
		p.Role, _ = v.(models.Role)
	}
	return p
}
