package middleware

import (
	"net/http"

	"github.com/01moynul/medbooks-golang/internal/apperr"
	"github.com/01moynul/medbooks-golang/internal/authz"
	"github.com/gin-gonic/gin"
)

// Require must run after AuthMiddleware. It aborts with 403 unless the caller
// holds every listed capability.
func Require(caps ...authz.Capability) gin.HandlerFunc {
	return func(c *gin.Context) {
		// 1. Get the principal from AuthMiddleware
		p := Principal(c)
		if p.UserID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "User ID not found in context (AuthMiddleware must run first)"})
			return
		}

		// 2. Check permission
		if err := authz.Require(p, caps...); err != nil {
			c.AbortWithStatusJSON(apperr.HTTPStatus(err), gin.H{"error": apperr.PublicMessage(err)})
			return
		}

		c.Next()
	}
}
