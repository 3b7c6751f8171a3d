package middleware

import (
	"net/http"

	"saheli/internal/domain"
	"saheli/internal/pkg/response"

	"github.com/gin-gonic/gin"
)

// RequireRole ensures that the authenticated user has the specified role
func RequireRole(required domain.UserRole) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString(CtxRole)
		if role == "" {
			response.Abort(c, http.StatusUnauthorized, "UNAUTHORIZED", "Role not found in token")
			return
		}
		if domain.UserRole(role) != required {
			response.Abort(c, http.StatusForbidden, "FORBIDDEN", "Access denied: insufficient permissions")
			return
		}
		c.Next()
	}
}

func CustomerOnly() gin.HandlerFunc { return RequireRole(domain.RoleCustomer) }

func ProviderOnly() gin.HandlerFunc { return RequireRole(domain.RoleProvider) }
