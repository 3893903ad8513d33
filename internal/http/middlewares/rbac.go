package middlewares

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// RequireRoles gates a route on an allow-list fixed at registration
// time. It has no authentication capability of its own and must always
// run after RequireAuth.
func (m *AuthMiddleware) RequireRoles(allowed ...string) gin.HandlerFunc {
	allowedSet := make(map[string]struct{}, len(allowed))

	for _, role := range allowed {
		allowedSet[role] = struct{}{}
	}

	return func(c *gin.Context) {
		role, ok := RoleFromContext(c)

		if !ok || role == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Not authenticated",
			})
			return
		}

		if _, ok := allowedSet[role]; !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"message": "Forbidden",
			})
			return
		}

		c.Next()
	}
}
