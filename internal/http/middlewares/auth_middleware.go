package middlewares

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/AnzuWanzu/W1-MultiRole-Authentication-System/internal/auth"
	"github.com/gin-gonic/gin"
)

// Keep these interfaces small so tests can fake them easily.
type TokenVerifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

type RevocationChecker interface {
	IsRevoked(ctx context.Context, jti string) (bool, error)
}

type AuthMiddleware struct {
	jwt        TokenVerifier
	revoked    RevocationChecker
	cookieName string
}

func NewAuthMiddleware(jwt TokenVerifier, revoked RevocationChecker, cookieName string) *AuthMiddleware {
	return &AuthMiddleware{
		jwt:        jwt,
		revoked:    revoked,
		cookieName: cookieName,
	}
}

// RequireAuth extracts the bearer credential from the auth cookie or,
// failing that, the Authorization header. The cookie wins when both are
// present.
func (m *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := m.tokenFromRequest(c)

		if raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "No token provided",
			})
			return
		}

		claims, err := m.jwt.VerifyToken(raw)

		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"message": "Invalid or expired token",
			})
			return
		}

		if m.revoked != nil && claims.JTI != "" {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			revoked, err := m.revoked.IsRevoked(ctx, claims.JTI)
			cancel()

			// a denylist outage must not take authentication down with it
			if err == nil && revoked {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
					"message": "Invalid or expired token",
				})
				return
			}
		}

		// Stash useful bits of identity on the context
		c.Set(ctxUserIDKey, claims.UserID)
		c.Set(ctxRoleKey, claims.Role)
		c.Set(ctxJTIKey, claims.JTI)

		c.Next()
	}
}

func (m *AuthMiddleware) tokenFromRequest(c *gin.Context) string {
	if raw, err := c.Cookie(m.cookieName); err == nil && raw != "" {
		return raw
	}

	authHeader := c.GetHeader("Authorization")

	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimSpace(strings.TrimPrefix(authHeader, "Bearer"))
	}

	return ""
}

// Optional helpers so handlers don’t need to know the magic keys.

func UserIDFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxUserIDKey)
	if !ok {
		return "", false
	}
	id, ok := v.(string)
	return id, ok
}

func RoleFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxRoleKey)
	if !ok {
		return "", false
	}
	role, ok := v.(string)
	return role, ok
}

func JTIFromContext(c *gin.Context) (string, bool) {
	v, ok := c.Get(ctxJTIKey)
	if !ok {
		return "", false
	}
	jti, ok := v.(string)
	return jti, ok
}
