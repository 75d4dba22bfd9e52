package middlewares

import (
	"strings"

	"vibe-drinks/models"
	"vibe-drinks/pkg/resp"
	"vibe-drinks/services"

	"github.com/gin-gonic/gin"
)

const (
	ctxUserID       = "userId"
	ctxRole         = "role"
	ctxAuthDisabled = "authDisabled"
)

// AuthMiddleware checks the bearer token and, when roles are given, that the
// caller holds one of them. An empty secret turns the guard off for local
// development.
func AuthMiddleware(secret string, roles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Set(ctxAuthDisabled, true)
			c.Next()
			return
		}

		tokenStr, ok := bearer(c)
		if !ok {
			resp.Unauthorized(c, "missing or invalid token")
			return
		}
		claims, err := services.ParseToken(tokenStr, secret)
		if err != nil {
			resp.Unauthorized(c, "invalid token")
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)

		if len(roles) > 0 && !hasRole(claims.Role, roles) {
			resp.Forbidden(c, "forbidden")
			return
		}
		c.Next()
	}
}

// OptionalAuth reads a bearer token when one is sent and lets anonymous
// requests through.
func OptionalAuth(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Set(ctxAuthDisabled, true)
			c.Next()
			return
		}
		tokenStr, ok := bearer(c)
		if !ok {
			c.Next()
			return
		}
		claims, err := services.ParseToken(tokenStr, secret)
		if err != nil {
			resp.Unauthorized(c, "invalid token")
			return
		}
		c.Set(ctxUserID, claims.UserID)
		c.Set(ctxRole, claims.Role)
		c.Next()
	}
}

func bearer(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if !strings.HasPrefix(h, "Bearer ") {
		return "", false
	}
	tok := strings.TrimSpace(strings.TrimPrefix(h, "Bearer "))
	return tok, tok != ""
}

func hasRole(role models.Role, allowed []models.Role) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}

// CurrentUserID is empty for anonymous callers.
func CurrentUserID(c *gin.Context) string {
	return c.GetString(ctxUserID)
}

func CurrentRole(c *gin.Context) models.Role {
	if v, ok := c.Get(ctxRole); ok {
		if r, ok := v.(models.Role); ok {
			return r
		}
	}
	return ""
}

// IsStaff reports whether the caller may act for the store.
func IsStaff(c *gin.Context) bool {
	return c.GetBool(ctxAuthDisabled) || CurrentRole(c).IsStaff()
}
