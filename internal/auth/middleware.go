package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"qrattend/internal/attendance"
)

const (
	claimsKey   = "claims"
	identityKey = "identity"
)

// StudentAuth enforces bearer session tokens and loads the cached identity.
func StudentAuth(g *Gate) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, id, err := g.Authenticate(c.Request.Context(), tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid session"})
			return
		}
		c.Set(claimsKey, claims)
		c.Set(identityKey, id)
		c.Next()
	}
}

// IdentityFrom returns the identity set by StudentAuth.
func IdentityFrom(c *gin.Context) (attendance.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return attendance.Identity{}, false
	}
	id, ok := v.(attendance.Identity)
	return id, ok
}

// ClaimsFrom returns the token claims set by StudentAuth.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
