// README: Firebase ID token auth; exposes caller uid, role and tenant to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"fieldops/internal/infra"
)

const (
	ctxUID    = "caller_uid"
	ctxRole   = "caller_role"
	ctxTenant = "caller_tenant"
)

// Auth rejects requests without a valid "Authorization: Bearer <token>" header.
// The tenant comes from the tenant_id claim and the role from the role claim.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return authenticate(verifier, false)
}

// AuthWebsocket is Auth that also accepts the token query parameter, since
// browser websocket clients cannot set headers. Mount it on the upgrade route only.
func AuthWebsocket(verifier infra.TokenVerifier) gin.HandlerFunc {
	return authenticate(verifier, true)
}

func authenticate(verifier infra.TokenVerifier, allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw, ok := bearerToken(c)
		if !ok && allowQuery {
			raw = strings.TrimSpace(c.Query("token"))
			ok = raw != ""
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), raw)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxRole, claimString(token.Claims, "role"))
		c.Set(ctxTenant, claimString(token.Claims, "tenant_id"))
		c.Next()
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	h := c.GetHeader("Authorization")
	if h == "" {
		return "", false
	}
	raw, found := strings.CutPrefix(h, "Bearer ")
	if !found || strings.TrimSpace(raw) == "" {
		return "", false
	}
	return strings.TrimSpace(raw), true
}

func claimString(claims map[string]interface{}, key string) string {
	if v, ok := claims[key].(string); ok {
		return v
	}
	return ""
}

func CallerUID(c *gin.Context) string    { return c.GetString(ctxUID) }
func CallerRole(c *gin.Context) string   { return c.GetString(ctxRole) }
func CallerTenant(c *gin.Context) string { return c.GetString(ctxTenant) }
