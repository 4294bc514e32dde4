package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"opsagent.app/history/internal/model"
)

// Azure Easy Auth injects the authenticated principal into these headers
// after terminating SSO in front of the app. The service trusts them as-is;
// it never validates identity itself.
const (
	headerPrincipalID   = "X-MS-CLIENT-PRINCIPAL-ID"
	headerPrincipalName = "X-MS-CLIENT-PRINCIPAL-NAME"
)

const identityKey = "caller_identity"

type IdentityConfig struct {
	// UseLocal substitutes the configured test identity for SSO headers,
	// for the local_* modes.
	UseLocal bool
	Local    model.Identity
}

// Identity resolves the caller identity for every request and aborts with
// 401 when none is present.
func Identity(cfg IdentityConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cfg.UseLocal {
			c.Set(identityKey, cfg.Local)
			c.Next()
			return
		}

		ownerID := c.GetHeader(headerPrincipalID)
		if ownerID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing identity"})
			return
		}

		c.Set(identityKey, model.Identity{
			OwnerID:     ownerID,
			DisplayName: c.GetHeader(headerPrincipalName),
		})
		c.Next()
	}
}

// CallerIdentity returns the identity resolved by the Identity middleware.
func CallerIdentity(c *gin.Context) (model.Identity, bool) {
	value, ok := c.Get(identityKey)
	if !ok {
		return model.Identity{}, false
	}
	ident, ok := value.(model.Identity)
	return ident, ok
}
