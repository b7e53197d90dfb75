// README: Firebase ID-token auth middleware; puts the caller's identity on the gin context.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"carpool/internal/infra"
	"carpool/internal/types"
)

const (
	ctxUID   = "caller_uid"
	ctxActor = "caller_actor"
)

// Auth verifies the bearer token and stores the caller as a types.Actor.
// The role, gender and verified flags come from custom claims; a token
// without a role claim is treated as a passenger.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			abortUnauthorized(c, "missing bearer token")
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil || token.UID == "" {
			abortUnauthorized(c, "invalid token")
			return
		}
		actor := actorFromClaims(token)
		c.Set(ctxUID, token.UID)
		c.Set(ctxActor, actor)
		c.Next()
	}
}

func actorFromClaims(token *infra.FirebaseToken) types.Actor {
	a := types.Actor{ID: types.ID(token.UID), Role: types.RolePassenger}
	if role, _ := token.Claims["role"].(string); role != "" {
		a.Role = types.Role(strings.ToLower(role))
	}
	if g, _ := token.Claims["gender"].(string); g != "" {
		a.Gender = types.Gender(strings.ToLower(g))
	}
	if v, ok := token.Claims["verified"].(bool); ok {
		a.Verified = v
	}
	return a
}

// CallerUID returns the authenticated user's UID, empty when unauthenticated.
func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

// CallerRole returns the caller's role claim.
func CallerRole(c *gin.Context) string {
	return string(Caller(c).Role)
}

// Caller returns the authenticated actor.
func Caller(c *gin.Context) types.Actor {
	v, _ := c.Get(ctxActor)
	a, _ := v.(types.Actor)
	return a
}

func abortUnauthorized(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": gin.H{"code": "unauthorized", "message": msg}})
}
