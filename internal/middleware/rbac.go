// Package middleware (rbac.go) implements scope- and role-based
// authorization middleware.
//
// Scopes attach to API keys only: a key is a narrowed credential, so every
// key-authenticated request must carry the scope a route demands. Token
// callers hold the full authority of their account and are governed by role
// instead, so scope checks pass them through and role checks apply to both
// credential forms. Roles are read from the profile at request time rather
// than being trusted from the token, so an operator's role change takes
// effect on the subject's next request without reissuing tokens.

package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/auth"
)

// callerScopes returns the caller's scopes and whether the caller is
// scope-governed at all (i.e. authenticated by API key).
func callerScopes(c *gin.Context) ([]string, bool) {
	if c.GetString(CtxAuthMethod) != string(auth.CredentialAPIKey) {
		return nil, false
	}
	return Scopes(c), true
}

// RequireScope enforces a scope on API-key callers. Token callers pass.
func RequireScope(scope auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		scopes, governed := callerScopes(c)
		if governed && !auth.HasScope(scopes, scope) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "Missing required scope",
				"details": "Required scope: " + string(scope),
			})
			return
		}
		c.Next()
	}
}

// RequireAnyScope enforces at least one of the scopes on API-key callers.
func RequireAnyScope(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerScoped, governed := callerScopes(c)
		if governed && !auth.HasAnyScope(callerScoped, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing required scope",
			})
			return
		}
		c.Next()
	}
}

// RequireAllScopes enforces every listed scope on API-key callers.
func RequireAllScopes(scopes ...auth.Scope) gin.HandlerFunc {
	return func(c *gin.Context) {
		callerScoped, governed := callerScopes(c)
		if governed && !auth.HasAllScopes(callerScoped, scopes) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Missing one or more required scopes",
			})
			return
		}
		c.Next()
	}
}

// RequireRole restricts a route to callers holding one of the named roles.
// Applies to both credential forms.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := Role(c)
		for _, want := range roles {
			if role == want {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
			"error": "Insufficient role",
		})
	}
}
