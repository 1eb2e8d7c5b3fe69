// Package middleware provides Gin HTTP middleware for authentication,
// authorization, rate limiting, security headers, and audit logging.
//
// Middleware ordering matters and is enforced in router.go:
//
//	Security → RequestID → RateLimit → Auth → RBAC → Audit → Handler
//
// Security headers run first so they appear on all responses including errors.
// Rate limiting runs before auth to block brute-force attacks before any
// store work. Auth populates the caller identity and scopes; RBAC reads from
// that context. Audit logging runs after RBAC so only successfully authorized
// mutations are recorded as successful actions.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/auth"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/telemetry"
)

// Context keys set by AuthMiddleware for downstream handlers.
const (
	CtxSubjectID  = "subject_id"
	CtxRole       = "role"
	CtxAuthMethod = "auth_method"
	CtxScopes     = "scopes"
	CtxKeyID      = "key_id"
)

// APIKeyHeader carries the raw API key secret.
const APIKeyHeader = "X-API-Key"

// extractCredentials pulls the raw credentials off the request. Either field
// may come back empty; the resolver decides what that means.
func extractCredentials(c *gin.Context) auth.Request {
	req := auth.Request{APIKey: c.GetHeader(APIKeyHeader)}

	header := c.GetHeader("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		req.Bearer = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}
	return req
}

// AuthMiddleware resolves the caller's credentials to a decision and either
// populates the request context or rejects the request.
//
// Response mapping is deliberate: unauthorized is always the same generic
// 401 so an unauthenticated caller cannot probe which check failed, while
// deny is a 403 carrying the reason code, which is safe because the caller
// has already proven credential possession.
func AuthMiddleware(resolver *auth.Resolver) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision, err := resolver.Resolve(c.Request.Context(), extractCredentials(c))
		if err != nil {
			telemetry.AuthDecisions.WithLabelValues("error", "").Inc()
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{
				"error": "Authentication temporarily unavailable",
			})
			return
		}

		telemetry.AuthDecisions.WithLabelValues(decision.Outcome.String(), string(decision.Reason)).Inc()

		switch decision.Outcome {
		case auth.OutcomeAllow:
			c.Set(CtxSubjectID, decision.SubjectID)
			c.Set(CtxRole, decision.Role)
			c.Set(CtxAuthMethod, string(decision.Context.CredentialKind))
			c.Set(CtxScopes, decision.Context.Scopes)
			if decision.Context.KeyID != "" {
				c.Set(CtxKeyID, decision.Context.KeyID)
			}
			c.Next()

		case auth.OutcomeDeny:
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error": "Access denied",
				"code":  string(decision.Reason),
			})

		default:
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "Invalid credentials",
			})
		}
	}
}

// SubjectID returns the authenticated subject from the request context.
func SubjectID(c *gin.Context) string {
	return c.GetString(CtxSubjectID)
}

// Role returns the authenticated caller's role from the request context.
func Role(c *gin.Context) string {
	return c.GetString(CtxRole)
}

// Scopes returns the caller's scopes; nil for token callers.
func Scopes(c *gin.Context) []string {
	v, ok := c.Get(CtxScopes)
	if !ok {
		return nil
	}
	scopes, _ := v.([]string)
	return scopes
}
