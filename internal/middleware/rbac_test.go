package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/auth"
)

// serveWithIdentity runs one request through the given guard with a
// pre-populated auth context, skipping the auth middleware itself.
func serveWithIdentity(guard gin.HandlerFunc, method auth.CredentialKind, role string, scopes []string) *httptest.ResponseRecorder {
	router := gin.New()
	router.Use(func(c *gin.Context) {
		c.Set(CtxSubjectID, "auth0|alice")
		c.Set(CtxRole, role)
		c.Set(CtxAuthMethod, string(method))
		c.Set(CtxScopes, scopes)
		c.Next()
	})
	router.GET("/", guard, func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest("GET", "/", nil))
	return w
}

func TestRequireScope(t *testing.T) {
	tests := []struct {
		name   string
		method auth.CredentialKind
		scopes []string
		want   int
	}{
		{"api key with scope", auth.CredentialAPIKey, []string{"content:read"}, http.StatusOK},
		{"api key with implying scope", auth.CredentialAPIKey, []string{"content:write"}, http.StatusOK},
		{"api key with admin", auth.CredentialAPIKey, []string{"admin"}, http.StatusOK},
		{"api key without scope", auth.CredentialAPIKey, []string{"audit:read"}, http.StatusForbidden},
		{"api key with no scopes", auth.CredentialAPIKey, nil, http.StatusForbidden},
		{"token caller passes without scopes", auth.CredentialToken, nil, http.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWithIdentity(RequireScope(auth.ScopeContentRead), tt.method, "user", tt.scopes)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequireAnyScope(t *testing.T) {
	guard := RequireAnyScope(auth.ScopeContentRead, auth.ScopeAuditRead)

	w := serveWithIdentity(guard, auth.CredentialAPIKey, "user", []string{"audit:read"})
	if w.Code != http.StatusOK {
		t.Errorf("one matching scope: status = %d, want 200", w.Code)
	}
	w = serveWithIdentity(guard, auth.CredentialAPIKey, "user", []string{"invites:read"})
	if w.Code != http.StatusForbidden {
		t.Errorf("no matching scope: status = %d, want 403", w.Code)
	}
}

func TestRequireAllScopes(t *testing.T) {
	guard := RequireAllScopes(auth.ScopeContentRead, auth.ScopeAuditRead)

	w := serveWithIdentity(guard, auth.CredentialAPIKey, "user", []string{"content:read", "audit:read"})
	if w.Code != http.StatusOK {
		t.Errorf("all scopes: status = %d, want 200", w.Code)
	}
	w = serveWithIdentity(guard, auth.CredentialAPIKey, "user", []string{"content:read"})
	if w.Code != http.StatusForbidden {
		t.Errorf("partial scopes: status = %d, want 403", w.Code)
	}
}

func TestRequireRole(t *testing.T) {
	tests := []struct {
		name   string
		method auth.CredentialKind
		role   string
		want   int
	}{
		{"matching role via token", auth.CredentialToken, "admin", http.StatusOK},
		{"matching role via api key", auth.CredentialAPIKey, "admin", http.StatusOK},
		{"wrong role", auth.CredentialToken, "user", http.StatusForbidden},
		{"empty role", auth.CredentialToken, "", http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := serveWithIdentity(RequireRole("admin"), tt.method, tt.role, nil)
			if w.Code != tt.want {
				t.Errorf("status = %d, want %d", w.Code, tt.want)
			}
		})
	}
}

func TestRequireRole_MultipleAllowed(t *testing.T) {
	guard := RequireRole("admin", "moderator")
	w := serveWithIdentity(guard, auth.CredentialToken, "moderator", nil)
	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want 200", w.Code)
	}
}
