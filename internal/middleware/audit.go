// audit.go provides Gin middleware that records authenticated write
// operations as audit events.
package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/audit"
)

// AuditConfig controls what the middleware records. The zero value records
// successful write operations only.
type AuditConfig struct {
	// LogReadOperations also records GET requests.
	LogReadOperations bool
	// LogFailedRequests also records requests that ended in 4xx/5xx.
	LogFailedRequests bool
}

// AuditMiddleware records requests as audit events after the handler runs,
// so the final status and the identity set by AuthMiddleware are available.
// Recording is asynchronous; the response never waits on the audit database.
func AuditMiddleware(recorder *audit.Recorder, cfg AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Request.Method == "OPTIONS" {
			return
		}

		isRead := c.Request.Method == "GET"
		isFailed := c.Writer.Status() >= 400
		if isRead && !cfg.LogReadOperations {
			return
		}
		if isFailed && !cfg.LogFailedRequests {
			return
		}

		outcome := "success"
		if isFailed {
			outcome = "failure"
		}

		ev := &audit.Event{
			Kind:      audit.KindAdmin,
			SubjectID: SubjectID(c),
			Action:    actionFor(c),
			Outcome:   outcome,
			IPAddress: c.ClientIP(),
			Metadata: map[string]interface{}{
				"status_code": c.Writer.Status(),
				"method":      c.Request.Method,
				"path":        c.Request.URL.Path,
			},
		}
		if method := c.GetString(CtxAuthMethod); method != "" {
			ev.Metadata["auth_method"] = method
		}
		if id, ok := c.Get(RequestIDKey); ok {
			ev.Metadata["request_id"] = id
		}

		recorder.RecordAsync(ev)
	}
}

// actionFor derives a stable action name from the matched route. Routes
// under known collections get dotted action names; anything else falls back
// to "METHOD /path".
func actionFor(c *gin.Context) string {
	path := c.Request.URL.Path
	method := c.Request.Method

	switch {
	case strings.Contains(path, "/invites"):
		switch method {
		case "POST":
			if strings.HasSuffix(path, "/redeem") {
				return "invite.redeem"
			}
			return "invite.generate"
		case "DELETE":
			return "invite.revoke"
		}
	case strings.Contains(path, "/apikeys"):
		switch method {
		case "POST":
			return "apikey.issue"
		case "DELETE":
			return "apikey.revoke"
		}
	case strings.Contains(path, "/profiles"):
		switch {
		case strings.HasSuffix(path, "/suspend"):
			return "profile.suspend"
		case strings.HasSuffix(path, "/unsuspend"):
			return "profile.unsuspend"
		case strings.HasSuffix(path, "/role"):
			return "profile.set_role"
		}
	case strings.Contains(path, "/register"):
		return "subject.register"
	}
	return fmt.Sprintf("%s %s", method, path)
}
