// requestid.go tags every request with a correlation id that flows through
// structured logs and audit records.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	// RequestIDHeader is the HTTP header used to propagate the request
	// identifier from upstream proxies and back to callers.
	RequestIDHeader = "X-Request-ID"

	// RequestIDKey is the gin.Context key under which the request ID is
	// stored for handlers and later middleware.
	RequestIDKey = "request_id"
)

// maxRequestIDLength caps inbound correlation ids. Request ids end up in log
// lines and audit rows, so an oversized or binary-looking value from a
// hostile client is replaced rather than propagated.
const maxRequestIDLength = 64

// RequestIDMiddleware ensures every request carries a usable correlation id.
// An inbound X-Request-ID is reused when it passes the shape check;
// otherwise a fresh UUID v4 is generated. The id is stored in the context
// under RequestIDKey and echoed in the response header so clients can quote
// it when reporting a problem.
//
// Register this before the logging and audit middleware so their records
// carry the id.
func RequestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if !validRequestID(id) {
			id = uuid.New().String()
		}

		c.Set(RequestIDKey, id)
		c.Header(RequestIDHeader, id)

		c.Next()
	}
}

// validRequestID accepts non-empty ids up to maxRequestIDLength built from
// the characters UUIDs and common tracing formats use.
func validRequestID(id string) bool {
	if id == "" || len(id) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(id); i++ {
		ch := id[i]
		switch {
		case ch >= 'a' && ch <= 'z':
		case ch >= 'A' && ch <= 'Z':
		case ch >= '0' && ch <= '9':
		case ch == '-' || ch == '_' || ch == '.':
		default:
			return false
		}
	}
	return true
}
