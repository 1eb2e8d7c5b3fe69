package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
)

// newRequestIDRouter builds a minimal Gin engine with RequestIDMiddleware and
// a handler that echoes the context-stored id back as a response header.
func newRequestIDRouter() *gin.Engine {
	r := gin.New()
	r.Use(RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) {
		id, _ := c.Get(RequestIDKey)
		c.Header("X-Context-Request-ID", id.(string))
		c.Status(http.StatusOK)
	})
	return r
}

func requestWithID(t *testing.T, r *gin.Engine, inbound string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	if inbound != "" {
		req.Header.Set(RequestIDHeader, inbound)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRequestIDMiddleware_GeneratesUUIDWhenAbsent(t *testing.T) {
	w := requestWithID(t, newRequestIDRouter(), "")

	id := w.Header().Get(RequestIDHeader)
	// UUID v4 has 36 characters: xxxxxxxx-xxxx-4xxx-xxxx-xxxxxxxxxxxx
	if len(id) != 36 {
		t.Fatalf("expected UUID-format request ID (length 36), got %q (length %d)", id, len(id))
	}
	if id[8] != '-' || id[13] != '-' || id[18] != '-' || id[23] != '-' {
		t.Errorf("expected UUID with dashes at positions 8, 13, 18, 23; got %q", id)
	}
}

func TestRequestIDMiddleware_PropagatesValidIncomingID(t *testing.T) {
	const upstreamID = "gateway-7f3a.request_0042"

	w := requestWithID(t, newRequestIDRouter(), upstreamID)
	if got := w.Header().Get(RequestIDHeader); got != upstreamID {
		t.Errorf("expected response X-Request-ID %q, got %q", upstreamID, got)
	}
}

func TestRequestIDMiddleware_ReplacesMalformedIncomingID(t *testing.T) {
	r := newRequestIDRouter()

	for name, inbound := range map[string]string{
		"embedded space":   "two words",
		"log injection":    "id\nlevel=ERROR forged",
		"over length":      strings.Repeat("a", maxRequestIDLength+1),
		"non ascii":        "идентификатор",
		"header delimiter": `id"quoted`,
	} {
		t.Run(name, func(t *testing.T) {
			w := requestWithID(t, r, inbound)
			got := w.Header().Get(RequestIDHeader)
			if got == inbound {
				t.Errorf("malformed inbound id %q was propagated", inbound)
			}
			if len(got) != 36 {
				t.Errorf("replacement id %q is not a UUID", got)
			}
		})
	}
}

func TestRequestIDMiddleware_StoresIDInContext(t *testing.T) {
	w := requestWithID(t, newRequestIDRouter(), "")

	responseID := w.Header().Get(RequestIDHeader)
	contextID := w.Header().Get("X-Context-Request-ID") // echoed by handler

	if contextID == "" {
		t.Fatal("request ID was not stored in gin.Context under RequestIDKey")
	}
	if responseID != contextID {
		t.Errorf("response header ID %q does not match context ID %q", responseID, contextID)
	}
}

func TestRequestIDMiddleware_DifferentIDsPerRequest(t *testing.T) {
	r := newRequestIDRouter()

	ids := make(map[string]struct{}, 10)
	for i := 0; i < 10; i++ {
		w := requestWithID(t, r, "")
		id := w.Header().Get(RequestIDHeader)
		if _, seen := ids[id]; seen {
			t.Errorf("duplicate request ID %q on iteration %d", id, i)
		}
		ids[id] = struct{}{}
	}
}
