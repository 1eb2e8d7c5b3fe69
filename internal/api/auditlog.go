package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/audit"
)

// Pagination bounds for the audit listing.
const (
	defaultAuditPageSize = 50
	maxAuditPageSize     = 500
)

// AuditHandlers exposes the audit trail read API.
type AuditHandlers struct {
	recorder *audit.Recorder
}

// NewAuditHandlers creates the audit handler set. recorder may be nil when
// audit is disabled; List then reports the feature unavailable.
func NewAuditHandlers(recorder *audit.Recorder) *AuditHandlers {
	return &AuditHandlers{recorder: recorder}
}

// List returns audit events newest first, filtered by the query parameters
// subject_id, kind, action, start_date, end_date (RFC 3339), with limit and
// offset pagination.
func (h *AuditHandlers) List(c *gin.Context) {
	if h.recorder == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "Audit logging is disabled"})
		return
	}

	var filters audit.Filters
	if v := c.Query("subject_id"); v != "" {
		filters.SubjectID = &v
	}
	if v := c.Query("kind"); v != "" {
		filters.Kind = &v
	}
	if v := c.Query("action"); v != "" {
		filters.Action = &v
	}
	if v := c.Query("start_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "start_date must be RFC 3339"})
			return
		}
		filters.StartDate = &ts
	}
	if v := c.Query("end_date"); v != "" {
		ts, err := time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "end_date must be RFC 3339"})
			return
		}
		filters.EndDate = &ts
	}

	limit := intQuery(c, "limit", defaultAuditPageSize)
	if limit < 1 || limit > maxAuditPageSize {
		limit = defaultAuditPageSize
	}
	offset := intQuery(c, "offset", 0)
	if offset < 0 {
		offset = 0
	}

	events, total, err := h.recorder.List(c.Request.Context(), filters, limit, offset)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"events": events,
		"total":  total,
		"limit":  limit,
		"offset": offset,
	})
}

// intQuery parses an integer query parameter, falling back on absence or
// garbage.
func intQuery(c *gin.Context, name string, fallback int) int {
	v := c.Query(name)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
