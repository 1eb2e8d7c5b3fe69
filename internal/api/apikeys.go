package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/auth"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/config"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/middleware"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/quota"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/telemetry"
)

// KeyHandlers implements API key self-management for the calling subject.
type KeyHandlers struct {
	keys    *auth.Keys
	limiter *quota.Limiter
	quota   config.QuotaConfig
}

// NewKeyHandlers creates the API key handler set.
func NewKeyHandlers(keys *auth.Keys, limiter *quota.Limiter, cfg *config.Config) *KeyHandlers {
	return &KeyHandlers{keys: keys, limiter: limiter, quota: cfg.Quotas.KeyIssuance}
}

// keyResponse is the wire shape of a key record. The secret is never part of
// it; Issue returns the secret separately, exactly once.
type keyResponse struct {
	KeyID         string     `json:"key_id"`
	DisplayPrefix string     `json:"display_prefix"`
	Scopes        []string   `json:"scopes"`
	Revoked       bool       `json:"revoked"`
	RevokedAt     *time.Time `json:"revoked_at,omitempty"`
	LastUsedAt    *time.Time `json:"last_used_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

func toKeyResponse(k *auth.Key) keyResponse {
	return keyResponse{
		KeyID:         k.KeyID,
		DisplayPrefix: k.DisplayPrefix,
		Scopes:        k.Scopes,
		Revoked:       k.Revoked(),
		RevokedAt:     k.RevokedAt,
		LastUsedAt:    k.LastUsedAt,
		CreatedAt:     k.CreatedAt,
	}
}

// List returns the caller's keys, revoked ones included.
func (h *KeyHandlers) List(c *gin.Context) {
	keys, err := h.keys.List(c.Request.Context(), middleware.SubjectID(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	out := make([]keyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toKeyResponse(k))
	}
	c.JSON(http.StatusOK, gin.H{"keys": out})
}

type issueKeyRequest struct {
	Scopes []string `json:"scopes" binding:"required"`
}

// Issue mints a new API key for the caller. The response is the only place
// the secret ever appears.
func (h *KeyHandlers) Issue(c *gin.Context) {
	subjectID := middleware.SubjectID(c)

	var req issueKeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "scopes are required"})
		return
	}
	if err := auth.ValidateScopes(req.Scopes); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := h.limiter.Enforce(c.Request.Context(), "key_issuance", subjectID,
		int64(h.quota.Limit), h.quota.Window); err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			telemetry.QuotaRejections.WithLabelValues("key_issuance").Inc()
			c.Header("Retry-After", retryAfterSeconds(exceeded.RetryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Key issuance limit exceeded",
				"retry_after": int(exceeded.RetryAfter / time.Second),
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	secret, key, err := h.keys.Issue(c.Request.Context(), subjectID, req.Scopes)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"key":    toKeyResponse(key),
		"secret": secret,
	})
}

// Revoke terminally disables one of the caller's keys. Idempotent: revoking
// an already revoked key succeeds.
func (h *KeyHandlers) Revoke(c *gin.Context) {
	keyID := c.Param("key_id")

	key, err := h.keys.Revoke(c.Request.Context(), middleware.SubjectID(c), keyID)
	if err != nil {
		if errors.Is(err, auth.ErrKeyNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "API key not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": toKeyResponse(key)})
}
