package api

import (
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/config"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/invites"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/middleware"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/quota"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/telemetry"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/validation"
)

// InviteHandlers implements invite administration: generation, inspection,
// and revocation. Redemption lives on the registration endpoint.
type InviteHandlers struct {
	engine   *invites.Engine
	limiter  *quota.Limiter
	quota    config.QuotaConfig
	defaults config.InvitesConfig
}

// NewInviteHandlers creates the invite handler set.
func NewInviteHandlers(engine *invites.Engine, limiter *quota.Limiter, cfg *config.Config) *InviteHandlers {
	return &InviteHandlers{
		engine:   engine,
		limiter:  limiter,
		quota:    cfg.Quotas.InviteGeneration,
		defaults: cfg.Invites,
	}
}

type generateInviteRequest struct {
	// Length of the generated code; zero means the configured default.
	Length int `json:"length"`
	// TTLHours until expiry; zero means the configured default, negative
	// means no expiry.
	TTLHours int `json:"ttl_hours"`
}

// Generate mints a fresh invite code attributed to the caller.
func (h *InviteHandlers) Generate(c *gin.Context) {
	subjectID := middleware.SubjectID(c)

	var req generateInviteRequest
	if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	length := req.Length
	if length == 0 {
		length = h.defaults.DefaultLength
	}
	var ttl time.Duration
	switch {
	case req.TTLHours > 0:
		ttl = time.Duration(req.TTLHours) * time.Hour
	case req.TTLHours == 0:
		ttl = h.defaults.DefaultTTL
	default:
		ttl = 0 // never expires
	}

	if err := h.limiter.Enforce(c.Request.Context(), "invite_generation", subjectID,
		int64(h.quota.Limit), h.quota.Window); err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			telemetry.QuotaRejections.WithLabelValues("invite_generation").Inc()
			c.Header("Retry-After", retryAfterSeconds(exceeded.RetryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Invite generation limit exceeded",
				"retry_after": int(exceeded.RetryAfter / time.Second),
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	inv, err := h.engine.Generate(c.Request.Context(), subjectID, length, ttl)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"invite": inv})
}

// List returns the invites the caller generated.
func (h *InviteHandlers) List(c *gin.Context) {
	invs, err := h.engine.ListByGenerator(c.Request.Context(), middleware.SubjectID(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invites": invs, "count": len(invs)})
}

// Get returns one invite record by code.
func (h *InviteHandlers) Get(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	if err := validation.ValidateInviteCode(code); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := h.engine.Lookup(c.Request.Context(), code)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	if inv == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Invite code not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"invite": inv})
}

// Revoke invalidates an unredeemed invite. A code that was already redeemed
// cannot be revoked; the redemption stands.
func (h *InviteHandlers) Revoke(c *gin.Context) {
	code := strings.ToUpper(c.Param("code"))
	if err := validation.ValidateInviteCode(code); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	inv, err := h.engine.Revoke(c.Request.Context(), code)
	if err != nil {
		switch {
		case errors.Is(err, invites.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Invite code not found"})
		case errors.Is(err, invites.ErrAlreadyRedeemed):
			c.JSON(http.StatusConflict, gin.H{"error": "Invite code already redeemed"})
		default:
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{"invite": inv})
}
