package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/audit"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/auth"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/config"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/identity"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/invites"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/quota"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/store"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/telemetry"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/validation"
)

// RegistrationHandlers implements the invite-gated onboarding endpoint.
type RegistrationHandlers struct {
	verifier auth.TokenVerifier
	invites  *invites.Engine
	profiles *identity.Manager
	limiter  *quota.Limiter
	recorder *audit.Recorder
	quota    config.QuotaConfig
}

// NewRegistrationHandlers creates the registration handler set. recorder may
// be nil when audit is disabled.
func NewRegistrationHandlers(verifier auth.TokenVerifier, inv *invites.Engine, profiles *identity.Manager, limiter *quota.Limiter, recorder *audit.Recorder, cfg *config.Config) *RegistrationHandlers {
	return &RegistrationHandlers{
		verifier: verifier,
		invites:  inv,
		profiles: profiles,
		limiter:  limiter,
		recorder: recorder,
		quota:    cfg.Quotas.Registration,
	}
}

type registerRequest struct {
	InviteCode string `json:"invite_code" binding:"required"`
}

// Register redeems an invite code for the bearer-token caller and creates
// their profile. The caller authenticates with a token directly because no
// profile exists yet for the shared auth middleware to resolve against.
//
// Redeeming a code the caller already holds succeeds again without a write,
// so a client that crashed between redemption and its next step can simply
// retry the whole call.
func (h *RegistrationHandlers) Register(c *gin.Context) {
	rawToken := bearerToken(c)
	if rawToken == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}
	id, err := h.verifier.Verify(c.Request.Context(), rawToken)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid credentials"})
		return
	}

	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invite_code is required"})
		return
	}
	code := strings.ToUpper(strings.TrimSpace(req.InviteCode))
	if err := validation.ValidateInviteCode(code); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// Quota keys on the subject, not the IP: one caller cannot spray codes
	// across addresses.
	if err := h.limiter.Enforce(c.Request.Context(), "registration", id.SubjectID,
		int64(h.quota.Limit), h.quota.Window); err != nil {
		var exceeded *quota.ExceededError
		if errors.As(err, &exceeded) {
			telemetry.QuotaRejections.WithLabelValues("registration").Inc()
			c.Header("Retry-After", retryAfterSeconds(exceeded.RetryAfter))
			c.JSON(http.StatusTooManyRequests, gin.H{
				"error":       "Registration attempt limit exceeded",
				"retry_after": int(exceeded.RetryAfter / time.Second),
			})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	inv, err := h.invites.Redeem(c.Request.Context(), code, id.SubjectID)
	if err != nil {
		h.recordRedemption(c, id.SubjectID, code, redemptionResult(err))
		switch {
		case errors.Is(err, invites.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Invite code not found"})
		case errors.Is(err, invites.ErrRedeemedByOther):
			c.JSON(http.StatusConflict, gin.H{"error": "Invite code already redeemed"})
		case errors.Is(err, invites.ErrRevoked), errors.Is(err, invites.ErrExpired):
			c.JSON(http.StatusGone, gin.H{"error": "Invite code no longer valid"})
		case store.IsUnavailable(err):
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Registration failed"})
		}
		return
	}

	if err := h.profiles.EnsureProfile(c.Request.Context(), id.SubjectID, identity.Seed{Role: id.Role}); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}

	h.recordRedemption(c, id.SubjectID, code, "success")

	c.JSON(http.StatusCreated, gin.H{
		"subject_id":  id.SubjectID,
		"invite_code": inv.Code,
		"redeemed_at": inv.RedeemedAt,
	})
}

// recordRedemption writes the redemption audit event; success and every
// failure mode alike feed the metric.
func (h *RegistrationHandlers) recordRedemption(c *gin.Context, subjectID, code, result string) {
	telemetry.InviteRedemptions.WithLabelValues(result).Inc()
	if h.recorder == nil {
		return
	}
	outcome := "failure"
	if result == "success" {
		outcome = "success"
	}
	h.recorder.RecordAsync(&audit.Event{
		Kind:      audit.KindRedemption,
		SubjectID: subjectID,
		Action:    "invite.redeem",
		Outcome:   outcome,
		Reason:    result,
		IPAddress: c.ClientIP(),
		Metadata:  map[string]interface{}{"invite_code": code},
	})
}

// redemptionResult maps a redemption error to the metric label.
func redemptionResult(err error) string {
	switch {
	case errors.Is(err, invites.ErrNotFound):
		return "not_found"
	case errors.Is(err, invites.ErrRedeemedByOther):
		return "redeemed_by_other"
	case errors.Is(err, invites.ErrRevoked):
		return "revoked"
	case errors.Is(err, invites.ErrExpired):
		return "expired"
	default:
		return "error"
	}
}

// bearerToken pulls the raw bearer token off the request, or "".
func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
}

// retryAfterSeconds renders a Retry-After header value, minimum one second.
func retryAfterSeconds(d time.Duration) string {
	secs := int(d / time.Second)
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
