package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/identity"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/middleware"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/validation"
)

// allowedRoles are the roles an administrator may assign.
var allowedRoles = map[string]bool{
	"user":      true,
	"moderator": true,
	"admin":     true,
}

// ProfileHandlers implements self-service profile reads and administrative
// lifecycle operations.
type ProfileHandlers struct {
	profiles *identity.Manager
}

// NewProfileHandlers creates the profile handler set.
func NewProfileHandlers(profiles *identity.Manager) *ProfileHandlers {
	return &ProfileHandlers{profiles: profiles}
}

// GetOwnProfile returns the calling subject's profile.
func (h *ProfileHandlers) GetOwnProfile(c *gin.Context) {
	p, err := h.profiles.GetProfile(c.Request.Context(), middleware.SubjectID(c))
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	if p == nil {
		// The auth middleware guarantees a profile for token callers; an
		// API-key caller whose profile row vanished lands here.
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// GetProfile returns any subject's profile. Admin only.
func (h *ProfileHandlers) GetProfile(c *gin.Context) {
	subjectID := c.Param("subject_id")
	if err := validation.ValidateSubjectID(subjectID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.profiles.GetProfile(c.Request.Context(), subjectID)
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	if p == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// Suspend marks a subject's account suspended. Idempotent.
func (h *ProfileHandlers) Suspend(c *gin.Context) {
	h.mutate(c, h.profiles.Suspend)
}

// Unsuspend clears a subject's suspension. Idempotent.
func (h *ProfileHandlers) Unsuspend(c *gin.Context) {
	h.mutate(c, h.profiles.Unsuspend)
}

type setRoleRequest struct {
	Role string `json:"role" binding:"required"`
}

// SetRole replaces a subject's role.
func (h *ProfileHandlers) SetRole(c *gin.Context) {
	subjectID := c.Param("subject_id")
	if err := validation.ValidateSubjectID(subjectID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	var req setRoleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "role is required"})
		return
	}
	if !allowedRoles[req.Role] {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid role"})
		return
	}

	p, err := h.profiles.SetRole(c.Request.Context(), subjectID, req.Role)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}

// mutate runs one lifecycle operation against the path subject.
func (h *ProfileHandlers) mutate(c *gin.Context, op func(ctx context.Context, subjectID string) (*identity.Profile, error)) {
	subjectID := c.Param("subject_id")
	if err := validation.ValidateSubjectID(subjectID); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := op(c.Request.Context(), subjectID)
	if err != nil {
		if errors.Is(err, identity.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Profile not found"})
			return
		}
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service temporarily unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"profile": p})
}
