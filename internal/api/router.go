// Package api wires together all HTTP routes for the learning hub identity
// backend.
//
// Route grouping philosophy:
//   - /v1/register is reachable without prior authorization: the caller proves
//     who they are with a bearer token inside the handler, but does not need
//     an existing profile. It sits behind the strict credential-endpoint
//     throttle because it is the brute-force target for invite codes.
//   - Everything else under /v1 goes through the full chain: throttle, then
//     credential resolution, then scope and role guards per route, then the
//     audit recorder.
//
// Middleware registration order is deliberate; see the package comment in
// internal/middleware.
package api

import (
	"database/sql"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/audit"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/auth"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/config"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/identity"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/invites"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/middleware"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/quota"
	"github.com/cirruslycurious/ai-learning-hub-sub001/internal/store"
)

// NewRouter creates and configures the Gin router. auditDB may be nil when
// audit is disabled; every audit call site checks for that.
func NewRouter(cfg *config.Config, rdb *redis.Client, kv *store.RedisStore, auditDB *sql.DB, verifier auth.TokenVerifier) *gin.Engine {
	router := gin.New()

	// Core services over the atomic store
	keys := auth.NewKeys(kv, cfg.Auth.APIKeys.Prefix)
	profiles := identity.NewManager(kv)
	inviteEngine := invites.NewEngine(kv)
	limiter := quota.NewLimiter(kv)
	resolver := auth.NewResolver(keys, profiles, verifier)

	var recorder *audit.Recorder
	if cfg.Audit.Enabled && auditDB != nil {
		recorder = audit.NewRecorder(auditDB)
	}

	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(LoggerMiddleware(cfg))
	router.Use(CORSMiddleware(cfg))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.SecurityHeadersConfig{
		HSTSMaxAgeSeconds:     cfg.Security.Headers.HSTSMaxAgeSeconds,
		FrameOptions:          cfg.Security.Headers.FrameOptions,
		ContentSecurityPolicy: cfg.Security.Headers.ContentSecurityPolicy,
		ReferrerPolicy:        cfg.Security.Headers.ReferrerPolicy,
	}))

	router.GET("/health", healthCheckHandler(kv, auditDB))
	router.GET("/version", versionHandler())

	// Two throttle tiers: strict for the registration endpoint (it is the
	// invite brute-force target), general for authenticated traffic.
	var authThrottle, generalThrottle gin.HandlerFunc
	if cfg.Security.RateLimiting.Enabled {
		authThrottle = middleware.RateLimitMiddleware(
			middleware.NewRateLimiter(rdb, middleware.AuthRateLimitConfig()))
		generalThrottle = middleware.RateLimitMiddleware(
			middleware.NewRateLimiter(rdb, middleware.RateLimitConfig{
				RequestsPerMinute: cfg.Security.RateLimiting.RequestsPerMinute,
				BurstSize:         cfg.Security.RateLimiting.Burst,
			}))
	} else {
		passthrough := func(c *gin.Context) { c.Next() }
		authThrottle, generalThrottle = passthrough, passthrough
		slog.Warn("request throttling disabled by configuration")
	}

	registrationHandlers := NewRegistrationHandlers(verifier, inviteEngine, profiles, limiter, recorder, cfg)
	keyHandlers := NewKeyHandlers(keys, limiter, cfg)
	inviteHandlers := NewInviteHandlers(inviteEngine, limiter, cfg)
	profileHandlers := NewProfileHandlers(profiles)
	auditHandlers := NewAuditHandlers(recorder)

	v1 := router.Group("/v1")
	{
		// Registration authenticates inside the handler, not via the shared
		// auth middleware: the caller has no profile yet.
		v1.POST("/register", authThrottle, registrationHandlers.Register)

		authenticated := v1.Group("")
		authenticated.Use(generalThrottle)
		authenticated.Use(middleware.AuthMiddleware(resolver))
		if recorder != nil {
			authenticated.Use(middleware.AuditMiddleware(recorder, middleware.AuditConfig{
				LogReadOperations: cfg.Audit.LogReadOperations,
				LogFailedRequests: cfg.Audit.LogFailedRequests,
			}))
		}
		{
			// Self-service
			authenticated.GET("/profile", profileHandlers.GetOwnProfile)

			// API key management for the calling subject
			keyGroup := authenticated.Group("/apikeys")
			keyGroup.Use(middleware.RequireScope(auth.ScopeAPIKeysManage))
			{
				keyGroup.GET("", keyHandlers.List)
				keyGroup.POST("", keyHandlers.Issue)
				keyGroup.DELETE("/:key_id", keyHandlers.Revoke)
			}

			// Invite administration
			inviteGroup := authenticated.Group("/invites")
			{
				inviteGroup.POST("", middleware.RequireScope(auth.ScopeInvitesManage), inviteHandlers.Generate)
				inviteGroup.GET("", middleware.RequireScope(auth.ScopeInvitesRead), inviteHandlers.List)
				inviteGroup.GET("/:code", middleware.RequireScope(auth.ScopeInvitesRead), inviteHandlers.Get)
				inviteGroup.DELETE("/:code", middleware.RequireScope(auth.ScopeInvitesManage), inviteHandlers.Revoke)
			}

			// Profile administration (role-gated, not scope-gated: these are
			// account-level powers that narrowed API keys must not carry
			// unless the admin wildcard scope is present too)
			adminProfiles := authenticated.Group("/profiles")
			adminProfiles.Use(middleware.RequireRole("admin"), middleware.RequireScope(auth.ScopeAdmin))
			{
				adminProfiles.GET("/:subject_id", profileHandlers.GetProfile)
				adminProfiles.POST("/:subject_id/suspend", profileHandlers.Suspend)
				adminProfiles.POST("/:subject_id/unsuspend", profileHandlers.Unsuspend)
				adminProfiles.PUT("/:subject_id/role", profileHandlers.SetRole)
			}

			// Audit trail
			authenticated.GET("/audit", middleware.RequireScope(auth.ScopeAuditRead), auditHandlers.List)
		}
	}

	return router
}

// healthCheckHandler reports service health: the key-value store must answer,
// and the audit database must answer when configured.
func healthCheckHandler(kv *store.RedisStore, auditDB *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		checks := gin.H{}

		if err := kv.Ping(c.Request.Context()); err != nil {
			checks["store"] = "unhealthy"
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"checks": checks,
				"error":  "store connection failed",
			})
			return
		}
		checks["store"] = "healthy"

		if auditDB != nil {
			if err := auditDB.PingContext(c.Request.Context()); err != nil {
				checks["audit_db"] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"status": "unhealthy",
					"checks": checks,
					"error":  "audit database connection failed",
				})
				return
			}
			checks["audit_db"] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"checks": checks,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     "0.1.0",
			"api_version": "v1",
		})
	}
}

// LoggerMiddleware provides structured logging
func LoggerMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)

		requestID, _ := c.Get(middleware.RequestIDKey)
		slog.LogAttrs(
			c.Request.Context(),
			slog.LevelInfo,
			"http request",
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("query", query),
			slog.Int("status", c.Writer.Status()),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", latency),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", fmt.Sprintf("%v", requestID)),
			slog.String("user_agent", c.Request.UserAgent()),
		)
	}
}

// CORSMiddleware handles CORS
func CORSMiddleware(cfg *config.Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")

		allowed := false
		for _, allowedOrigin := range cfg.Security.CORS.AllowedOrigins {
			if allowedOrigin == "*" || allowedOrigin == origin {
				allowed = true
				break
			}
		}

		if allowed {
			if origin == "" {
				c.Header("Access-Control-Allow-Origin", "*")
			} else {
				c.Header("Access-Control-Allow-Origin", origin)
			}
			c.Header("Access-Control-Allow-Credentials", "true")
			c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
			c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization, X-API-Key, X-Requested-With")
			c.Header("Access-Control-Max-Age", "3600")
		}

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
