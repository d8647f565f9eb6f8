package main

import (
	"campus-platform/internal/httpapi"
	"campus-platform/internal/ratelimit"
	"campus-platform/internal/rbac"
	"campus-platform/pkg/metrics"

	"github.com/gin-gonic/gin"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, h httpapi.Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(metrics.Handler()))

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	// NOTE: This is a placeholder login route; real credential validation is not implemented.
	v1.POST("/auth/login", h.Login)

	// protected API group
	protected := v1.Group("")
	protected.Use(authMW)
	protected.Use(rbac.RequireInstitution())
	{
		// Access decisions. Rate-limited and block-gated before any evaluation
		// happens so abusers cannot probe the decision engine for free.
		protected.POST("/access/check",
			httpapi.RequireNotBlocked(h.Blocks),
			httpapi.RateLimit(h.RateLimits, ratelimit.ActionClassSearch),
			h.CheckAccess,
		)

		protected.GET("/ratelimit/status", h.RateLimitStatus)

		// Enrollment surface. The attempt handler consumes the budget itself so
		// the forensic trail records denied attempts too.
		enrollment := protected.Group("/enrollment")
		enrollment.Use(httpapi.RequireNotBlocked(h.Blocks))
		{
			enrollment.POST("/attempts", h.EnrollmentAttempt)
		}

		// ADMIN routes. Institution admins only; system_admin passes via the
		// role middleware's built-in bypass.
		admin := protected.Group("/admin")
		admin.Use(rbac.RequireAnyRole(rbac.RoleInstitutionAdmin))
		{
			admin.DELETE("/ratelimit/:user_id/:action", h.AdminClearRateLimit)

			admin.POST("/blocks", h.AdminBlockUser)
			admin.GET("/blocks/:user_id", h.AdminGetBlock)

			admin.GET("/security/patterns", h.SecurityPatterns)
			admin.GET("/security/metrics", h.SecurityMetrics)
		}
	}
}
