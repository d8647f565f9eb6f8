package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"campus-platform/internal/auth"
	"campus-platform/internal/blocklist"
	"campus-platform/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// RateLimit gates a route on the caller's budget for the action: per-subject
// first (cheap, specific), then per-IP (coarse backstop). On denial the
// request ends with 429 and a Retry-After hint.
//
// Action names wired here must exist in the static config table; ErrUnknownAction
// on this path is a wiring bug and surfaces as 500.
func RateLimit(svc *ratelimit.Service, action string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
			return
		}

		res, err := svc.CheckRateLimit(c.Request.Context(), userID, action, nil)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limit misconfigured"})
			return
		}
		if !res.Allowed {
			writeRateLimited(c, res)
			return
		}

		ipRes, err := svc.CheckIPRateLimit(c.Request.Context(), c.ClientIP(), action)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limit misconfigured"})
			return
		}
		if !ipRes.Allowed {
			writeRateLimited(c, ipRes)
			return
		}

		c.Next()
	}
}

// RequireNotBlocked rejects temporarily blocked subjects before any business
// logic runs. A block-state lookup failure fails closed here: a possibly
// blocked abuser is the one case where availability loses.
func RequireNotBlocked(blocks *blocklist.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, err := auth.UserID(c.Request.Context())
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
			return
		}

		st, err := blocks.IsUserBlocked(c.Request.Context(), userID)
		if err != nil && !errors.Is(err, blocklist.ErrInvalidArgument) {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "try again"})
			return
		}
		if st.Blocked {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":  "account temporarily blocked",
				"reason": st.Reason,
				"until":  st.Until,
			})
			return
		}
		c.Next()
	}
}

func writeRateLimited(c *gin.Context, res ratelimit.Result) {
	if res.BlockedUntil != nil {
		retry := int(time.Until(*res.BlockedUntil).Seconds())
		if retry > 0 {
			c.Header("Retry-After", strconv.Itoa(retry))
		}
	}
	c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
		"error":         "rate limit exceeded",
		"blocked_until": res.BlockedUntil,
	})
}
