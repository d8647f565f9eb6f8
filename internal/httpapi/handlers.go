package httpapi

import (
	"errors"
	"net/http"
	"time"

	"campus-platform/internal/access"
	"campus-platform/internal/auth"
	"campus-platform/internal/blocklist"
	"campus-platform/internal/patterns"
	"campus-platform/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.

type Handlers struct {
	Auth       *auth.Manager
	RateLimits *ratelimit.Service
	Blocks     *blocklist.Service
	Guard      *access.Guard
	Analyzer   *patterns.Analyzer
}

// --- Auth ---

type loginRequest struct {
	UserID        string   `json:"user_id"`
	InstitutionID string   `json:"institution_id"`
	DepartmentID  string   `json:"department_id"`
	Role          string   `json:"role"`
	Permissions   []string `json:"permissions"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	if h.Auth == nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "auth not configured"})
		return
	}
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" || req.InstitutionID == "" || req.Role == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id, institution_id, role required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), auth.Identity{
		UserID:        req.UserID,
		InstitutionID: req.InstitutionID,
		DepartmentID:  req.DepartmentID,
		Role:          req.Role,
		Permissions:   req.Permissions,
	})
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"access_token": pair.AccessToken, "refresh_token": pair.RefreshToken})
}

// --- Access decisions ---

type checkAccessRequest struct {
	ResourceType  string `json:"resource_type"`
	InstitutionID string `json:"institution_id"`
	DepartmentID  string `json:"department_id"`
	ResourceID    string `json:"resource_id"`
	Action        string `json:"action"`
}

// CheckAccess evaluates tenant/department isolation for the authenticated
// actor against the described target. The decision itself is the response;
// a denial is still HTTP 200.
func (h Handlers) CheckAccess(c *gin.Context) {
	id, err := auth.IdentityFrom(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}

	var req checkAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	actor := access.Actor{
		SubjectID:     id.UserID,
		InstitutionID: id.InstitutionID,
		DepartmentID:  id.DepartmentID,
		Role:          id.Role,
		Permissions:   id.Permissions,
	}
	target := access.Target{
		Type:          access.ResourceType(req.ResourceType),
		InstitutionID: req.InstitutionID,
		DepartmentID:  req.DepartmentID,
		ResourceID:    req.ResourceID,
	}

	decision, err := h.Guard.PreventCrossTenantAccess(c.Request.Context(), actor, target, req.Action)
	switch {
	case errors.Is(err, access.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		// Fail closed. Never leak store internals to end users.
		c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "access check unavailable, try again"})
		return
	}
	c.JSON(http.StatusOK, decision)
}

// --- Rate limits ---

// RateLimitStatus reports the caller's current budget for every known action
// without consuming attempts.
func (h Handlers) RateLimitStatus(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	status, err := h.RateLimits.GetRateLimitStatus(c.Request.Context(), userID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "status lookup failed"})
		return
	}
	c.JSON(http.StatusOK, status)
}

type enrollmentAttemptRequest struct {
	ResourceID string `json:"resource_id"`
}

// EnrollmentAttempt consumes one enrollment_request attempt and records the
// forensic attempt trail. The forensic write never blocks the response.
func (h Handlers) EnrollmentAttempt(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "identity required"})
		return
	}
	var req enrollmentAttemptRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.ResourceID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "resource_id required"})
		return
	}

	res, err := h.RateLimits.CheckRateLimit(c.Request.Context(), userID, ratelimit.ActionEnrollmentRequest, nil)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "rate limit check failed"})
		return
	}

	h.RateLimits.RecordEnrollmentAttempt(c.Request.Context(), userID, req.ResourceID, c.ClientIP(), c.Request.UserAgent())

	if !res.Allowed {
		writeRateLimited(c, res)
		return
	}
	c.JSON(http.StatusOK, res)
}

// AdminClearRateLimit removes one (user, action) counter. RBAC: admin only.
func (h Handlers) AdminClearRateLimit(c *gin.Context) {
	userID := c.Param("user_id")
	action := c.Param("action")

	err := h.RateLimits.ClearRateLimit(c.Request.Context(), userID, action)
	switch {
	case errors.Is(err, ratelimit.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id and action required"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "clear failed"})
		return
	}
	c.Status(http.StatusNoContent)
}

// --- Blocks ---

type blockUserRequest struct {
	UserID          string `json:"user_id"`
	Reason          string `json:"reason"`
	DurationMinutes int    `json:"duration_minutes"`
}

// AdminBlockUser issues a temporary block. RBAC: admin only.
func (h Handlers) AdminBlockUser(c *gin.Context) {
	institutionID, err := auth.InstitutionID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "institution_id required"})
		return
	}

	var req blockUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	err = h.Blocks.TemporaryBlockUser(
		c.Request.Context(),
		req.UserID,
		institutionID,
		req.Reason,
		time.Duration(req.DurationMinutes)*time.Minute,
	)
	switch {
	case errors.Is(err, blocklist.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "block failed"})
		return
	}
	c.Status(http.StatusCreated)
}

// AdminGetBlock reports a subject's current block state.
func (h Handlers) AdminGetBlock(c *gin.Context) {
	st, err := h.Blocks.IsUserBlocked(c.Request.Context(), c.Param("user_id"))
	switch {
	case errors.Is(err, blocklist.ErrInvalidArgument):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "block lookup failed"})
		return
	}
	c.JSON(http.StatusOK, st)
}

// --- Security analytics ---

// SecurityPatterns runs the pattern analyzer over ?from=&to= (RFC3339).
func (h Handlers) SecurityPatterns(c *gin.Context) {
	h.analyze(c, func(institutionID string, tr patterns.TimeRange) (any, error) {
		return h.Analyzer.AnalyzeAccessPatterns(c.Request.Context(), institutionID, tr)
	})
}

// SecurityMetrics returns the dashboard metrics wrap over ?from=&to=.
func (h Handlers) SecurityMetrics(c *gin.Context) {
	h.analyze(c, func(institutionID string, tr patterns.TimeRange) (any, error) {
		return h.Analyzer.GetSecurityMetrics(c.Request.Context(), institutionID, tr)
	})
}

func (h Handlers) analyze(c *gin.Context, run func(string, patterns.TimeRange) (any, error)) {
	institutionID, err := auth.InstitutionID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "institution_id required"})
		return
	}
	tr, err := parseTimeRange(c)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	out, err := run(institutionID, tr)
	switch {
	case errors.Is(err, patterns.ErrInvalidRequest):
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "analysis failed"})
		return
	}
	c.JSON(http.StatusOK, out)
}

func parseTimeRange(c *gin.Context) (patterns.TimeRange, error) {
	var tr patterns.TimeRange
	from, err := time.Parse(time.RFC3339, c.Query("from"))
	if err != nil {
		return tr, errors.New("from must be RFC3339")
	}
	to, err := time.Parse(time.RFC3339, c.Query("to"))
	if err != nil {
		return tr, errors.New("to must be RFC3339")
	}
	tr.From, tr.To = from, to
	return tr, nil
}
