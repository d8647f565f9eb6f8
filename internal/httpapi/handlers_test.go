package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"campus-platform/internal/access"
	"campus-platform/internal/auth"
	"campus-platform/internal/blocklist"
	"campus-platform/internal/events"
	"campus-platform/internal/patterns"
	"campus-platform/internal/ratelimit"

	"github.com/gin-gonic/gin"
)

type testEnv struct {
	handlers Handlers
	events   *events.MemoryStore
	counters *ratelimit.MemoryStore
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()

	es := events.NewMemoryStore()
	ev := events.NewService(es)
	cs := ratelimit.NewMemoryStore()

	return testEnv{
		handlers: Handlers{
			RateLimits: ratelimit.NewService(cs, ev, nil, ratelimit.Options{}),
			Blocks:     blocklist.NewService(ev),
			Guard:      access.NewGuard(ev, nil, 5, time.Hour),
			Analyzer:   patterns.NewAnalyzer(ev, patterns.DefaultThresholds()),
		},
		events:   es,
		counters: cs,
	}
}

// identityMW stands in for the JWT middleware in tests.
func identityMW(id auth.Identity) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Request = c.Request.WithContext(auth.WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

func doJSON(t *testing.T, r *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *strings.Reader
	if body == "" {
		rd = strings.NewReader("")
	} else {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestCheckAccessDenialIsStillOK(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)

	r := gin.New()
	r.POST("/check", identityMW(auth.Identity{
		UserID: "u1", InstitutionID: "inst-a", Role: "student",
	}), env.handlers.CheckAccess)

	w := doJSON(t, r, http.MethodPost, "/check",
		`{"resource_type":"course","institution_id":"inst-b","resource_id":"c1","action":"read"}`)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var dec access.Decision
	if err := json.Unmarshal(w.Body.Bytes(), &dec); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if dec.Allowed {
		t.Fatal("cross-institution access must be denied")
	}
	if dec.Reason != access.ReasonCrossInstitution {
		t.Fatalf("unexpected reason %q", dec.Reason)
	}
}

func TestCheckAccessRequiresIdentity(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)

	r := gin.New()
	r.POST("/check", env.handlers.CheckAccess)

	w := doJSON(t, r, http.MethodPost, "/check", `{"resource_type":"course","institution_id":"x"}`)
	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestRateLimitMiddlewareBlocksAfterBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)

	es := events.NewMemoryStore()
	ev := events.NewService(es)
	svc := ratelimit.NewService(ratelimit.NewMemoryStore(), ev, nil, ratelimit.Options{
		Configs: map[string]ratelimit.Config{
			"probe": {Window: time.Minute, MaxAttempts: 2, BlockDuration: 10 * time.Minute},
		},
		IPConfigs: map[string]ratelimit.Config{
			"probe": {Window: time.Minute, MaxAttempts: 100, BlockDuration: 10 * time.Minute},
		},
	})

	r := gin.New()
	r.POST("/probe", identityMW(auth.Identity{UserID: "u1", InstitutionID: "i1", Role: "student"}),
		RateLimit(svc, "probe"),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	for i := 0; i < 2; i++ {
		if w := doJSON(t, r, http.MethodPost, "/probe", ""); w.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := doJSON(t, r, http.MethodPost, "/probe", "")
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429, got %d", w.Code)
	}
	if w.Header().Get("Retry-After") == "" {
		t.Fatal("expected Retry-After header on block")
	}
	var body struct {
		BlockedUntil *time.Time `json:"blocked_until"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.BlockedUntil == nil {
		t.Fatal("expected blocked_until in 429 body")
	}
}

func TestRequireNotBlockedRejectsBlockedUser(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)

	ctxID := auth.Identity{UserID: "u1", InstitutionID: "i1", Role: "student"}
	r := gin.New()
	r.GET("/res", identityMW(ctxID), RequireNotBlocked(env.handlers.Blocks),
		func(c *gin.Context) { c.Status(http.StatusOK) },
	)

	if w := doJSON(t, r, http.MethodGet, "/res", ""); w.Code != http.StatusOK {
		t.Fatalf("unblocked user: expected 200, got %d", w.Code)
	}

	if err := env.handlers.Blocks.TemporaryBlockUser(context.Background(), "u1", "i1", "abuse", 30*time.Minute); err != nil {
		t.Fatalf("block: %v", err)
	}

	w := doJSON(t, r, http.MethodGet, "/res", "")
	if w.Code != http.StatusForbidden {
		t.Fatalf("blocked user: expected 403, got %d", w.Code)
	}
}

func TestEnrollmentAttemptRecordsForensicTrail(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)

	r := gin.New()
	r.POST("/attempts", identityMW(auth.Identity{UserID: "u1", InstitutionID: "i1", Role: "student"}),
		env.handlers.EnrollmentAttempt)

	w := doJSON(t, r, http.MethodPost, "/attempts", `{"resource_id":"course-42"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res ratelimit.Result
	if err := json.Unmarshal(w.Body.Bytes(), &res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !res.Allowed {
		t.Fatal("first attempt must be allowed")
	}

	evs := env.events.All()
	if len(evs) != 1 {
		t.Fatalf("expected 1 forensic event, got %d", len(evs))
	}
	if evs[0].SubjectID != "u1" || evs[0].Action != "enrollment_attempt" {
		t.Fatalf("unexpected forensic event %+v", evs[0])
	}
}

func TestEnrollmentAttemptOverBudget(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)

	r := gin.New()
	r.POST("/attempts", identityMW(auth.Identity{UserID: "u1", InstitutionID: "i1", Role: "student"}),
		env.handlers.EnrollmentAttempt)

	max := ratelimit.DefaultConfigs()[ratelimit.ActionEnrollmentRequest].MaxAttempts
	for i := 0; i < max; i++ {
		if w := doJSON(t, r, http.MethodPost, "/attempts", `{"resource_id":"c"}`); w.Code != http.StatusOK {
			t.Fatalf("attempt %d: expected 200, got %d", i+1, w.Code)
		}
	}

	w := doJSON(t, r, http.MethodPost, "/attempts", `{"resource_id":"c"}`)
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("expected 429 over budget, got %d", w.Code)
	}

	// Denied attempts still leave a forensic trail.
	if got := len(env.events.All()); got != max+1 {
		t.Fatalf("expected %d forensic events, got %d", max+1, got)
	}
}

func TestAdminBlockRoundTrip(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)

	adminID := auth.Identity{UserID: "admin", InstitutionID: "i1", Role: "institution_admin"}
	r := gin.New()
	r.POST("/blocks", identityMW(adminID), env.handlers.AdminBlockUser)
	r.GET("/blocks/:user_id", identityMW(adminID), env.handlers.AdminGetBlock)

	w := doJSON(t, r, http.MethodPost, "/blocks",
		`{"user_id":"u9","reason":"credential stuffing","duration_minutes":45}`)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}

	w = doJSON(t, r, http.MethodGet, "/blocks/u9", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var st blocklist.Status
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !st.Blocked || st.Reason != "credential stuffing" || st.Until == nil {
		t.Fatalf("unexpected status %+v", st)
	}
}

func TestRateLimitStatusListsAllActions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)

	r := gin.New()
	r.GET("/status", identityMW(auth.Identity{UserID: "u1", InstitutionID: "i1", Role: "student"}),
		env.handlers.RateLimitStatus)

	w := doJSON(t, r, http.MethodGet, "/status", "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var status map[string]ratelimit.Result
	if err := json.Unmarshal(w.Body.Bytes(), &status); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(status) != len(ratelimit.DefaultConfigs()) {
		t.Fatalf("expected %d actions, got %d", len(ratelimit.DefaultConfigs()), len(status))
	}
	for action, res := range status {
		if !res.Allowed {
			t.Fatalf("fresh user must be allowed for %s", action)
		}
	}
}

func TestSecurityMetricsValidatesTimeRange(t *testing.T) {
	gin.SetMode(gin.TestMode)
	env := newTestEnv(t)

	adminID := auth.Identity{UserID: "admin", InstitutionID: "i1", Role: "institution_admin"}
	r := gin.New()
	r.GET("/security/metrics", identityMW(adminID), env.handlers.SecurityMetrics)

	w := doJSON(t, r, http.MethodGet, "/security/metrics?from=nonsense&to=alsononsense", "")
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad range, got %d", w.Code)
	}

	from := time.Now().Add(-time.Hour).UTC().Format(time.RFC3339)
	to := time.Now().UTC().Format(time.RFC3339)
	w = doJSON(t, r, http.MethodGet, "/security/metrics?from="+from+"&to="+to, "")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var m patterns.Metrics
	if err := json.Unmarshal(w.Body.Bytes(), &m); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.AccessAttempts != 0 || m.RiskScore != 0 {
		t.Fatalf("expected zeroed metrics on empty store, got %+v", m)
	}
}
