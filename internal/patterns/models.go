package patterns

import "time"

// TimeRange bounds an analysis run. Both ends are required.
type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// SuspiciousUser is derived, never stored.
type SuspiciousUser struct {
	UserID string `json:"user_id"`
	// RiskScore is round(denied/total*100), 0..100.
	RiskScore int `json:"risk_score"`
}

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

type PatternType string

const (
	// PatternCrossTenantAccess groups repeated denials against one foreign
	// institution by one subject.
	PatternCrossTenantAccess PatternType = "cross_tenant_access"
	// PatternCriticalViolation surfaces escalation alerts and administrative
	// findings alongside counted patterns.
	PatternCriticalViolation PatternType = "critical_violation"
)

// AccessPattern is derived, never stored.
type AccessPattern struct {
	Type     PatternType `json:"type"`
	Severity Severity    `json:"severity"`
	Count    int         `json:"count"`
}

// Analysis is the output of one analyzer run over an institution's events.
type Analysis struct {
	TotalAttempts   int              `json:"total_attempts"`
	BlockedAttempts int              `json:"blocked_attempts"`
	SuspiciousUsers []SuspiciousUser `json:"suspicious_users"`
	Patterns        []AccessPattern  `json:"patterns"`
}

// Metrics is the dashboard-facing wrap of an Analysis.
type Metrics struct {
	AccessAttempts  int              `json:"access_attempts"`
	BlockedAttempts int              `json:"blocked_attempts"`
	RiskScore       int              `json:"risk_score"`
	SecurityAlerts  int              `json:"security_alerts"`
	TopRiskyUsers   []SuspiciousUser `json:"top_risky_users"`
	Recommendations []string         `json:"recommendations"`
}

// Recommendation texts. A rules table, not a single path: every matching rule
// fires.
const (
	RecommendAccessControls = "Consider implementing additional access controls"
	RecommendReviewFlagged  = "Review access patterns for flagged users"
	RecommendImmediate      = "Immediate security review required"
)
