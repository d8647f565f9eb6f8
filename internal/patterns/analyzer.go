package patterns

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"campus-platform/internal/events"
	"campus-platform/pkg/metrics"
)

var ErrInvalidRequest = errors.New("patterns: invalid request")

// analyzerQueryLimit caps one analysis run's event scan. Institutions beyond
// this volume need the range narrowed, not an unbounded query.
const analyzerQueryLimit = 10000

// moderateRiskScore is where the access-controls recommendation starts firing.
const moderateRiskScore = 30

// Thresholds tune when the analyzer flags users and patterns.
type Thresholds struct {
	// SuspiciousMinEvents is the minimum volume before a user can be flagged;
	// below it, no ratio flags anyone.
	SuspiciousMinEvents int
	// SuspiciousMinRatio is the denied/total ratio that flags a user.
	SuspiciousMinRatio float64
	// CrossTenantHigh is the per-(subject, target institution) denial count
	// that emits a high-severity pattern.
	CrossTenantHigh int
	// CrossTenantCritical escalates that pattern to critical.
	CrossTenantCritical int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		SuspiciousMinEvents: 10,
		SuspiciousMinRatio:  0.5,
		CrossTenantHigh:     15,
		CrossTenantCritical: 50,
	}
}

// Analyzer computes risk scores, flagged users, and aggregate security
// metrics from the event log. It only reads; analysis never mutates state.
type Analyzer struct {
	events     *events.Service
	thresholds Thresholds
}

func NewAnalyzer(ev *events.Service, th Thresholds) *Analyzer {
	if th.SuspiciousMinEvents <= 0 {
		th = DefaultThresholds()
	}
	return &Analyzer{events: ev, thresholds: th}
}

// AnalyzeAccessPatterns aggregates an institution's events within the range.
func (a *Analyzer) AnalyzeAccessPatterns(ctx context.Context, institutionID string, tr TimeRange) (Analysis, error) {
	if institutionID == "" {
		return Analysis{}, fmt.Errorf("%w: institution required", ErrInvalidRequest)
	}
	if tr.From.IsZero() || tr.To.IsZero() || !tr.To.After(tr.From) {
		return Analysis{}, fmt.Errorf("%w: time range must be ordered and non-empty", ErrInvalidRequest)
	}

	start := time.Now()
	defer func() {
		metrics.AnalyzerDuration.Observe(time.Since(start).Seconds())
	}()

	evs, err := a.events.Query(ctx, events.Filter{
		InstitutionID: institutionID,
		Since:         tr.From,
		Until:         tr.To,
		Limit:         analyzerQueryLimit,
	})
	if err != nil {
		return Analysis{}, fmt.Errorf("patterns: query events: %w", err)
	}

	var out Analysis
	perUser := map[string]*userTally{}
	crossTenant := map[crossTenantKey]int{}
	alertCount := 0

	for _, e := range evs {
		switch e.Type {
		case events.EventTypeSecurityAlert:
			// Alerts feed the critical_violation pattern, not attempt counts.
			alertCount++
			continue
		case events.EventTypeAccessDenied:
			out.TotalAttempts++
			out.BlockedAttempts++
		case events.EventTypeAccessGranted:
			out.TotalAttempts++
		default:
			continue
		}

		t := perUser[e.SubjectID]
		if t == nil {
			t = &userTally{}
			perUser[e.SubjectID] = t
		}
		t.total++
		if e.Type == events.EventTypeAccessDenied {
			t.denied++
			if target, ok := e.Metadata[events.MetaTargetInstitutionID].(string); ok && target != "" && target != institutionID {
				crossTenant[crossTenantKey{subject: e.SubjectID, target: target}]++
			}
		}
	}

	out.SuspiciousUsers = a.flagUsers(perUser)
	out.Patterns = a.buildPatterns(crossTenant, alertCount)
	return out, nil
}

type userTally struct {
	total  int
	denied int
}

type crossTenantKey struct {
	subject string
	target  string
}

func (a *Analyzer) flagUsers(perUser map[string]*userTally) []SuspiciousUser {
	var flagged []SuspiciousUser
	for userID, t := range perUser {
		if t.total < a.thresholds.SuspiciousMinEvents {
			// Small samples never flag, regardless of ratio.
			continue
		}
		ratio := float64(t.denied) / float64(t.total)
		if ratio < a.thresholds.SuspiciousMinRatio {
			continue
		}
		flagged = append(flagged, SuspiciousUser{
			UserID:    userID,
			RiskScore: roundPercent(t.denied, t.total),
		})
	}
	sort.Slice(flagged, func(i, j int) bool {
		if flagged[i].RiskScore != flagged[j].RiskScore {
			return flagged[i].RiskScore > flagged[j].RiskScore
		}
		return flagged[i].UserID < flagged[j].UserID
	})
	return flagged
}

func (a *Analyzer) buildPatterns(crossTenant map[crossTenantKey]int, alertCount int) []AccessPattern {
	var out []AccessPattern
	for _, count := range crossTenant {
		if count < a.thresholds.CrossTenantHigh {
			continue
		}
		severity := SeverityHigh
		if count >= a.thresholds.CrossTenantCritical {
			severity = SeverityCritical
		}
		out = append(out, AccessPattern{Type: PatternCrossTenantAccess, Severity: severity, Count: count})
	}
	if alertCount > 0 {
		out = append(out, AccessPattern{Type: PatternCriticalViolation, Severity: SeverityCritical, Count: alertCount})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Type < out[j].Type
	})
	return out
}

// GetSecurityMetrics wraps AnalyzeAccessPatterns for dashboards.
func (a *Analyzer) GetSecurityMetrics(ctx context.Context, institutionID string, tr TimeRange) (Metrics, error) {
	analysis, err := a.AnalyzeAccessPatterns(ctx, institutionID, tr)
	if err != nil {
		return Metrics{}, err
	}

	m := Metrics{
		AccessAttempts:  analysis.TotalAttempts,
		BlockedAttempts: analysis.BlockedAttempts,
		SecurityAlerts:  len(analysis.Patterns),
		TopRiskyUsers:   analysis.SuspiciousUsers,
	}
	if analysis.TotalAttempts > 0 {
		m.RiskScore = roundPercent(analysis.BlockedAttempts, analysis.TotalAttempts)
	}

	// Additive rules: all matching recommendations fire.
	if m.RiskScore > moderateRiskScore {
		m.Recommendations = append(m.Recommendations, RecommendAccessControls)
	}
	if len(analysis.SuspiciousUsers) > 0 {
		m.Recommendations = append(m.Recommendations, RecommendReviewFlagged)
	}
	for _, p := range analysis.Patterns {
		if p.Severity == SeverityCritical {
			m.Recommendations = append(m.Recommendations, RecommendImmediate)
			break
		}
	}
	return m, nil
}

func roundPercent(part, whole int) int {
	return int(math.Round(float64(part) / float64(whole) * 100))
}
