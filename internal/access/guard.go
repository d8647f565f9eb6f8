package access

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"campus-platform/internal/events"
	"campus-platform/internal/rbac"
	"campus-platform/pkg/metrics"
)

// Guard is the tenant/department isolation engine, invoked on every
// cross-boundary operation.
//
// Evaluation order:
//  1. System admin fast path (no event written)
//  2. Institution boundary
//  3. Department boundary (admin bypass, home department, explicit permission)
//  4. Same-institution default allow
//  5. Escalation on denial
//
// Named policy: FAIL-CLOSED. A storage failure on the escalation read
// propagates to the caller; there is no safe permissive default for tenant
// isolation. The denial event write and the alert write are forensic side
// effects and are logged-and-swallowed instead. This asymmetry with the rate
// limiter is intentional.

var (
	ErrInvalidArgument    = errors.New("access: invalid argument")
	ErrStorageUnavailable = errors.New("access: storage unavailable")
)

const (
	// ActionSecurityAlert is the action name of escalation alert events.
	ActionSecurityAlert = "security_alert"
	// ResourceSecurity is the resource name alert events are filed under.
	ResourceSecurity = "security"
)

type Guard struct {
	events *events.Service
	log    *slog.Logger
	clock  func() time.Time

	// escalationThreshold prior denials within lookback raise an alert on the
	// next denial.
	escalationThreshold int
	lookback            time.Duration
}

func NewGuard(ev *events.Service, log *slog.Logger, escalationThreshold int, lookback time.Duration) *Guard {
	g := &Guard{
		events:              ev,
		log:                 log,
		clock:               time.Now,
		escalationThreshold: escalationThreshold,
		lookback:            lookback,
	}
	if g.log == nil {
		g.log = slog.Default()
	}
	if g.escalationThreshold <= 0 {
		g.escalationThreshold = 5
	}
	if g.lookback <= 0 {
		g.lookback = time.Hour
	}
	return g
}

// WithClock overrides the time source. Tests only.
func (g *Guard) WithClock(clock func() time.Time) *Guard {
	g.clock = clock
	return g
}

// PreventCrossTenantAccess decides whether the actor may touch the target.
// On denial the engine logs an access_denied event and, past the escalation
// threshold, a security alert. Two concurrent over-threshold denials may both
// alert; a duplicate alert is acceptable, a missed one is not.
func (g *Guard) PreventCrossTenantAccess(ctx context.Context, actor Actor, target Target, action string) (Decision, error) {
	if actor.SubjectID == "" || actor.InstitutionID == "" || action == "" {
		return Decision{}, fmt.Errorf("%w: subject, institution and action required", ErrInvalidArgument)
	}
	if target.InstitutionID == "" {
		return Decision{}, fmt.Errorf("%w: target institution required", ErrInvalidArgument)
	}

	// 1. Privileged fast path: no event written.
	if rbac.IsSystemAdmin(actor.Role) {
		return Decision{Allowed: true, Reason: ReasonSystemAdmin}, nil
	}

	// 2. Institution boundary.
	if target.InstitutionID != actor.InstitutionID {
		return g.deny(ctx, actor, target, action, ReasonCrossInstitution)
	}

	// 3. Department boundary.
	if target.Type == ResourceDepartment {
		switch {
		case rbac.IsInstitutionAdmin(actor.Role):
			return Decision{Allowed: true, Reason: ReasonGranted}, nil
		case actor.DepartmentID != "" && actor.DepartmentID == target.DepartmentID:
			return Decision{Allowed: true, Reason: ReasonGranted}, nil
		case rbac.HasPermission(actor.Permissions, rbac.PermCrossDepartmentAccess):
			return Decision{Allowed: true, Reason: ReasonGranted}, nil
		default:
			return g.deny(ctx, actor, target, action, ReasonCrossDepartment)
		}
	}

	// 4. Same institution, unrestricted resource type.
	return Decision{Allowed: true, Reason: ReasonGranted}, nil
}

// deny records the denial, then runs the escalation check. The denial event
// write is best-effort; the escalation read is decision-path and fails closed.
func (g *Guard) deny(ctx context.Context, actor Actor, target Target, action, reason string) (Decision, error) {
	now := g.clock().UTC()
	metrics.AccessDenials.WithLabelValues(denialClass(reason)).Inc()

	wrote := true
	err := g.events.Append(ctx, events.AccessEvent{
		SubjectID:     actor.SubjectID,
		InstitutionID: actor.InstitutionID,
		DepartmentID:  actor.DepartmentID,
		Role:          actor.Role,
		Type:          events.EventTypeAccessDenied,
		Resource:      string(target.Type),
		Action:        action,
		Metadata: map[string]any{
			events.MetaReason:              reason,
			events.MetaTargetInstitutionID: target.InstitutionID,
			events.MetaTargetDepartmentID:  target.DepartmentID,
			events.MetaTargetResourceType:  string(target.Type),
		},
	})
	if err != nil {
		// The decision stands; losing the forensic record must not block it.
		wrote = false
		metrics.ForensicWriteFailures.WithLabelValues("access_denial").Inc()
		g.log.Error("denial event write failed", "subject_id", actor.SubjectID, "err", err)
	}

	alerted, err := g.escalate(ctx, actor, reason, now, wrote)
	if err != nil {
		return Decision{}, err
	}
	return Decision{Allowed: false, Reason: reason, AlertGenerated: alerted}, nil
}

func (g *Guard) escalate(ctx context.Context, actor Actor, reason string, now time.Time, wroteDenial bool) (bool, error) {
	// Bounded read: anything past threshold+1 changes nothing.
	total, err := g.events.CountSince(ctx, events.Filter{
		SubjectID: actor.SubjectID,
		Type:      events.EventTypeAccessDenied,
	}, now.Add(-g.lookback), g.escalationThreshold+2)
	if err != nil {
		return false, fmt.Errorf("%w: escalation lookback: %v", ErrStorageUnavailable, err)
	}

	prior := total
	if wroteDenial {
		prior--
	}
	if prior < g.escalationThreshold {
		return false, nil
	}

	metrics.SecurityAlerts.Inc()
	err = g.events.Append(ctx, events.AccessEvent{
		SubjectID:     actor.SubjectID,
		InstitutionID: actor.InstitutionID,
		Role:          actor.Role,
		Type:          events.EventTypeSecurityAlert,
		Resource:      ResourceSecurity,
		Action:        ActionSecurityAlert,
		Metadata: map[string]any{
			events.MetaReason:      fmt.Sprintf("Repeated access denials: %s", reason),
			events.MetaDenialCount: prior + 1,
		},
	})
	if err != nil {
		// The alert write is forensic; the caller still learns an alert fired.
		metrics.ForensicWriteFailures.WithLabelValues("security_alert").Inc()
		g.log.Error("security alert write failed", "subject_id", actor.SubjectID, "err", err)
	}
	g.log.Warn("security alert raised",
		"subject_id", actor.SubjectID,
		"institution_id", actor.InstitutionID,
		"denials", prior+1,
		"reason", reason,
	)
	return true, nil
}

func denialClass(reason string) string {
	if reason == ReasonCrossInstitution {
		return "cross_institution"
	}
	return "cross_department"
}
