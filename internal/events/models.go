package events

import "time"

// AccessEvent is an immutable, append-only record of an access decision or a
// blocking action.
//
// Invariants:
// - Events are never updated or deleted by this service. Retention is an
//   external policy.
// - institution_id is the acting subject's institution; the target institution
//   of a denied cross-tenant attempt lives in Metadata under
//   "target_institution_id".
//
// Storage recommendation (Postgres):
// - Table access_events with an INSERT-only policy.
// - Optional: trigger to prevent UPDATE/DELETE.
// - Optional: partition by time for retention.

type AccessEvent struct {
	ID        string `json:"id" db:"id"`
	SubjectID string `json:"subject_id" db:"subject_id"`

	InstitutionID string `json:"institution_id,omitempty" db:"institution_id"`
	DepartmentID  string `json:"department_id,omitempty" db:"department_id"`
	Role          string `json:"role,omitempty" db:"role"`

	// Type indicates the decision outcome category.
	Type EventType `json:"type" db:"type"`

	// Resource names what was touched (e.g. "department", "user_account").
	Resource string `json:"resource" db:"resource"`
	// Action names the attempted operation (e.g. "enrollment_request",
	// "temporary_block", "security_alert").
	Action string `json:"action" db:"action"`

	// Metadata holds event-specific detail (block reason and expiry, target
	// institution of a cross-tenant attempt, client IP, user agent).
	Metadata map[string]any `json:"metadata,omitempty" db:"metadata"`

	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type EventType string

const (
	EventTypeAccessGranted EventType = "access_granted"
	EventTypeAccessDenied  EventType = "access_denied"

	// EventTypeSecurityAlert marks escalation alerts. Alerts are a distinct
	// type so denial counts and alert counts never pollute each other.
	EventTypeSecurityAlert EventType = "security_alert"
)

// Well-known metadata keys written by the engine.
const (
	MetaReason              = "reason"
	MetaBlockUntil          = "blockUntil"
	MetaDurationMinutes     = "durationMinutes"
	MetaTargetInstitutionID = "target_institution_id"
	MetaTargetDepartmentID  = "target_department_id"
	MetaTargetResourceType  = "target_resource_type"
	MetaClientIP            = "client_ip"
	MetaUserAgent           = "user_agent"
	MetaDenialCount         = "denial_count"
)

// Filter narrows a Query. Zero fields match everything.
type Filter struct {
	SubjectID     string
	InstitutionID string
	Type          EventType
	Action        string
	Since         time.Time
	Until         time.Time

	// Limit caps the result set; 0 means store default.
	Limit int
}
