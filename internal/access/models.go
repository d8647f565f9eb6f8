package access

// Actor is the authenticated subject attempting the operation. Immutable for
// the duration of a request.
type Actor struct {
	SubjectID     string   `json:"subject_id"`
	InstitutionID string   `json:"institution_id"`
	DepartmentID  string   `json:"department_id,omitempty"`
	Role          string   `json:"role"`
	Permissions   []string `json:"permissions,omitempty"`
}

// Target describes the resource being accessed.
type Target struct {
	Type          ResourceType `json:"resource_type"`
	InstitutionID string       `json:"institution_id"`
	DepartmentID  string       `json:"department_id,omitempty"`
	ResourceID    string       `json:"resource_id,omitempty"`
}

type ResourceType string

const (
	ResourceInstitution ResourceType = "institution"
	ResourceDepartment  ResourceType = "department"
	ResourceCourse      ResourceType = "course"
	ResourceEnrollment  ResourceType = "enrollment"
)

// Decision is the engine's verdict. Reason strings are part of the caller
// contract; keep them stable.
type Decision struct {
	Allowed        bool   `json:"allowed"`
	Reason         string `json:"reason"`
	AlertGenerated bool   `json:"alert_generated,omitempty"`
}

const (
	ReasonSystemAdmin      = "System admin access"
	ReasonGranted          = "Access granted"
	ReasonCrossInstitution = "Access denied: Cannot access resources from other institutions"
	ReasonCrossDepartment  = "Access denied: Cannot access resources from other departments"
)
