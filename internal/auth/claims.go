package auth

import "github.com/golang-jwt/jwt/v5"

type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// Claims are the only supported JWT claims shape for this service.
// Multi-tenant invariant: InstitutionID must be present for all non-admin activity.
// DepartmentID and Permissions feed the access decision engine; they are
// optional for roles that do not belong to a department.
type Claims struct {
	jwt.RegisteredClaims

	UserID        string    `json:"user_id"`
	InstitutionID string    `json:"institution_id"`
	DepartmentID  string    `json:"department_id,omitempty"`
	Role          string    `json:"role"`
	Permissions   []string  `json:"permissions,omitempty"`
	TokenType     TokenType `json:"token_type"`
}
