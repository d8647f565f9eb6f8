package auth

import (
	"context"
	"errors"
)

type ctxKey int

const (
	ctxUserID ctxKey = iota
	ctxInstitutionID
	ctxDepartmentID
	ctxRole
	ctxPermissions
)

// Identity is the authenticated subject attached to a request context.
type Identity struct {
	UserID        string
	InstitutionID string
	DepartmentID  string
	Role          string
	Permissions   []string
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	ctx = context.WithValue(ctx, ctxUserID, id.UserID)
	ctx = context.WithValue(ctx, ctxInstitutionID, id.InstitutionID)
	ctx = context.WithValue(ctx, ctxDepartmentID, id.DepartmentID)
	ctx = context.WithValue(ctx, ctxRole, id.Role)
	ctx = context.WithValue(ctx, ctxPermissions, id.Permissions)
	return ctx
}

func IdentityFrom(ctx context.Context) (Identity, error) {
	uid, err := UserID(ctx)
	if err != nil {
		return Identity{}, err
	}
	iid, err := InstitutionID(ctx)
	if err != nil {
		return Identity{}, err
	}
	role, err := Role(ctx)
	if err != nil {
		return Identity{}, err
	}
	id := Identity{UserID: uid, InstitutionID: iid, Role: role}
	if v, ok := ctx.Value(ctxDepartmentID).(string); ok {
		id.DepartmentID = v
	}
	if v, ok := ctx.Value(ctxPermissions).([]string); ok {
		id.Permissions = v
	}
	return id, nil
}

func UserID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxUserID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("user_id not in context")
}

func InstitutionID(ctx context.Context) (string, error) {
	v := ctx.Value(ctxInstitutionID)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("institution_id not in context")
}

func Role(ctx context.Context) (string, error) {
	v := ctx.Value(ctxRole)
	if s, ok := v.(string); ok && s != "" {
		return s, nil
	}
	return "", errors.New("role not in context")
}
