package auth

import (
	"context"
	"strings"

	"ainstein.io/prm"
)

type ctxKey string

const (
	userIDKey ctxKey = "auth_user_id"
	roleKey   ctxKey = "auth_role"
	orgKey    ctxKey = "auth_org_id"
)

// ContextWithUser stores the authenticated identity in the context.
func ContextWithUser(ctx context.Context, userID string, role prm.Role, orgID string) context.Context {
	ctx = context.WithValue(ctx, userIDKey, strings.TrimSpace(userID))
	ctx = context.WithValue(ctx, roleKey, role)
	return context.WithValue(ctx, orgKey, strings.TrimSpace(orgID))
}

// UserIDFromContext extracts the authenticated user ID from context.
func UserIDFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(userIDKey).(string)
	if !ok || strings.TrimSpace(v) == "" {
		return "", false
	}
	return v, true
}

// OrgFromContext returns the caller's organization ID, if any. The
// platform admin carries none.
func OrgFromContext(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(orgKey).(string)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// RoleFromContext returns the authenticated role, if any.
func RoleFromContext(ctx context.Context) (prm.Role, bool) {
	v, ok := ctx.Value(roleKey).(prm.Role)
	if !ok || v == "" {
		return "", false
	}
	return v, true
}

// HasRole checks whether the context carries the specified role.
func HasRole(ctx context.Context, role prm.Role) bool {
	got, ok := RoleFromContext(ctx)
	return ok && got == role
}
