package graphql

import (
	"context"
	"errors"
)

type contextKey string

const roleKey contextKey = "graphql.role"

var ErrUnauthenticated = errors.New("unauthenticated")

// WithRole records the role of the authenticated caller.
func WithRole(ctx context.Context, role string) context.Context {
	return context.WithValue(ctx, roleKey, role)
}

func RoleFromContext(ctx context.Context) (string, error) {
	if ctx == nil {
		return "", ErrUnauthenticated
	}
	if role, ok := ctx.Value(roleKey).(string); ok && role != "" {
		return role, nil
	}
	return "", ErrUnauthenticated
}
