// Package auth carries the acting user through a request context. Identity
// itself is established upstream; this service trusts the resolved user id.
package auth

import (
	"context"

	"github.com/dukerupert/taskpay/internal/model"
)

type contextKey struct{}

type AuthContext struct {
	UserID string
	Role   model.Role
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

// UserID returns the acting user, or "" outside an authenticated request.
func UserID(ctx context.Context) string {
	ac, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return ac.UserID
}

func IsParent(ctx context.Context) bool {
	ac, ok := FromContext(ctx)
	return ok && ac.Role == model.RoleParent
}
