// Package auth carries the authenticated user through request contexts
// and hashes passwords.
package auth

import (
	"context"
	"errors"
)

// ErrNotAuthenticated is returned when a request has no valid session.
var ErrNotAuthenticated = errors.New("session expired")

type contextKey struct{}

type AuthContext struct {
	UserID    int64
	SessionID int64
}

func WithAuth(ctx context.Context, ac AuthContext) context.Context {
	return context.WithValue(ctx, contextKey{}, ac)
}

func FromContext(ctx context.Context) (AuthContext, bool) {
	ac, ok := ctx.Value(contextKey{}).(AuthContext)
	return ac, ok
}

func UserID(ctx context.Context) int64 {
	ac, ok := FromContext(ctx)
	if !ok {
		return 0
	}
	return ac.UserID
}

// Require returns the user id in ctx, or ErrNotAuthenticated.
func Require(ctx context.Context) (int64, error) {
	ac, ok := FromContext(ctx)
	if !ok || ac.UserID == 0 {
		return 0, ErrNotAuthenticated
	}
	return ac.UserID, nil
}
