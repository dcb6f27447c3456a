package interceptors

import (
	"context"

	"pmt/backend/internal/security"
)

type contextKey struct{ name string }

var (
	identityKey = contextKey{"identity"}
	tokenKey    = contextKey{"token"}
)

// WithIdentity returns a context carrying the authenticated caller and the raw bearer token it presented.
func WithIdentity(ctx context.Context, id *security.Identity, token string) context.Context {
	ctx = context.WithValue(ctx, identityKey, id)
	ctx = context.WithValue(ctx, tokenKey, token)
	return ctx
}

// IdentityFrom returns the caller set by AuthUnary, or nil and false for anonymous calls.
func IdentityFrom(ctx context.Context) (*security.Identity, bool) {
	id, ok := ctx.Value(identityKey).(*security.Identity)
	return id, ok && id != nil
}

// UserIDFrom returns the caller's user id, or 0 and false for anonymous calls.
func UserIDFrom(ctx context.Context) (int64, bool) {
	id, ok := IdentityFrom(ctx)
	if !ok {
		return 0, false
	}
	return id.UserID, true
}

// TokenFrom returns the bearer token of the authenticated caller.
func TokenFrom(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(tokenKey).(string)
	return v, ok && v != ""
}
