package middleware

import (
	"context"

	"github.com/google/uuid"
)

type callerKey struct{}

// UserIDFromContext returns the raw caller id stored by Auth, or "".
func UserIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(callerKey{}).(string)
	return id
}

// CallerID parses the authenticated user id. ok is false when the request
// never went through Auth.
func CallerID(ctx context.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(UserIDFromContext(ctx))
	return id, err == nil && id != uuid.Nil
}

// WithUserID stores userID as the caller. Tests use it to skip Auth.
func WithUserID(ctx context.Context, userID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, callerKey{}, userID)
}
