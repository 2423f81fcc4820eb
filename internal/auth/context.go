// ABOUTME: Carries the current Session through a context
// ABOUTME: Lets a caller pin the session a chain of requests was issued under

package auth

import (
	"context"
)

// sessionContextKey is the key type for storing a Session in context.Context.
type sessionContextKey struct{}

// WithSession returns a new context with s attached.
func WithSession(ctx context.Context, s Session) context.Context {
	return context.WithValue(ctx, sessionContextKey{}, s)
}

// FromContext retrieves the Session from ctx. ok is false if none is present.
func FromContext(ctx context.Context) (s Session, ok bool) {
	s, ok = ctx.Value(sessionContextKey{}).(Session)
	return s, ok
}
