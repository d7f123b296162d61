// Package auth carries the caller's anonymous identity through a request.
package auth

import "context"

type contextKey struct{}

// Identity is what handlers know about the caller.
type Identity struct {
	Subject string
	// New is set when the identity was minted by this request.
	New bool
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKey{}).(Identity)
	return id, ok
}

// SubjectID returns the caller's subject, or "" outside an identified request.
func SubjectID(ctx context.Context) string {
	id, ok := FromContext(ctx)
	if !ok {
		return ""
	}
	return id.Subject
}
