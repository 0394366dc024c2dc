// Package tenant carries the caller's studio through request contexts.
package tenant

import "context"

type ctxKey struct{}

// WithStudio returns a context scoped to studioID.
func WithStudio(ctx context.Context, studioID string) context.Context {
	if studioID == "" {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, studioID)
}

// FromContext returns the studio the request is scoped to, if any.
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(ctxKey{}).(string); ok {
		return v
	}
	return ""
}

// Allows reports whether a resource owned by studioID is visible from ctx.
// Unscoped contexts (background jobs) see every studio.
func Allows(ctx context.Context, studioID string) bool {
	scoped := FromContext(ctx)
	return scoped == "" || scoped == studioID
}
