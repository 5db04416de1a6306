// ABOUTME: Authentication context for tracking identity through request handlers
// ABOUTME: Provides WithPrincipal/FromContext for propagating auth info via context

package auth

import (
	"context"
)

// principalKey is the key type for storing a Principal in context.Context.
type principalKey struct{}

// WithPrincipal returns a new context with the Principal attached.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// FromContext retrieves the Principal from the context, returning nil if not present.
func FromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(principalKey{}).(*Principal)
	return p
}
