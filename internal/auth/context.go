package auth

import "context"

type contextKey struct{}

// WithPrincipal attaches p to ctx. Only the HTTP pipeline uses this; services take
// the principal as an explicit argument.
func WithPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, contextKey{}, p)
}

// PrincipalFromContext returns the principal set by the authentication middleware, or nil.
func PrincipalFromContext(ctx context.Context) *Principal {
	p, _ := ctx.Value(contextKey{}).(*Principal)
	return p
}
