package httpx

import (
	"context"

	"github.com/edunexus/governance/internal/domain/model"
)

type principalKey struct{}

// WithPrincipal stores the caller principal on ctx.
func WithPrincipal(ctx context.Context, p model.Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal placed on ctx by the Principal middleware.
func PrincipalFrom(ctx context.Context) (model.Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(model.Principal)
	return p, ok
}
