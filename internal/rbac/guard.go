package rbac

import (
	"context"
	"fmt"

	"github.com/larrabee/ceph/internal/shared"
)

// ScopeResolver turns role names into the union of their scopes.
type ScopeResolver interface {
	ScopesFor(ctx context.Context, roles []string) (ScopeSet, error)
}

// Guard enforces scope requirements against an identity's roles.
type Guard struct {
	resolver ScopeResolver
}

// NewGuard constructs a Guard.
func NewGuard(resolver ScopeResolver) *Guard {
	return &Guard{resolver: resolver}
}

// Authorize returns shared.ErrPermissionDenied unless the identity holds every scope.
func (g *Guard) Authorize(ctx context.Context, identity shared.Identity, scopes ...Scope) error {
	if len(scopes) == 0 {
		return nil
	}
	granted, err := g.resolver.ScopesFor(ctx, identity.Roles)
	if err != nil {
		return fmt.Errorf("rbac: resolve scopes: %w", err)
	}
	for _, scope := range scopes {
		if !granted.Has(scope) {
			return shared.ErrPermissionDenied.WithDetail("missing scope " + scope.String())
		}
	}
	return nil
}
