package shared

import "context"

// TenantScope carries the pre-validated multi-tenancy keys for a request.
type TenantScope struct {
	ClientID int64
	StoreID  int64
}

type scopeContextKey struct{}

// ContextWithScope stores the tenant scope in context.
func ContextWithScope(ctx context.Context, scope TenantScope) context.Context {
	return context.WithValue(ctx, scopeContextKey{}, scope)
}

// ScopeFromContext extracts the tenant scope from context.
func ScopeFromContext(ctx context.Context) (TenantScope, bool) {
	scope, ok := ctx.Value(scopeContextKey{}).(TenantScope)
	return scope, ok
}
