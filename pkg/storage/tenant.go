package storage

import "context"

type tenantKey struct{}

// SetTenant returns a context scoped to the given tenant. Stores read the
// tenant back out of the context on every operation.
func SetTenant(ctx context.Context, tenantID string) context.Context {
	return context.WithValue(ctx, tenantKey{}, tenantID)
}

// GetTenant returns the tenant the context is scoped to. An empty string
// means single-tenant mode.
func GetTenant(ctx context.Context) string {
	tenant, _ := ctx.Value(tenantKey{}).(string)
	return tenant
}
