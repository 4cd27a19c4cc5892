package shared

import "context"

type tenantContextKey struct{}

// ContextWithTenant stores the resolved company id in context.
func ContextWithTenant(ctx context.Context, companyID string) context.Context {
	return context.WithValue(ctx, tenantContextKey{}, companyID)
}

// TenantFromContext extracts the company id from context.
func TenantFromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(tenantContextKey{}).(string)
	return id, ok && id != ""
}
