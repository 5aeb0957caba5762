package seccore

import "context"

type organizationIDContextKey struct{}

// WithOrganizationID attaches an organization identifier to ctx. It is used
// as the audit OrganizationID when a call does not carry one explicitly.
func WithOrganizationID(ctx context.Context, organizationID string) context.Context {
	return context.WithValue(ctx, organizationIDContextKey{}, organizationID)
}

func organizationIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(organizationIDContextKey{}).(string)
	return id
}
