package ports

import "context"

// TenantConnection is the live data handle of one organization.
type TenantConnection interface {
	TenantID() string
	Users() IdentityStore
	Close(ctx context.Context) error
}

// TenantConnector establishes a new TenantConnection. It is only called by the
// tenant directory, at most once per tenant id.
type TenantConnector interface {
	Connect(ctx context.Context, tenantID string) (TenantConnection, error)
}
