package domain

// Scope selects the identity store an operation runs against. The zero value
// is the global (single-tenant) store.
type Scope struct {
	TenantID string
}

// GlobalScope is the store shared by platform users, organizations and admins.
var GlobalScope = Scope{}

// TenantScope returns the scope of one organization.
func TenantScope(tenantID string) Scope {
	return Scope{TenantID: tenantID}
}

// IsTenant reports whether the scope points at an organization's store.
func (s Scope) IsTenant() bool {
	return s.TenantID != ""
}

func (s Scope) String() string {
	if s.TenantID == "" {
		return "global"
	}
	return "tenant:" + s.TenantID
}
