package service

import (
	"context"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

// TenantResolver hands out tenant connections; *TenantDirectory implements it.
type TenantResolver interface {
	Resolve(ctx context.Context, tenantID string) (ports.TenantConnection, error)
}

// Stores picks the identity store for a scope.
type Stores struct {
	global  ports.IdentityStore
	tenants TenantResolver
}

// NewStores combines the global store with a tenant resolver.
func NewStores(global ports.IdentityStore, tenants TenantResolver) *Stores {
	return &Stores{global: global, tenants: tenants}
}

// Global returns the store shared by organizations, admins and global users.
func (s *Stores) Global() ports.IdentityStore {
	return s.global
}

// For returns the store that owns users of scope.
func (s *Stores) For(ctx context.Context, scope domain.Scope) (ports.IdentityStore, error) {
	if !scope.IsTenant() {
		return s.global, nil
	}
	conn, err := s.tenants.Resolve(ctx, scope.TenantID)
	if err != nil {
		return nil, err
	}
	return conn.Users(), nil
}
