package ports

import (
	"context"

	"github.com/tenantauth/auth-backend/internal/core/domain"
)

// IdentityStore is the uniform user-record contract shared by the global
// store and every tenant store. Lookups that match nothing return
// domain.ErrUserNotFound.
type IdentityStore interface {
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByFederatedID(ctx context.Context, authMethod, authID string) (*domain.User, error)
	FindByID(ctx context.Context, id string) (*domain.User, error)
	// Create inserts a new record. Any uniqueness violation is reported as
	// domain.ErrDuplicateEmail.
	Create(ctx context.Context, user *domain.User) (*domain.User, error)
	UpdatePresence(ctx context.Context, id string, p domain.Presence) error
	UpdateByConnectionID(ctx context.Context, connectionID string, p domain.Presence) error
}

// OrganizationLister lists the ids of organizations that already own tenant
// data; each one is a tenant key. Used to warm the tenant directory at start-up.
type OrganizationLister interface {
	ListOrganizationIDs(ctx context.Context) ([]string, error)
}
