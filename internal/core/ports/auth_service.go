package ports

import (
	"context"

	"github.com/tenantauth/auth-backend/internal/core/domain"
)

// RegisterInput is the payload of a password registration.
type RegisterInput struct {
	Name     string
	Email    string
	Password string
}

// LoginInput is the payload of a password login.
type LoginInput struct {
	Email    string
	Password string
}

// LoginResult is returned by a successful login.
type LoginResult struct {
	User *domain.User `json:"user"`
	domain.TokenPair
}

// ConnectionContext is passed by the persistent-connection adapter. HTTP
// callers pass nil.
type ConnectionContext struct {
	ConnectionID string
	Session      *domain.AuthSession
}

// AuthService is the auth core as seen by the transport adapters.
type AuthService interface {
	Register(ctx context.Context, scope domain.Scope, in RegisterInput) (*domain.User, error)
	Login(ctx context.Context, scope domain.Scope, in LoginInput, conn *ConnectionContext) (*LoginResult, error)
	Refresh(ctx context.Context, scope domain.Scope, refreshToken string, conn *ConnectionContext) (*domain.TokenPair, error)
	Authenticate(ctx context.Context, scope domain.Scope, accessToken string) (*domain.Principal, error)
	// AuthenticateOrganization resolves an organization principal in the
	// global store and returns the tenant scope keyed by its id.
	AuthenticateOrganization(ctx context.Context, accessToken string) (*domain.Principal, domain.Scope, error)
	// BindConnection marks an authenticated principal online on a connection.
	BindConnection(ctx context.Context, principal *domain.Principal, conn *ConnectionContext) error
	Logout(ctx context.Context, scope domain.Scope, connectionID string) error
}

// FederatedService drives login through the external identity provider.
type FederatedService interface {
	LoginLink(ctx context.Context, scope domain.Scope) (string, error)
	Callback(ctx context.Context, code, state string) (*domain.TokenPair, error)
}
