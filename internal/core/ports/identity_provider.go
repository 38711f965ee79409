package ports

import (
	"context"
	"time"

	"github.com/tenantauth/auth-backend/internal/core/domain"
)

// IdentityProvider is the external OAuth2/OIDC provider used for federated login.
type IdentityProvider interface {
	// AuthCodeURL builds the authorize redirect carrying the given state.
	AuthCodeURL(state string) string
	// Exchange trades an authorization code for the profile in its id_token.
	Exchange(ctx context.Context, code string) (*domain.FederatedProfile, error)
}

// StateCodec seals the federated state into an opaque URL-safe string.
type StateCodec interface {
	Encode(state *domain.FederatedState) (string, error)
	Decode(sealed string) (*domain.FederatedState, error)
}

// NonceStore records consumed state nonces so each state is accepted once.
type NonceStore interface {
	// Consume returns false when the nonce was already used.
	Consume(ctx context.Context, nonce string, ttl time.Duration) (bool, error)
}
