package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

const defaultStateTTL = 10 * time.Minute

// FederatedService runs the authorization-code login against an external
// identity provider and maps the returned profile onto a local user.
type FederatedService struct {
	auth     *AuthService
	provider ports.IdentityProvider
	states   ports.StateCodec
	nonces   ports.NonceStore
	stateTTL time.Duration
}

var _ ports.FederatedService = (*FederatedService)(nil)

// NewFederatedService wires the provider flow. nonces may be nil, in which
// case a state can be replayed until it expires.
func NewFederatedService(auth *AuthService, provider ports.IdentityProvider, states ports.StateCodec, nonces ports.NonceStore, stateTTL time.Duration) *FederatedService {
	if stateTTL <= 0 {
		stateTTL = defaultStateTTL
	}
	return &FederatedService{
		auth:     auth,
		provider: provider,
		states:   states,
		nonces:   nonces,
		stateTTL: stateTTL,
	}
}

// LoginLink returns the provider's authorize URL. The state binds the
// callback to scope; the global scope carries an empty tenant.
func (s *FederatedService) LoginLink(_ context.Context, scope domain.Scope) (string, error) {
	now := s.auth.now()
	state, err := s.states.Encode(&domain.FederatedState{
		TenantID:  scope.TenantID,
		Nonce:     uuid.NewString(),
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(s.stateTTL).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("login link: encode state: %w", err)
	}
	return s.provider.AuthCodeURL(state), nil
}

func (s *FederatedService) Callback(ctx context.Context, code, state string) (*domain.TokenPair, error) {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil, &domain.ValidationError{Fields: map[string]string{"code": "code is required"}}
	}

	st, err := s.states.Decode(state)
	if err != nil {
		return nil, err
	}
	if s.nonces != nil {
		fresh, err := s.nonces.Consume(ctx, st.Nonce, s.stateTTL)
		if err != nil {
			return nil, fmt.Errorf("callback: consume nonce: %w", err)
		}
		if !fresh {
			return nil, fmt.Errorf("%w: state already used", domain.ErrInvalidState)
		}
	}

	scope := domain.TenantScope(st.TenantID)
	store, err := s.auth.stores.For(ctx, scope)
	if err != nil {
		return nil, err
	}

	profile, err := s.provider.Exchange(ctx, code)
	if err != nil {
		return nil, err
	}
	user, err := s.findOrCreate(ctx, store, profile)
	if err != nil {
		return nil, err
	}

	return s.auth.issuePair(user.ID, domain.AudienceUser, scope)
}

// findOrCreate matches on (authMethod, authId) only; an existing local
// account with the same email is never linked.
func (s *FederatedService) findOrCreate(ctx context.Context, store ports.IdentityStore, profile *domain.FederatedProfile) (*domain.User, error) {
	method, id, err := profile.SplitSubject()
	if err != nil {
		return nil, err
	}

	user, err := store.FindByFederatedID(ctx, method, id)
	if err == nil {
		return user, nil
	}
	if !errors.Is(err, domain.ErrUserNotFound) {
		return nil, fmt.Errorf("callback: find federated user: %w", err)
	}

	now := s.auth.now()
	created, err := store.Create(ctx, &domain.User{
		Name:               profile.Name,
		Email:              domain.NormalizeEmail(profile.Email),
		AuthMethod:         method,
		AuthID:             id,
		ProfilePictureLink: profile.Picture,
		LastSeen:           now,
		CreatedAt:          now,
		UpdatedAt:          now,
	})
	if err == nil {
		return created, nil
	}
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		return nil, fmt.Errorf("callback: create federated user: %w", err)
	}

	// Lost a race against a concurrent callback for the same identity, or the
	// email belongs to another account.
	if user, err := store.FindByFederatedID(ctx, method, id); err == nil {
		return user, nil
	}
	return nil, domain.ErrDuplicateEmail
}
