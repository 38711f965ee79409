package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

const (
	defaultAccessTTL  = 15 * time.Minute
	defaultRefreshTTL = 7 * 24 * time.Hour
)

// StoreResolver picks the identity store for a scope; *Stores implements it.
type StoreResolver interface {
	Global() ports.IdentityStore
	For(ctx context.Context, scope domain.Scope) (ports.IdentityStore, error)
}

// TokenTTLs configures the lifetime of issued tokens.
type TokenTTLs struct {
	Access  time.Duration
	Refresh time.Duration
}

// AuthService implements registration, login, refresh and principal
// resolution over the global and tenant identity stores.
type AuthService struct {
	stores StoreResolver
	codec  ports.TokenCodec
	hasher ports.PasswordHasher
	ttls   TokenTTLs
	now    func() time.Time
}

var _ ports.AuthService = (*AuthService)(nil)

func NewAuthService(stores StoreResolver, codec ports.TokenCodec, hasher ports.PasswordHasher, ttls TokenTTLs) *AuthService {
	if ttls.Access <= 0 {
		ttls.Access = defaultAccessTTL
	}
	if ttls.Refresh <= 0 {
		ttls.Refresh = defaultRefreshTTL
	}
	return &AuthService{
		stores: stores,
		codec:  codec,
		hasher: hasher,
		ttls:   ttls,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *AuthService) Register(ctx context.Context, scope domain.Scope, in ports.RegisterInput) (*domain.User, error) {
	email := domain.NormalizeEmail(in.Email)
	if fields := missingFields(map[string]string{"email": email, "password": in.Password}); fields != nil {
		return nil, &domain.ValidationError{Fields: fields}
	}

	store, err := s.stores.For(ctx, scope)
	if err != nil {
		return nil, err
	}

	switch _, err := store.FindByEmail(ctx, email); {
	case err == nil:
		return nil, domain.ErrDuplicateEmail
	case !errors.Is(err, domain.ErrUserNotFound):
		return nil, fmt.Errorf("register: %w", err)
	}

	hash, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("register: hash password: %w", err)
	}

	now := s.now()
	created, err := store.Create(ctx, &domain.User{
		Name:         strings.TrimSpace(in.Name),
		Email:        email,
		PasswordHash: hash,
		AuthMethod:   domain.AuthMethodCustom,
		LastSeen:     now,
		CreatedAt:    now,
		UpdatedAt:    now,
	})
	if err != nil {
		// The pre-check above is not atomic with Create; a concurrent register
		// of the same email surfaces here as a uniqueness violation.
		if errors.Is(err, domain.ErrDuplicateEmail) {
			return nil, domain.ErrDuplicateEmail
		}
		return nil, fmt.Errorf("register: %w", err)
	}
	return created, nil
}

func (s *AuthService) Login(ctx context.Context, scope domain.Scope, in ports.LoginInput, conn *ports.ConnectionContext) (*ports.LoginResult, error) {
	email := domain.NormalizeEmail(in.Email)
	if fields := missingFields(map[string]string{"email": email, "password": in.Password}); fields != nil {
		return nil, &domain.ValidationError{Fields: fields}
	}

	store, err := s.stores.For(ctx, scope)
	if err != nil {
		return nil, err
	}

	user, err := store.FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if !user.HasPassword() || !s.hasher.Compare(user.PasswordHash, in.Password) {
		return nil, domain.ErrIncorrectPassword
	}

	pair, err := s.issuePair(user.ID, domain.AudienceUser, scope)
	if err != nil {
		return nil, err
	}

	if conn != nil {
		connectionID := conn.ConnectionID
		if err := store.UpdatePresence(ctx, user.ID, domain.Presence{IsOnline: true, ConnectionID: &connectionID}); err != nil {
			return nil, fmt.Errorf("login: update presence: %w", err)
		}
		if user, err = store.FindByID(ctx, user.ID); err != nil {
			return nil, fmt.Errorf("login: reload user: %w", err)
		}
		if conn.Session != nil {
			conn.Session.SetTokens(*pair)
			conn.Session.User = user
		}
	}

	return &ports.LoginResult{User: user, TokenPair: *pair}, nil
}

// Refresh mints a new pair from a valid refresh token. The old token is
// superseded but stays valid until it expires; there is no denylist.
// Every rejection of the token itself is a *domain.RefreshError; store
// failures such as an unavailable tenant are returned unwrapped.
func (s *AuthService) Refresh(ctx context.Context, scope domain.Scope, refreshToken string, conn *ports.ConnectionContext) (*domain.TokenPair, error) {
	if refreshToken == "" {
		return nil, &domain.RefreshError{Reason: domain.ErrMissingRefreshToken}
	}
	claims, err := s.codec.Verify(refreshToken)
	if err != nil {
		return nil, &domain.RefreshError{Reason: err}
	}
	aud, err := domain.ParseAudience(claims.Audience)
	if err != nil {
		return nil, &domain.RefreshError{Reason: err}
	}

	principal, err := s.resolve(ctx, scope, aud, claims)
	switch {
	case errors.Is(err, domain.ErrUserNotFound):
		return nil, &domain.RefreshError{Reason: fmt.Errorf("%w: %s %s", domain.ErrPrincipalNotFound, aud, claims.Subject)}
	case errors.Is(err, domain.ErrTokenInvalid), errors.Is(err, domain.ErrInvalidAudience):
		return nil, &domain.RefreshError{Reason: err}
	case err != nil:
		return nil, err
	}

	pair, err := s.issuePair(principal.User.ID, aud, scope)
	if err != nil {
		return nil, err
	}
	if conn != nil && conn.Session != nil {
		conn.Session.SetTokens(*pair)
	}
	return pair, nil
}

func (s *AuthService) Authenticate(ctx context.Context, scope domain.Scope, accessToken string) (*domain.Principal, error) {
	if accessToken == "" {
		return nil, domain.ErrMissingToken
	}
	claims, err := s.codec.Verify(accessToken)
	if err != nil {
		return nil, err
	}
	aud, err := domain.ParseAudience(claims.Audience)
	if err != nil {
		return nil, err
	}

	principal, err := s.resolve(ctx, scope, aud, claims)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			return nil, fmt.Errorf("%w: %s %s", domain.ErrPrincipalNotFound, aud, claims.Subject)
		}
		return nil, err
	}
	return principal, nil
}

func (s *AuthService) AuthenticateOrganization(ctx context.Context, accessToken string) (*domain.Principal, domain.Scope, error) {
	principal, err := s.Authenticate(ctx, domain.GlobalScope, accessToken)
	if err != nil {
		return nil, domain.Scope{}, err
	}
	if principal.Audience != domain.AudienceUser {
		return nil, domain.Scope{}, fmt.Errorf("%w: organization requires %s", domain.ErrInvalidAudience, domain.AudienceUser)
	}
	return principal, domain.TenantScope(principal.User.ID), nil
}

func (s *AuthService) BindConnection(ctx context.Context, principal *domain.Principal, conn *ports.ConnectionContext) error {
	if principal == nil || conn == nil {
		return nil
	}
	store, err := s.stores.For(ctx, principal.Scope)
	if err != nil {
		return err
	}
	connectionID := conn.ConnectionID
	if err := store.UpdatePresence(ctx, principal.User.ID, domain.Presence{IsOnline: true, ConnectionID: &connectionID}); err != nil {
		return fmt.Errorf("bind connection: %w", err)
	}
	if conn.Session != nil {
		conn.Session.SetPrincipal(principal)
	}
	return nil
}

// Logout marks whoever holds connectionID offline. A connection that never
// logged in is not an error.
func (s *AuthService) Logout(ctx context.Context, scope domain.Scope, connectionID string) error {
	if connectionID == "" {
		return nil
	}
	store, err := s.stores.For(ctx, scope)
	if err != nil {
		return err
	}
	now := s.now()
	cleared := ""
	err = store.UpdateByConnectionID(ctx, connectionID, domain.Presence{IsOnline: false, ConnectionID: &cleared, LastSeen: &now})
	if err != nil && !errors.Is(err, domain.ErrUserNotFound) {
		return fmt.Errorf("logout: %w", err)
	}
	return nil
}

// principalLookup finds the record a verified token refers to.
type principalLookup func(ctx context.Context, scope domain.Scope, claims *domain.Claims) (*domain.Principal, error)

// lookupFor dispatches on the audience. Every value of domain.Audiences must
// have a case here.
func (s *AuthService) lookupFor(aud domain.Audience) (principalLookup, error) {
	switch aud {
	case domain.AudienceUser:
		return s.lookupUser, nil
	case domain.AudienceAdmin:
		return s.lookupAdmin, nil
	}
	return nil, fmt.Errorf("%w: %q", domain.ErrInvalidAudience, aud)
}

func (s *AuthService) resolve(ctx context.Context, scope domain.Scope, aud domain.Audience, claims *domain.Claims) (*domain.Principal, error) {
	lookup, err := s.lookupFor(aud)
	if err != nil {
		return nil, err
	}
	return lookup(ctx, scope, claims)
}

// lookupUser resolves USER tokens in the scope's own store. A token minted in
// one tenant never resolves in another.
func (s *AuthService) lookupUser(ctx context.Context, scope domain.Scope, claims *domain.Claims) (*domain.Principal, error) {
	if claims.TenantID() != scope.TenantID {
		return nil, fmt.Errorf("%w: token was issued for another scope", domain.ErrTokenInvalid)
	}
	store, err := s.stores.For(ctx, scope)
	if err != nil {
		return nil, err
	}
	user, err := store.FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return &domain.Principal{Audience: domain.AudienceUser, User: user, Scope: scope}, nil
}

// lookupAdmin resolves ADMIN tokens in the global store whatever the scope.
func (s *AuthService) lookupAdmin(ctx context.Context, _ domain.Scope, claims *domain.Claims) (*domain.Principal, error) {
	user, err := s.stores.Global().FindByID(ctx, claims.Subject)
	if err != nil {
		return nil, err
	}
	return &domain.Principal{Audience: domain.AudienceAdmin, User: user, Scope: domain.GlobalScope}, nil
}

func (s *AuthService) issuePair(subject string, aud domain.Audience, scope domain.Scope) (*domain.TokenPair, error) {
	var extra map[string]any
	if aud == domain.AudienceUser && scope.IsTenant() {
		extra = map[string]any{domain.ClaimTenant: scope.TenantID}
	}

	access, err := s.codec.Issue(subject, aud, s.ttls.Access, extra)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.Issue(subject, aud, s.ttls.Refresh, extra)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}
	return &domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

func missingFields(values map[string]string) map[string]string {
	var fields map[string]string
	for name, v := range values {
		if v != "" {
			continue
		}
		if fields == nil {
			fields = make(map[string]string)
		}
		fields[name] = name + " is required"
	}
	return fields
}
