package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

func registerAnn(t *testing.T, f *fixture, scope domain.Scope) *domain.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), scope, ports.RegisterInput{
		Name:     "Ann",
		Email:    "ann@x.io",
		Password: "password1",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	return user
}

func TestAuthService_Register_Success(t *testing.T) {
	f := newFixture()

	user, err := f.svc.Register(context.Background(), domain.GlobalScope, ports.RegisterInput{
		Name:     " Ann ",
		Email:    " Ann@X.io ",
		Password: "password1",
	})
	if err != nil {
		t.Fatalf("Register returned error: %v", err)
	}
	if user.ID == "" {
		t.Fatalf("expected id to be assigned")
	}
	if user.Email != "ann@x.io" {
		t.Fatalf("expected normalized email, got %q", user.Email)
	}
	if user.Name != "Ann" {
		t.Fatalf("expected trimmed name, got %q", user.Name)
	}
	if user.PasswordHash == "password1" || !(stubHasher{}).Compare(user.PasswordHash, "password1") {
		t.Fatalf("expected password to be hashed, got %q", user.PasswordHash)
	}
	if user.AuthMethod != domain.AuthMethodCustom {
		t.Fatalf("unexpected auth method %q", user.AuthMethod)
	}
}

func TestAuthService_Register_Validation(t *testing.T) {
	f := newFixture()

	_, err := f.svc.Register(context.Background(), domain.GlobalScope, ports.RegisterInput{Name: "Ann"})
	if !errors.Is(err, domain.ErrValidation) {
		t.Fatalf("expected ErrValidation, got %v", err)
	}
	var verr *domain.ValidationError
	if !errors.As(err, &verr) || verr.Fields["email"] == "" || verr.Fields["password"] == "" {
		t.Fatalf("expected email and password fields, got %v", err)
	}
}

func TestAuthService_Register_Duplicate(t *testing.T) {
	f := newFixture()
	registerAnn(t, f, domain.GlobalScope)

	_, err := f.svc.Register(context.Background(), domain.GlobalScope, ports.RegisterInput{
		Name:     "Other",
		Email:    "ANN@x.io",
		Password: "password2",
	})
	if !errors.Is(err, domain.ErrDuplicateEmail) {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAuthService_Register_SameEmailAcrossScopes(t *testing.T) {
	f := newFixture()

	registerAnn(t, f, domain.GlobalScope)
	registerAnn(t, f, domain.TenantScope("orgA"))
	registerAnn(t, f, domain.TenantScope("orgB"))

	if len(f.global.users) != 1 {
		t.Fatalf("expected one global user, got %d", len(f.global.users))
	}
	for _, id := range []string{"orgA", "orgB"} {
		if n := len(f.tenantStore(t, id).users); n != 1 {
			t.Fatalf("expected one user in %s, got %d", id, n)
		}
	}
}

func TestAuthService_Register_TenantUnavailable(t *testing.T) {
	f := newFixture()
	f.connector.fail["down"] = errors.New("dial tcp: refused")

	_, err := f.svc.Register(context.Background(), domain.TenantScope("down"), ports.RegisterInput{
		Email:    "ann@x.io",
		Password: "password1",
	})
	if !errors.Is(err, domain.ErrTenantUnavailable) {
		t.Fatalf("expected ErrTenantUnavailable, got %v", err)
	}
}

func TestAuthService_Login_Success(t *testing.T) {
	f := newFixture()
	registered := registerAnn(t, f, domain.GlobalScope)

	res, err := f.svc.Login(context.Background(), domain.GlobalScope, ports.LoginInput{Email: "ann@x.io", Password: "password1"}, nil)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if res.AccessToken == "" || res.RefreshToken == "" || res.AccessToken == res.RefreshToken {
		t.Fatalf("unexpected token pair: %+v", res.TokenPair)
	}
	if res.User.ID != registered.ID {
		t.Fatalf("expected user %s, got %s", registered.ID, res.User.ID)
	}

	claims, err := f.codec.Verify(res.AccessToken)
	if err != nil {
		t.Fatalf("verify access token: %v", err)
	}
	if claims.Subject != registered.ID || claims.Audience != "USER" {
		t.Fatalf("unexpected claims: %+v", claims)
	}
	if !claims.ExpiresAt.Equal(f.clock.Add(time.Hour)) {
		t.Fatalf("unexpected access expiry %v", claims.ExpiresAt)
	}
	if claims.TenantID() != "" {
		t.Fatalf("global token must not carry a tenant, got %q", claims.TenantID())
	}
}

func TestAuthService_Login_TenantTokenCarriesTenant(t *testing.T) {
	f := newFixture()
	scope := domain.TenantScope("orgA")
	registerAnn(t, f, scope)

	res, err := f.svc.Login(context.Background(), scope, ports.LoginInput{Email: "ann@x.io", Password: "password1"}, nil)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	claims, _ := f.codec.Verify(res.AccessToken)
	if claims.TenantID() != "orgA" {
		t.Fatalf("expected tenant claim orgA, got %q", claims.TenantID())
	}
}

func TestAuthService_Login_Failures(t *testing.T) {
	f := newFixture()
	registerAnn(t, f, domain.GlobalScope)

	tests := []struct {
		name string
		in   ports.LoginInput
		want error
	}{
		{"wrong password", ports.LoginInput{Email: "ann@x.io", Password: "wrong-pass"}, domain.ErrIncorrectPassword},
		{"unknown email", ports.LoginInput{Email: "bob@x.io", Password: "password1"}, domain.ErrUserNotFound},
		{"missing password", ports.LoginInput{Email: "ann@x.io"}, domain.ErrValidation},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Login(context.Background(), domain.GlobalScope, tt.in, nil); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthService_Login_FederatedAccountHasNoPassword(t *testing.T) {
	f := newFixture()
	_, _ = f.global.Create(context.Background(), &domain.User{
		Email:      "fed@x.io",
		AuthMethod: "google-oauth2",
		AuthID:     "123",
	})

	_, err := f.svc.Login(context.Background(), domain.GlobalScope, ports.LoginInput{Email: "fed@x.io", Password: "anything1"}, nil)
	if !errors.Is(err, domain.ErrIncorrectPassword) {
		t.Fatalf("expected ErrIncorrectPassword, got %v", err)
	}
}

func TestAuthService_Login_WithConnection(t *testing.T) {
	f := newFixture()
	registerAnn(t, f, domain.GlobalScope)

	session := &domain.AuthSession{}
	conn := &ports.ConnectionContext{ConnectionID: "c-1", Session: session}
	res, err := f.svc.Login(context.Background(), domain.GlobalScope, ports.LoginInput{Email: "ann@x.io", Password: "password1"}, conn)
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if !res.User.IsOnline || res.User.ConnectionID != "c-1" {
		t.Fatalf("expected user online on c-1, got %+v", res.User)
	}
	if session.AccessToken != res.AccessToken || session.RefreshToken != res.RefreshToken {
		t.Fatalf("session tokens not updated: %+v", session)
	}
	if session.User == nil || session.User.ID != res.User.ID {
		t.Fatalf("session user not set: %+v", session.User)
	}
}

func TestAuthService_Refresh(t *testing.T) {
	f := newFixture()
	registerAnn(t, f, domain.GlobalScope)
	res, _ := f.svc.Login(context.Background(), domain.GlobalScope, ports.LoginInput{Email: "ann@x.io", Password: "password1"}, nil)

	// Past the access TTL, inside the refresh TTL.
	f.clock = f.clock.Add(2 * time.Hour)
	if _, err := f.svc.Authenticate(context.Background(), domain.GlobalScope, res.AccessToken); !errors.Is(err, domain.ErrTokenExpired) {
		t.Fatalf("expected access token to be expired, got %v", err)
	}

	session := &domain.AuthSession{}
	pair, err := f.svc.Refresh(context.Background(), domain.GlobalScope, res.RefreshToken, &ports.ConnectionContext{ConnectionID: "c-1", Session: session})
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if pair.AccessToken == res.AccessToken || pair.RefreshToken == res.RefreshToken {
		t.Fatalf("expected a new pair")
	}
	if session.AccessToken != pair.AccessToken {
		t.Fatalf("session not updated")
	}
	if _, err := f.svc.Authenticate(context.Background(), domain.GlobalScope, pair.AccessToken); err != nil {
		t.Fatalf("new access token rejected: %v", err)
	}
}

func TestAuthService_Refresh_Failures(t *testing.T) {
	f := newFixture()
	registerAnn(t, f, domain.GlobalScope)
	tenantUser := registerAnn(t, f, domain.TenantScope("orgA"))
	future := f.clock.Add(time.Hour)
	tenantToken, _ := f.codec.Issue(tenantUser.ID, domain.AudienceUser, time.Hour, map[string]any{domain.ClaimTenant: "orgA"})
	unknownAud := f.codec.forge("aud-guest", domain.Claims{Subject: "u1", Audience: "GUEST", ExpiresAt: future})
	ghost := f.codec.forge("ghost", domain.Claims{Subject: "missing", Audience: "USER", ExpiresAt: future})

	tests := []struct {
		name   string
		token  string
		reason error
	}{
		{"missing token", "", domain.ErrMissingRefreshToken},
		{"unknown token", "garbage", domain.ErrTokenInvalid},
		{"unknown audience", unknownAud, domain.ErrInvalidAudience},
		{"token from another scope", tenantToken, domain.ErrTokenInvalid},
		{"deleted subject", ghost, domain.ErrPrincipalNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pair, err := f.svc.Refresh(context.Background(), domain.GlobalScope, tt.token, nil)
			if pair != nil {
				t.Fatalf("expected no pair, got %+v", pair)
			}
			var rerr *domain.RefreshError
			if !errors.As(err, &rerr) || !errors.Is(err, domain.ErrRefreshFailed) || !errors.Is(err, tt.reason) {
				t.Fatalf("expected refresh failure wrapping %v, got %v", tt.reason, err)
			}
		})
	}

	t.Run("expired token", func(t *testing.T) {
		res, _ := f.svc.Login(context.Background(), domain.GlobalScope, ports.LoginInput{Email: "ann@x.io", Password: "password1"}, nil)
		f.clock = f.clock.Add(48 * time.Hour)
		_, err := f.svc.Refresh(context.Background(), domain.GlobalScope, res.RefreshToken, nil)
		if !errors.Is(err, domain.ErrRefreshFailed) || !errors.Is(err, domain.ErrTokenExpired) {
			t.Fatalf("expected refresh failure wrapping ErrTokenExpired, got %v", err)
		}
	})
}

func TestAuthService_Refresh_TenantUnavailableIsNotARefreshFailure(t *testing.T) {
	f := newFixture()
	f.connector.fail["orgZ"] = errors.New("connection refused")
	token := f.codec.forge("orgz-refresh", domain.Claims{
		Subject:   "u1",
		Audience:  "USER",
		ExpiresAt: f.clock.Add(time.Hour),
		Extra:     map[string]any{domain.ClaimTenant: "orgZ"},
	})

	_, err := f.svc.Refresh(context.Background(), domain.TenantScope("orgZ"), token, nil)
	if !errors.Is(err, domain.ErrTenantUnavailable) || errors.Is(err, domain.ErrRefreshFailed) {
		t.Fatalf("expected a bare ErrTenantUnavailable, got %v", err)
	}
}

func TestAuthService_Refresh_ChainKeepsSubject(t *testing.T) {
	f := newFixture()
	scope := domain.TenantScope("orgA")
	user := registerAnn(t, f, scope)
	res, _ := f.svc.Login(context.Background(), scope, ports.LoginInput{Email: "ann@x.io", Password: "password1"}, nil)

	refresh := res.RefreshToken
	for i := 0; i < 3; i++ {
		f.clock = f.clock.Add(time.Minute)
		pair, err := f.svc.Refresh(context.Background(), scope, refresh, nil)
		if err != nil {
			t.Fatalf("refresh %d: %v", i, err)
		}
		if pair.RefreshToken == refresh {
			t.Fatalf("refresh %d: expected a new refresh token", i)
		}
		claims, err := f.codec.Verify(pair.RefreshToken)
		if err != nil || claims.Subject != user.ID || claims.TenantID() != "orgA" {
			t.Fatalf("refresh %d: unexpected claims %+v, %v", i, claims, err)
		}
		p, err := f.svc.Authenticate(context.Background(), scope, pair.AccessToken)
		if err != nil || p.User.ID != user.ID {
			t.Fatalf("refresh %d: access token resolves to %+v, %v", i, p, err)
		}
		refresh = pair.RefreshToken
	}
}

func TestAuthService_Register_ConcurrentSameEmail(t *testing.T) {
	f := newFixture()
	const n = 20

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		created   int
		duplicate int
	)
	start := make(chan struct{})
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			<-start
			_, err := f.svc.Register(context.Background(), domain.GlobalScope, ports.RegisterInput{Email: "race@x.io", Password: "password1"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				created++
			case errors.Is(err, domain.ErrDuplicateEmail):
				duplicate++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	close(start)
	wg.Wait()

	if created != 1 || duplicate != n-1 {
		t.Fatalf("expected 1 created and %d duplicates, got %d and %d", n-1, created, duplicate)
	}
}

// staleLookupStore never finds a user by email, as a replica lagging behind
// the primary would, so only Create's uniqueness check catches duplicates.
type staleLookupStore struct {
	*stubStore
}

func (staleLookupStore) FindByEmail(context.Context, string) (*domain.User, error) {
	return nil, domain.ErrUserNotFound
}

func TestAuthService_Register_DuplicateCaughtByCreate(t *testing.T) {
	f := newFixture()
	svc := NewAuthService(NewStores(staleLookupStore{f.global}, f.directory), f.codec, stubHasher{}, TokenTTLs{})
	in := ports.RegisterInput{Email: "ann@x.io", Password: "password1"}

	if _, err := svc.Register(context.Background(), domain.GlobalScope, in); err != nil {
		t.Fatalf("first register: %v", err)
	}
	_, err := svc.Register(context.Background(), domain.GlobalScope, in)
	if err != domain.ErrDuplicateEmail {
		t.Fatalf("expected ErrDuplicateEmail, got %v", err)
	}
}

func TestAuthService_Authenticate_User(t *testing.T) {
	f := newFixture()
	scope := domain.TenantScope("orgA")
	registerAnn(t, f, scope)
	res, _ := f.svc.Login(context.Background(), scope, ports.LoginInput{Email: "ann@x.io", Password: "password1"}, nil)

	p, err := f.svc.Authenticate(context.Background(), scope, res.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}
	if p.Audience != domain.AudienceUser || p.User.Email != "ann@x.io" || p.Scope != scope {
		t.Fatalf("unexpected principal: %+v", p)
	}
}

func TestAuthService_Authenticate_CrossTenantRejected(t *testing.T) {
	f := newFixture()
	registerAnn(t, f, domain.TenantScope("orgA"))
	res, _ := f.svc.Login(context.Background(), domain.TenantScope("orgA"), ports.LoginInput{Email: "ann@x.io", Password: "password1"}, nil)

	for _, scope := range []domain.Scope{domain.TenantScope("orgB"), domain.GlobalScope} {
		if _, err := f.svc.Authenticate(context.Background(), scope, res.AccessToken); !errors.Is(err, domain.ErrTokenInvalid) {
			t.Fatalf("%s: expected ErrTokenInvalid, got %v", scope, err)
		}
	}
}

func TestAuthService_Authenticate_AdminResolvesGlobally(t *testing.T) {
	f := newFixture()
	admin, _ := f.global.Create(context.Background(), &domain.User{Name: "Root", Email: "root@x.io"})
	token, _ := f.codec.Issue(admin.ID, domain.AudienceAdmin, time.Hour, nil)

	for _, scope := range []domain.Scope{domain.GlobalScope, domain.TenantScope("orgA")} {
		p, err := f.svc.Authenticate(context.Background(), scope, token)
		if err != nil {
			t.Fatalf("%s: authenticate admin: %v", scope, err)
		}
		if !p.IsAdmin() || p.User.ID != admin.ID || p.Scope != domain.GlobalScope {
			t.Fatalf("%s: unexpected principal %+v", scope, p)
		}
	}
}

func TestAuthService_Authenticate_Failures(t *testing.T) {
	f := newFixture()
	future := f.clock.Add(time.Hour)
	unknownAud := f.codec.forge("aud-guest", domain.Claims{Subject: "u1", Audience: "GUEST", ExpiresAt: future})
	ghost := f.codec.forge("ghost", domain.Claims{Subject: "missing", Audience: "USER", ExpiresAt: future})

	tests := []struct {
		name  string
		token string
		want  error
	}{
		{"missing token", "", domain.ErrMissingToken},
		{"unknown token", "nope", domain.ErrTokenInvalid},
		{"unknown audience", unknownAud, domain.ErrInvalidAudience},
		{"deleted subject", ghost, domain.ErrPrincipalNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := f.svc.Authenticate(context.Background(), domain.GlobalScope, tt.token); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
		})
	}
}

func TestAuthService_EveryAudienceHasLookup(t *testing.T) {
	f := newFixture()
	for _, aud := range domain.Audiences() {
		if _, err := f.svc.lookupFor(aud); err != nil {
			t.Fatalf("no lookup for %s: %v", aud, err)
		}
	}
	if _, err := f.svc.lookupFor("GUEST"); !errors.Is(err, domain.ErrInvalidAudience) {
		t.Fatalf("expected ErrInvalidAudience, got %v", err)
	}
}

func TestAuthService_AuthenticateOrganization(t *testing.T) {
	f := newFixture()
	org := registerAnn(t, f, domain.GlobalScope)
	res, _ := f.svc.Login(context.Background(), domain.GlobalScope, ports.LoginInput{Email: "ann@x.io", Password: "password1"}, nil)

	p, scope, err := f.svc.AuthenticateOrganization(context.Background(), res.AccessToken)
	if err != nil {
		t.Fatalf("authenticate organization: %v", err)
	}
	if p.User.ID != org.ID || scope != domain.TenantScope(org.ID) {
		t.Fatalf("unexpected organization scope %v for %+v", scope, p)
	}

	adminToken, _ := f.codec.Issue(org.ID, domain.AudienceAdmin, time.Hour, nil)
	if _, _, err := f.svc.AuthenticateOrganization(context.Background(), adminToken); !errors.Is(err, domain.ErrInvalidAudience) {
		t.Fatalf("expected ErrInvalidAudience for admin token, got %v", err)
	}
}

func TestAuthService_BindConnectionAndLogout(t *testing.T) {
	f := newFixture()
	scope := domain.TenantScope("orgA")
	registerAnn(t, f, scope)
	res, _ := f.svc.Login(context.Background(), scope, ports.LoginInput{Email: "ann@x.io", Password: "password1"}, nil)
	p, err := f.svc.Authenticate(context.Background(), scope, res.AccessToken)
	if err != nil {
		t.Fatalf("authenticate: %v", err)
	}

	session := &domain.AuthSession{}
	if err := f.svc.BindConnection(context.Background(), p, &ports.ConnectionContext{ConnectionID: "c-9", Session: session}); err != nil {
		t.Fatalf("bind: %v", err)
	}
	if session.User == nil || session.User.ID != p.User.ID || session.Admin != nil {
		t.Fatalf("unexpected session %+v", session)
	}
	store := f.tenantStore(t, "orgA")
	online, _ := store.FindByID(context.Background(), p.User.ID)
	if !online.IsOnline || online.ConnectionID != "c-9" {
		t.Fatalf("expected online on c-9, got %+v", online)
	}

	f.clock = f.clock.Add(time.Minute)
	if err := f.svc.Logout(context.Background(), scope, "c-9"); err != nil {
		t.Fatalf("logout: %v", err)
	}
	offline, _ := store.FindByID(context.Background(), p.User.ID)
	if offline.IsOnline || offline.ConnectionID != "" || !offline.LastSeen.Equal(f.clock) {
		t.Fatalf("expected offline with last seen %v, got %+v", f.clock, offline)
	}
}

func TestAuthService_Logout_UnknownConnection(t *testing.T) {
	f := newFixture()
	if err := f.svc.Logout(context.Background(), domain.GlobalScope, "never-logged-in"); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if err := f.svc.Logout(context.Background(), domain.GlobalScope, ""); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
}
