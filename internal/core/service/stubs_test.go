package service

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

type stubStore struct {
	mu     sync.Mutex
	users  map[string]*domain.User
	nextID int
}

func newStubStore() *stubStore {
	return &stubStore{users: make(map[string]*domain.User)}
}

func cloneUser(u *domain.User) *domain.User {
	if u == nil {
		return nil
	}
	clone := *u
	return &clone
}

func (s *stubStore) find(match func(*domain.User) bool) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return nil, domain.ErrUserNotFound
}

func (s *stubStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return email != "" && u.Email == email })
}

func (s *stubStore) FindByFederatedID(_ context.Context, method, id string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.AuthMethod == method && u.AuthID == id })
}

func (s *stubStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	return s.find(func(u *domain.User) bool { return u.ID == id })
}

func (s *stubStore) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if user.Email != "" && u.Email == user.Email {
			return nil, domain.ErrDuplicateEmail
		}
		if user.AuthID != "" && u.AuthMethod == user.AuthMethod && u.AuthID == user.AuthID {
			return nil, domain.ErrDuplicateEmail
		}
	}
	s.nextID++
	stored := cloneUser(user)
	stored.ID = fmt.Sprintf("u%d", s.nextID)
	s.users[stored.ID] = stored
	return cloneUser(stored), nil
}

func (s *stubStore) apply(u *domain.User, p domain.Presence) {
	u.IsOnline = p.IsOnline
	if p.ConnectionID != nil {
		u.ConnectionID = *p.ConnectionID
	}
	if p.LastSeen != nil {
		u.LastSeen = *p.LastSeen
	}
}

func (s *stubStore) UpdatePresence(_ context.Context, id string, p domain.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	s.apply(u, p)
	return nil
}

func (s *stubStore) UpdateByConnectionID(_ context.Context, connID string, p domain.Presence) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.ConnectionID == connID {
			s.apply(u, p)
			return nil
		}
	}
	return domain.ErrUserNotFound
}

type stubConnection struct {
	id     string
	users  *stubStore
	closed atomic.Bool
}

func (c *stubConnection) TenantID() string { return c.id }

func (c *stubConnection) Users() ports.IdentityStore { return c.users }

func (c *stubConnection) Close(_ context.Context) error {
	c.closed.Store(true)
	return nil
}

type stubConnector struct {
	mu    sync.Mutex
	calls map[string]int
	conns map[string]*stubConnection
	fail  map[string]error
	delay time.Duration
}

func newStubConnector() *stubConnector {
	return &stubConnector{
		calls: make(map[string]int),
		conns: make(map[string]*stubConnection),
		fail:  make(map[string]error),
	}
}

func (c *stubConnector) Connect(_ context.Context, tenantID string) (ports.TenantConnection, error) {
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls[tenantID]++
	if err := c.fail[tenantID]; err != nil {
		return nil, err
	}
	conn := &stubConnection{id: tenantID, users: newStubStore()}
	c.conns[tenantID] = conn
	return conn, nil
}

func (c *stubConnector) callCount(tenantID string) int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls[tenantID]
}

// stubCodec keeps issued claims in memory and hands out opaque ids.
type stubCodec struct {
	mu     sync.Mutex
	now    func() time.Time
	seq    int
	issued map[string]domain.Claims
}

func newStubCodec(now func() time.Time) *stubCodec {
	return &stubCodec{now: now, issued: make(map[string]domain.Claims)}
}

func (c *stubCodec) Issue(subject string, aud domain.Audience, ttl time.Duration, extra map[string]any) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.seq++
	token := fmt.Sprintf("tok-%d-%s", c.seq, subject)
	now := c.now()
	c.issued[token] = domain.Claims{
		Subject:   subject,
		Audience:  string(aud),
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
		Extra:     extra,
	}
	return token, nil
}

// forge registers a token with arbitrary claims.
func (c *stubCodec) forge(token string, claims domain.Claims) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.issued[token] = claims
	return token
}

func (c *stubCodec) Verify(token string) (*domain.Claims, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	claims, ok := c.issued[token]
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	if !c.now().Before(claims.ExpiresAt) {
		return nil, domain.ErrTokenExpired
	}
	return &claims, nil
}

type stubHasher struct{}

func (stubHasher) Hash(p string) (string, error) { return "hashed:" + p, nil }

func (stubHasher) Compare(digest, p string) bool {
	return strings.TrimPrefix(digest, "hashed:") == p && strings.HasPrefix(digest, "hashed:")
}

type fixture struct {
	global    *stubStore
	connector *stubConnector
	directory *TenantDirectory
	codec     *stubCodec
	svc       *AuthService
	clock     time.Time
}

func newFixture() *fixture {
	f := &fixture{
		global:    newStubStore(),
		connector: newStubConnector(),
		clock:     time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
	now := func() time.Time { return f.clock }
	f.directory = NewTenantDirectory(f.connector)
	f.codec = newStubCodec(now)
	f.svc = NewAuthService(NewStores(f.global, f.directory), f.codec, stubHasher{}, TokenTTLs{Access: time.Hour, Refresh: 24 * time.Hour})
	f.svc.now = now
	return f
}

func (f *fixture) tenantStore(t interface{ Fatalf(string, ...any) }, id string) *stubStore {
	conn, err := f.directory.Resolve(context.Background(), id)
	if err != nil {
		t.Fatalf("resolve tenant %s: %v", id, err)
	}
	return conn.Users().(*stubStore)
}

type stubProvider struct {
	lastState string
	profile   *domain.FederatedProfile
	err       error
	exchanges int
}

func (p *stubProvider) AuthCodeURL(state string) string {
	p.lastState = state
	return "https://idp.test/authorize?state=" + state
}

func (p *stubProvider) Exchange(_ context.Context, code string) (*domain.FederatedProfile, error) {
	p.exchanges++
	if p.err != nil {
		return nil, p.err
	}
	return p.profile, nil
}

// stubStates stores states in memory and hands out sequential handles.
type stubStates struct {
	states map[string]domain.FederatedState
}

func (s *stubStates) Encode(st *domain.FederatedState) (string, error) {
	if s.states == nil {
		s.states = make(map[string]domain.FederatedState)
	}
	handle := fmt.Sprintf("state-%d", len(s.states)+1)
	s.states[handle] = *st
	return handle, nil
}

func (s *stubStates) Decode(sealed string) (*domain.FederatedState, error) {
	st, ok := s.states[sealed]
	if !ok {
		return nil, domain.ErrInvalidState
	}
	return &st, nil
}

type stubNonces struct {
	seen map[string]bool
}

func (n *stubNonces) Consume(_ context.Context, nonce string, _ time.Duration) (bool, error) {
	if n.seen == nil {
		n.seen = make(map[string]bool)
	}
	if n.seen[nonce] {
		return false, nil
	}
	n.seen[nonce] = true
	return true, nil
}
