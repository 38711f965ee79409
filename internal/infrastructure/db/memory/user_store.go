// Package memory provides in-process identity stores. They back
// STORE_DRIVER=memory and the end-to-end tests; data is lost on exit.
package memory

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

var _ ports.IdentityStore = (*UserStore)(nil)

type federatedKey struct {
	method string
	id     string
}

// UserStore keeps users in maps guarded by one lock, so the uniqueness checks
// in Create are atomic with the insert.
type UserStore struct {
	lock        sync.RWMutex
	users       map[string]*domain.User
	byEmail     map[string]string
	byFederated map[federatedKey]string
}

func NewUserStore() *UserStore {
	return &UserStore{
		users:       make(map[string]*domain.User),
		byEmail:     make(map[string]string),
		byFederated: make(map[federatedKey]string),
	}
}

func clone(u *domain.User) *domain.User {
	c := *u
	return &c
}

func (s *UserStore) FindByEmail(_ context.Context, email string) (*domain.User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.get(s.byEmail[domain.NormalizeEmail(email)])
}

func (s *UserStore) FindByFederatedID(_ context.Context, method, id string) (*domain.User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.get(s.byFederated[federatedKey{method, id}])
}

func (s *UserStore) FindByID(_ context.Context, id string) (*domain.User, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.get(id)
}

func (s *UserStore) get(id string) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return clone(u), nil
}

func (s *UserStore) Create(_ context.Context, user *domain.User) (*domain.User, error) {
	if !user.HasCredential() {
		return nil, domain.ErrNoCredential
	}
	stored := clone(user)
	stored.Email = domain.NormalizeEmail(stored.Email)
	fk := federatedKey{stored.AuthMethod, stored.AuthID}

	s.lock.Lock()
	defer s.lock.Unlock()

	if stored.Email != "" {
		if _, taken := s.byEmail[stored.Email]; taken {
			return nil, domain.ErrDuplicateEmail
		}
	}
	if stored.AuthID != "" {
		if _, taken := s.byFederated[fk]; taken {
			return nil, domain.ErrDuplicateEmail
		}
	}

	stored.ID = uuid.NewString()
	s.users[stored.ID] = stored
	if stored.Email != "" {
		s.byEmail[stored.Email] = stored.ID
	}
	if stored.AuthID != "" {
		s.byFederated[fk] = stored.ID
	}
	return clone(stored), nil
}

func (s *UserStore) UpdatePresence(_ context.Context, id string, p domain.Presence) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	u, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	applyPresence(u, p)
	return nil
}

func (s *UserStore) UpdateByConnectionID(_ context.Context, connectionID string, p domain.Presence) error {
	s.lock.Lock()
	defer s.lock.Unlock()
	for _, u := range s.users {
		if connectionID != "" && u.ConnectionID == connectionID {
			applyPresence(u, p)
			return nil
		}
	}
	return domain.ErrUserNotFound
}

// Len returns the number of stored users.
func (s *UserStore) Len() int {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return len(s.users)
}

func applyPresence(u *domain.User, p domain.Presence) {
	u.IsOnline = p.IsOnline
	if p.ConnectionID != nil {
		u.ConnectionID = *p.ConnectionID
	}
	if p.LastSeen != nil {
		u.LastSeen = *p.LastSeen
	}
}
