package ports

import (
	"time"

	"github.com/tenantauth/auth-backend/internal/core/domain"
)

// TokenCodec signs and verifies compact claim sets. Verify fails with exactly
// one of domain.ErrTokenExpired, domain.ErrTokenInvalid or
// domain.ErrTokenVerificationFailed.
type TokenCodec interface {
	Issue(subject string, aud domain.Audience, ttl time.Duration, extra map[string]any) (string, error)
	Verify(token string) (*domain.Claims, error)
}

// PasswordHasher is a one-way password hashing primitive.
type PasswordHasher interface {
	Hash(plaintext string) (string, error)
	Compare(digest, plaintext string) bool
}
