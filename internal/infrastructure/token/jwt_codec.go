package token

import (
	"errors"
	"fmt"
	"maps"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

// reserved claims are owned by the codec; extras cannot override them.
var reserved = map[string]struct{}{"sub": {}, "aud": {}, "iat": {}, "exp": {}}

// JWTCodec signs HS256 tokens with a single process-wide secret.
type JWTCodec struct {
	secret []byte
	now    func() time.Time
}

var _ ports.TokenCodec = (*JWTCodec)(nil)

func NewJWTCodec(secret string) *JWTCodec {
	return &JWTCodec{secret: []byte(secret), now: time.Now}
}

// WithClock returns a copy of the codec reading time from now.
func (c *JWTCodec) WithClock(now func() time.Time) *JWTCodec {
	clone := *c
	clone.now = now
	return &clone
}

func (c *JWTCodec) Issue(subject string, aud domain.Audience, ttl time.Duration, extra map[string]any) (string, error) {
	if subject == "" {
		return "", errors.New("issue token: empty subject")
	}
	now := c.now()
	claims := jwt.MapClaims{}
	for k, v := range extra {
		if _, ok := reserved[k]; !ok {
			claims[k] = v
		}
	}
	claims["sub"] = subject
	claims["aud"] = string(aud)
	claims["iat"] = now.Unix()
	claims["exp"] = now.Add(ttl).Unix()

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

func (c *JWTCodec) Verify(raw string) (*domain.Claims, error) {
	parser := jwt.NewParser(
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)

	claims := jwt.MapClaims{}
	_, err := parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		// A key-function error surfaces as jwt.ErrTokenUnverifiable.
		if t.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	return toDomain(claims)
}

// classify maps jwt parse errors onto the three token error kinds. Expiry is
// checked first because an expired token also fails general validation.
func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return domain.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", domain.ErrTokenVerificationFailed, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrTokenInvalid, err)
	}
}

func toDomain(claims jwt.MapClaims) (*domain.Claims, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing subject", domain.ErrTokenVerificationFailed)
	}
	aud, _ := claims["aud"].(string)

	out := &domain.Claims{Subject: sub, Audience: aud}
	if iat, err := claims.GetIssuedAt(); err == nil && iat != nil {
		out.IssuedAt = iat.Time
	}
	if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
		out.ExpiresAt = exp.Time
	}

	extra := maps.Clone(map[string]any(claims))
	for k := range reserved {
		delete(extra, k)
	}
	if len(extra) > 0 {
		out.Extra = extra
	}
	return out, nil
}
