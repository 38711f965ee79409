package oauth

import (
	"context"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"github.com/golang-jwt/jwt/v5"

	"github.com/tenantauth/auth-backend/internal/core/domain"
)

// IDTokenDecoder turns a raw id_token into the profile fields login needs.
type IDTokenDecoder interface {
	Decode(ctx context.Context, raw string) (*domain.FederatedProfile, error)
}

type profileClaims struct {
	Subject string `json:"sub"`
	Name    string `json:"name"`
	Email   string `json:"email"`
	Picture string `json:"picture"`
}

func (c profileClaims) profile() (*domain.FederatedProfile, error) {
	if c.Subject == "" {
		return nil, fmt.Errorf("%w: id_token has no subject", domain.ErrExternalProvider)
	}
	return &domain.FederatedProfile{Subject: c.Subject, Name: c.Name, Email: c.Email, Picture: c.Picture}, nil
}

// UnverifiedDecoder reads the id_token payload without checking its
// signature. The token was just received from the provider's token endpoint
// over TLS.
type UnverifiedDecoder struct{}

func (UnverifiedDecoder) Decode(_ context.Context, raw string) (*domain.FederatedProfile, error) {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(raw, claims); err != nil {
		return nil, fmt.Errorf("%w: decode id_token: %v", domain.ErrExternalProvider, err)
	}
	str := func(k string) string {
		v, _ := claims[k].(string)
		return v
	}
	return profileClaims{
		Subject: str("sub"),
		Name:    str("name"),
		Email:   str("email"),
		Picture: str("picture"),
	}.profile()
}

// OIDCDecoder verifies the id_token signature against the provider's JWKS.
type OIDCDecoder struct {
	verifier *oidc.IDTokenVerifier
}

// NewOIDCDecoder verifies tokens issued by https://<domain>/ for clientID.
// Keys are fetched lazily from the provider's well-known JWKS endpoint.
func NewOIDCDecoder(ctx context.Context, providerDomain, clientID string) *OIDCDecoder {
	issuer := "https://" + providerDomain + "/"
	keys := oidc.NewRemoteKeySet(ctx, issuer+".well-known/jwks.json")
	return &OIDCDecoder{verifier: oidc.NewVerifier(issuer, keys, &oidc.Config{ClientID: clientID})}
}

func (d *OIDCDecoder) Decode(ctx context.Context, raw string) (*domain.FederatedProfile, error) {
	token, err := d.verifier.Verify(ctx, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: verify id_token: %v", domain.ErrExternalProvider, err)
	}
	var claims profileClaims
	if err := token.Claims(&claims); err != nil {
		return nil, fmt.Errorf("%w: id_token claims: %v", domain.ErrExternalProvider, err)
	}
	return claims.profile()
}
