package oauth

import (
	"context"
	"fmt"
	"strings"

	"golang.org/x/oauth2"

	"github.com/tenantauth/auth-backend/internal/core/domain"
	"github.com/tenantauth/auth-backend/internal/core/ports"
)

// Config describes an Auth0-style tenant: https://<Domain>/authorize and
// https://<Domain>/oauth/token.
type Config struct {
	Domain       string
	ClientID     string
	ClientSecret string
	// RedirectURL is the absolute callback URL registered with the provider.
	RedirectURL string
	Scope       string
}

// Provider implements the authorization-code exchange with x/oauth2.
type Provider struct {
	config  *oauth2.Config
	decoder IDTokenDecoder
}

var _ ports.IdentityProvider = (*Provider)(nil)

// NewProvider builds the provider. A nil decoder reads id_tokens unverified.
func NewProvider(cfg Config, decoder IDTokenDecoder) *Provider {
	if decoder == nil {
		decoder = UnverifiedDecoder{}
	}
	base := strings.TrimSuffix(cfg.Domain, "/")
	if !strings.Contains(base, "://") {
		base = "https://" + base
	}
	return &Provider{
		config: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Scopes:       strings.Fields(cfg.Scope),
			Endpoint: oauth2.Endpoint{
				AuthURL:   base + "/authorize",
				TokenURL:  base + "/oauth/token",
				AuthStyle: oauth2.AuthStyleInParams,
			},
		},
		decoder: decoder,
	}
}

func (p *Provider) AuthCodeURL(state string) string {
	return p.config.AuthCodeURL(state)
}

func (p *Provider) Exchange(ctx context.Context, code string) (*domain.FederatedProfile, error) {
	tok, err := p.config.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("%w: code exchange: %v", domain.ErrExternalProvider, err)
	}
	raw, ok := tok.Extra("id_token").(string)
	if !ok || raw == "" {
		return nil, fmt.Errorf("%w: no id_token in token response", domain.ErrExternalProvider)
	}
	return p.decoder.Decode(ctx, raw)
}
