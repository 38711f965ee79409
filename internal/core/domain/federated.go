package domain

import (
	"fmt"
	"strings"
)

// FederatedProfile is what the identity provider's id_token says about a user.
type FederatedProfile struct {
	Subject string
	Name    string
	Email   string
	Picture string
}

// SplitSubject splits a provider subject such as "google-oauth2|1234" at the
// first '|' into (authMethod, authId).
func (p FederatedProfile) SplitSubject() (authMethod, authID string, err error) {
	method, id, ok := strings.Cut(p.Subject, "|")
	if !ok || method == "" || id == "" {
		return "", "", fmt.Errorf("%w: malformed subject %q", ErrExternalProvider, p.Subject)
	}
	return method, id, nil
}

// FederatedState is the payload carried through the provider redirect in the
// state parameter.
type FederatedState struct {
	TenantID  string `json:"t,omitempty"`
	Nonce     string `json:"n"`
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
