package domain

import "time"

// ClaimTenant is the extra claim carrying the tenant a USER token was minted in.
const ClaimTenant = "tenant"

// Claims is the decoded, verified content of a signed token.
type Claims struct {
	Subject   string
	Audience  string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Extra     map[string]any
}

// TenantID returns the tenant claim, or "" for tokens minted in the global scope.
func (c *Claims) TenantID() string {
	if c == nil || c.Extra == nil {
		return ""
	}
	tenant, _ := c.Extra[ClaimTenant].(string)
	return tenant
}

// TokenPair is the access/refresh pair handed to clients.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Principal is the authenticated caller resolved from an access token.
type Principal struct {
	Audience Audience `json:"audience"`
	User     *User    `json:"user"`
	Scope    Scope    `json:"-"`
}

// IsAdmin reports whether the principal was authenticated with an ADMIN token.
func (p *Principal) IsAdmin() bool {
	return p != nil && p.Audience == AudienceAdmin
}
