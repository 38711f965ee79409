package domain

import (
	"strings"
	"time"
)

// AuthMethodCustom marks accounts that sign in with a local password.
const AuthMethodCustom = "custom"

// User models an identity owned by one store: the global store or a tenant's.
type User struct {
	ID                 string    `json:"id"`
	Name               string    `json:"name"`
	Email              string    `json:"email,omitempty"`
	PasswordHash       string    `json:"-"`
	AuthMethod         string    `json:"auth_method"`
	AuthID             string    `json:"auth_id,omitempty"`
	ProfilePictureLink string    `json:"profile_picture_link,omitempty"`
	IsOnline           bool      `json:"is_online"`
	LastSeen           time.Time `json:"last_seen"`
	ConnectionID       string    `json:"connection_id,omitempty"`
	CreatedAt          time.Time `json:"created_at"`
	UpdatedAt          time.Time `json:"updated_at"`
}

// HasPassword reports whether the account can sign in with a local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}

// IsFederated reports whether the account carries an external identity pair.
func (u *User) IsFederated() bool {
	return u.AuthMethod != "" && u.AuthMethod != AuthMethodCustom && u.AuthID != ""
}

// HasCredential reports whether at least one way of signing in is set.
func (u *User) HasCredential() bool {
	return u.HasPassword() || u.IsFederated()
}

// Presence carries the fields touched by connect, login and logout.
// Nil pointers leave the stored value unchanged.
type Presence struct {
	IsOnline     bool
	ConnectionID *string
	LastSeen     *time.Time
}

// NormalizeEmail trims and lower-cases an address so lookups are case-insensitive.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
