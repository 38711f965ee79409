package domain

// AuthSession is the auth state attached to one persistent connection.
// It is created at handshake and discarded when the connection closes.
type AuthSession struct {
	AccessToken  string
	RefreshToken string
	User         *User
	Admin        *User
}

// SetTokens replaces both tokens at once.
func (s *AuthSession) SetTokens(pair TokenPair) {
	s.AccessToken = pair.AccessToken
	s.RefreshToken = pair.RefreshToken
}

// SetPrincipal attaches the resolved record under the slot matching its audience.
func (s *AuthSession) SetPrincipal(p *Principal) {
	if p.IsAdmin() {
		s.Admin = p.User
		return
	}
	s.User = p.User
}
