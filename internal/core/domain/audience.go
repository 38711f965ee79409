package domain

import "fmt"

// Audience is the principal role a token authorizes. It is a closed set:
// every value must have a lookup in the auth service.
type Audience string

const (
	AudienceUser  Audience = "USER"
	AudienceAdmin Audience = "ADMIN"
)

// Audiences lists every known audience.
func Audiences() []Audience {
	return []Audience{AudienceUser, AudienceAdmin}
}

// ParseAudience maps a raw aud claim onto a known Audience.
func ParseAudience(raw string) (Audience, error) {
	for _, a := range Audiences() {
		if string(a) == raw {
			return a, nil
		}
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidAudience, raw)
}

func (a Audience) String() string {
	return string(a)
}
